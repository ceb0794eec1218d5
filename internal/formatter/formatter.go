// Package formatter renders node listings and resolved playlists as text, Markdown, CSV and JSON.
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/dashtune/internal/models"
	"github.com/dustin/go-humanize"
)

// Format selects an export encoding.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
)

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown format %q", s)
}

// FormatDuration renders milliseconds as m:ss, or h:mm:ss from an hour up.
func FormatDuration(ms int64) string {
	if ms <= 0 {
		return "0:00"
	}
	total := ms / 1000
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// TotalDuration sums the track durations.
func TotalDuration(nodes []models.Node) time.Duration {
	var ms int64
	for _, n := range nodes {
		ms += n.DurationMs()
	}
	return time.Duration(ms) * time.Millisecond
}

// Line renders one node as a single listing line.
func Line(i int, n models.Node) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%3d. [%s] %s", i, n.Kind, n.Title)
	if n.Subtitle != "" {
		fmt.Fprintf(&b, " - %s", n.Subtitle)
	}
	if n.Track != nil {
		fmt.Fprintf(&b, " (%s)", FormatDuration(n.Track.DurationMs))
		if n.Track.Favorite {
			b.WriteString(" ♥")
		}
	}
	return b.String()
}

// ExportToText lists nodes one per line. A header is written whenever the group label changes.
func ExportToText(nodes []models.Node) []byte {
	var buf bytes.Buffer
	group := ""
	for i, n := range nodes {
		if n.GroupLabel != "" && n.GroupLabel != group {
			if i > 0 {
				buf.WriteString("\n")
			}
			fmt.Fprintf(&buf, "%s\n", n.GroupLabel)
			group = n.GroupLabel
		}
		buf.WriteString(Line(i+1, n))
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

// ExportToMarkdown renders a play queue with a summary header.
func ExportToMarkdown(title string, tracks []models.Node, startIndex int) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", title)
	fmt.Fprintf(&buf, "**Tracks**: %s\n", humanize.Comma(int64(len(tracks))))
	fmt.Fprintf(&buf, "**Length**: %s\n\n", TotalDuration(tracks).Round(time.Second))

	buf.WriteString("## Tracks\n\n")
	for i, n := range tracks {
		marker := ""
		if i == startIndex {
			marker = " ▶"
		}
		subtitle := ""
		if n.Subtitle != "" {
			subtitle = fmt.Sprintf(" (%s)", n.Subtitle)
		}
		fmt.Fprintf(&buf, "%d. %s%s [%s]%s\n", i+1, n.Title, subtitle, FormatDuration(n.DurationMs()), marker)
	}
	return buf.Bytes()
}

// ExportToCSV converts tracks to CSV with columns: ID, Kind, Title, Subtitle, AlbumID, DurationMs, Favorite
func ExportToCSV(nodes []models.Node) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Kind", "Title", "Subtitle", "AlbumID", "DurationMs", "Favorite"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, n := range nodes {
		albumID, favorite := "", false
		if n.Track != nil {
			albumID, favorite = n.Track.AlbumID, n.Track.Favorite
		}
		record := []string{
			n.ID,
			n.Kind.String(),
			n.Title,
			n.Subtitle,
			albumID,
			strconv.FormatInt(n.DurationMs(), 10),
			strconv.FormatBool(favorite),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ToJSON marshals v, indented when pretty is set.
func ToJSON(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

// Export renders tracks in the given format.
func Export(format Format, title string, tracks []models.Node, startIndex int) ([]byte, error) {
	switch format {
	case FormatText:
		return ExportToText(tracks), nil
	case FormatMarkdown:
		return ExportToMarkdown(title, tracks, startIndex), nil
	case FormatCSV:
		return ExportToCSV(tracks)
	case FormatJSON:
		return ToJSON(tracks, true)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// WriteExport writes tracks to path, choosing the format from the file extension.
func WriteExport(path, title string, tracks []models.Node, startIndex int) (Format, error) {
	format, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return "", err
	}

	data, err := Export(format, title, tracks, startIndex)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", format, err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", format, err)
	}
	return format, nil
}

// Bytes renders a byte count, e.g. "3.4 MB".
func Bytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// Count renders n with thousands separators.
func Count(n int) string {
	return humanize.Comma(int64(n))
}
