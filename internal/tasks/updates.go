package tasks

import (
	"fmt"

	"github.com/desertthunder/dashtune/internal/downloads"
	"github.com/desertthunder/dashtune/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	ResolveSelection Phase = iota
	ExpandContext
	RestorePlaylist
	PrefetchTracks
	DownloadTrack
)

func (p Phase) String() string {
	switch p {
	case ResolveSelection:
		return "resolve_selection"
	case ExpandContext:
		return "expand_context"
	case RestorePlaylist:
		return "restore_playlist"
	case PrefetchTracks:
		return "prefetch_tracks"
	case DownloadTrack:
		return "download_track"
	default:
		return ""
	}
}

// sendProgress never blocks; updates are dropped when nobody is reading.
func sendProgress(progress chan<- ProgressUpdate, u ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- u:
	default:
	}
}

func resolvedUpdate(res *Resolution) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveSelection,
		Step:    len(res.Tracks),
		Total:   len(res.Tracks) + len(res.Diagnostics),
		Message: fmt.Sprintf("Resolved %d tracks (%d skipped)", len(res.Tracks), len(res.Diagnostics)),
		Data:    res,
	}
}

func expandedUpdate(parent string, res *Resolution) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExpandContext,
		Step:    res.StartIndex + 1,
		Total:   len(res.Tracks),
		Message: fmt.Sprintf("Playing %d of %d from %s", res.StartIndex+1, len(res.Tracks), parent),
		Data:    res,
	}
}

func restoredUpdate(step, total int, n models.Node) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RestorePlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s", step, total, n.Title),
		Data:    n,
	}
}

func restoreFailedUpdate(step, total int, id string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RestorePlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, id, err),
	}
}

func submittedUpdate(step, total int, item models.TimelineItem) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PrefetchTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Queued %s", step, total, item.ID),
		Data:    item,
	}
}

func downloadUpdate(e downloads.Event) ProgressUpdate {
	u := ProgressUpdate{Phase: DownloadTrack, Data: e}
	switch e.State {
	case downloads.Completed:
		u.Message = fmt.Sprintf("✓ %s", e.ID)
	case downloads.Failed:
		u.Message = fmt.Sprintf("✗ %s: %v", e.ID, e.Err)
	default:
		u.Message = fmt.Sprintf("%s %s", e.State, e.ID)
	}
	return u
}
