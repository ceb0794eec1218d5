package repositories

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/dashtune/internal/models"
	"github.com/desertthunder/dashtune/internal/shared"
)

// Keys of the persisted playback record.
const (
	KeyPlaylistIDs        = "playlist_ids"
	KeyPlaylistIndex      = "playlist_index"
	KeyPlaylistPositionMs = "playlist_position_ms"
)

// PlaybackStateRepository persists the last resolved playlist as a flat key/value record.
//
// Save, SaveIndex and SavePosition are independent writers: the last write to a field wins.
type PlaybackStateRepository struct {
	db *sql.DB
}

// NewPlaybackStateRepository creates a new [PlaybackStateRepository] with the given database connection
func NewPlaybackStateRepository(db *sql.DB) *PlaybackStateRepository {
	return &PlaybackStateRepository{db: db}
}

// Save replaces the playlist, index and position in one transaction.
func (r *PlaybackStateRepository) Save(ids []string, index int, positionMs int64) error {
	for _, id := range ids {
		if id == "" || strings.Contains(id, ",") {
			return fmt.Errorf("%w: playlist id %q", shared.ErrInvalidArgument, id)
		}
	}
	if index < 0 || positionMs < 0 {
		return fmt.Errorf("%w: index %d, position %d", shared.ErrInvalidArgument, index, positionMs)
	}

	return withTx(r.db, func(tx *sql.Tx) error {
		if err := putValue(tx, KeyPlaylistIDs, strings.Join(ids, ",")); err != nil {
			return err
		}
		if err := putValue(tx, KeyPlaylistIndex, strconv.Itoa(index)); err != nil {
			return err
		}
		return putValue(tx, KeyPlaylistPositionMs, strconv.FormatInt(positionMs, 10))
	})
}

// SaveIndex records the current track index.
func (r *PlaybackStateRepository) SaveIndex(index int) error {
	if index < 0 {
		return fmt.Errorf("%w: index %d", shared.ErrInvalidArgument, index)
	}
	return putValue(r.db, KeyPlaylistIndex, strconv.Itoa(index))
}

// SavePosition records the playback position.
func (r *PlaybackStateRepository) SavePosition(positionMs int64) error {
	if positionMs < 0 {
		return fmt.Errorf("%w: position %d", shared.ErrInvalidArgument, positionMs)
	}
	return putValue(r.db, KeyPlaylistPositionMs, strconv.FormatInt(positionMs, 10))
}

// Load returns the stored record. Missing fields default to an empty playlist, index 0 and position 0.
func (r *PlaybackStateRepository) Load() (models.PlaybackState, error) {
	state := models.PlaybackState{IDs: []string{}}

	rows, err := r.db.Query(`SELECT key, value FROM playback_state WHERE key IN (?, ?, ?)`,
		KeyPlaylistIDs, KeyPlaylistIndex, KeyPlaylistPositionMs)
	if err != nil {
		return state, fmt.Errorf("failed to query playback state: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return state, fmt.Errorf("failed to scan playback state: %w", err)
		}

		switch key {
		case KeyPlaylistIDs:
			if value != "" {
				state.IDs = strings.Split(value, ",")
			}
		case KeyPlaylistIndex:
			state.Index, err = strconv.Atoi(value)
		case KeyPlaylistPositionMs:
			state.PositionMs, err = strconv.ParseInt(value, 10, 64)
		}
		if err != nil {
			return models.PlaybackState{IDs: []string{}}, fmt.Errorf("corrupt %s value %q: %w", key, value, err)
		}
	}

	if err := rows.Err(); err != nil {
		return state, fmt.Errorf("row iteration error: %w", err)
	}
	return state, nil
}

// Clear forgets the stored record.
func (r *PlaybackStateRepository) Clear() error {
	if _, err := r.db.Exec(`DELETE FROM playback_state`); err != nil {
		return fmt.Errorf("failed to clear playback state: %w", err)
	}
	return nil
}
