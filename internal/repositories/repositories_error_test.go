package repositories

import (
	"errors"
	"testing"

	"github.com/desertthunder/dashtune/internal/models"
	"github.com/desertthunder/dashtune/internal/shared"
)

func TestRepositoryErrorsClosedDatabase(t *testing.T) {
	db := setupTestDB(t)
	credentials := NewCredentialRepository(db)
	playback := NewPlaybackStateRepository(db)
	db.Close()

	cred := &models.Credential{
		ServerURL:   "http://jellyfin.local",
		UserID:      "u1",
		Username:    "alice",
		AccessToken: "tok",
		DeviceID:    "dev",
	}

	tests := []struct {
		name string
		fn   func() error
	}{
		{"CredentialRepository.Save", func() error { return credentials.Save(cred) }},
		{"CredentialRepository.Get", func() error { _, err := credentials.Get(cred.ServerURL); return err }},
		{"CredentialRepository.Latest", func() error { _, err := credentials.Latest(); return err }},
		{"CredentialRepository.Delete", func() error { return credentials.Delete(cred.ServerURL) }},
		{"CredentialRepository.DeviceID", func() error { _, err := credentials.DeviceID(); return err }},
		{"PlaybackStateRepository.Save", func() error { return playback.Save([]string{"a"}, 0, 0) }},
		{"PlaybackStateRepository.SaveIndex", func() error { return playback.SaveIndex(0) }},
		{"PlaybackStateRepository.SavePosition", func() error { return playback.SavePosition(10) }},
		{"PlaybackStateRepository.Load", func() error { _, err := playback.Load(); return err }},
		{"PlaybackStateRepository.Clear", func() error { return playback.Clear() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			if err == nil {
				t.Fatal("expected error on closed database")
			}
			if errors.Is(err, shared.ErrNotFound) {
				t.Errorf("closed database reported as missing row: %v", err)
			}
		})
	}
}
