package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/dashtune/internal/models"
	"github.com/desertthunder/dashtune/internal/shared"
)

// CredentialRepository stores one signed-in account per server and the installation's device id.
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new [CredentialRepository] with the given database connection
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Save inserts or replaces the credential for its server.
func (r *CredentialRepository) Save(c *models.Credential) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	query := `
		INSERT INTO credentials (server_url, user_id, username, access_token, device_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(server_url) DO UPDATE SET
			user_id = excluded.user_id,
			username = excluded.username,
			access_token = excluded.access_token,
			device_id = excluded.device_id,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query, c.ServerURL, c.UserID, c.Username, c.AccessToken, c.DeviceID, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Get retrieves the credential for a server.
func (r *CredentialRepository) Get(serverURL string) (*models.Credential, error) {
	query := `
		SELECT server_url, user_id, username, access_token, device_id, created_at, updated_at
		FROM credentials
		WHERE server_url = ?
	`
	return r.scan(r.db.QueryRow(query, serverURL), serverURL)
}

// Latest retrieves the most recently saved credential on any server.
func (r *CredentialRepository) Latest() (*models.Credential, error) {
	query := `
		SELECT server_url, user_id, username, access_token, device_id, created_at, updated_at
		FROM credentials
		ORDER BY updated_at DESC
		LIMIT 1
	`
	return r.scan(r.db.QueryRow(query), "any server")
}

func (r *CredentialRepository) scan(row *sql.Row, label string) (*models.Credential, error) {
	var c models.Credential
	err := row.Scan(&c.ServerURL, &c.UserID, &c.Username, &c.AccessToken, &c.DeviceID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: credential for %s", shared.ErrNotFound, label)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query credential: %w", err)
	}
	return &c, nil
}

// Delete removes the credential for a server.
func (r *CredentialRepository) Delete(serverURL string) error {
	result, err := r.db.Exec(`DELETE FROM credentials WHERE server_url = ?`, serverURL)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: credential for %s", shared.ErrNotFound, serverURL)
	}
	return nil
}

// DeviceID returns the persisted device id, generating one on first use.
func (r *CredentialRepository) DeviceID() (string, error) {
	var id string
	err := withTx(r.db, func(tx *sql.Tx) error {
		err := tx.QueryRow(`SELECT device_id FROM device WHERE id = 1`).Scan(&id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to query device id: %w", err)
		}

		id = shared.GenerateID()
		if _, err := tx.Exec(`INSERT INTO device (id, device_id) VALUES (1, ?)`, id); err != nil {
			return fmt.Errorf("failed to store device id: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}
