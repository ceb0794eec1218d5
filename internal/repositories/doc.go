// Package repositories implements SQLite persistence for playback state and credentials.
//
// Key Implementations:
//   - [PlaybackStateRepository] : the "last playlist" record (ids, index, position) as flat key/value rows
//   - [CredentialRepository] : one signed-in account per server plus the installation's device id
//
// Repositories take a *sql.DB opened with [shared.OpenDatabase]; the schema lives in the embedded migrations.
package repositories
