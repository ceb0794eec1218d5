// Package models defines the domain values shared by the catalog cache, resolution and playback layers.
//
// The package contains two categories of types:
//
// 1. Catalog values: immutable nodes mirroring the remote media hierarchy
//   - [Node] : one folder, artist, album, playlist or track, tagged by [Kind]
//   - [TrackInfo] : the payload present only on track nodes
//   - [Playability] : the tri-state derived from a node's kind
//
// 2. Playback values: what the session host plays and what is persisted between sessions
//   - [PlaybackState] : the last resolved playlist, its index and position
//   - [Timeline] : the host's current play order with shuffle and repeat applied by [Timeline.Next]
//
// Nodes are values. A changed node is a new node with the same ID, never a mutation.
package models
