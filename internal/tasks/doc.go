// Package tasks turns browse selections into play queues and keeps playback state current.
//
// # Core Operations
//
//  1. [Resolver.Resolve] : Flatten a selection into tracks
//     - Albums and playlists expand depth-first into their children
//     - Tracks are kept in selection order
//     - Folders and artists are skipped with a [Diagnostic]
//
//  2. [Resolver.ExpandInContext] : Play one track inside the listing it was browsed from
//     - Resolves the parent's whole listing
//     - Starts at the track's position in the flattened result
//
//  3. [Prefetcher.OnTransition] : Queue the next tracks for download
//     - Walks the effective play order (shuffle and repeat aware) from the current index
//     - Stops after N steps, at the end of the order, or when the walk loops back
//
// Every successful resolution is saved as the last playlist through a [PlaybackStore].
//
// # Session
//
// [Session] is the facade a host talks to. It pages listings, chooses between plain
// resolution and play-in-context, restores the last playlist, forwards ratings and reports
// transitions to the server. [PositionPoller] writes the playback position once a second
// while the player is playing.
//
// # Progress Reporting
//
// Long operations send [ProgressUpdate] values on an optional channel. Sends use select with
// default, so a slow reader drops updates instead of stalling playback.
package tasks
