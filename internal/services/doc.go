// Package services defines the [Catalog] interface for the remote media catalog and implements it for Jellyfin.
//
// # Catalog Interface
//
// The node cache, resolver and session only see [Catalog]. Tests substitute an in-memory fake.
//
// # Jellyfin Implementation
//
// [JellyfinService] issues typed HTTP calls through doRequest: requests are rate limited with
// [rate.Limiter], JSON bodies are decoded into [Item] values and non-2xx responses become typed errors.
//
// # Credentials
//
// The signed-in user lives in a [CredentialSource], which implements [oauth2.TokenSource].
// [AuthTransport] reads it on every request through an [oauth2.Transport] and rewrites the
// header into the MediaBrowser form, so signing in again takes effect on the next call without
// rebuilding the client.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrRemoteUnavailable] : transport failure, rate limiter cancellation or unexpected status
//   - [shared.ErrNotFound] : 404
//   - [shared.ErrNotAuthenticated] : 401/403, or no signed-in user
//   - [shared.ErrAuthFailed] : rejected sign-in
package services
