// Package server exposes a session to playback hosts over HTTP.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [RequestLogger] and [Recoverer] are installed on every route by [NewRouter].
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns, so path values such as
// {id} are available through [http.Request.PathValue].
//
// # Session API
//
// [API] maps the browse and playback contract onto JSON endpoints:
//
//	GET  /api/root                     → root node
//	GET  /api/items/{id}               → single node
//	GET  /api/items/{id}/children      → children (?page=&pageSize=)
//	GET  /api/search?q=                → grouped search results (?page=&pageSize=)
//	POST /api/playlist                 → resolve a selection into a play queue
//	GET  /api/playlist/resume          → rebuild the last saved play queue
//	POST /api/items/{id}/rating        → mark or unmark a favourite
//	POST /api/playback/transition      → record a track change and prefetch what follows
//	POST /api/playback/position        → record the playback position
//
// Errors are returned as {"error": "..."} with a status chosen by [StatusFor].
//
// # Artwork
//
// [ArtHandler] serves GET /art/{handle}. Artwork handles are stable names for remote image
// URLs; the first request fetches the image into the on-disk cache and later requests are
// served from disk.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
