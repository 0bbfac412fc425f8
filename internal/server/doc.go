// Package server provides HTTP routing, middleware, and the sync service's web API.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # API Surface
//
// [API] wires the web surface over the session manager, the store, and the sync engine:
//
//	GET  /health             → liveness probe
//	GET  /auth/login         → redirect to the provider's consent page
//	GET  /auth/callback      → code exchange, answers with a session token
//	POST /sync               → run a sync pass for the bearer session
//	GET  /library/playlists  → stored library snapshot for the bearer session
//
// Protected routes require an Authorization: Bearer header carrying a token
// issued by the session manager. Every failure is serialized as
//
//	{"kind": "...", "message": "..."}
//
// with the status derived from the kind: 401 authentication_required,
// 502 upstream_api_error, 500 persistence_error and configuration_error.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the OAuth2 authorization code callback used by the
// CLI login flow. When the user runs the auth command, a temporary HTTP server
// starts on the configured redirect address, handles a single callback
// (validating the state parameter and exchanging the code), and delivers the
// token through a channel before shutting down.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
