// Package services defines the [Service] interface for music streaming providers and implements it for Spotify and Napster.
//
// # Service Interface
//
// All providers implement a common read-side abstraction, so library listings
// flow into the sync engine uniformly regardless of provider.
//
// # Paginated Fetching
//
// Both providers window their listings. [FetchAll] walks a [PageFunc] until
// the advertised total is collected, bounding the walk and rejecting sources
// whose totals drift mid-listing. Pagination is sequential within one
// collection since each request's offset derives from the items already
// received.
//
// # Spotify Implementation
//
// [SpotifyService] uses OAuth2 for authentication with automatic token refresh.
//
// The [oauth2.Client] automatically refreshes expired tokens using the refresh
// token, and a refresh callback lets callers persist renewed tokens.
//
// # Napster Implementation
//
// [NapsterService] authenticates with the password grant against the
// developer key pair and renews its own bearer token. Library listings carry
// a meta envelope with totalCount, which maps onto [Page] totals.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrNotAuthenticated] : Authenticate() not called
//   - [shared.ErrTokenExpired] : bearer token rejected, reauthorization needed
//   - [shared.ErrServiceUnavailable] : provider throttling or 5xx responses
//   - [shared.ErrAPIRequest] : any other failed HTTP request
//   - [shared.ErrPageDrift] : paginated listing contradicted itself
//
// # API Mappings
//
// Both services convert provider-specific JSON responses to the neutral DTOs:
//   - Spotify: [SpotifySimplePlaylist] → [Playlist] with ISRC from external_ids
//   - Napster: [NapsterPlaylist] → [Playlist] with ISRC from the track object
//
// Each DTO carries the re-encoded provider document in Raw so the store can
// persist provider payloads without re-fetching.
package services
