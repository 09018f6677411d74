// Package acl is the anti-corruption layer between the identity API's wire
// format and the domain.
//
// [IdentityClient] calls the API through the resilient [clients.Client] and
// hands back domain types. The `{success, data}` envelope and the API's JSON
// shapes never leave this package.
//
// # Error Handling Strategy
//
// The client turns every non-2xx response into a generic
// *domain.RequestError. This package reads the `{success:false, error}`
// envelope of such a response and rebuilds the original failure kind:
//   - 400 → *domain.ValidationError carrying the envelope's field details
//   - 404 → *domain.NotFoundError
//   - anything else → *domain.RequestError with the status and message
//
// Failures that produced no response (timeouts, transport errors, an open
// circuit) are returned unchanged. A timeout still means the outcome is
// unknown.
package acl
