// Package services defines the remote collaborators of the sync core and implements them over HTTP.
//
// # Collaborators
//
//   - [DocumentStore] : the remote, authoritative document database
//   - [Connectivity] : network reachability with change notifications
//   - [UserProvider] : the signed-in user, if any
//
// # Document Store
//
// [DocumentService] reads collections as JSON documents. Each document carries an identifier and a data object.
//
// Credentials come from the remote config section.
// With client credentials configured, [clientcredentials.Config] fetches and refreshes tokens automatically.
// A static token is sent as a bearer token. Requests are paced by a [rate.Limiter].
//
// # Connectivity
//
// [ProbeMonitor] sends HEAD requests to a health endpoint and caches the result.
// Subscribers hear about transitions only, never about repeated identical results.
//
// # Error Handling
//
// Fetch failures are returned as [shared.RemoteFetchError] wrapping [shared.ErrAPIRequest] or the transport error.
package services
