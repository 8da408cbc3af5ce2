// Package server provides the local read API over the offline cache.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns, so "GET /api/collections/{name}"
// rejects other methods with 405 and exposes the wildcard through [http.Request.PathValue].
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
//
// # Routes
//
//   - GET  /healthz                       liveness
//   - GET  /api/collections/{name}        every cached record of a collection
//   - GET  /api/collections/{name}/{key}  one record (sqlite backend; preferences returns the blob)
//   - GET  /api/sync/status               connectivity, backend, last sync times and last pass
//   - POST /api/sync                      queue a pass; ?wait=true runs one and returns its result
//
// Nothing is ever written to the cache through this API except by the sync pass itself.
package server
