// Package repositories implements the local offline cache.
//
// Two backends implement [Repository]:
//   - [SQLiteRepository] : one table per collection, records stored as JSON rows keyed by the collection's key field.
//     Each Save or Replace is one transaction.
//   - [PreferenceRepository] : one serialized blob per collection in a flat key/value store such as [FileKeyValue].
//     Every save replaces the whole blob, so the settings collection holds only its most recent entry.
//
// [Open] selects the backend from its [Kind]; the choice is fixed for the life of the process.
//
// [OfflineStore] wraps a backend with the songs sync:
// it fetches the remote songs collection, overwrites the local copy and stamps lastSongsSync.
// Sync outcomes are returned as [SyncResult] values and never as errors.
package repositories
