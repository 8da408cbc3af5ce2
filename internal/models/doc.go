// Package models defines the records cached by songbook and the shapes exchanged with the remote document store.
//
// The package contains three groups of types:
//
// 1. Storage partitions
//   - [Collection] : one of songs, repertoire, setlists, settings; each knows its key field
//
// 2. Cached data
//   - [Record] : a schemaless domain object keyed by its collection's key field
//   - [Payload] : a single record or an ordered list, preserving that shape through JSON
//   - [UserSettings] : device preferences mirrored into the settings collection
//
// 3. Remote data
//   - [Document] : a remote document (identifier + data) mapped to a [Record] with [Document.Record]
//
// Keys are unique within a collection. Writing a record whose key already exists replaces it.
package models
