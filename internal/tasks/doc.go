// Package tasks runs reconciliation passes between the remote document store and the local cache.
//
// # Passes
//
// A pass checks connectivity and, when online, runs three sub-syncs in order:
//
//  1. songs : the whole remote songs collection replaces the local one, then lastSongsSync is stamped
//  2. repertoire : the signed-in user's repertoire replaces the local one; skipped with no user
//  3. settings : device theme and font size are written to the userSettings record
//
// A songs failure is reported in the [PassResult] and the pass continues.
// A repertoire or settings failure ends the pass, and [Coordinator.LastSync] is left unchanged.
//
// # Triggers
//
// [Coordinator.Start] runs a pass immediately and then on a fixed interval.
// Regaining connectivity triggers a pass, throttled by a [rate.Limiter].
// [Coordinator.Trigger] and [Coordinator.PerformSync] request passes on demand.
//
// Only one pass executes at a time; triggers during a pass coalesce into a single follow-up.
//
// # Reporting
//
// Every pass produces a [PassResult] with a run ID, delivered to a [Reporter].
// [ChannelReporter] uses select with default so reporting never blocks a pass.
package tasks
