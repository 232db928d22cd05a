// Package flagstore keeps the evaluated flags of the active user for one
// environment.
//
// Every mutation swaps in a new immutable map, so readers never see a
// partially applied update, and reports which keys changed. Listeners are
// invoked only for keys whose value, version or variation changed.
//
// Snapshots are persisted per user through a kvstore.Store as
// zstd-compressed JSON under "flags/{env}/{userHash}". An index under
// "index/{env}" tracks recently used users; once it grows past
// WithMaxCachedUsers the least recently used snapshot is deleted.
package flagstore
