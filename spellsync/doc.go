// Package spellsync keeps the vector indexes in step with the filesystem.
//
// Two synchronization passes share one Synchronizer. SyncSpells mirrors the
// Registry into per-bucket collections, diffing each spell's doc digest
// against the stored metadata so unchanged spells are never re-embedded.
// SyncCollections builds the master index of collection descriptions, calling
// the provider to summarize each collection's extracted documentation and
// caching the result next to the sources; SyncCollectionsConcurrent runs the
// same pass with a bounded number of summaries in flight.
//
// Both passes are incremental and idempotent: running them twice against an
// unchanged tree performs no index writes the second time (spells) or reuses
// every cached summary (collections). Per-item failures degrade to warnings
// and placeholders rather than aborting the pass.
//
// All text that leaves the filesystem for a summarization prompt goes through
// Sanitize first, because spell documentation is untrusted input.
package spellsync
