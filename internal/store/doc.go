// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying storage mechanism from the
// scheduler and API, so completed transcripts can be kept in memory or in
// a database without changing the code that produces them.
//
// The package also provides MemoryTranscriptStore, used when no database
// is configured and in tests.
package store
