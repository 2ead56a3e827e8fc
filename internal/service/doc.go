// Package service contains the application use cases that sit between the
// HTTP API and the scheduler.
//
// TaskService turns an uploaded file ID into a scheduler submission,
// TranscriptService reads persisted transcripts, and TranscriptMirror
// listens for completed tasks on the event bus and writes their transcripts
// to a store.TranscriptStore keyed by source file.
//
// Services receive their dependencies through constructor injection and
// depend on store interfaces, never on a specific database.
package service
