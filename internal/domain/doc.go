// Package domain contains the core entities of the transcription service:
// tasks with their options, statuses and progress, the lifecycle transition
// table, transcripts, and the queue state projection. It has no dependencies
// on storage or transport.
package domain
