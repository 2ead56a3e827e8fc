// Package transcribe holds the pieces around the transcription call itself:
// where uploaded audio lives, how transcripts are cleaned up afterwards, and
// the errors a transcription backend reports. The backend boundary is
// task.Executor; concrete backends live under internal/platform.
package transcribe
