// Package gemini provides an implementation of the task.Executor interface
// that uses Google's Gemini API to transcribe uploaded audio.
//
// This package is an infrastructure adapter, connecting the scheduler to
// Google's external Gemini service without exposing the details of that
// service to the core application.
//
// Key components:
//
// 1. Transcriber:
//   - Implements the task.Executor interface
//   - Loads audio from a transcribe.AudioSource and sends it inline with a prompt
//   - Reports coarse progress while the request is in flight
//
// 2. Response Processing:
//   - Requests a JSON response and parses it into a domain.Transcript
//   - Tolerates responses wrapped in Markdown code fences
//
// 3. Error Handling:
//   - Translates empty, malformed and blocked responses into transcribe errors
//   - Does not retry on its own; the scheduler's retry controller decides
package gemini
