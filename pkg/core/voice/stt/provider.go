// Package stt streams session audio to a speech-to-text collaborator and
// yields transcript deltas.
package stt

import "context"

// StreamOptions configures a live transcription stream.
type StreamOptions struct {
	// Encoding is the raw audio encoding, e.g. "linear16" or "mulaw".
	Encoding string
	// SampleRate in Hz. 16000 for browser capture, 8000 for telephony.
	SampleRate int
	// Language hint, default "en".
	Language string
	// Model identifier; empty picks the provider default.
	Model string
}

// TranscriptDelta is one incremental transcription result.
type TranscriptDelta struct {
	// Text is the recognized text for this delta.
	Text string
	// IsFinal marks the delta as a settled utterance rather than an
	// interim guess.
	IsFinal bool
	// SpeechFinal marks the end of a spoken turn (endpointing).
	SpeechFinal bool
}

// Stream is one live transcription session.
type Stream interface {
	// SendAudio pushes a raw audio frame upstream.
	SendAudio(data []byte) error
	// Finalize flushes buffered audio into a final transcript without
	// closing the stream.
	Finalize() error
	// Transcripts is closed when the stream ends.
	Transcripts() <-chan TranscriptDelta
	// Done is closed when the stream ends for any reason.
	Done() <-chan struct{}
	Close() error
}

// Provider opens live transcription streams.
type Provider interface {
	Name() string
	NewStream(ctx context.Context, opts StreamOptions) (Stream, error)
}
