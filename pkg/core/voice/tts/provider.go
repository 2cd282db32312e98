// Package tts renders assistant replies to speech with the voice profile of
// the active crisis mode.
package tts

import (
	"context"

	"github.com/vigil-live/vigil/pkg/core/crisis"
)

// Format selects the output encoding for a synthesis request.
type Format string

const (
	// FormatBrowser is MP3 at 24 kHz for the browser audio element.
	FormatBrowser Format = "browser"
	// FormatPhone is headerless 16-bit PCM at 8 kHz, ready for mu-law
	// transcoding onto a telephony stream.
	FormatPhone Format = "phone"
)

// Synthesis is one rendered utterance.
type Synthesis struct {
	// Audio is the encoded payload in the requested format.
	Audio []byte
	// Format echoes the request.
	Format Format
}

// Synthesizer renders text to speech. The profile is passed by value so a
// request keeps the profile captured at submission even if the session's mode
// changes while synthesis is in flight.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string, profile crisis.VoiceProfile, format Format) (*Synthesis, error)
}
