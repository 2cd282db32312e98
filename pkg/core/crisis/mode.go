// Package crisis implements the crisis-mode state machine: the closed set of
// operating modes, the control-token grammar the intelligence backend embeds
// in its responses, and the voice profile table keyed by mode.
package crisis

import (
	"fmt"
	"strings"
)

// Mode is an operating state governing voice profile and response strategy.
type Mode string

const (
	ModeDefault  Mode = "DEFAULT"
	ModeStealth  Mode = "STEALTH"
	ModeDecoy    Mode = "DECOY"
	ModeUrgent   Mode = "URGENT"
	ModeCalm     Mode = "CALM"
	ModePizzaOps Mode = "PIZZA_OPS"
)

// Modes lists every recognized mode. Order is stable for display.
func Modes() []Mode {
	return []Mode{ModeDefault, ModeStealth, ModeDecoy, ModeUrgent, ModeCalm, ModePizzaOps}
}

// ParseMode resolves a token name into a Mode.
func ParseMode(name string) (Mode, bool) {
	switch Mode(strings.ToUpper(strings.TrimSpace(name))) {
	case ModeDefault:
		return ModeDefault, true
	case ModeStealth:
		return ModeStealth, true
	case ModeDecoy:
		return ModeDecoy, true
	case ModeUrgent:
		return ModeUrgent, true
	case ModeCalm:
		return ModeCalm, true
	case ModePizzaOps:
		return ModePizzaOps, true
	default:
		return "", false
	}
}

// Signal is an out-of-band instruction raised by a control token. Signals do
// not change mode; they are consumed by the session coordinator.
type Signal string

const (
	// SignalSOS escalates immediately.
	SignalSOS Signal = "SOS"
	// SignalCall escalates immediately with a live call bridge.
	SignalCall Signal = "CALL"
	// SignalTimer arms a short pre-escalation countdown.
	SignalTimer Signal = "TIMER"
	// SignalSafe confirms the user is safe and closes the episode.
	SignalSafe Signal = "SAFE"
)

// ParseSignal resolves a token name into a Signal.
func ParseSignal(name string) (Signal, bool) {
	switch Signal(strings.ToUpper(strings.TrimSpace(name))) {
	case SignalSOS:
		return SignalSOS, true
	case SignalCall:
		return SignalCall, true
	case SignalTimer:
		return SignalTimer, true
	case SignalSafe:
		return SignalSafe, true
	default:
		return "", false
	}
}

// Result is the outcome of applying one raw intelligence response to the
// current mode.
type Result struct {
	// Clean is the response text with all control tokens stripped and
	// whitespace normalized. This is what reaches synthesis and the log.
	Clean string
	// Mode is the mode after applying the response. Last recognized MODE
	// token wins; unchanged when no MODE token is present.
	Mode Mode
	// Signals are the recognized SIGNAL tokens in extraction order.
	Signals []Signal
	// Warnings describe token-shaped fragments that were stripped but not
	// recognized. Non-fatal.
	Warnings []string
}

// Apply parses the control tokens out of raw, resolves the resulting mode,
// and returns the cleaned text. Pure function of (current, raw); the caller
// persists the returned mode into the session.
func Apply(current Mode, raw string) Result {
	res := Result{Mode: current}

	var clean strings.Builder
	for _, part := range extractTokens(raw) {
		if !part.isToken {
			clean.WriteString(part.text)
			continue
		}
		// A stripped token separates its neighbors; normalizeSpace collapses
		// the extra whitespace afterwards.
		clean.WriteByte(' ')
		switch part.kind {
		case tokenKindMode:
			mode, ok := ParseMode(part.name)
			if !ok {
				res.Warnings = append(res.Warnings, fmt.Sprintf("unrecognized mode token %q", part.raw))
				continue
			}
			res.Mode = mode
		case tokenKindSignal:
			sig, ok := ParseSignal(part.name)
			if !ok {
				res.Warnings = append(res.Warnings, fmt.Sprintf("unrecognized signal token %q", part.raw))
				continue
			}
			res.Signals = append(res.Signals, sig)
		default:
			res.Warnings = append(res.Warnings, fmt.Sprintf("unrecognized token %q", part.raw))
		}
	}

	res.Clean = normalizeSpace(clean.String())
	return res
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
