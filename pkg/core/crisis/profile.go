package crisis

import "fmt"

// VoiceProfile is an immutable synthesis parameter set. Profiles are attached
// to every synthesis request; switching modes never re-initializes or
// re-handshakes the synthesis channel.
type VoiceProfile struct {
	VoiceID string `json:"voice_id"`
	Style   string `json:"style"`
	// Rate and Pitch are percentage offsets from the voice's neutral delivery.
	Rate  int `json:"rate"`
	Pitch int `json:"pitch"`
}

var profileTable = map[Mode]VoiceProfile{
	ModeDefault:  {VoiceID: "en-US-natalie", Style: "Conversational", Rate: 0, Pitch: 0},
	ModeStealth:  {VoiceID: "en-US-natalie", Style: "Meditative", Rate: -15, Pitch: -10},
	ModeDecoy:    {VoiceID: "en-IN-aarav", Style: "Conversational", Rate: 5, Pitch: -5},
	ModeUrgent:   {VoiceID: "en-US-natalie", Style: "Conversational", Rate: 10, Pitch: 5},
	ModeCalm:     {VoiceID: "en-US-natalie", Style: "Meditative", Rate: -20, Pitch: -5},
	ModePizzaOps: {VoiceID: "en-US-natalie", Style: "Conversational", Rate: 5, Pitch: 2},
}

// Lookup returns the profile for mode. Missing mappings are a configuration
// error; ValidateTable rejects them at startup, so reaching one here means a
// mode escaped validation.
func Lookup(mode Mode) (VoiceProfile, error) {
	p, ok := profileTable[mode]
	if !ok {
		return VoiceProfile{}, fmt.Errorf("no voice profile for mode %q", mode)
	}
	return p, nil
}

// ValidateTable checks that every recognized mode has a profile. Called once
// at startup; a failure here is a configuration error, not a request error.
func ValidateTable() error {
	for _, mode := range Modes() {
		if _, ok := profileTable[mode]; !ok {
			return fmt.Errorf("voice profile table is missing mode %q", mode)
		}
	}
	return nil
}
