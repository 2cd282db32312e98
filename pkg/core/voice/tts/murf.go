package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/vigil-live/vigil/pkg/core"
	"github.com/vigil-live/vigil/pkg/core/audio"
	"github.com/vigil-live/vigil/pkg/core/crisis"
)

const murfBaseURL = "https://api.murf.ai"

// MurfProvider implements Synthesizer using Murf's generation API. Murf
// returns a URL to the rendered file, so each synthesis is two round trips.
type MurfProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewMurf creates a new Murf synthesizer.
func NewMurf(apiKey string) *MurfProvider {
	return &MurfProvider{
		apiKey:     apiKey,
		baseURL:    murfBaseURL,
		httpClient: &http.Client{},
	}
}

// NewMurfWithClient creates a Murf synthesizer with a custom endpoint and
// HTTP client.
func NewMurfWithClient(apiKey, baseURL string, client *http.Client) *MurfProvider {
	return &MurfProvider{apiKey: apiKey, baseURL: baseURL, httpClient: client}
}

// Name returns the provider identifier.
func (m *MurfProvider) Name() string {
	return "murf"
}

type murfRequest struct {
	Text       string `json:"text"`
	VoiceID    string `json:"voiceId"`
	Style      string `json:"style,omitempty"`
	Rate       int    `json:"rate"`
	Pitch      int    `json:"pitch"`
	Format     string `json:"format"`
	SampleRate int    `json:"sampleRate"`
	ChannelTyp string `json:"channelType"`
}

type murfResponse struct {
	AudioFile string `json:"audioFile"`
}

type murfError struct {
	ErrorMessage string `json:"errorMessage"`
}

// Synthesize renders text with the given voice profile. FormatPhone output
// has the WAV header stripped and is ready for mu-law transcoding.
func (m *MurfProvider) Synthesize(ctx context.Context, text string, profile crisis.VoiceProfile, format Format) (*Synthesis, error) {
	req := murfRequest{
		Text:       text,
		VoiceID:    profile.VoiceID,
		Style:      profile.Style,
		Rate:       profile.Rate,
		Pitch:      profile.Pitch,
		ChannelTyp: "MONO",
	}
	switch format {
	case FormatPhone:
		req.Format = "WAV"
		req.SampleRate = 8000
	default:
		req.Format = "MP3"
		req.SampleRate = 24000
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v1/speech/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", m.apiKey)

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, core.NewTimeoutError("speech-out", ctx.Err())
		}
		return nil, core.NewCollaboratorError("speech-out", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var me murfError
		if json.Unmarshal(b, &me) == nil && me.ErrorMessage != "" {
			return nil, core.NewCollaboratorError("speech-out", fmt.Errorf("murf: %s", me.ErrorMessage))
		}
		return nil, core.NewCollaboratorError("speech-out", fmt.Errorf("murf: http %d", resp.StatusCode))
	}

	var out murfResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, core.NewCollaboratorError("speech-out", fmt.Errorf("decode response: %w", err))
	}
	if out.AudioFile == "" {
		return nil, core.NewCollaboratorError("speech-out", fmt.Errorf("murf: no audio file in response"))
	}

	payload, err := m.fetchAudio(ctx, out.AudioFile)
	if err != nil {
		return nil, err
	}
	if format == FormatPhone {
		payload = audio.StripWAVHeader(payload)
	}
	return &Synthesis{Audio: payload, Format: format}, nil
}

func (m *MurfProvider) fetchAudio(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create audio request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, core.NewTimeoutError("speech-out", ctx.Err())
		}
		return nil, core.NewCollaboratorError("speech-out", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, core.NewCollaboratorError("speech-out", fmt.Errorf("fetch audio: http %d", resp.StatusCode))
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewCollaboratorError("speech-out", fmt.Errorf("read audio: %w", err))
	}
	return payload, nil
}
