package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// PublicHost is the externally reachable host used to build bridge
	// stream URLs handed to the telephony provider.
	PublicHost string

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Crisis timing.
	SilenceThreshold  time.Duration
	CountdownDuration time.Duration

	// Collaborator budget per unit of work.
	CollaboratorTimeout time.Duration

	// Live WebSocket limits (/v1/session and /v1/bridge).
	MaxAudioFrameBytes  int
	MaxJSONMessageBytes int64
	MaxAudioFPS         int
	MaxAudioBPS         int64
	InboundBurstSeconds int
	WSPingInterval      time.Duration
	WSWriteTimeout      time.Duration
	WSReadTimeout       time.Duration
	HandshakeTimeout    time.Duration
	MaxSessionDuration  time.Duration

	// Conversation history handed to the intelligence collaborator.
	HistoryWindow int

	// Incident vault. Empty disables persistence.
	VaultPath string

	// Collaborator credentials.
	GroqAPIKey     string
	GroqModel      string
	DeepgramAPIKey string
	MurfAPIKey     string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("VIGIL_ADDR", ":8080"),
		PublicHost:          envOr("VIGIL_PUBLIC_HOST", ""),
		CORSAllowedOrigins:  make(map[string]struct{}),
		SilenceThreshold:    envDurationOr("VIGIL_SILENCE_THRESHOLD", 10*time.Second),
		CountdownDuration:   envDurationOr("VIGIL_COUNTDOWN_DURATION", 5*time.Second),
		CollaboratorTimeout: envDurationOr("VIGIL_COLLABORATOR_TIMEOUT", 15*time.Second),
		MaxAudioFrameBytes:  envIntOr("VIGIL_MAX_AUDIO_FRAME_BYTES", 8192),
		MaxJSONMessageBytes: envInt64Or("VIGIL_MAX_JSON_MESSAGE_BYTES", 64*1024),
		MaxAudioFPS:         envIntOr("VIGIL_MAX_AUDIO_FPS", 120),
		MaxAudioBPS:         envInt64Or("VIGIL_MAX_AUDIO_BPS", 128*1024),
		InboundBurstSeconds: envIntOr("VIGIL_INBOUND_BURST_SECONDS", 2),
		WSPingInterval:      envDurationOr("VIGIL_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:      envDurationOr("VIGIL_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadTimeout:       envDurationOr("VIGIL_WS_READ_TIMEOUT", 0),
		HandshakeTimeout:    envDurationOr("VIGIL_HANDSHAKE_TIMEOUT", 5*time.Second),
		MaxSessionDuration:  envDurationOr("VIGIL_MAX_SESSION_DURATION", 2*time.Hour),
		HistoryWindow:       envIntOr("VIGIL_HISTORY_WINDOW", 20),
		VaultPath:           envOr("VIGIL_VAULT_PATH", ""),
		GroqAPIKey:          envOr("VIGIL_GROQ_API_KEY", ""),
		GroqModel:           envOr("VIGIL_GROQ_MODEL", ""),
		DeepgramAPIKey:      envOr("VIGIL_DEEPGRAM_API_KEY", ""),
		MurfAPIKey:          envOr("VIGIL_MURF_API_KEY", ""),
		TwilioAccountSID:    envOr("VIGIL_TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:     envOr("VIGIL_TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:    envOr("VIGIL_TWILIO_FROM_NUMBER", ""),
		ReadHeaderTimeout:   envDurationOr("VIGIL_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("VIGIL_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("VIGIL_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.SilenceThreshold <= 0 {
		return Config{}, fmt.Errorf("VIGIL_SILENCE_THRESHOLD must be > 0")
	}
	if cfg.CountdownDuration <= 0 {
		return Config{}, fmt.Errorf("VIGIL_COUNTDOWN_DURATION must be > 0")
	}
	if cfg.CollaboratorTimeout <= 0 {
		return Config{}, fmt.Errorf("VIGIL_COLLABORATOR_TIMEOUT must be > 0")
	}
	if cfg.MaxAudioFrameBytes <= 0 {
		return Config{}, fmt.Errorf("VIGIL_MAX_AUDIO_FRAME_BYTES must be > 0")
	}
	if cfg.MaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("VIGIL_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.MaxAudioFPS < 0 {
		return Config{}, fmt.Errorf("VIGIL_MAX_AUDIO_FPS must be >= 0")
	}
	if cfg.MaxAudioBPS < 0 {
		return Config{}, fmt.Errorf("VIGIL_MAX_AUDIO_BPS must be >= 0")
	}
	if cfg.InboundBurstSeconds < 0 {
		return Config{}, fmt.Errorf("VIGIL_INBOUND_BURST_SECONDS must be >= 0")
	}
	if (cfg.MaxAudioFPS > 0 || cfg.MaxAudioBPS > 0) && cfg.InboundBurstSeconds < 1 {
		return Config{}, fmt.Errorf("VIGIL_INBOUND_BURST_SECONDS must be >= 1 when inbound audio limits are enabled")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("VIGIL_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VIGIL_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSReadTimeout < 0 {
		return Config{}, fmt.Errorf("VIGIL_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.HandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("VIGIL_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.MaxSessionDuration <= 0 {
		return Config{}, fmt.Errorf("VIGIL_MAX_SESSION_DURATION must be > 0")
	}
	if cfg.HistoryWindow <= 0 {
		return Config{}, fmt.Errorf("VIGIL_HISTORY_WINDOW must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VIGIL_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VIGIL_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	twilioSet := 0
	for _, v := range []string{cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber} {
		if strings.TrimSpace(v) != "" {
			twilioSet++
		}
	}
	if twilioSet != 0 && twilioSet != 3 {
		return Config{}, fmt.Errorf("VIGIL_TWILIO_ACCOUNT_SID, VIGIL_TWILIO_AUTH_TOKEN and VIGIL_TWILIO_FROM_NUMBER must be set together")
	}
	if twilioSet == 3 && strings.TrimSpace(cfg.PublicHost) == "" {
		return Config{}, fmt.Errorf("VIGIL_PUBLIC_HOST must be set when telephony is configured")
	}

	return cfg, nil
}

// TelephonyEnabled reports whether outbound SMS and calls are configured.
func (c Config) TelephonyEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
