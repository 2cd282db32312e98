package config

import (
	"strings"
	"testing"
	"time"
)

var vigilEnvKeys = []string{
	"VIGIL_ADDR",
	"VIGIL_PUBLIC_HOST",
	"VIGIL_CORS_ORIGINS",
	"VIGIL_SILENCE_THRESHOLD",
	"VIGIL_COUNTDOWN_DURATION",
	"VIGIL_COLLABORATOR_TIMEOUT",
	"VIGIL_MAX_AUDIO_FRAME_BYTES",
	"VIGIL_MAX_JSON_MESSAGE_BYTES",
	"VIGIL_MAX_AUDIO_FPS",
	"VIGIL_MAX_AUDIO_BPS",
	"VIGIL_INBOUND_BURST_SECONDS",
	"VIGIL_WS_PING_INTERVAL",
	"VIGIL_WS_WRITE_TIMEOUT",
	"VIGIL_WS_READ_TIMEOUT",
	"VIGIL_HANDSHAKE_TIMEOUT",
	"VIGIL_MAX_SESSION_DURATION",
	"VIGIL_HISTORY_WINDOW",
	"VIGIL_VAULT_PATH",
	"VIGIL_GROQ_API_KEY",
	"VIGIL_GROQ_MODEL",
	"VIGIL_DEEPGRAM_API_KEY",
	"VIGIL_MURF_API_KEY",
	"VIGIL_TWILIO_ACCOUNT_SID",
	"VIGIL_TWILIO_AUTH_TOKEN",
	"VIGIL_TWILIO_FROM_NUMBER",
	"VIGIL_READ_HEADER_TIMEOUT",
	"VIGIL_SHUTDOWN_GRACE_PERIOD",
}

func clearVigilEnv(t *testing.T) {
	t.Helper()
	for _, key := range vigilEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearVigilEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.SilenceThreshold != 10*time.Second {
		t.Fatalf("SilenceThreshold = %v, want 10s", cfg.SilenceThreshold)
	}
	if cfg.CountdownDuration != 5*time.Second {
		t.Fatalf("CountdownDuration = %v, want 5s", cfg.CountdownDuration)
	}
	if cfg.CollaboratorTimeout != 15*time.Second {
		t.Fatalf("CollaboratorTimeout = %v, want 15s", cfg.CollaboratorTimeout)
	}
	if cfg.MaxAudioFrameBytes != 8192 {
		t.Fatalf("MaxAudioFrameBytes = %d, want 8192", cfg.MaxAudioFrameBytes)
	}
	if cfg.MaxJSONMessageBytes != 64*1024 {
		t.Fatalf("MaxJSONMessageBytes = %d, want 65536", cfg.MaxJSONMessageBytes)
	}
	if cfg.MaxAudioFPS != 120 {
		t.Fatalf("MaxAudioFPS = %d, want 120", cfg.MaxAudioFPS)
	}
	if cfg.MaxAudioBPS != 128*1024 {
		t.Fatalf("MaxAudioBPS = %d, want %d", cfg.MaxAudioBPS, int64(128*1024))
	}
	if cfg.InboundBurstSeconds != 2 {
		t.Fatalf("InboundBurstSeconds = %d, want 2", cfg.InboundBurstSeconds)
	}
	if cfg.WSPingInterval != 20*time.Second {
		t.Fatalf("WSPingInterval = %v, want 20s", cfg.WSPingInterval)
	}
	if cfg.WSWriteTimeout != 5*time.Second {
		t.Fatalf("WSWriteTimeout = %v, want 5s", cfg.WSWriteTimeout)
	}
	if cfg.WSReadTimeout != 0 {
		t.Fatalf("WSReadTimeout = %v, want 0", cfg.WSReadTimeout)
	}
	if cfg.MaxSessionDuration != 2*time.Hour {
		t.Fatalf("MaxSessionDuration = %v, want 2h", cfg.MaxSessionDuration)
	}
	if cfg.HistoryWindow != 20 {
		t.Fatalf("HistoryWindow = %d, want 20", cfg.HistoryWindow)
	}
	if cfg.ShutdownGracePeriod != 30*time.Second {
		t.Fatalf("ShutdownGracePeriod = %v, want 30s", cfg.ShutdownGracePeriod)
	}
	if cfg.TelephonyEnabled() {
		t.Fatalf("TelephonyEnabled() = true with no Twilio creds")
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearVigilEnv(t)
	t.Setenv("VIGIL_ADDR", ":9090")
	t.Setenv("VIGIL_SILENCE_THRESHOLD", "12s")
	t.Setenv("VIGIL_COUNTDOWN_DURATION", "3s")
	t.Setenv("VIGIL_CORS_ORIGINS", "https://app.vigil.live, https://staging.vigil.live")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("Addr = %q, want :9090", cfg.Addr)
	}
	if cfg.SilenceThreshold != 12*time.Second {
		t.Fatalf("SilenceThreshold = %v, want 12s", cfg.SilenceThreshold)
	}
	if cfg.CountdownDuration != 3*time.Second {
		t.Fatalf("CountdownDuration = %v, want 3s", cfg.CountdownDuration)
	}
	if _, ok := cfg.CORSAllowedOrigins["https://app.vigil.live"]; !ok {
		t.Fatalf("CORSAllowedOrigins missing app origin: %v", cfg.CORSAllowedOrigins)
	}
	if _, ok := cfg.CORSAllowedOrigins["https://staging.vigil.live"]; !ok {
		t.Fatalf("CORSAllowedOrigins missing staging origin: %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadFromEnv_InvalidDurationFallsBack(t *testing.T) {
	clearVigilEnv(t)
	t.Setenv("VIGIL_SILENCE_THRESHOLD", "soon")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.SilenceThreshold != 10*time.Second {
		t.Fatalf("SilenceThreshold = %v, want default 10s", cfg.SilenceThreshold)
	}
}

func TestLoadFromEnv_PartialTwilioRejected(t *testing.T) {
	clearVigilEnv(t)
	t.Setenv("VIGIL_TWILIO_ACCOUNT_SID", "AC123")

	_, err := LoadFromEnv()
	if err == nil || !strings.Contains(err.Error(), "TWILIO") {
		t.Fatalf("LoadFromEnv() error = %v, want twilio validation error", err)
	}
}

func TestLoadFromEnv_TelephonyRequiresPublicHost(t *testing.T) {
	clearVigilEnv(t)
	t.Setenv("VIGIL_TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("VIGIL_TWILIO_AUTH_TOKEN", "tok")
	t.Setenv("VIGIL_TWILIO_FROM_NUMBER", "+15559999")

	if _, err := LoadFromEnv(); err == nil {
		t.Fatalf("LoadFromEnv() = nil error, want public host requirement")
	}

	t.Setenv("VIGIL_PUBLIC_HOST", "vigil.example.com")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if !cfg.TelephonyEnabled() {
		t.Fatalf("TelephonyEnabled() = false with full creds")
	}
}

func TestLoadFromEnv_NegativeThresholdRejected(t *testing.T) {
	clearVigilEnv(t)
	t.Setenv("VIGIL_SILENCE_THRESHOLD", "-5s")

	if _, err := LoadFromEnv(); err == nil {
		t.Fatalf("LoadFromEnv() = nil error, want validation failure")
	}
}
