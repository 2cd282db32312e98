package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vigil-live/vigil/pkg/core/crisis"
	"github.com/vigil-live/vigil/pkg/gateway/config"
	"github.com/vigil-live/vigil/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK               bool     `json:"ok"`
		Draining         bool     `json:"draining"`
		TelephonyEnabled bool     `json:"telephony_enabled"`
		VaultEnabled     bool     `json:"vault_enabled"`
		Issues           []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	draining := h.Lifecycle.IsDraining()
	if draining {
		issues = append(issues, "gateway is draining")
	}
	if h.Config.SilenceThreshold <= 0 {
		issues = append(issues, "silence threshold must be > 0")
	}
	if h.Config.CountdownDuration <= 0 {
		issues = append(issues, "countdown duration must be > 0")
	}
	if h.Config.CollaboratorTimeout <= 0 {
		issues = append(issues, "collaborator timeout must be > 0")
	}
	if h.Config.MaxAudioFrameBytes <= 0 || h.Config.MaxJSONMessageBytes <= 0 {
		issues = append(issues, "frame budgets must be > 0")
	}
	if err := crisis.ValidateTable(); err != nil {
		issues = append(issues, err.Error())
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:               ok,
		Draining:         draining,
		TelephonyEnabled: h.Config.TelephonyEnabled(),
		VaultEnabled:     h.Config.VaultPath != "",
		Issues:           issues,
	})
}

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, r, http.StatusNotFound, "not_found", "not found")
}
