package handlers

import (
	"net/http"

	"github.com/frontdesk-ai/frontdesk/pkg/gateway/config"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/lifecycle"
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
		OK            bool     `json:"ok"`
		AuthMode      string   `json:"auth_mode"`
		StoreDriver   string   `json:"store_driver"`
		LimitsEnabled bool     `json:"limits_enabled"`
		Draining      bool     `json:"draining,omitempty"`
		Issues        []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	switch h.Config.AuthMode {
	case config.AuthModeRequired, config.AuthModeOptional, config.AuthModeDisabled:
	default:
		issues = append(issues, "invalid auth_mode")
	}
	if h.Config.AuthMode == config.AuthModeRequired && len(h.Config.APIKeys) == 0 {
		issues = append(issues, "auth_mode=required but no api keys configured")
	}
	switch h.Config.StoreDriver {
	case config.StoreDriverMemory:
	case config.StoreDriverPostgres:
		if h.Config.PostgresURL == "" {
			issues = append(issues, "store_driver=postgres but no postgres url configured")
		}
	default:
		issues = append(issues, "invalid store_driver")
	}
	if h.Config.MaxBodyBytes <= 0 {
		issues = append(issues, "max_body_bytes must be > 0")
	}
	if h.Config.MaxCallerTurns <= 0 {
		issues = append(issues, "max_caller_turns must be > 0")
	}
	if h.Config.PolicyBudget <= 0 {
		issues = append(issues, "policy_budget must be > 0")
	}
	if h.Config.AppendMaxAttempts <= 0 {
		issues = append(issues, "append_max_attempts must be > 0")
	}
	if h.Config.SessionIdleTimeout <= 0 {
		issues = append(issues, "session_idle_timeout must be > 0")
	}
	if h.Config.WSMaxSessionDuration <= 0 || h.Config.WSMaxSessionsPerPrincipal <= 0 {
		issues = append(issues, "ws session limits must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ReadTimeout <= 0 || h.Config.HandlerTimeout <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}

	draining := h.Lifecycle.IsDraining()
	limitsEnabled := h.Config.LimitRPS > 0 && h.Config.LimitBurst > 0

	ok := len(issues) == 0 && !draining
	status := http.StatusOK
	switch {
	case draining:
		status = http.StatusServiceUnavailable
	case !ok:
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, readyResp{
		OK:            ok,
		AuthMode:      string(h.Config.AuthMode),
		StoreDriver:   string(h.Config.StoreDriver),
		LimitsEnabled: limitsEnabled,
		Draining:      draining,
		Issues:        issues,
	})
}
