package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/frontdesk-ai/frontdesk/pkg/gateway/config"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/lifecycle"
)

func readyConfig() config.Config {
	return config.Config{
		AuthMode:                  config.AuthModeDisabled,
		StoreDriver:               config.StoreDriverMemory,
		Principal:                 "James",
		MaxBodyBytes:              64 * 1024,
		MaxCallerTurns:            8,
		PolicyBudget:              2 * time.Second,
		AppendMaxAttempts:         5,
		SessionIdleTimeout:        2 * time.Minute,
		QueryMaxPageSize:          100,
		WSMaxSessionDuration:      2 * time.Hour,
		WSMaxSessionsPerPrincipal: 2,
		LimitRPS:                  5,
		LimitBurst:                10,
		ReadHeaderTimeout:         5 * time.Second,
		ReadTimeout:               30 * time.Second,
		HandlerTimeout:            30 * time.Second,
	}
}

func TestHealthHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Body.String() != "ok\n" {
		t.Errorf("body = %q", rr.Body.String())
	}
}

func TestReadyHandler_HealthyConfig(t *testing.T) {
	h := ReadyHandler{Config: readyConfig(), Lifecycle: &lifecycle.Lifecycle{}}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		OK            bool     `json:"ok"`
		AuthMode      string   `json:"auth_mode"`
		StoreDriver   string   `json:"store_driver"`
		LimitsEnabled bool     `json:"limits_enabled"`
		Draining      bool     `json:"draining"`
		Issues        []string `json:"issues,omitempty"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.OK || resp.Draining || len(resp.Issues) != 0 {
		t.Errorf("response = %+v", resp)
	}
	if !resp.LimitsEnabled {
		t.Error("limits should be reported enabled")
	}
}

func TestReadyHandler_DrainingReturns503(t *testing.T) {
	lc := &lifecycle.Lifecycle{}
	lc.SetDraining(true)
	h := ReadyHandler{Config: readyConfig(), Lifecycle: lc}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestReadyHandler_ConfigIssuesReturn500(t *testing.T) {
	cfg := readyConfig()
	cfg.StoreDriver = config.StoreDriverPostgres // no URL set
	cfg.MaxCallerTurns = 0
	h := ReadyHandler{Config: cfg, Lifecycle: &lifecycle.Lifecycle{}}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500, body %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		OK     bool     `json:"ok"`
		Issues []string `json:"issues"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.OK || len(resp.Issues) < 2 {
		t.Errorf("response = %+v, want at least two issues", resp)
	}
}
