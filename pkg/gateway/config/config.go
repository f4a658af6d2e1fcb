package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type StoreDriver string

const (
	StoreDriverMemory   StoreDriver = "memory"
	StoreDriverPostgres StoreDriver = "postgres"
)

type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// If true, client identity may be derived from proxy headers like X-Forwarded-For.
	// This should only be enabled when the gateway is deployed behind a trusted proxy/LB.
	TrustProxyHeaders bool

	MaxBodyBytes int64

	// Principal is the person the personas answer and screen for.
	Principal string

	// Transcript store selection.
	StoreDriver    StoreDriver
	PostgresURL    string
	MigrateOnStart bool

	// Transcript write retry schedule.
	AppendMaxAttempts int
	AppendBaseBackoff time.Duration
	AppendMaxBackoff  time.Duration

	// Session behavior.
	MaxCallerTurns     int
	PolicyBudget       time.Duration
	SessionIdleTimeout time.Duration
	ReapInterval       time.Duration

	// Transcript query limits.
	QueryMaxPageSize int

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Web WebSocket mode (/v1/web).
	WSMaxSessionDuration      time.Duration
	WSMaxSessionsPerPrincipal int
	WSMaxMessageBytes         int64
	WSPingInterval            time.Duration
	WSWriteTimeout            time.Duration
	WSHandshakeTimeout        time.Duration

	// In-memory limits (per principal).
	LimitRPS   float64
	LimitBurst int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration

	// Outbound webhooks.
	AvatarWebhookURL string
	AlertWebhookURL  string
	WebhookTimeout   time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                      envOr("FRONTDESK_ADDR", ":8080"),
		AuthMode:                  AuthMode(envOr("FRONTDESK_AUTH_MODE", string(AuthModeRequired))),
		APIKeys:                   make(map[string]struct{}),
		TrustProxyHeaders:         envBoolOr("FRONTDESK_TRUST_PROXY_HEADERS", false),
		MaxBodyBytes:              envInt64Or("FRONTDESK_MAX_BODY_BYTES", 64<<10), // 64 KiB
		Principal:                 envOr("FRONTDESK_PRINCIPAL", "James"),
		StoreDriver:               StoreDriver(envOr("FRONTDESK_STORE_DRIVER", string(StoreDriverMemory))),
		PostgresURL:               strings.TrimSpace(os.Getenv("FRONTDESK_POSTGRES_URL")),
		MigrateOnStart:            envBoolOr("FRONTDESK_MIGRATE_ON_START", true),
		AppendMaxAttempts:         envIntOr("FRONTDESK_APPEND_MAX_ATTEMPTS", 5),
		AppendBaseBackoff:         envDurationOr("FRONTDESK_APPEND_BASE_BACKOFF", 250*time.Millisecond),
		AppendMaxBackoff:          envDurationOr("FRONTDESK_APPEND_MAX_BACKOFF", 5*time.Second),
		MaxCallerTurns:            envIntOr("FRONTDESK_MAX_CALLER_TURNS", 8),
		PolicyBudget:              envDurationOr("FRONTDESK_POLICY_BUDGET", 2*time.Second),
		SessionIdleTimeout:        envDurationOr("FRONTDESK_SESSION_IDLE_TIMEOUT", 2*time.Minute),
		ReapInterval:              envDurationOr("FRONTDESK_REAP_INTERVAL", 15*time.Second),
		QueryMaxPageSize:          envIntOr("FRONTDESK_QUERY_MAX_PAGE_SIZE", 100),
		CORSAllowedOrigins:        make(map[string]struct{}),
		WSMaxSessionDuration:      envDurationOr("FRONTDESK_WS_MAX_DURATION", 2*time.Hour),
		WSMaxSessionsPerPrincipal: envIntOr("FRONTDESK_WS_MAX_SESSIONS_PER_PRINCIPAL", 2),
		WSMaxMessageBytes:         envInt64Or("FRONTDESK_WS_MAX_MESSAGE_BYTES", 64*1024),
		WSPingInterval:            envDurationOr("FRONTDESK_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:            envDurationOr("FRONTDESK_WS_WRITE_TIMEOUT", 5*time.Second),
		WSHandshakeTimeout:        envDurationOr("FRONTDESK_WS_HANDSHAKE_TIMEOUT", 5*time.Second),
		LimitRPS:                  envFloat64Or("FRONTDESK_RATE_LIMIT_RPS", 5.0),
		LimitBurst:                envIntOr("FRONTDESK_RATE_LIMIT_BURST", 10),
		ReadHeaderTimeout:         envDurationOr("FRONTDESK_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:               envDurationOr("FRONTDESK_READ_TIMEOUT", 30*time.Second),
		HandlerTimeout:            envDurationOr("FRONTDESK_TOTAL_REQUEST_TIMEOUT", 2*time.Minute),
		ShutdownGracePeriod:       envDurationOr("FRONTDESK_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		AvatarWebhookURL:          strings.TrimSpace(os.Getenv("FRONTDESK_AVATAR_WEBHOOK_URL")),
		AlertWebhookURL:           strings.TrimSpace(os.Getenv("FRONTDESK_ALERT_WEBHOOK_URL")),
		WebhookTimeout:            envDurationOr("FRONTDESK_WEBHOOK_TIMEOUT", 5*time.Second),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("FRONTDESK_AUTH_MODE must be one of required|optional|disabled")
	}

	switch cfg.StoreDriver {
	case StoreDriverMemory, StoreDriverPostgres:
	default:
		return Config{}, fmt.Errorf("FRONTDESK_STORE_DRIVER must be one of memory|postgres")
	}

	for _, key := range splitCSV(os.Getenv("FRONTDESK_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}

	for _, origin := range splitCSV(os.Getenv("FRONTDESK_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_MAX_BODY_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.Principal) == "" {
		return Config{}, fmt.Errorf("FRONTDESK_PRINCIPAL must not be empty")
	}
	if cfg.StoreDriver == StoreDriverPostgres && cfg.PostgresURL == "" {
		return Config{}, fmt.Errorf("FRONTDESK_POSTGRES_URL must be set when FRONTDESK_STORE_DRIVER=postgres")
	}
	if cfg.AppendMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_APPEND_MAX_ATTEMPTS must be > 0")
	}
	if cfg.AppendBaseBackoff <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_APPEND_BASE_BACKOFF must be > 0")
	}
	if cfg.AppendMaxBackoff < cfg.AppendBaseBackoff {
		return Config{}, fmt.Errorf("FRONTDESK_APPEND_MAX_BACKOFF must be >= FRONTDESK_APPEND_BASE_BACKOFF")
	}
	if cfg.MaxCallerTurns <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_MAX_CALLER_TURNS must be > 0")
	}
	if cfg.PolicyBudget <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_POLICY_BUDGET must be > 0")
	}
	if cfg.SessionIdleTimeout <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_SESSION_IDLE_TIMEOUT must be > 0")
	}
	if cfg.ReapInterval <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_REAP_INTERVAL must be > 0")
	}
	if cfg.QueryMaxPageSize <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_QUERY_MAX_PAGE_SIZE must be > 0")
	}
	if cfg.WSMaxSessionDuration <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_WS_MAX_DURATION must be > 0")
	}
	if cfg.WSMaxSessionsPerPrincipal <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_WS_MAX_SESSIONS_PER_PRINCIPAL must be > 0")
	}
	if cfg.WSMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_WS_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_WS_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.LimitRPS < 0 {
		return Config{}, fmt.Errorf("FRONTDESK_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.LimitBurst < 0 {
		return Config{}, fmt.Errorf("FRONTDESK_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_READ_TIMEOUT must be > 0")
	}
	if cfg.HandlerTimeout <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_TOTAL_REQUEST_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.WebhookTimeout <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_WEBHOOK_TIMEOUT must be > 0")
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("FRONTDESK_API_KEYS must be set when FRONTDESK_AUTH_MODE=required")
	}

	return cfg, nil
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

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
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
