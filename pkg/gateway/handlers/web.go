package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/frontdesk-ai/frontdesk/pkg/core"
	"github.com/frontdesk-ai/frontdesk/pkg/core/types"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/auth"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/config"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/lifecycle"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/mw"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/ratelimit"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/sessions"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/wsproto"
	"github.com/frontdesk-ai/frontdesk/pkg/orchestrator"
)

// WebHandler handles /v1/web websocket sessions.
type WebHandler struct {
	Config       config.Config
	Orchestrator *orchestrator.Orchestrator
	Logger       *slog.Logger
	Limiter      *ratelimit.Limiter
	Lifecycle    *lifecycle.Lifecycle
	WebSessions  *sessions.Tracker
}

func (h WebHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	if r.Method != http.MethodGet {
		writeCoreErrorJSON(w, reqID, &core.Error{
			Type:    core.ErrInvalidRequest,
			Message: "method not allowed",
			Code:    "method_not_allowed",
		}, http.StatusMethodNotAllowed)
		return
	}
	if h.Lifecycle.IsDraining() {
		writeCoreErrorJSON(w, reqID, &core.Error{
			Type:    core.ErrAPI,
			Message: "gateway is draining",
			Code:    "draining",
		}, http.StatusServiceUnavailable)
		return
	}
	if !h.originAllowed(r) {
		writeCoreErrorJSON(w, reqID, &core.Error{
			Type:    core.ErrAuthentication,
			Message: "origin is not allowed",
			Param:   "Origin",
		}, http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	wc := &webConn{Conn: conn, writeTimeout: h.Config.WSWriteTimeout}

	if h.Config.WSMaxMessageBytes > 0 {
		conn.SetReadLimit(h.Config.WSMaxMessageBytes)
	}

	handshakeTimeout := h.Config.WSHandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 5 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	messageType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		wc.writeError("bad_request", "failed to read hello", true, nil)
		return
	}
	if messageType != websocket.TextMessage {
		wc.writeError("bad_request", "first frame must be hello", true, nil)
		return
	}

	decoded, err := wsproto.DecodeClientMessage(firstFrame)
	if err != nil {
		var decErr *wsproto.DecodeError
		if errors.As(err, &decErr) {
			wc.writeError(decErr.Code, decErr.Message, true, nil)
		} else {
			wc.writeError("bad_request", "invalid hello frame", true, nil)
		}
		return
	}
	if _, ok := decoded.(wsproto.ClientHello); !ok {
		wc.writeError("bad_request", "first frame must be hello", true, nil)
		return
	}

	principalKey := "anonymous"
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		principalKey = ratelimit.PrincipalKeyFromAPIKey(p.APIKey)
	}

	if h.Limiter != nil && h.Config.WSMaxSessionsPerPrincipal > 0 {
		dec := h.Limiter.AcquireSession(principalKey, time.Now())
		if !dec.Allowed {
			wc.writeError("rate_limited", "too many active web sessions", true, nil)
			return
		}
		defer dec.Permit.Release()
	}

	info, err := h.Orchestrator.Open(r.Context(), types.ChannelWeb, types.CallerInfo{})
	if err != nil {
		wc.writeError("internal", "failed to open session", true, nil)
		return
	}
	sessionID := info.SessionID

	if err := wc.writeJSON(wsproto.ServerHelloAck{
		Type:            "hello_ack",
		ProtocolVersion: wsproto.ProtocolVersion1,
		SessionID:       sessionID,
		Persona:         string(info.Persona),
		Greeting:        info.Greeting.Text,
	}); err != nil {
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	unregister := func() {}
	if h.WebSessions != nil {
		unregister = h.WebSessions.Register(sessionID, sessions.Handle{
			Cancel: func() { _ = conn.Close() },
			Warn: func(code, message string) error {
				return wc.writeJSON(wsproto.ServerWarning{Type: "warning", Code: code, Message: message})
			},
		})
	}
	defer unregister()
	defer func() {
		// The request context is canceled once the handler returns, so
		// finalize the session with a fresh one.
		_ = h.Orchestrator.Close(context.Background(), sessionID)
	}()

	stopPing := make(chan struct{})
	defer close(stopPing)
	if h.Config.WSPingInterval > 0 {
		go h.pingLoop(wc, stopPing)
	}

	deadline := time.Time{}
	if h.Config.WSMaxSessionDuration > 0 {
		deadline = time.Now().Add(h.Config.WSMaxSessionDuration)
	}

	for {
		if !deadline.IsZero() && time.Now().After(deadline) {
			wc.writeError("session_expired", "maximum session duration reached", true, nil)
			return
		}

		messageType, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			wc.writeError("bad_request", "expected a text frame", false, nil)
			continue
		}

		decoded, err := wsproto.DecodeClientMessage(frame)
		if err != nil {
			var decErr *wsproto.DecodeError
			if errors.As(err, &decErr) {
				wc.writeError(decErr.Code, decErr.Message, false, map[string]any{"param": decErr.Param})
			} else {
				wc.writeError("bad_request", "invalid frame", false, nil)
			}
			continue
		}

		switch msg := decoded.(type) {
		case wsproto.ClientUtterance:
			reply, err := h.Orchestrator.SubmitTurn(r.Context(), sessionID, msg.Text)
			if err != nil {
				code := "internal"
				closeConn := true
				var coreErr *core.Error
				if errors.As(err, &coreErr) {
					code = string(coreErr.Type)
					closeConn = coreErr.Type != core.ErrPolicyTimeout
				}
				wc.writeError(code, err.Error(), closeConn, nil)
				if closeConn {
					return
				}
				continue
			}
			if err := wc.writeJSON(wsproto.ServerAgentReply{
				Type:      "agent_reply",
				SessionID: sessionID,
				Text:      reply.Turn.Text,
				State:     string(reply.State),
				Done:      reply.Done,
			}); err != nil {
				return
			}
			if reply.Done {
				wc.close(websocket.CloseNormalClosure, "session complete")
				return
			}
		case wsproto.ClientClose:
			wc.close(websocket.CloseNormalClosure, "client closed")
			return
		case wsproto.ClientHello:
			wc.writeError("bad_request", "hello may only be the first frame", false, nil)
		}
	}
}

func (h WebHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return false
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

func (h WebHandler) pingLoop(wc *webConn, stop <-chan struct{}) {
	ticker := time.NewTicker(h.Config.WSPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := wc.writePing(); err != nil {
				return
			}
		}
	}
}

// webConn serializes writes; the read loop and the ping loop both write
// to the same connection.
type webConn struct {
	*websocket.Conn
	mu           sync.Mutex
	writeTimeout time.Duration
}

func (c *webConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.Conn.WriteJSON(v)
}

func (c *webConn) writePing() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	timeout := c.writeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}

func (c *webConn) writeError(code, message string, closeConn bool, details map[string]any) {
	_ = c.writeJSON(wsproto.ServerError{Type: "error", Code: code, Message: message, Close: closeConn, Details: details})
	if closeConn {
		c.close(websocket.ClosePolicyViolation, message)
	}
}

func (c *webConn) close(code int, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.Conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, message), time.Now().Add(2*time.Second))
}
