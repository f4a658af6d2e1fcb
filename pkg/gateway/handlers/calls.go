package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/frontdesk-ai/frontdesk/pkg/core"
	"github.com/frontdesk-ai/frontdesk/pkg/core/types"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/config"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/lifecycle"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/mw"
	"github.com/frontdesk-ai/frontdesk/pkg/orchestrator"
)

// OpenCallHandler handles POST /v1/calls: a new inbound phone call.
type OpenCallHandler struct {
	Config       config.Config
	Orchestrator *orchestrator.Orchestrator
	Logger       *slog.Logger
	Lifecycle    *lifecycle.Lifecycle
}

type openCallRequest struct {
	CallerName   string `json:"caller_name,omitempty"`
	CallerNumber string `json:"caller_number,omitempty"`
}

type openCallResponse struct {
	SessionID string     `json:"session_id"`
	Persona   string     `json:"persona"`
	State     string     `json:"state"`
	Greeting  types.Turn `json:"greeting"`
}

func (h OpenCallHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	if h.Lifecycle.IsDraining() {
		writeCoreErrorJSON(w, reqID, &core.Error{
			Type:    core.ErrAPI,
			Message: "gateway is draining",
			Code:    "draining",
		}, http.StatusServiceUnavailable)
		return
	}

	var req openCallRequest
	if !decodeStrict(w, r, reqID, h.Config.MaxBodyBytes, &req) {
		return
	}

	info, err := h.Orchestrator.Open(r.Context(), types.ChannelPhone, types.CallerInfo{
		Name:   strings.TrimSpace(req.CallerName),
		Number: strings.TrimSpace(req.CallerNumber),
	})
	if err != nil {
		writeErr(w, reqID, err)
		return
	}

	writeJSON(w, http.StatusCreated, openCallResponse{
		SessionID: info.SessionID,
		Persona:   string(info.Persona),
		State:     string(types.StateGreeting),
		Greeting:  info.Greeting,
	})
}

// TurnHandler handles POST /v1/calls/{id}/turns: one caller utterance.
type TurnHandler struct {
	Config       config.Config
	Orchestrator *orchestrator.Orchestrator
	Logger       *slog.Logger
}

type turnRequest struct {
	Text string `json:"text"`
}

type turnResponse struct {
	SessionID string     `json:"session_id"`
	Reply     types.Turn `json:"reply"`
	State     string     `json:"state"`
	Done      bool       `json:"done"`
}

func (h TurnHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	sessionID := r.PathValue("id")
	if strings.TrimSpace(sessionID) == "" {
		writeErr(w, reqID, core.NewInvalidRequestErrorWithParam("missing session id", "id"))
		return
	}

	var req turnRequest
	if !decodeStrict(w, r, reqID, h.Config.MaxBodyBytes, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeErr(w, reqID, core.NewInvalidRequestErrorWithParam("text is required", "text"))
		return
	}

	reply, err := h.Orchestrator.SubmitTurn(r.Context(), sessionID, req.Text)
	if err != nil {
		writeErr(w, reqID, err)
		return
	}

	writeJSON(w, http.StatusOK, turnResponse{
		SessionID: reply.SessionID,
		Reply:     reply.Turn,
		State:     string(reply.State),
		Done:      reply.Done,
	})
}

// HangupHandler handles POST /v1/calls/{id}/hangup: the caller hung up
// or the telephony layer lost the line.
type HangupHandler struct {
	Orchestrator *orchestrator.Orchestrator
	Logger       *slog.Logger
}

type hangupResponse struct {
	SessionID string `json:"session_id"`
	Closed    bool   `json:"closed"`
}

func (h HangupHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	sessionID := r.PathValue("id")
	if strings.TrimSpace(sessionID) == "" {
		writeErr(w, reqID, core.NewInvalidRequestErrorWithParam("missing session id", "id"))
		return
	}

	if err := h.Orchestrator.Close(r.Context(), sessionID); err != nil {
		writeErr(w, reqID, err)
		return
	}

	writeJSON(w, http.StatusOK, hangupResponse{SessionID: sessionID, Closed: true})
}

// decodeStrict reads a bounded JSON body into dst, rejecting unknown
// fields. An empty body decodes as the zero value.
func decodeStrict(w http.ResponseWriter, r *http.Request, reqID string, maxBytes int64, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, reqID, core.NewInvalidRequestError("failed to read request body"))
		return false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeErr(w, reqID, core.NewInvalidRequestError("invalid request body: "+err.Error()))
		return false
	}
	return true
}
