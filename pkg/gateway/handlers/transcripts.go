package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/frontdesk-ai/frontdesk/pkg/core"
	"github.com/frontdesk-ai/frontdesk/pkg/core/types"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/config"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/mw"
	"github.com/frontdesk-ai/frontdesk/pkg/store"
)

// TranscriptsHandler handles GET /v1/transcripts: the committed call
// log, filterable and cursor-paginated.
type TranscriptsHandler struct {
	Config config.Config
	Store  store.Store
	Logger *slog.Logger
}

type transcriptsResponse struct {
	Data       []types.TranscriptRecord `json:"data"`
	NextCursor string                   `json:"next_cursor,omitempty"`
}

func (h TranscriptsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	q, err := h.parseQuery(r)
	if err != nil {
		writeErr(w, reqID, err)
		return
	}

	page, err := h.Store.Query(r.Context(), q)
	if err != nil {
		writeErr(w, reqID, err)
		return
	}

	if page.Records == nil {
		page.Records = []types.TranscriptRecord{}
	}
	writeJSON(w, http.StatusOK, transcriptsResponse{
		Data:       page.Records,
		NextCursor: page.NextCursor,
	})
}

func (h TranscriptsHandler) parseQuery(r *http.Request) (types.HistoryQuery, error) {
	values := r.URL.Query()
	q := types.HistoryQuery{
		CallerName: strings.TrimSpace(values.Get("caller")),
		Contains:   strings.TrimSpace(values.Get("contains")),
		Cursor:     strings.TrimSpace(values.Get("cursor")),
	}

	if raw := strings.TrimSpace(values.Get("from")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return types.HistoryQuery{}, core.NewInvalidRequestErrorWithParam("from must be RFC 3339", "from")
		}
		q.From = ts
	}
	if raw := strings.TrimSpace(values.Get("to")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return types.HistoryQuery{}, core.NewInvalidRequestErrorWithParam("to must be RFC 3339", "to")
		}
		q.To = ts
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return types.HistoryQuery{}, core.NewInvalidRequestErrorWithParam("to must not precede from", "to")
	}

	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return types.HistoryQuery{}, core.NewInvalidRequestErrorWithParam("limit must be a positive integer", "limit")
		}
		q.Limit = n
	}
	if h.Config.QueryMaxPageSize > 0 && q.Limit > h.Config.QueryMaxPageSize {
		q.Limit = h.Config.QueryMaxPageSize
	}

	return q, nil
}
