package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/frontdesk-ai/frontdesk/pkg/core"
	"github.com/frontdesk-ai/frontdesk/pkg/core/types"
)

const defaultPageSize = 50

// Memory is an in-process Store honoring the full adapter contract. It
// serves tests and single-node deployments where the shared backend is
// this process itself.
type Memory struct {
	mu        sync.RWMutex
	committed []types.TranscriptRecord
	bySession map[string]CommitToken
	seq       uint64

	now func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		bySession: make(map[string]CommitToken),
		now:       time.Now,
	}
}

// NewMemoryWithClock creates an in-memory store with an injected clock.
func NewMemoryWithClock(now func() time.Time) *Memory {
	m := NewMemory()
	if now != nil {
		m.now = now
	}
	return m
}

// Append commits the record atomically. A record whose session id is
// already committed returns the original token unchanged.
func (m *Memory) Append(ctx context.Context, rec types.TranscriptRecord) (CommitToken, error) {
	if err := ctx.Err(); err != nil {
		return CommitToken{}, core.NewStoreUnavailableError(err)
	}
	if rec.SessionID == "" {
		return CommitToken{}, core.NewInvalidRequestErrorWithParam("record session_id is required", "session_id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if tok, ok := m.bySession[rec.SessionID]; ok {
		return tok, nil
	}

	m.seq++
	tok := CommitToken{Seq: m.seq, CommittedAt: m.now().UTC()}
	stored := rec.Clone()
	stored.CommittedAt = tok.CommittedAt
	m.committed = append(m.committed, stored)
	m.bySession[rec.SessionID] = tok
	return tok, nil
}

// Query returns committed records matching the filter in commit order.
// Records committed after the call starts are not observed.
func (m *Memory) Query(ctx context.Context, q types.HistoryQuery) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, core.NewStoreUnavailableError(err)
	}

	after := uint64(0)
	if q.Cursor != "" {
		n, err := strconv.ParseUint(q.Cursor, 10, 64)
		if err != nil {
			return Page{}, core.NewInvalidRequestErrorWithParam("malformed cursor", "cursor")
		}
		after = n
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	m.mu.RLock()
	// Snapshot the committed prefix; appends during iteration stay
	// invisible to this query.
	snapshot := m.committed
	m.mu.RUnlock()

	var page Page
	for i, rec := range snapshot {
		seq := uint64(i + 1)
		if seq <= after {
			continue
		}
		if !q.Matches(rec) {
			continue
		}
		page.Records = append(page.Records, rec.Clone())
		if len(page.Records) == limit {
			if seq < uint64(len(snapshot)) {
				page.NextCursor = strconv.FormatUint(seq, 10)
			}
			break
		}
	}
	return page, nil
}

// Len returns the number of committed records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.committed)
}
