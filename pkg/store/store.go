// Package store is the transcript store adapter: an append-only write
// path and a filtered read path over a shared backend, with an explicit
// consistency contract enforced at this boundary rather than assumed of
// the backend.
//
// Contract:
//   - Append is atomic: readers observe a whole record or none of it.
//   - Commit order is monotonic; the returned token orders records
//     globally.
//   - Append is idempotent per session id: resubmitting a record whose
//     id is already committed returns the original token and stores
//     nothing new.
//   - Query returns only records committed as of query start, in commit
//     order, and is restartable by re-issuing the same filter with the
//     returned cursor.
package store

import (
	"context"
	"time"

	"github.com/frontdesk-ai/frontdesk/pkg/core/types"
)

// CommitToken proves a record is durably committed and orders it
// relative to every other committed record.
type CommitToken struct {
	Seq         uint64
	CommittedAt time.Time
}

// Page is one batch of query results. NextCursor is empty when the
// result sequence is exhausted.
type Page struct {
	Records    []types.TranscriptRecord
	NextCursor string
}

// Store is the adapter contract between phone writers and web readers.
// Implementations must allow unlimited concurrent readers and serialize
// writes per session id.
type Store interface {
	Append(ctx context.Context, rec types.TranscriptRecord) (CommitToken, error)
	Query(ctx context.Context, q types.HistoryQuery) (Page, error)
}
