package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frontdesk-ai/frontdesk/pkg/core"
	"github.com/frontdesk-ai/frontdesk/pkg/core/types"
)

// Postgres is a Store over a shared Postgres backend. Idempotency is
// enforced by the primary key on session_id; global commit order by the
// commit_seq sequence. The row schema mirrors the external sheet layout
// (session id, timestamp, caller name, reason, disposition, transcript
// blob) so previously stored data stays readable.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a store to the given pool. The schema must
// already be migrated (see Migrate).
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Open dials Postgres and verifies connectivity.
func Open(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

const appendSQL = `
INSERT INTO transcripts (session_id, started_at, ended_at, caller_name, caller_number, reason, disposition, turns)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (session_id) DO NOTHING
RETURNING commit_seq, committed_at`

const committedSQL = `
SELECT commit_seq, committed_at FROM transcripts WHERE session_id = $1`

// Append commits the whole record in one statement. A session id that
// is already committed returns the original token; nothing is
// overwritten.
func (p *Postgres) Append(ctx context.Context, rec types.TranscriptRecord) (CommitToken, error) {
	if rec.SessionID == "" {
		return CommitToken{}, core.NewInvalidRequestErrorWithParam("record session_id is required", "session_id")
	}

	turns, err := json.Marshal(rec.Turns)
	if err != nil {
		return CommitToken{}, core.NewInvalidRequestError(fmt.Sprintf("encode turns: %v", err))
	}

	var (
		seq         int64
		committedAt time.Time
	)
	err = p.pool.QueryRow(ctx, appendSQL,
		rec.SessionID,
		rec.StartedAt.UTC(),
		rec.EndedAt.UTC(),
		rec.Caller.Name,
		rec.Caller.Number,
		rec.Reason,
		string(rec.Disposition),
		turns,
	).Scan(&seq, &committedAt)
	if err == nil {
		return CommitToken{Seq: uint64(seq), CommittedAt: committedAt.UTC()}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return CommitToken{}, core.NewStoreUnavailableError(err)
	}

	// Conflict path: the insert hit DO NOTHING, so the record is
	// already committed. Idempotent retry resolves to the stored token.
	err = p.pool.QueryRow(ctx, committedSQL, rec.SessionID).Scan(&seq, &committedAt)
	if err != nil {
		return CommitToken{}, core.NewStoreUnavailableError(err)
	}
	return CommitToken{Seq: uint64(seq), CommittedAt: committedAt.UTC()}, nil
}

// Query reads committed records in commit order. The commit_seq fence
// taken at query start keeps later writers out of this result sequence,
// and the same fence makes cursors restartable.
func (p *Postgres) Query(ctx context.Context, q types.HistoryQuery) (Page, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	after := uint64(0)
	if q.Cursor != "" {
		n, err := strconv.ParseUint(q.Cursor, 10, 64)
		if err != nil {
			return Page{}, core.NewInvalidRequestErrorWithParam("malformed cursor", "cursor")
		}
		after = n
	}

	var fence int64
	if err := p.pool.QueryRow(ctx, `SELECT COALESCE(MAX(commit_seq), 0) FROM transcripts`).Scan(&fence); err != nil {
		return Page{}, core.NewStoreUnavailableError(err)
	}

	where := []string{"commit_seq > $1", "commit_seq <= $2"}
	args := []any{int64(after), fence}
	if !q.From.IsZero() {
		args = append(args, q.From.UTC())
		where = append(where, fmt.Sprintf("committed_at >= $%d", len(args)))
	}
	if !q.To.IsZero() {
		args = append(args, q.To.UTC())
		where = append(where, fmt.Sprintf("committed_at <= $%d", len(args)))
	}
	if q.CallerName != "" {
		args = append(args, strings.TrimSpace(q.CallerName))
		where = append(where, fmt.Sprintf("lower(caller_name) = lower($%d)", len(args)))
	}
	if q.Contains != "" {
		args = append(args, "%"+strings.ToLower(q.Contains)+"%")
		where = append(where, fmt.Sprintf("(lower(reason) LIKE $%d OR lower(turns::text) LIKE $%d)", len(args), len(args)))
	}
	args = append(args, limit+1)

	query := fmt.Sprintf(`
SELECT commit_seq, session_id, started_at, ended_at, committed_at, caller_name, caller_number, reason, disposition, turns
FROM transcripts
WHERE %s
ORDER BY commit_seq ASC
LIMIT $%d`, strings.Join(where, " AND "), len(args))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return Page{}, core.NewStoreUnavailableError(err)
	}
	defer rows.Close()

	var (
		page    Page
		lastSeq uint64
	)
	for rows.Next() {
		if len(page.Records) == limit {
			page.NextCursor = strconv.FormatUint(lastSeq, 10)
			break
		}
		var (
			seq       int64
			rec       types.TranscriptRecord
			turnsJSON []byte
			disp      string
		)
		if err := rows.Scan(&seq, &rec.SessionID, &rec.StartedAt, &rec.EndedAt, &rec.CommittedAt, &rec.Caller.Name, &rec.Caller.Number, &rec.Reason, &disp, &turnsJSON); err != nil {
			return Page{}, core.NewStoreUnavailableError(err)
		}
		if err := json.Unmarshal(turnsJSON, &rec.Turns); err != nil {
			return Page{}, core.NewStoreUnavailableError(fmt.Errorf("decode turns for %s: %w", rec.SessionID, err))
		}
		rec.Disposition = types.Disposition(disp)
		page.Records = append(page.Records, rec)
		lastSeq = uint64(seq)
	}
	if err := rows.Err(); err != nil {
		return Page{}, core.NewStoreUnavailableError(err)
	}
	return page, nil
}
