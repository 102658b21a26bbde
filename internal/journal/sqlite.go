package journal

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// SQLiteStore is a Store backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database
// and returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			pipeline TEXT NOT NULL,
			correlation_id TEXT NOT NULL DEFAULT '',
			trace_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			input BLOB,
			output BLOB,
			error TEXT,
			started_at INTEGER NOT NULL,
			completed_at INTEGER
		);
		CREATE TABLE IF NOT EXISTS run_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			at INTEGER NOT NULL,
			type TEXT NOT NULL,
			primitive TEXT NOT NULL DEFAULT '',
			primitive_type TEXT NOT NULL DEFAULT '',
			span_id TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_run_events_run_id ON run_events(run_id, id);
	`)
	return err
}

func (s *SQLiteStore) SaveRun(ctx context.Context, rec *RunRecord) error {
	input, err := EncodeValue(rec.Input)
	if err != nil {
		return err
	}

	output, err := EncodeValue(rec.Output)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, pipeline, correlation_id, trace_id, status, input, output, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Pipeline,
		rec.CorrelationID,
		rec.TraceID,
		string(rec.Status),
		input,
		output,
		rec.Error,
		rec.StartedAt.UnixNano(),
		completedAtArg(rec.CompletedAt),
	)
	return err
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, rec *RunRecord) error {
	input, err := EncodeValue(rec.Input)
	if err != nil {
		return err
	}

	output, err := EncodeValue(rec.Output)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET pipeline = ?, correlation_id = ?, trace_id = ?, status = ?, input = ?, output = ?, error = ?, started_at = ?, completed_at = ?
		WHERE id = ?`,
		rec.Pipeline,
		rec.CorrelationID,
		rec.TraceID,
		string(rec.Status),
		input,
		output,
		rec.Error,
		rec.StartedAt.UnixNano(),
		completedAtArg(rec.CompletedAt),
		rec.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRunNotFound
	}

	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, pipeline, correlation_id, trace_id, status, input, output, error, started_at, completed_at
		FROM runs
		WHERE id = ?`,
		id,
	)

	rec, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter Filter) ([]*RunRecord, error) {
	query := `
		SELECT id, pipeline, correlation_id, trace_id, status, input, output, error, started_at, completed_at
		FROM runs`
	var args []any
	var clauses []string

	if filter.Pipeline != "" {
		clauses = append(clauses, "pipeline = ?")
		args = append(args, filter.Pipeline)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}
	query = query + " ORDER BY started_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*RunRecord

	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunRecord, error) {
	var rec RunRecord
	var statusStr string
	var input, output []byte
	var errStr sql.NullString
	var startedN int64
	var completedN sql.NullInt64

	if err := row.Scan(&rec.ID, &rec.Pipeline, &rec.CorrelationID, &rec.TraceID, &statusStr, &input, &output, &errStr, &startedN, &completedN); err != nil {
		return nil, err
	}

	rec.Status = Status(statusStr)
	rec.StartedAt = time.Unix(0, startedN)
	if completedN.Valid {
		rec.CompletedAt = time.Unix(0, completedN.Int64)
	}
	if errStr.Valid {
		rec.Error = errStr.String
	}

	inVal, err := DecodeValue(input)
	if err != nil {
		return nil, err
	}
	rec.Input = inVal

	outVal, err := DecodeValue(output)
	if err != nil {
		return nil, err
	}
	rec.Output = outVal

	return &rec, nil
}

// completedAtArg maps the zero time to NULL so in-flight runs are
// distinguishable from finished ones.
func completedAtArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixNano()
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, ev Event) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_events (run_id, at, type, primitive, primitive_type, span_id, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.RunID,
		at.UnixNano(),
		string(ev.Type),
		ev.Primitive,
		ev.PrimitiveType,
		ev.SpanID,
		ev.Detail,
	)
	return err
}

func (s *SQLiteStore) ListEvents(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, at, type, primitive, primitive_type, span_id, detail
		FROM run_events
		WHERE run_id = ?
		ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			id    string
			atN   int64
			typ   string
			prim  string
			ptype string
			span  string
			det   string
		)
		if err := rows.Scan(&id, &atN, &typ, &prim, &ptype, &span, &det); err != nil {
			return nil, err
		}
		out = append(out, Event{
			RunID:         id,
			At:            time.Unix(0, atN),
			Type:          EventType(typ),
			Primitive:     prim,
			PrimitiveType: ptype,
			SpanID:        span,
			Detail:        det,
		})
	}
	return out, rows.Err()
}
