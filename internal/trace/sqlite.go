package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/uthread/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Every pooled connection to ":memory:" would get its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "trace"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	source := run.TickSource
	if source == "" {
		source = model.TickSourceNone
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, workload, threads, tick_hz, tick_source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Workload, run.Threads, run.TickHz, string(source),
		run.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

// FinishRun stores the exit status, final stats and completion time of run.
func (s *SQLiteStore) FinishRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "update", "table", "runs", "id", run.ID)

	statsJSON := []byte("{}")
	if run.Stats != nil {
		var err error
		if statsJSON, err = json.Marshal(run.Stats); err != nil {
			return fmt.Errorf("marshal stats: %w", err)
		}
	}
	var completedAt *string
	if run.CompletedAt != nil {
		v := run.CompletedAt.Format(time.RFC3339Nano)
		completedAt = &v
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET exit_status = ?, stats = ?, completed_at = ? WHERE id = ?`,
		run.ExitStatus, string(statsJSON), completedAt, run.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	row := s.db.QueryRowContext(ctx,
		`SELECT id, workload, threads, tick_hz, tick_source, exit_status, stats, created_at, completed_at,
		        (SELECT COUNT(*) FROM events WHERE run_id = runs.id)
		 FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workload, threads, tick_hz, tick_source, exit_status, stats, created_at, completed_at,
		        (SELECT COUNT(*) FROM events WHERE run_id = runs.id)
		 FROM runs ORDER BY created_at DESC LIMIT ? OFFSET ?`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	var run model.Run
	var source, statsJSON, createdAt string
	var exitStatus *int
	var completedAt *string

	if err := row.Scan(&run.ID, &run.Workload, &run.Threads, &run.TickHz, &source,
		&exitStatus, &statsJSON, &createdAt, &completedAt, &run.EventCount); err != nil {
		return nil, err
	}

	run.TickSource = model.TickSource(source)
	run.ExitStatus = exitStatus
	if statsJSON != "" && statsJSON != "{}" {
		var st model.SchedulerStats
		if err := json.Unmarshal([]byte(statsJSON), &st); err != nil {
			return nil, fmt.Errorf("unmarshal stats: %w", err)
		}
		run.Stats = &st
	}
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if completedAt != nil {
		t, _ := time.Parse(time.RFC3339Nano, *completedAt)
		run.CompletedAt = &t
	}
	return &run, nil
}

// --- Events ---

// AppendEvents inserts events in a single transaction.
func (s *SQLiteStore) AppendEvents(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	s.logger.Debug("sql", "op", "insert", "table", "events", "count", len(events))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (run_id, seq, kind, tid, peer, result, at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			ev.RunID, ev.Seq, string(ev.Kind), uint32(ev.TID), uint32(ev.Peer), ev.Result,
			ev.At.Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert event %d: %w", ev.Seq, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListEvents(ctx context.Context, runID string, opts model.ListOptions) ([]model.Event, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "events", "run_id", runID, "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE run_id = ?`, runID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, seq, kind, tid, peer, result, at
		 FROM events WHERE run_id = ? ORDER BY seq LIMIT ? OFFSET ?`, runID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		var kind, at string
		var tid, peer int64
		if err := rows.Scan(&ev.RunID, &ev.Seq, &kind, &tid, &peer, &ev.Result, &at); err != nil {
			return nil, 0, err
		}
		ev.Kind = model.EventKind(kind)
		ev.TID = model.TID(tid)
		ev.Peer = model.TID(peer)
		ev.At, _ = time.Parse(time.RFC3339Nano, at)
		events = append(events, ev)
	}
	return events, total, rows.Err()
}
