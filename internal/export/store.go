package export

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"clipline/internal/model"
)

// RequestStatus names an export_requests row's lifecycle state.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestRunning   RequestStatus = "running"
	RequestSucceeded RequestStatus = "succeeded"
	RequestFailed    RequestStatus = "failed"
)

// Request is one persisted export job: a single ExportPlanItem plus its
// retry accounting.
type Request struct {
	ID        int64
	RunID     model.RunID
	Item      model.ExportPlanItem
	Status    RequestStatus
	Attempts  int
	LastError string
}

// Store persists export requests in SQLite, grounded on the teacher's
// queue.Store: WAL mode and plain database/sql access through
// modernc.org/sqlite (no CGO driver). The schema is the single
// export_requests table created on open; there is no migrations table.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates the export request database at dbPath.
func OpenStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open export db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS export_requests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	item_type TEXT NOT NULL,
	target_path TEXT NOT NULL,
	estimated_bytes INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`)
	return err
}

// EnqueuePlan inserts one pending request per plan item and returns them in
// plan order.
func (s *Store) EnqueuePlan(ctx context.Context, plan model.ExportPlan) ([]Request, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	requests := make([]Request, 0, len(plan.Items))
	for _, item := range plan.Items {
		res, err := s.db.ExecContext(ctx, `
INSERT INTO export_requests (run_id, item_type, target_path, estimated_bytes, status, attempts, last_error, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, 0, '', ?, ?)`,
			string(plan.RunID), string(item.Type), item.TargetPath, item.EstimatedBytes, RequestPending, now, now)
		if err != nil {
			return nil, fmt.Errorf("enqueue export item: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("read inserted export id: %w", err)
		}
		requests = append(requests, Request{ID: id, RunID: plan.RunID, Item: item, Status: RequestPending})
	}
	return requests, nil
}

// MarkRunning transitions a request to running and increments its attempt
// counter.
func (s *Store) MarkRunning(ctx context.Context, id int64) error {
	return s.updateStatus(ctx, id, RequestRunning, "")
}

// MarkSucceeded transitions a request to succeeded.
func (s *Store) MarkSucceeded(ctx context.Context, id int64) error {
	return s.updateStatus(ctx, id, RequestSucceeded, "")
}

// MarkFailed transitions a request to failed and records errMsg.
func (s *Store) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	return s.updateStatus(ctx, id, RequestFailed, errMsg)
}

func (s *Store) updateStatus(ctx context.Context, id int64, status RequestStatus, errMsg string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var err error
	if status == RequestRunning {
		_, err = s.db.ExecContext(ctx,
			`UPDATE export_requests SET status = ?, attempts = attempts + 1, updated_at = ? WHERE id = ?`,
			status, now, id)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE export_requests SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			status, errMsg, now, id)
	}
	if err != nil {
		return fmt.Errorf("update export request %d: %w", id, err)
	}
	return nil
}

// Attempts returns how many times id has been marked running so far.
func (s *Store) Attempts(ctx context.Context, id int64) (int, error) {
	var attempts int
	err := s.db.QueryRowContext(ctx, `SELECT attempts FROM export_requests WHERE id = ?`, id).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("read attempts for export request %d: %w", id, err)
	}
	return attempts, nil
}
