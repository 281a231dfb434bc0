package queue

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Local implements the queue surface on sqlite for dev runs and tests. The
// claim/mark-done/requeue semantics mirror the hosted RPCs exactly.
type Local struct {
	db  *sql.DB
	mu  sync.Mutex
	log *zap.Logger
}

const localSchema = `
CREATE TABLE IF NOT EXISTS companies (
	id                   INTEGER PRIMARY KEY,
	company_name         TEXT NOT NULL,
	form_url             TEXT NOT NULL DEFAULT '',
	black                INTEGER NOT NULL DEFAULT 0,
	prohibition_detected INTEGER NOT NULL DEFAULT 0,
	client_scope         TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS send_queue (
	target_date  TEXT NOT NULL,
	targeting_id INTEGER NOT NULL,
	company_id   INTEGER NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	assigned_by  TEXT,
	assigned_at  TEXT,
	shard_id     INTEGER,
	PRIMARY KEY (target_date, targeting_id, company_id)
);
CREATE TABLE IF NOT EXISTS submissions (
	targeting_id             INTEGER NOT NULL,
	company_id               INTEGER NOT NULL,
	success                  INTEGER NOT NULL,
	error_type               TEXT,
	classify_detail          TEXT,
	field_mapping            TEXT,
	bot_protection_detected  INTEGER NOT NULL DEFAULT 0,
	submitted_at             TEXT NOT NULL,
	target_date              TEXT NOT NULL,
	PRIMARY KEY (target_date, targeting_id, company_id)
);
CREATE INDEX IF NOT EXISTS idx_queue_claim
	ON send_queue (target_date, targeting_id, status);
`

func NewLocal(path string, log *zap.Logger) (*Local, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debug("pragma failed", zap.String("pragma", pragma), zap.Error(err))
		}
	}
	if _, err := db.Exec(localSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Local{db: db, log: log}, nil
}

// ClaimNext picks the lowest pending company id in scope and flips it to
// assigned in one transaction.
func (l *Local) ClaimNext(ctx context.Context, p ClaimParams) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if p.MaxDaily > 0 {
		n, err := l.countSuccessesLocked(ctx, p.TargetDate, p.TargetingID)
		if err != nil {
			return nil, err
		}
		if n >= p.MaxDaily {
			return nil, nil
		}
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `SELECT company_id FROM send_queue
		WHERE target_date = ? AND targeting_id = ? AND status = 'pending'`
	args := []interface{}{p.TargetDate, p.TargetingID}
	if p.ShardID >= 0 {
		query += " AND shard_id = ?"
		args = append(args, p.ShardID)
	}
	query += " ORDER BY company_id LIMIT 1"

	var companyID int64
	err = tx.QueryRowContext(ctx, query, args...).Scan(&companyID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().In(jst)
	res, err := tx.ExecContext(ctx, `UPDATE send_queue
		SET status = 'assigned', assigned_by = ?, assigned_at = ?
		WHERE target_date = ? AND targeting_id = ? AND company_id = ? AND status = 'pending'`,
		p.RunID, now.Format(time.RFC3339), p.TargetDate, p.TargetingID, companyID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &Entry{CompanyID: companyID, AssignedAt: now}, nil
}

// MarkDone is idempotent per (date, targeting, company): a repeated call
// replaces the submissions row with identical content and leaves the entry
// in its terminal state.
func (l *Local) MarkDone(ctx context.Context, p MarkDoneParams) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Only the claim holder may finalize an assigned entry. Entries already
	// terminal (a repeated call) and missing entries (single-company mode)
	// pass through.
	var status, assignedBy sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT status, assigned_by FROM send_queue
		WHERE target_date = ? AND targeting_id = ? AND company_id = ?`,
		p.TargetDate, p.TargetingID, p.CompanyID).Scan(&status, &assignedBy)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if status.String == "assigned" && assignedBy.String != p.RunID {
		return fmt.Errorf("claim for company %d held by %q, not %q",
			p.CompanyID, assignedBy.String, p.RunID)
	}

	// A skip or failure written after the fact never downgrades an existing
	// success row.
	var existingSuccess sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT success FROM submissions
		WHERE target_date = ? AND targeting_id = ? AND company_id = ?`,
		p.TargetDate, p.TargetingID, p.CompanyID).Scan(&existingSuccess)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if !(existingSuccess.Valid && existingSuccess.Int64 == 1 && !p.Success) {
		_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO submissions
			(target_date, targeting_id, company_id, success, error_type,
			 classify_detail, field_mapping, bot_protection_detected, submitted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.TargetDate, p.TargetingID, p.CompanyID, boolInt(p.Success),
			nullString(p.ErrorType), string(p.ClassifyDetail), string(p.FieldMapping),
			boolInt(p.BotProtection), p.SubmittedAt.In(jst).Format(time.RFC3339))
		if err != nil {
			return err
		}
	}

	final := "failed"
	if p.Success {
		final = "done"
	}
	_, err = tx.ExecContext(ctx, `UPDATE send_queue SET status = ?
		WHERE target_date = ? AND targeting_id = ? AND company_id = ?
		  AND (assigned_by = ? OR status IN ('done', 'failed'))`,
		final, p.TargetDate, p.TargetingID, p.CompanyID, p.RunID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (l *Local) RequeueStale(ctx context.Context, targetDate string, targetingID int64, staleMinutes int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().In(jst).Add(-time.Duration(staleMinutes) * time.Minute)
	res, err := l.db.ExecContext(ctx, `UPDATE send_queue
		SET status = 'pending', assigned_by = NULL, assigned_at = NULL
		WHERE target_date = ? AND targeting_id = ? AND status = 'assigned'
		  AND assigned_at < ?`,
		targetDate, targetingID, cutoff.Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (l *Local) Requeue(ctx context.Context, targetDate string, targetingID, companyID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.db.ExecContext(ctx, `UPDATE send_queue
		SET status = 'pending', assigned_by = NULL, assigned_at = NULL
		WHERE target_date = ? AND targeting_id = ? AND company_id = ? AND status = 'assigned'`,
		targetDate, targetingID, companyID)
	return err
}

func (l *Local) FetchCompany(ctx context.Context, companyID int64) (*Company, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var c Company
	var black, prohibition int
	err := l.db.QueryRowContext(ctx, `SELECT id, company_name, form_url, black,
		prohibition_detected, client_scope FROM companies WHERE id = ?`, companyID).
		Scan(&c.ID, &c.Name, &c.FormURL, &black, &prohibition, &c.ClientScope)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Black = black != 0
	c.ProhibitionDetected = prohibition != 0
	return &c, nil
}

func (l *Local) UpdateCompany(ctx context.Context, companyID int64, patch CompanyPatch) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if patch.Black != nil {
		if _, err := l.db.ExecContext(ctx,
			`UPDATE companies SET black = ? WHERE id = ?`, boolInt(*patch.Black), companyID); err != nil {
			return err
		}
	}
	if patch.ProhibitionDetected != nil {
		if _, err := l.db.ExecContext(ctx,
			`UPDATE companies SET prohibition_detected = ? WHERE id = ?`,
			boolInt(*patch.ProhibitionDetected), companyID); err != nil {
			return err
		}
	}
	return nil
}

func (l *Local) HasSubmissionToday(ctx context.Context, targetDate string, targetingID, companyID int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var one int
	err := l.db.QueryRowContext(ctx, `SELECT 1 FROM submissions
		WHERE target_date = ? AND targeting_id = ? AND company_id = ? LIMIT 1`,
		targetDate, targetingID, companyID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (l *Local) CountTodaySuccesses(ctx context.Context, targetDate string, targetingID int64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.countSuccessesLocked(ctx, targetDate, targetingID)
}

func (l *Local) countSuccessesLocked(ctx context.Context, targetDate string, targetingID int64) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions
		WHERE target_date = ? AND targeting_id = ? AND success = 1`,
		targetDate, targetingID).Scan(&n)
	return n, err
}

// Seed inserts a company and its pending queue entry for local runs.
func (l *Local) Seed(ctx context.Context, targetDate string, targetingID int64, c Company, shardID int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.db.ExecContext(ctx, `INSERT OR REPLACE INTO companies
		(id, company_name, form_url, black, prohibition_detected, client_scope)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.FormURL, boolInt(c.Black), boolInt(c.ProhibitionDetected), c.ClientScope); err != nil {
		return err
	}
	var shard interface{}
	if shardID >= 0 {
		shard = shardID
	}
	_, err := l.db.ExecContext(ctx, `INSERT OR IGNORE INTO send_queue
		(target_date, targeting_id, company_id, status, shard_id)
		VALUES (?, ?, ?, 'pending', ?)`,
		targetDate, targetingID, c.ID, shard)
	return err
}

func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
