// Package queue is the persistence boundary: atomic claim, idempotent
// mark-done and stale requeue against either the hosted RPC surface or a
// local sqlite store with identical semantics.
package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is one claimed queue row.
type Entry struct {
	CompanyID  int64     `json:"company_id"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Company is the read-only company row a worker processes.
type Company struct {
	ID                  int64  `json:"id"`
	Name                string `json:"company_name"`
	FormURL             string `json:"form_url"`
	Black               bool   `json:"black"`
	ProhibitionDetected bool   `json:"prohibition_detected"`
	ClientScope         string `json:"client_scope,omitempty"`
}

// CompanyPatch carries the flag mutations a worker may apply after an
// outcome. Nil fields stay untouched.
type CompanyPatch struct {
	Black               *bool `json:"black,omitempty"`
	ProhibitionDetected *bool `json:"prohibition_detected,omitempty"`
}

// ClaimParams identify the claim scope. ShardID < 0 means unsharded;
// MaxDaily 0 disables the cap check server-side.
type ClaimParams struct {
	TargetDate  string
	TargetingID int64
	RunID       string
	ShardID     int
	MaxDaily    int
}

// MarkDoneParams finalize one queue entry and write the submissions row.
type MarkDoneParams struct {
	TargetDate     string
	TargetingID    int64
	CompanyID      int64
	Success        bool
	ErrorType      string
	ClassifyDetail json.RawMessage
	FieldMapping   json.RawMessage
	BotProtection  bool
	SubmittedAt    time.Time
	RunID          string
}

// Queue is the worker-facing persistence surface. Both implementations keep
// the same transition semantics: claim moves pending to assigned under the
// caller's run id, mark-done is idempotent per (date, targeting, company).
type Queue interface {
	// ClaimNext atomically claims one pending entry, or returns nil when the
	// queue is drained for the given scope.
	ClaimNext(ctx context.Context, p ClaimParams) (*Entry, error)

	// MarkDone writes the submissions row and transitions the entry.
	MarkDone(ctx context.Context, p MarkDoneParams) error

	// RequeueStale returns long-assigned entries to pending and reports how
	// many were touched.
	RequeueStale(ctx context.Context, targetDate string, targetingID int64, staleMinutes int) (int, error)

	// Requeue returns a single held claim to pending, for fail-closed paths.
	Requeue(ctx context.Context, targetDate string, targetingID, companyID int64) error

	// FetchCompany loads the company row for a claimed entry.
	FetchCompany(ctx context.Context, companyID int64) (*Company, error)

	// UpdateCompany applies outcome-derived flag mutations.
	UpdateCompany(ctx context.Context, companyID int64, patch CompanyPatch) error

	// HasSubmissionToday is the daily duplicate guard.
	HasSubmissionToday(ctx context.Context, targetDate string, targetingID, companyID int64) (bool, error)

	// CountTodaySuccesses backs the daily-cap check.
	CountTodaySuccesses(ctx context.Context, targetDate string, targetingID int64) (int, error)

	Close() error
}
