package queue

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(filepath.Join(t.TempDir(), "queue.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func seedOne(t *testing.T, l *Local, companyID int64) {
	t.Helper()
	require.NoError(t, l.Seed(context.Background(), "2026-08-26", 7, Company{
		ID: companyID, Name: "テスト株式会社", FormURL: "https://example.co.jp/contact",
	}, -1))
}

func TestClaimNextAssignsOnce(t *testing.T) {
	l := newTestLocal(t)
	seedOne(t, l, 101)
	ctx := context.Background()
	p := ClaimParams{TargetDate: "2026-08-26", TargetingID: 7, RunID: "run-a", ShardID: -1}

	e1, err := l.ClaimNext(ctx, p)
	require.NoError(t, err)
	require.NotNil(t, e1)
	assert.Equal(t, int64(101), e1.CompanyID)

	e2, err := l.ClaimNext(ctx, p)
	require.NoError(t, err)
	assert.Nil(t, e2, "second claim on a drained queue returns nothing")
}

func TestClaimNextRespectsShard(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()
	require.NoError(t, l.Seed(ctx, "2026-08-26", 7, Company{ID: 1, Name: "a"}, 3))
	require.NoError(t, l.Seed(ctx, "2026-08-26", 7, Company{ID: 2, Name: "b"}, 5))

	e, err := l.ClaimNext(ctx, ClaimParams{TargetDate: "2026-08-26", TargetingID: 7, RunID: "r", ShardID: 5})
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, int64(2), e.CompanyID)

	e, err = l.ClaimNext(ctx, ClaimParams{TargetDate: "2026-08-26", TargetingID: 7, RunID: "r", ShardID: 9})
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestClaimNextHonorsDailyCap(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()
	seedOne(t, l, 101)
	require.NoError(t, l.MarkDone(ctx, MarkDoneParams{
		TargetDate: "2026-08-26", TargetingID: 7, CompanyID: 900, Success: true,
		SubmittedAt: time.Now(), RunID: "r",
	}))

	e, err := l.ClaimNext(ctx, ClaimParams{
		TargetDate: "2026-08-26", TargetingID: 7, RunID: "r", ShardID: -1, MaxDaily: 1,
	})
	require.NoError(t, err)
	assert.Nil(t, e, "cap reached, no claim")

	e, err = l.ClaimNext(ctx, ClaimParams{
		TargetDate: "2026-08-26", TargetingID: 7, RunID: "r", ShardID: -1, MaxDaily: 2,
	})
	require.NoError(t, err)
	assert.NotNil(t, e)
}

func TestMarkDoneIdempotent(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()
	seedOne(t, l, 101)

	_, err := l.ClaimNext(ctx, ClaimParams{TargetDate: "2026-08-26", TargetingID: 7, RunID: "run-a", ShardID: -1})
	require.NoError(t, err)

	p := MarkDoneParams{
		TargetDate: "2026-08-26", TargetingID: 7, CompanyID: 101, Success: true,
		ClassifyDetail: json.RawMessage(`{"code":""}`),
		SubmittedAt:    time.Date(2026, 8, 26, 10, 0, 0, 0, jst),
		RunID:          "run-a",
	}
	require.NoError(t, l.MarkDone(ctx, p))
	require.NoError(t, l.MarkDone(ctx, p), "repeat with identical args succeeds")

	n, err := l.CountTodaySuccesses(ctx, "2026-08-26", 7)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	has, err := l.HasSubmissionToday(ctx, "2026-08-26", 7, 101)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestMarkDoneRejectsForeignClaim(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()
	seedOne(t, l, 101)

	_, err := l.ClaimNext(ctx, ClaimParams{TargetDate: "2026-08-26", TargetingID: 7, RunID: "run-a", ShardID: -1})
	require.NoError(t, err)

	err = l.MarkDone(ctx, MarkDoneParams{
		TargetDate: "2026-08-26", TargetingID: 7, CompanyID: 101, Success: true,
		SubmittedAt: time.Now(), RunID: "run-b",
	})
	assert.Error(t, err)
}

func TestRequeueStale(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()
	seedOne(t, l, 101)

	_, err := l.ClaimNext(ctx, ClaimParams{TargetDate: "2026-08-26", TargetingID: 7, RunID: "dead-run", ShardID: -1})
	require.NoError(t, err)

	// Fresh assignment stays put.
	n, err := l.RequeueStale(ctx, "2026-08-26", 7, 15)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Age the assignment past the threshold.
	_, err = l.db.Exec(`UPDATE send_queue SET assigned_at = ?`,
		time.Now().In(jst).Add(-30*time.Minute).Format(time.RFC3339))
	require.NoError(t, err)

	n, err = l.RequeueStale(ctx, "2026-08-26", 7, 15)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	e, err := l.ClaimNext(ctx, ClaimParams{TargetDate: "2026-08-26", TargetingID: 7, RunID: "run-b", ShardID: -1})
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, int64(101), e.CompanyID)
}

func TestRequeueSingleClaim(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()
	seedOne(t, l, 101)

	_, err := l.ClaimNext(ctx, ClaimParams{TargetDate: "2026-08-26", TargetingID: 7, RunID: "run-a", ShardID: -1})
	require.NoError(t, err)
	require.NoError(t, l.Requeue(ctx, "2026-08-26", 7, 101))

	e, err := l.ClaimNext(ctx, ClaimParams{TargetDate: "2026-08-26", TargetingID: 7, RunID: "run-b", ShardID: -1})
	require.NoError(t, err)
	assert.NotNil(t, e)
}

func TestUpdateCompanyFlags(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()
	seedOne(t, l, 101)

	black := true
	require.NoError(t, l.UpdateCompany(ctx, 101, CompanyPatch{Black: &black}))
	c, err := l.FetchCompany(ctx, 101)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.True(t, c.Black)
	assert.False(t, c.ProhibitionDetected)
}
