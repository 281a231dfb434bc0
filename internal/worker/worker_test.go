package worker

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"formrunner/internal/browser"
	"formrunner/internal/classify"
	"formrunner/internal/config"
	"formrunner/internal/judge"
	"formrunner/internal/prohibition"
	"formrunner/internal/queue"
	"formrunner/internal/submit"
)

func allHoursTenant() *config.Tenant {
	return &config.Tenant{
		TargetingID: 7,
		ClientID:    3,
		Active:      true,
		Client: config.Client{
			LastName: "山田", FirstName: "太郎",
			Email: "taro@example.com",
		},
		Targeting: config.Targeting{
			Message:        "お世話になっております。",
			SendDaysOfWeek: []int{0, 1, 2, 3, 4, 5, 6},
			SendStartTime:  "00:00",
			SendEndTime:    "23:59",
		},
	}
}

func newTestWorker(t *testing.T, q queue.Queue) *Worker {
	t.Helper()
	cfg := config.DefaultWorkerConfig()
	env := config.Env{RunID: "run-test"}
	mgr := browser.NewManager(cfg.Browser, zap.NewNop())
	prohibitor := prohibition.NewDetector(cfg.Prohibition, zap.NewNop())
	return New(0, cfg, env, allHoursTenant(), q, mgr, prohibitor, zap.NewNop())
}

func newTestQueue(t *testing.T) *queue.Local {
	t.Helper()
	l, err := queue.NewLocal(filepath.Join(t.TempDir(), "q.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

const testDate = "2026-08-26"

func seedCompany(t *testing.T, l *queue.Local, c queue.Company) {
	t.Helper()
	require.NoError(t, l.Seed(context.Background(), testDate, 7, c, -1))
}

func assertSubmissionExists(t *testing.T, l *queue.Local, companyID int64) {
	t.Helper()
	has, err := l.HasSubmissionToday(context.Background(), testDate, 7, companyID)
	require.NoError(t, err)
	require.True(t, has, "expected a submissions row for company %d", companyID)
}

func TestWithinBusinessHours(t *testing.T) {
	tg := config.Targeting{
		SendDaysOfWeek: []int{1, 2, 3, 4, 5}, // weekdays
		SendStartTime:  "09:00",
		SendEndTime:    "17:00",
	}
	// 2026-08-26 is a Wednesday.
	wed := func(h, m int) time.Time {
		return time.Date(2026, 8, 26, h, m, 0, 0, defaultZone)
	}
	assert.True(t, WithinBusinessHours(wed(9, 0), tg))
	assert.True(t, WithinBusinessHours(wed(17, 0), tg), "end minute is inclusive")
	assert.False(t, WithinBusinessHours(wed(17, 1), tg))
	assert.False(t, WithinBusinessHours(wed(8, 59), tg))

	sun := time.Date(2026, 8, 30, 10, 0, 0, 0, defaultZone)
	assert.False(t, WithinBusinessHours(sun, tg))
}

func TestWithinBusinessHoursBadFormat(t *testing.T) {
	tg := config.Targeting{
		SendDaysOfWeek: []int{3},
		SendStartTime:  "morning",
		SendEndTime:    "17:00",
	}
	assert.False(t, WithinBusinessHours(time.Date(2026, 8, 26, 10, 0, 0, 0, defaultZone), tg))
}

func TestNameSkipped(t *testing.T) {
	kws := []string{"市役所", "警察"}
	assert.True(t, nameSkipped("千代田区市役所", kws))
	assert.False(t, nameSkipped("テスト株式会社", kws))
	assert.False(t, nameSkipped("テスト株式会社", nil))
}

func TestWrongClient(t *testing.T) {
	assert.False(t, wrongClient("", 3))
	assert.False(t, wrongClient("3", 3))
	assert.True(t, wrongClient("9", 3))
}

func TestPatchFor(t *testing.T) {
	p := patchFor(classify.CodeProhibitionDetected)
	require.NotNil(t, p)
	assert.True(t, *p.ProhibitionDetected)
	assert.Nil(t, p.Black)

	p = patchFor(classify.CodeNoMessageArea)
	require.NotNil(t, p)
	assert.True(t, *p.Black)

	assert.Nil(t, patchFor(classify.CodeTimeout))
}

func TestBuildEvidence(t *testing.T) {
	res := &submit.Result{
		Verdict: &judge.Verdict{
			Success: true, Confidence: 0.95, StageID: 1, StageName: "url_change",
			SuccessPhrases: []string{"送信完了"},
		},
		Prohibition: &prohibition.Result{
			Detected: true, Level: prohibition.LevelHigh, Score: 70,
			Phrases: []string{"営業お断り"}, Source: "advanced",
		},
	}
	hist := judge.ResponseHistory{FinalStatus: 200, RedirectURLs: []string{"https://a/thanks"}}
	ev := buildEvidence("https://a/contact", "https://a/thanks", res, hist)

	assert.Equal(t, "https://a/contact", ev.OriginalURL)
	assert.Equal(t, "https://a/thanks", ev.FinalURL)
	assert.Equal(t, 200, ev.HTTPStatus)
	assert.Equal(t, 1, ev.JudgeStageID)
	assert.Equal(t, 0.95, ev.JudgeConfidence)
	assert.Equal(t, []string{"送信完了"}, ev.SuccessPhrases)
	assert.Equal(t, "high", ev.ProhibitionLevel)
	assert.Equal(t, 1, ev.ProhibitionPhrases)
	assert.InDelta(t, 0.7, ev.ProhibitionConfidence, 0.001)
}

func TestProcessSkipsByNamePolicy(t *testing.T) {
	l := newTestQueue(t)
	seedCompany(t, l, queue.Company{ID: 1, Name: "千代田区市役所", FormURL: "https://city.example/contact"})
	w := newTestWorker(t, l)
	w.pipeline = func(ctx context.Context, c *queue.Company) (pipelineOutput, error) {
		t.Fatal("pipeline must not run for a name-policy skip")
		return pipelineOutput{}, nil
	}

	processed, err := w.ProcessNext(context.Background(), testDate, -1)
	require.NoError(t, err)
	assert.True(t, processed)

	assertSubmissionExists(t, l, 1)

	// The entry is terminal, so a fresh claim finds nothing.
	e, err := l.ClaimNext(context.Background(), queue.ClaimParams{
		TargetDate: testDate, TargetingID: 7, RunID: "other", ShardID: -1,
	})
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestProcessSkipsBlacklisted(t *testing.T) {
	l := newTestQueue(t)
	seedCompany(t, l, queue.Company{ID: 1, Name: "テスト株式会社", FormURL: "https://a.example/contact", Black: true})
	w := newTestWorker(t, l)
	w.pipeline = func(ctx context.Context, c *queue.Company) (pipelineOutput, error) {
		t.Fatal("pipeline must not run for a blacklisted company")
		return pipelineOutput{}, nil
	}

	processed, err := w.ProcessNext(context.Background(), testDate, -1)
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestProcessDuplicateGuardSkips(t *testing.T) {
	l := newTestQueue(t)
	ctx := context.Background()
	seedCompany(t, l, queue.Company{ID: 1, Name: "テスト株式会社", FormURL: "https://a.example/contact"})
	// A submissions row from an earlier run; the queue entry stays pending.
	require.NoError(t, l.MarkDone(ctx, queue.MarkDoneParams{
		TargetDate: testDate, TargetingID: 7, CompanyID: 1, Success: true,
		SubmittedAt: time.Now(), RunID: "earlier-run",
	}))

	w := newTestWorker(t, l)
	w.pipeline = func(ctx context.Context, c *queue.Company) (pipelineOutput, error) {
		t.Fatal("pipeline must not run when a submission already exists")
		return pipelineOutput{}, nil
	}

	require.NoError(t, w.Process(ctx, testDate, 1))

	// The earlier success row survives the skip write.
	n, err := l.CountTodaySuccesses(ctx, testDate, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the earlier success row survives the skip write")
}

func TestProcessPipelineSuccess(t *testing.T) {
	l := newTestQueue(t)
	ctx := context.Background()
	seedCompany(t, l, queue.Company{ID: 1, Name: "テスト株式会社", FormURL: "https://a.example/contact"})

	w := newTestWorker(t, l)
	w.pipeline = func(ctx context.Context, c *queue.Company) (pipelineOutput, error) {
		return pipelineOutput{
			Result: &submit.Result{
				Success: true,
				Code:    classify.CodeSuccess,
				Verdict: &judge.Verdict{Success: true, Confidence: 0.95, StageID: 1, StageName: "url_change"},
			},
			FinalURL: "https://a.example/thanks",
			History:  judge.ResponseHistory{FinalStatus: 200},
		}, nil
	}

	processed, err := w.ProcessNext(ctx, testDate, -1)
	require.NoError(t, err)
	assert.True(t, processed)

	n, err := l.CountTodaySuccesses(ctx, testDate, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Terminal entry, queue drained.
	processed, err = w.ProcessNext(ctx, testDate, -1)
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestProcessProhibitionMutatesCompany(t *testing.T) {
	l := newTestQueue(t)
	ctx := context.Background()
	seedCompany(t, l, queue.Company{ID: 1, Name: "テスト株式会社", FormURL: "https://a.example/contact"})

	w := newTestWorker(t, l)
	w.pipeline = func(ctx context.Context, c *queue.Company) (pipelineOutput, error) {
		return pipelineOutput{
			Result: &submit.Result{
				Code: classify.CodeProhibitionDetected,
				Prohibition: &prohibition.Result{
					Detected: true, Level: prohibition.LevelHigh, Score: 70, Source: "advanced",
				},
			},
		}, nil
	}

	_, err := w.ProcessNext(ctx, testDate, -1)
	require.NoError(t, err)

	c, err := l.FetchCompany(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.True(t, c.ProhibitionDetected)
	assert.False(t, c.Black)
}

func TestProcessFailClosedOnGuardError(t *testing.T) {
	l := newTestQueue(t)
	ctx := context.Background()
	seedCompany(t, l, queue.Company{ID: 1, Name: "テスト株式会社", FormURL: "https://a.example/contact"})

	q := &guardFailQueue{Local: l}
	w := newTestWorker(t, q)
	w.pipeline = func(ctx context.Context, c *queue.Company) (pipelineOutput, error) {
		t.Fatal("pipeline must not run when the duplicate guard errors")
		return pipelineOutput{}, nil
	}

	processed, err := w.ProcessNext(ctx, testDate, -1)
	assert.True(t, processed)
	require.Error(t, err)

	// Fail closed: the entry is pending again, no submissions row exists.
	has, err := l.HasSubmissionToday(ctx, testDate, 7, 1)
	require.NoError(t, err)
	assert.False(t, has)

	e, err := l.ClaimNext(ctx, queue.ClaimParams{TargetDate: testDate, TargetingID: 7, RunID: "r2", ShardID: -1})
	require.NoError(t, err)
	assert.NotNil(t, e)
}

type guardFailQueue struct {
	*queue.Local
}

func (q *guardFailQueue) HasSubmissionToday(ctx context.Context, targetDate string, targetingID, companyID int64) (bool, error) {
	return false, errors.New("store unavailable")
}

func TestRunWithWatchdogHardTimeout(t *testing.T) {
	l := newTestQueue(t)
	w := newTestWorker(t, l)
	w.cfg.HardTimeoutSec = 0 // immediate expiry

	w.pipeline = func(ctx context.Context, c *queue.Company) (pipelineOutput, error) {
		time.Sleep(50 * time.Millisecond)
		return pipelineOutput{}, nil
	}
	_, err := w.runWithWatchdog(context.Background(), &queue.Company{ID: 1})
	require.Error(t, err)
	assert.True(t, classify.IsHardTimeout(err))
}

func TestRunWithWatchdogShutdown(t *testing.T) {
	l := newTestQueue(t)
	w := newTestWorker(t, l)

	ctx, cancel := context.WithCancel(context.Background())
	w.pipeline = func(ctx context.Context, c *queue.Company) (pipelineOutput, error) {
		cancel()
		<-ctx.Done()
		return pipelineOutput{}, ctx.Err()
	}
	_, err := w.runWithWatchdog(ctx, &queue.Company{ID: 1})
	require.Error(t, err)
	assert.False(t, classify.IsHardTimeout(err))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestClassifyDetailRoundTrip(t *testing.T) {
	d := classify.Build(classify.CodeProhibitionDetected, 0.9, classify.Evidence{
		ProhibitionLevel: "high", ProhibitionPhrases: 2,
	})
	data, err := json.Marshal(d)
	require.NoError(t, err)
	var back classify.Detail
	require.NoError(t, json.Unmarshal(data, &back))
	if diff := cmp.Diff(d, back); diff != "" {
		t.Errorf("detail changed across marshal (-want +got):\n%s", diff)
	}
}
