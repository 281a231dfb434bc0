// Package worker runs the per-company pipeline: claim, precondition checks,
// analyze, submit, judge, persist. One worker owns one browser context and
// processes one company at a time.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"formrunner/internal/analyzer"
	"formrunner/internal/browser"
	"formrunner/internal/classify"
	"formrunner/internal/config"
	"formrunner/internal/judge"
	"formrunner/internal/logging"
	"formrunner/internal/prohibition"
	"formrunner/internal/queue"
	"formrunner/internal/submit"
)

// pipelineOutput is everything the browser run produced that outlives the
// page handle.
type pipelineOutput struct {
	Result   *submit.Result
	Analysis *analyzer.Analysis
	FinalURL string
	History  judge.ResponseHistory
}

type pipelineFunc func(ctx context.Context, company *queue.Company) (pipelineOutput, error)

// Worker binds the analyzer and executor to one browser context and one
// queue scope.
type Worker struct {
	ID     int
	cfg    config.WorkerConfig
	env    config.Env
	tenant *config.Tenant
	q      queue.Queue
	mgr    *browser.Manager
	log    *zap.Logger

	analyzer *analyzer.Analyzer
	executor *submit.Executor

	pipeline pipelineFunc // replaced in tests
}

// New wires a worker. The prohibition detector is shared across workers so
// its result cache spans the process.
func New(id int, cfg config.WorkerConfig, env config.Env, tenant *config.Tenant,
	q queue.Queue, mgr *browser.Manager, prohibitor *prohibition.Detector, log *zap.Logger) *Worker {

	log = log.With(zap.Int("worker", id))
	w := &Worker{
		ID:       id,
		cfg:      cfg,
		env:      env,
		tenant:   tenant,
		q:        q,
		mgr:      mgr,
		log:      log,
		analyzer: analyzer.New(tenant, logging.For(log, "analyzer")),
		executor: submit.NewExecutor(cfg, prohibitor, judge.New(log), log),
	}
	w.pipeline = w.browserPipeline
	return w
}

// ProcessNext claims and processes one company. It returns false when there
// was nothing to do (drained queue or outside business hours).
func (w *Worker) ProcessNext(ctx context.Context, targetDate string, shardID int) (bool, error) {
	if !WithinBusinessHours(time.Now(), w.tenant.Targeting) {
		w.log.Debug("outside business hours")
		return false, nil
	}

	entry, err := w.q.ClaimNext(ctx, queue.ClaimParams{
		TargetDate:  targetDate,
		TargetingID: w.tenant.TargetingID,
		RunID:       w.env.RunID,
		ShardID:     shardID,
		MaxDaily:    w.tenant.Targeting.MaxDailySends,
	})
	if err != nil {
		return false, fmt.Errorf("claim: %w", err)
	}
	if entry == nil {
		return false, nil
	}
	return true, w.Process(ctx, targetDate, entry.CompanyID)
}

// outcome is the terminal state of processing one company.
type outcome struct {
	code         classify.Code
	detail       classify.Detail
	fieldMapping json.RawMessage
	bot          bool
	success      bool

	requeue     bool // fail closed: return the claim to pending
	skipPersist bool // shutdown: leave the entry for stale requeue
	err         error
}

// Process runs the full per-company task and persists the result. Only the
// process_start/process_done pair logs at INFO.
func (w *Worker) Process(ctx context.Context, targetDate string, companyID int64) error {
	start := time.Now()
	w.log.Info("process_start", zap.Int64("company_id", companyID))

	o := w.processInner(ctx, targetDate, companyID)

	switch {
	case o.skipPersist:
		// Shutdown mid-company: the assigned entry stays for stale requeue.
	case o.requeue:
		if err := w.q.Requeue(ctx, targetDate, w.tenant.TargetingID, companyID); err != nil {
			w.log.Error("requeue failed", zap.Int64("company_id", companyID), zap.Error(err))
		}
	default:
		detailJSON, err := json.Marshal(o.detail)
		if err != nil {
			detailJSON = []byte(`{}`)
		}
		errorType := ""
		if !o.success {
			errorType = string(o.code)
		}
		if err := w.q.MarkDone(ctx, queue.MarkDoneParams{
			TargetDate:     targetDate,
			TargetingID:    w.tenant.TargetingID,
			CompanyID:      companyID,
			Success:        o.success,
			ErrorType:      errorType,
			ClassifyDetail: detailJSON,
			FieldMapping:   o.fieldMapping,
			BotProtection:  o.bot,
			SubmittedAt:    time.Now(),
			RunID:          w.env.RunID,
		}); err != nil {
			w.log.Error("mark done failed", zap.Int64("company_id", companyID), zap.Error(err))
			if o.err == nil {
				o.err = err
			}
		}
		if patch := patchFor(o.code); patch != nil {
			if err := w.q.UpdateCompany(ctx, companyID, *patch); err != nil {
				w.log.Error("company update failed", zap.Int64("company_id", companyID), zap.Error(err))
			}
		}
	}

	if err := w.mgr.ClearCookies(); err != nil {
		w.log.Debug("cookie clear failed", zap.Error(err))
	}

	w.log.Info("process_done",
		zap.Int64("company_id", companyID),
		zap.String("code", string(o.code)),
		zap.Bool("success", o.success),
		zap.Duration("took", time.Since(start)))
	return o.err
}

func (w *Worker) processInner(ctx context.Context, targetDate string, companyID int64) outcome {
	company, err := w.q.FetchCompany(ctx, companyID)
	if err != nil {
		return outcome{code: classify.CodeWorkerError, requeue: true,
			err: fmt.Errorf("fetch company %d: %w", companyID, err)}
	}
	if company == nil {
		return w.terminal(classify.CodeNotFound, 1.0, classify.Evidence{}, nil, false)
	}
	if company.FormURL == "" {
		return w.terminal(classify.CodeNoFormURL, 1.0, classify.Evidence{}, nil, false)
	}
	if company.Black || nameSkipped(company.Name, w.cfg.SkipNameKeywords) {
		return w.terminal(classify.CodeSkippedByName, 1.0, classify.Evidence{}, nil, false)
	}
	if wrongClient(company.ClientScope, w.tenant.ClientID) {
		return w.terminal(classify.CodeSkippedWrongClient, 1.0, classify.Evidence{}, nil, false)
	}

	// Daily duplicate guard. A check failure fails closed: the claim goes
	// back to pending rather than risking a double send.
	sent, err := w.q.HasSubmissionToday(ctx, targetDate, w.tenant.TargetingID, companyID)
	if err != nil {
		return outcome{code: classify.CodeWorkerError, requeue: true,
			err: fmt.Errorf("duplicate guard for company %d: %w", companyID, err)}
	}
	if sent {
		return w.terminal(classify.CodeSkippedAlreadySent, 1.0, classify.Evidence{}, nil, false)
	}

	out, err := w.runWithWatchdog(ctx, company)
	if err != nil {
		if classify.IsHardTimeout(err) {
			w.recoverBrowser()
			return w.terminalErr(classify.CodeTimeout, err, out)
		}
		if errors.Is(err, context.Canceled) {
			return outcome{code: classify.CodeShutdownRequested, skipPersist: true, err: err}
		}
		return w.terminalErr(classify.CodeOf(err), err, out)
	}

	res := out.Result
	ev := buildEvidence(company.FormURL, out.FinalURL, res, out.History)
	confidence := 1.0
	if res.Verdict != nil {
		confidence = res.Verdict.Confidence
	}
	o := w.terminal(res.Code, confidence, ev, out.Analysis, res.Success)
	o.bot = res.BotDetected
	return o
}

func (w *Worker) terminal(code classify.Code, confidence float64, ev classify.Evidence,
	analysis *analyzer.Analysis, success bool) outcome {

	o := outcome{
		code:    code,
		success: success,
		detail:  classify.Build(code, confidence, ev),
	}
	if analysis != nil {
		if data, err := json.Marshal(classify.ProjectFieldMapping(analysis.Mappings)); err == nil {
			o.fieldMapping = data
		}
	}
	return o
}

func (w *Worker) terminalErr(code classify.Code, err error, out pipelineOutput) outcome {
	ev := classify.Evidence{FinalURL: out.FinalURL}
	o := w.terminal(code, 1.0, ev, out.Analysis, false)
	o.err = err
	return o
}

// runWithWatchdog bounds the whole browser pipeline with the per-company
// hard timeout and maps its expiry to the hard-timeout sentinel.
func (w *Worker) runWithWatchdog(ctx context.Context, company *queue.Company) (pipelineOutput, error) {
	hard := time.Duration(w.cfg.HardTimeoutSec) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, hard)
	defer cancel()

	type result struct {
		out pipelineOutput
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := w.pipeline(runCtx, company)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return pipelineOutput{}, ctx.Err()
		}
		return pipelineOutput{}, fmt.Errorf("company %d after %s: %w",
			company.ID, hard, classify.ErrHardTimeout)
	}
}

// browserPipeline is the real pipeline: open, analyze, execute.
func (w *Worker) browserPipeline(ctx context.Context, company *queue.Company) (pipelineOutput, error) {
	pageLoad := time.Duration(w.cfg.PageLoadTimeoutSec) * time.Second
	page, rec, err := w.mgr.OpenPage(ctx, company.FormURL, pageLoad)
	if err != nil {
		return pipelineOutput{}, classify.NewError(classify.CodeAccess, err)
	}
	defer func() {
		rec.Stop()
		_ = page.Close()
	}()

	analysis, frame, err := w.analyzer.Analyze(ctx, page, company.Name)
	if err != nil {
		return pipelineOutput{}, classify.NewError(classify.CodeAnalysisFailed, err)
	}

	out := pipelineOutput{Analysis: analysis}
	tenantKey := strconv.FormatInt(w.tenant.TargetingID, 10)
	res, err := w.executor.Run(ctx, page, frame, analysis, tenantKey, rec.Snapshot)
	out.Result = res
	out.History = rec.Snapshot()
	if info, infoErr := frame.Info(); infoErr == nil {
		out.FinalURL = info.URL
	}
	return out, err
}

// recoverBrowser relaunches after a hard timeout; the stuck page dies with
// the old context.
func (w *Worker) recoverBrowser() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := w.mgr.Recreate(ctx); err != nil {
		w.log.Error("browser recreate failed", zap.Error(err))
	}
}

func buildEvidence(formURL, finalURL string, res *submit.Result, hist judge.ResponseHistory) classify.Evidence {
	ev := classify.Evidence{
		OriginalURL:  formURL,
		FinalURL:     finalURL,
		HTTPStatus:   hist.FinalStatus,
		RedirectURLs: hist.RedirectURLs,
	}
	if res == nil {
		return ev
	}
	if v := res.Verdict; v != nil {
		ev.SuccessPhrases = v.SuccessPhrases
		ev.FailurePhrases = v.FailurePhrases
		ev.JudgeStageID = int(v.StageID)
		ev.JudgeStageName = v.StageName
		ev.JudgeConfidence = v.Confidence
	}
	if p := res.Prohibition; p != nil && p.Detected {
		ev.ProhibitionLevel = string(p.Level)
		ev.ProhibitionSource = p.Source
		ev.ProhibitionPhrases = len(p.Phrases)
		ev.ProhibitionConfidence = float64(p.Score) / 100
	}
	return ev
}

// patchFor maps terminal codes to company row mutations.
func patchFor(code classify.Code) *queue.CompanyPatch {
	t := true
	switch code {
	case classify.CodeProhibitionDetected:
		return &queue.CompanyPatch{ProhibitionDetected: &t}
	case classify.CodeNoMessageArea:
		return &queue.CompanyPatch{Black: &t}
	default:
		return nil
	}
}

func nameSkipped(name string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// wrongClient rejects companies tagged for a different client scope. An
// empty tag means unrestricted.
func wrongClient(scope string, clientID int64) bool {
	if scope == "" {
		return false
	}
	return scope != strconv.FormatInt(clientID, 10)
}
