package submit

import (
	"context"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"formrunner/internal/analyzer"
	"formrunner/internal/classify"
	"formrunner/internal/config"
	"formrunner/internal/judge"
	"formrunner/internal/prohibition"
)

// Result is the executor's outcome for one company.
type Result struct {
	Success     bool
	Code        classify.Code
	Verdict     *judge.Verdict
	Prohibition *prohibition.Result
	BotDetected bool
	FilledCount int
	Retried     bool
}

// Executor drives IDLE -> FILL -> CLICK_SUBMIT -> JUDGE with the
// confirmation-page branch and at most one invalid-field retry.
type Executor struct {
	cfg        config.WorkerConfig
	prohibitor *prohibition.Detector
	judge      *judge.Judge
	log        *zap.Logger
}

func NewExecutor(cfg config.WorkerConfig, prohibitor *prohibition.Detector, j *judge.Judge, log *zap.Logger) *Executor {
	return &Executor{cfg: cfg, prohibitor: prohibitor, judge: j, log: log}
}

// Run executes the submission for an analyzed page. frame is the form's
// frame chosen at analysis time; tenantKey partitions the prohibition cache.
// historyFn supplies accumulated network responses at judge time.
func (e *Executor) Run(
	ctx context.Context,
	page *rod.Page,
	frame *rod.Page,
	analysis *analyzer.Analysis,
	tenantKey string,
	historyFn func() judge.ResponseHistory,
) (*Result, error) {
	res := &Result{}
	prober := &judge.PageProber{Page: frame}

	if !analysis.Structure.Found {
		res.Code = classify.CodeNoFormFound
		return res, nil
	}

	// Prohibition check before any input lands on the page.
	html, err := frame.Context(ctx).HTML()
	if err == nil {
		pr := e.prohibitor.Detect(html, tenantKey)
		res.Prohibition = &pr
		if prohibition.ShouldAbort(pr, e.cfg.Prohibition) {
			verdict := e.judge.Judge(ctx, prober, judge.Snapshot{ProhibitionPre: true})
			res.Verdict = &verdict
			res.Code = classify.CodeProhibitionDetected
			return res, nil
		}
	}

	if analyzer.MissingEssential(analysis.Warnings) {
		if needsMessage(analysis) && !analysis.HasTextarea {
			res.Code = classify.CodeNoMessageArea
		} else {
			res.Code = classify.CodeMapping
		}
		return res, nil
	}

	// FILL
	handler := NewInputHandler(frame, time.Duration(e.cfg.PostInputDelayMs)*time.Millisecond, e.log)
	if err := handler.FillAll(ctx, analysis.Assignments); err != nil {
		if err == ErrNoFieldsFilled {
			res.Code = classify.CodeNoFieldsFilled
			return res, nil
		}
		return res, err
	}
	res.FilledCount = handler.FilledCount()

	// DETECT_BOT_PRE: loose HTML markers only guard the force-enable
	// boundary; an invisible badge must not fail the attempt by itself.
	// The strict probe sees rendered challenges and sets the result flag.
	botGuard, botKind := judge.LooseBotMarkers(html)
	if botGuard {
		e.log.Debug("bot protection markers before submit", zap.String("kind", botKind))
	}
	if present, kind, _ := prober.BotProtectionPresent(ctx); present {
		res.BotDetected = true
		e.log.Debug("bot challenge rendered before submit", zap.String("kind", kind))
	}

	// Snapshot before the click; the judge diffs against it.
	snap, err := e.snapshot(ctx, frame, analysis, prober, res.Prohibition)
	if err != nil {
		return res, classify.NewError(classify.CodeSubmissionError, err)
	}

	detector := NewDetector(time.Duration(e.cfg.ElementWaitTimeoutSec)*time.Second, e.log)
	button, err := detector.Find(ctx, frame, analysis.Structure.SubmitButtons, analysis.Structure.FormSelector)
	if err != nil {
		return res, classify.NewError(classify.CodeSubmissionError, err)
	}
	if err := detector.WaitEnabled(ctx, frame, button, botGuard); err != nil {
		return res, classify.NewError(classify.CodeSubmissionError, err)
	}

	stopDialogs := autoAcceptDialogs(frame)
	defer stopDialogs()

	if err := clickWithFallbacks(ctx, frame, button); err != nil {
		return res, classify.NewError(classify.CodeSubmissionError, err)
	}

	// Confirmation branch.
	if button.Kind == ButtonConfirmation {
		frame, prober, err = e.confirmationPage(ctx, page, frame, detector)
		if err != nil {
			return res, classify.NewError(classify.CodeSubmissionError, err)
		}
	}

	e.settle(ctx, frame)

	verdict := e.judge.JudgeWithHistory(ctx, prober, snap, historyFn())
	res.Verdict = &verdict
	if verdict.BotDetected {
		res.BotDetected = true
	}

	// One retry when validation errors name fields we never touched. The
	// pre-click button handle may have detached on navigation, so the
	// control is located again on the current frame.
	if !verdict.Success && e.shouldRetryInvalid(ctx, frame, handler) {
		res.Retried = true
		if err := e.retryInvalid(ctx, frame, handler, analysis); err == nil {
			if retryButton, err := relocateSubmit(ctx, detector, frame, analysis, button.Kind); err == nil {
				if err := clickWithFallbacks(ctx, frame, retryButton); err == nil {
					e.settle(ctx, frame)
					verdict = e.judge.JudgeWithHistory(ctx, prober, snap, historyFn())
					res.Verdict = &verdict
					if verdict.BotDetected {
						res.BotDetected = true
					}
				}
			}
		}
	}

	res.Success = verdict.Success
	res.Code = e.codeFor(res)
	return res, nil
}

func needsMessage(a *analyzer.Analysis) bool {
	return a.Structure.FormType.RequiresMessageBody()
}

func (e *Executor) snapshot(ctx context.Context, frame *rod.Page, analysis *analyzer.Analysis, prober *judge.PageProber, pre *prohibition.Result) (judge.Snapshot, error) {
	u, err := prober.CurrentURL(ctx)
	if err != nil {
		return judge.Snapshot{}, err
	}
	forms, _ := prober.FormCount(ctx)
	inputs, _ := prober.FormInputCount(ctx)
	submits, _ := prober.VisibleSubmitCount(ctx)
	return judge.Snapshot{
		URL:            u,
		FormSelector:   analysis.Structure.FormSelector,
		FormCount:      forms,
		InputCount:     inputs,
		SubmitCount:    submits,
		ProhibitionPre: prohibitionPre(pre),
	}, nil
}

// prohibitionPre carries a high-level pre-submission detection into the
// judge even when custom abort thresholds let the fill proceed.
func prohibitionPre(pre *prohibition.Result) bool {
	return pre != nil && pre.Detected && pre.Level == prohibition.LevelHigh
}

// settle waits for the network to go idle within the click timeout. Slow
// pages fall through on the timeout rather than erroring.
func (e *Executor) settle(ctx context.Context, frame *rod.Page) {
	timeout := time.Duration(e.cfg.ClickTimeoutSec) * time.Second
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	p := frame.Context(waitCtx)
	wait := p.WaitRequestIdle(800*time.Millisecond, nil, nil, nil)
	wait()
}

// confirmationPage handles the intermediate review page: settle, re-select
// the frame, ensure the agreement box, click the final button.
func (e *Executor) confirmationPage(ctx context.Context, page, frame *rod.Page, detector *Detector) (*rod.Page, *judge.PageProber, error) {
	e.settle(ctx, frame)

	// The prior iframe may have detached on navigation; fall back to the
	// main page.
	target := frame
	if _, err := frame.Context(ctx).Element("body"); err != nil {
		target = page
	}
	prober := &judge.PageProber{Page: target}

	final, err := detector.FindFinal(ctx, target)
	if err != nil {
		return target, prober, err
	}
	ensureAgreement(ctx, target, final)
	if err := detector.WaitEnabled(ctx, target, final, false); err != nil {
		return target, prober, err
	}
	if err := clickWithFallbacks(ctx, target, final); err != nil {
		return target, prober, err
	}
	e.settle(ctx, target)
	return target, prober, nil
}

// submitLocator is the slice of Detector the retry path needs.
type submitLocator interface {
	Find(ctx context.Context, frame *rod.Page, analyzed []*analyzer.ElementInfo, scopeSelector string) (*Button, error)
	FindFinal(ctx context.Context, frame *rod.Page) (*Button, error)
}

// relocateSubmit finds the control to click for a retry. Confirmation flows
// sit on the post-navigation page, so the final button is searched there;
// single-step flows re-run the scoped search.
func relocateSubmit(ctx context.Context, loc submitLocator, frame *rod.Page, analysis *analyzer.Analysis, prior ButtonKind) (*Button, error) {
	if prior == ButtonConfirmation {
		return loc.FindFinal(ctx, frame)
	}
	return loc.Find(ctx, frame, analysis.Structure.SubmitButtons, analysis.Structure.FormSelector)
}

// ensureAgreement checks any consent checkbox sitting near the final button.
func ensureAgreement(ctx context.Context, page *rod.Page, final *Button) {
	_, _ = page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: `(finalSel) => {
			const boxes = document.querySelectorAll('input[type="checkbox"]');
			for (const box of boxes) {
				if (box.checked) continue;
				const key = ((box.name || '') + ' ' + (box.id || '') + ' ' +
					(box.closest('label') ? box.closest('label').innerText : '')).toLowerCase();
				if (/agree|consent|privacy|同意|プライバシー|個人情報|規約/.test(key)) {
					box.checked = true;
					box.dispatchEvent(new Event('input', {bubbles: true}));
					box.dispatchEvent(new Event('change', {bubbles: true}));
				}
			}
		}`,
		ByValue: true,
		JSArgs:  []interface{}{final.Selector},
	})
}

// autoAcceptDialogs accepts the first JS dialog after the final click.
// Returns a stop function.
func autoAcceptDialogs(page *rod.Page) func() {
	ctx, cancel := context.WithCancel(context.Background())
	p := page.Context(ctx)
	go p.EachEvent(func(ev *proto.PageJavascriptDialogOpening) bool {
		_ = proto.PageHandleJavaScriptDialog{Accept: true}.Call(p)
		return true
	})()
	return cancel
}

// clickWithFallbacks climbs the chain: scroll into view, native click, JS
// click, form.requestSubmit, focus+Enter.
func clickWithFallbacks(ctx context.Context, frame *rod.Page, b *Button) error {
	el := b.Element
	_ = el.Context(ctx).ScrollIntoView()

	if err := el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err == nil {
		return nil
	}
	if _, err := el.Context(ctx).Eval(`() => this.click()`); err == nil {
		return nil
	}
	if _, err := el.Context(ctx).Eval(`() => {
		const form = this.form || this.closest('form');
		if (form && form.requestSubmit) { form.requestSubmit(this); return true; }
		if (form) { form.submit(); return true; }
		return false;
	}`); err == nil {
		return nil
	}
	if err := el.Context(ctx).Focus(); err == nil {
		if err := frame.Context(ctx).Keyboard.Press(input.Enter); err == nil {
			return nil
		}
	}
	return ErrNoSubmitButton
}

// shouldRetryInvalid checks for validation errors naming fields outside the
// initially filled set.
func (e *Executor) shouldRetryInvalid(ctx context.Context, frame *rod.Page, handler *InputHandler) bool {
	res, err := frame.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: `() => Array.from(document.querySelectorAll('[aria-invalid="true"], .error input, .has-error input, input:invalid'))
			.map(el => el.id ? '#' + el.id : (el.name ? '[name="' + el.name + '"]' : ''))
			.filter(s => s)`,
		ByValue: true,
	})
	if err != nil {
		return false
	}
	for _, v := range res.Value.Arr() {
		if sel := v.Str(); sel != "" && !handler.InitiallyFilled(sel) {
			return true
		}
	}
	return false
}

// codeFor maps the final state to the persisted code.
func (e *Executor) codeFor(res *Result) classify.Code {
	if res.Success {
		return classify.CodeSuccess
	}
	if res.BotDetected {
		return classify.CodeBotDetected
	}
	if res.Verdict != nil {
		for _, p := range res.Verdict.FailurePhrases {
			if strings.HasPrefix(p, "email_format:") {
				return classify.CodeValidationFormat
			}
			if strings.HasPrefix(p, "system:") {
				return classify.CodeSystem
			}
		}
	}
	return classify.CodeSubmissionError
}
