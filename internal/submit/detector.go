// Package submit fills the planned inputs and drives the submission state
// machine: button discovery, click fallbacks, the confirmation page path and
// the single invalid-field retry.
package submit

import (
	"context"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"go.uber.org/zap"

	"formrunner/internal/analyzer"
)

// ButtonKind separates a confirmation step from the final send.
type ButtonKind string

const (
	ButtonConfirmation ButtonKind = "confirmation"
	ButtonFinal        ButtonKind = "final"
)

// finalTokens and confirmTokens classify a candidate by its visible text.
var (
	finalTokens = []string{
		"送信", "送る", "申し込む", "申込", "完了", "submit", "send",
		"この内容で", "上記の内容で",
	}
	confirmTokens = []string{
		"確認", "次へ", "進む", "confirm", "review", "next",
		"入力内容を確認",
	}
	excludeTokens = []string{
		"戻る", "キャンセル", "リセット", "クリア", "検索", "back",
		"cancel", "reset", "clear", "search", "ログイン", "login",
	}
)

// keywordSelectors are probed when the analyzer supplied no usable buttons.
var keywordSelectors = []string{
	`button[type="submit"]`,
	`input[type="submit"]`,
	`input[type="image"]`,
	"form button",
	`a[onclick*="submit"]`,
}

// Button is one detected submit candidate.
type Button struct {
	Selector string
	Text     string
	Kind     ButtonKind
	Element  *rod.Element
}

// Detector finds and classifies the button to click.
type Detector struct {
	enableWait time.Duration
	log        *zap.Logger
}

func NewDetector(enableWait time.Duration, log *zap.Logger) *Detector {
	if enableWait <= 0 {
		enableWait = 5 * time.Second
	}
	return &Detector{enableWait: enableWait, log: log}
}

// Find returns the best submit button: analyzer-supplied candidates first,
// keyword selectors second. scopeSelector restricts keyword probing to the
// form when non-empty.
func (d *Detector) Find(ctx context.Context, frame *rod.Page, analyzed []*analyzer.ElementInfo, scopeSelector string) (*Button, error) {
	for _, el := range analyzed {
		text := buttonText(el)
		if isExcluded(text) {
			continue
		}
		if !el.Visible {
			continue
		}
		h := el.Handle
		if h == nil {
			var err error
			h, err = frame.Context(ctx).Element(el.Selector)
			if err != nil {
				continue
			}
		}
		return &Button{
			Selector: el.Selector,
			Text:     text,
			Kind:     classifyButton(text),
			Element:  h,
		}, nil
	}
	return d.findByKeyword(ctx, frame, scopeSelector)
}

// FindFinal locates the final-submit button on a confirmation page. Scoped
// to a form first; the page-wide sweep is the fallback.
func (d *Detector) FindFinal(ctx context.Context, frame *rod.Page) (*Button, error) {
	if b, err := d.findByKeyword(ctx, frame, "form"); err == nil && b != nil {
		return b, nil
	}
	return d.findByKeyword(ctx, frame, "")
}

func (d *Detector) findByKeyword(ctx context.Context, frame *rod.Page, scope string) (*Button, error) {
	var best *Button
	for _, sel := range keywordSelectors {
		full := sel
		if scope != "" && !strings.HasPrefix(sel, scope) {
			full = scope + " " + sel
		}
		elements, err := frame.Context(ctx).Elements(full)
		if err != nil {
			continue
		}
		for _, h := range elements {
			visible, err := h.Visible()
			if err != nil || !visible {
				continue
			}
			text := elementText(h)
			if isExcluded(text) {
				continue
			}
			b := &Button{Selector: full, Text: text, Kind: classifyButton(text), Element: h}
			// A final-submit beats a confirmation candidate found earlier.
			if best == nil || (best.Kind != ButtonFinal && b.Kind == ButtonFinal) {
				best = b
			}
		}
		if best != nil && best.Kind == ButtonFinal {
			break
		}
	}
	if best == nil {
		return nil, ErrNoSubmitButton
	}
	return best, nil
}

// WaitEnabled blocks until the button is enabled, within the bounded wait.
// If it stays disabled and no bot guard sits on the page, one force-enable
// is attempted. A guarded page aborts instead; enabling a button a captcha
// holds closed would fire an unverified submission.
func (d *Detector) WaitEnabled(ctx context.Context, frame *rod.Page, b *Button, botGuardPresent bool) error {
	deadline := time.Now().Add(d.enableWait)
	for {
		disabled, err := b.Element.Attribute("disabled")
		if err == nil && disabled == nil {
			return nil
		}
		if time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	if botGuardPresent {
		return ErrSubmitDisabled
	}
	d.log.Debug("force-enabling disabled submit button", zap.String("selector", b.Selector))
	_, err := b.Element.Eval(`() => { this.disabled = false; this.removeAttribute('disabled'); }`)
	if err != nil {
		return ErrSubmitDisabled
	}
	return nil
}

func classifyButton(text string) ButtonKind {
	lower := strings.ToLower(text)
	for _, tok := range confirmTokens {
		if strings.Contains(lower, strings.ToLower(tok)) {
			// "この内容で送信する" carries both; final wins.
			for _, ft := range finalTokens {
				if strings.Contains(lower, strings.ToLower(ft)) {
					return ButtonFinal
				}
			}
			return ButtonConfirmation
		}
	}
	return ButtonFinal
}

func isExcluded(text string) bool {
	lower := strings.ToLower(text)
	for _, tok := range excludeTokens {
		if strings.Contains(lower, strings.ToLower(tok)) {
			return true
		}
	}
	return false
}

func buttonText(el *analyzer.ElementInfo) string {
	if el.Value != "" {
		return el.Value
	}
	return el.LabelText
}

func elementText(h *rod.Element) string {
	if txt, err := h.Text(); err == nil && strings.TrimSpace(txt) != "" {
		return strings.TrimSpace(txt)
	}
	if v, err := h.Attribute("value"); err == nil && v != nil {
		return *v
	}
	return ""
}
