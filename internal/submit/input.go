package submit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"go.uber.org/zap"

	"formrunner/internal/analyzer"
)

// selectPreferredTokens drive the three-stage select algorithm's first
// stage: options a business contact would plausibly pick.
var selectPreferredTokens = []string{
	"お問い合わせ", "ご相談", "その他", "法人", "企業", "サービス",
	"business", "inquiry", "other",
}

// selectNeutralTokens are the second stage.
var selectNeutralTokens = []string{"その他", "other", "none", "特になし"}

// placeholderOptionTokens mark non-choices like "選択してください".
var placeholderOptionTokens = []string{
	"選択", "選んで", "please select", "choose", "---", "ください",
}

// InputHandler fills assignments into a single frame and tracks what was
// filled for the retry path.
type InputHandler struct {
	frame          *rod.Page
	postInputDelay time.Duration
	log            *zap.Logger

	filled map[string]bool // selectors successfully filled
	values map[string]string
}

func NewInputHandler(frame *rod.Page, postInputDelay time.Duration, log *zap.Logger) *InputHandler {
	return &InputHandler{
		frame:          frame,
		postInputDelay: postInputDelay,
		log:            log,
		filled:         make(map[string]bool),
		values:         make(map[string]string),
	}
}

// InitiallyFilled reports whether the selector was filled in the first pass.
func (h *InputHandler) InitiallyFilled(selector string) bool { return h.filled[selector] }

// FilledCount returns how many inputs took a value.
func (h *InputHandler) FilledCount() int { return len(h.filled) }

// FillAll executes the input plan. Individual element failures are logged
// and skipped; the caller decides whether the overall count is acceptable.
func (h *InputHandler) FillAll(ctx context.Context, assignments []analyzer.InputAssignment) error {
	for _, a := range assignments {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.fillOne(ctx, a); err != nil {
			h.log.Debug("input failed",
				zap.String("field", a.Field),
				zap.String("selector", a.Selector),
				zap.Error(err))
			continue
		}
		h.filled[a.Selector] = true
		if h.postInputDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(h.postInputDelay):
			}
		}
	}
	if len(h.filled) == 0 && len(assignments) > 0 {
		return ErrNoFieldsFilled
	}
	return nil
}

func (h *InputHandler) fillOne(ctx context.Context, a analyzer.InputAssignment) error {
	el, err := h.frame.Context(ctx).Element(a.Selector)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", a.Selector, err)
	}

	switch a.InputType {
	case "text", "email", "tel", "url", "number", "password", "search", "textarea":
		value := a.Value
		if a.AutoAction == analyzer.ActionCopyFrom && a.CopyFrom != "" {
			value = h.values[a.CopyFrom]
		}
		if value == "" {
			return nil
		}
		return h.fillText(ctx, el, a.Selector, value)
	case "select":
		return h.fillSelect(ctx, el, a)
	case "checkbox":
		return h.setCheckbox(ctx, el, a.Selector, true)
	case "radio":
		return h.checkRadio(ctx, el, a)
	}
	return nil
}

// fillText fills and verifies by reading back. A mismatch is an error so
// the caller knows the value did not stick.
func (h *InputHandler) fillText(ctx context.Context, el *rod.Element, selector, value string) error {
	// Clear any prefilled value, then type.
	_ = el.Context(ctx).SelectAllText()
	if err := el.Context(ctx).Input(value); err != nil {
		return fmt.Errorf("input: %w", err)
	}
	got, err := el.Context(ctx).Property("value")
	if err != nil {
		return fmt.Errorf("read back: %w", err)
	}
	if got.Str() != value {
		return fmt.Errorf("verify failed: wrote %d chars, read %d", len(value), len(got.Str()))
	}
	h.values[selector] = value
	return nil
}

// fillSelect applies directives in order: explicit index, value, label,
// then the three-stage algorithm.
func (h *InputHandler) fillSelect(ctx context.Context, el *rod.Element, a analyzer.InputAssignment) error {
	if a.AutoAction == analyzer.ActionSelectIndex {
		return h.selectByIndex(ctx, el, a.SelectIndex)
	}
	if a.Value != "" {
		if err := el.Context(ctx).Select([]string{a.Value}, true, rod.SelectorTypeText); err == nil {
			return nil
		}
	}
	labels, err := optionLabels(ctx, el)
	if err != nil {
		return err
	}
	if idx := chooseOption(labels); idx >= 0 {
		return h.selectByIndex(ctx, el, idx)
	}
	return fmt.Errorf("no selectable option among %d", len(labels))
}

// chooseOption implements the three-stage algorithm over option labels.
func chooseOption(labels []string) int {
	match := func(tokens []string) int {
		for _, tok := range tokens {
			for i, l := range labels {
				if i == 0 && isPlaceholderOption(l) {
					continue
				}
				if strings.Contains(strings.ToLower(l), strings.ToLower(tok)) {
					return i
				}
			}
		}
		return -1
	}
	if i := match(selectPreferredTokens); i >= 0 {
		return i
	}
	if i := match(selectNeutralTokens); i >= 0 {
		return i
	}
	// Last non-empty, non-placeholder option.
	for i := len(labels) - 1; i > 0; i-- {
		if strings.TrimSpace(labels[i]) != "" && !isPlaceholderOption(labels[i]) {
			return i
		}
	}
	return -1
}

func isPlaceholderOption(label string) bool {
	lower := strings.ToLower(strings.TrimSpace(label))
	if lower == "" {
		return true
	}
	for _, tok := range placeholderOptionTokens {
		if strings.Contains(lower, strings.ToLower(tok)) {
			return true
		}
	}
	return false
}

func (h *InputHandler) selectByIndex(ctx context.Context, el *rod.Element, idx int) error {
	_, err := el.Context(ctx).Eval(`(i) => {
		this.selectedIndex = i;
		this.dispatchEvent(new Event('input', {bubbles: true}));
		this.dispatchEvent(new Event('change', {bubbles: true}));
	}`, idx)
	return err
}

func optionLabels(ctx context.Context, el *rod.Element) ([]string, error) {
	res, err := el.Context(ctx).Eval(`() => Array.from(this.options).map(o => o.label || o.text || '')`)
	if err != nil {
		return nil, err
	}
	var labels []string
	for _, v := range res.Value.Arr() {
		labels = append(labels, v.Str())
	}
	return labels, nil
}

// setCheckbox checks or unchecks with the fallback chain: native click,
// label[for=], closest label, JS property set with events.
func (h *InputHandler) setCheckbox(ctx context.Context, el *rod.Element, selector string, want bool) error {
	checked, err := el.Context(ctx).Property("checked")
	if err == nil && checked.Bool() == want {
		return nil
	}
	if err := el.Context(ctx).Click("left", 1); err == nil {
		if c, err := el.Context(ctx).Property("checked"); err == nil && c.Bool() == want {
			return nil
		}
	}
	// Click the associated label; overlay-styled checkboxes swallow direct
	// clicks.
	if id, err := el.Context(ctx).Attribute("id"); err == nil && id != nil && *id != "" {
		if label, err := h.frame.Context(ctx).Element(`label[for="` + *id + `"]`); err == nil {
			if err := label.Context(ctx).Click("left", 1); err == nil {
				if c, err := el.Context(ctx).Property("checked"); err == nil && c.Bool() == want {
					return nil
				}
			}
		}
	}
	_, err = el.Context(ctx).Eval(`(want) => {
		const label = this.closest('label');
		if (label) label.click();
		if (this.checked !== want) {
			this.checked = want;
			this.dispatchEvent(new Event('input', {bubbles: true}));
			this.dispatchEvent(new Event('change', {bubbles: true}));
		}
	}`, want)
	if err != nil {
		return fmt.Errorf("checkbox fallback: %w", err)
	}
	c, err := el.Context(ctx).Property("checked")
	if err != nil || c.Bool() != want {
		return fmt.Errorf("checkbox %s did not reach state %v", selector, want)
	}
	return nil
}

func (h *InputHandler) checkRadio(ctx context.Context, el *rod.Element, a analyzer.InputAssignment) error {
	if a.AutoAction == analyzer.ActionSelectAlgo {
		return h.checkRadioByAlgorithm(ctx, el, a.Selector)
	}
	return h.setCheckbox(ctx, el, a.Selector, true)
}

// checkRadioByAlgorithm picks the preferred member of the radio group by
// label keywords, falling back to the given element.
func (h *InputHandler) checkRadioByAlgorithm(ctx context.Context, el *rod.Element, selector string) error {
	name, err := el.Context(ctx).Attribute("name")
	if err != nil || name == nil || *name == "" {
		return h.setCheckbox(ctx, el, selector, true)
	}
	group, err := h.frame.Context(ctx).Elements(`input[type="radio"][name="` + *name + `"]`)
	if err != nil || len(group) == 0 {
		return h.setCheckbox(ctx, el, selector, true)
	}
	var labels []string
	for _, member := range group {
		labels = append(labels, radioLabel(ctx, member))
	}
	idx := analyzer.PreferredRadioIndex(labels)
	return h.setCheckbox(ctx, group[idx], selector, true)
}

func radioLabel(ctx context.Context, el *rod.Element) string {
	res, err := el.Context(ctx).Eval(`() => {
		const label = this.closest('label');
		if (label) return label.innerText || '';
		if (this.id) {
			const ref = document.querySelector('label[for="' + this.id + '"]');
			if (ref) return ref.innerText || '';
		}
		return this.value || '';
	}`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}
