package submit

import (
	"context"
	"strings"

	"github.com/go-rod/rod"
	"go.uber.org/zap"

	"formrunner/internal/analyzer"
	"formrunner/internal/clientdata"
)

// privacyGroupTokens mark checkbox groups where select-all would be wrong;
// priority choice applies instead.
var privacyGroupTokens = []string{"privacy", "個人情報", "プライバシー", "規約", "consent"}

// retryCheckboxTokens order priority choices within a flagged group.
var retryCheckboxTokens = []string{"お問い合わせ", "ご相談", "法人", "その他", "other", "contact"}

type invalidField struct {
	Selector string `json:"selector"`
	Tag      string `json:"tag"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	GroupKey string `json:"group_key"`
}

// retryInvalid fixes validation failures on fields the first pass never
// touched: checkbox groups get select-all (or priority choice in privacy
// groups), selects and radios get algorithmic picks, text inputs a safe
// filler.
func (e *Executor) retryInvalid(ctx context.Context, frame *rod.Page, handler *InputHandler, analysis *analyzer.Analysis) error {
	fields, err := collectInvalid(ctx, frame)
	if err != nil {
		return err
	}

	groups := make(map[string][]invalidField)
	var singles []invalidField
	for _, f := range fields {
		if handler.InitiallyFilled(f.Selector) {
			continue
		}
		if f.Type == "checkbox" && f.GroupKey != "" {
			groups[f.GroupKey] = append(groups[f.GroupKey], f)
			continue
		}
		singles = append(singles, f)
	}

	for key, members := range groups {
		if err := e.retryCheckboxGroup(ctx, frame, key, members); err != nil {
			e.log.Debug("checkbox group retry failed", zap.String("group", key), zap.Error(err))
		}
	}

	for _, f := range singles {
		if err := e.retrySingle(ctx, frame, handler, f); err != nil {
			e.log.Debug("field retry failed", zap.String("selector", f.Selector), zap.Error(err))
		}
	}
	return nil
}

func collectInvalid(ctx context.Context, frame *rod.Page) ([]invalidField, error) {
	res, err := frame.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: `() => {
			const out = [];
			const seen = new Set();
			for (const el of document.querySelectorAll('[aria-invalid="true"], input:invalid, select:invalid, textarea:invalid, .error input, .has-error input')) {
				const sel = el.id ? '#' + CSS.escape(el.id)
					: (el.name ? el.tagName.toLowerCase() + '[name="' + el.name + '"]' : '');
				if (!sel || seen.has(sel)) continue;
				seen.add(sel);
				out.push({
					selector: sel,
					tag: el.tagName.toLowerCase(),
					type: (el.getAttribute('type') || el.tagName.toLowerCase()).toLowerCase(),
					name: el.name || '',
					group_key: el.type === 'checkbox' ? (el.name || el.className || '') : ''
				});
				if (out.length >= 30) break;
			}
			return out;
		}`,
		ByValue: true,
	})
	if err != nil {
		return nil, err
	}
	var fields []invalidField
	for _, v := range res.Value.Arr() {
		fields = append(fields, invalidField{
			Selector: v.Get("selector").Str(),
			Tag:      v.Get("tag").Str(),
			Type:     v.Get("type").Str(),
			Name:     v.Get("name").Str(),
			GroupKey: v.Get("group_key").Str(),
		})
	}
	return fields, nil
}

// retryCheckboxGroup selects all members when multiple are required, except
// in privacy groups where a priority pick avoids over-consenting.
func (e *Executor) retryCheckboxGroup(ctx context.Context, frame *rod.Page, key string, members []invalidField) error {
	handler := NewInputHandler(frame, 0, e.log)

	if isPrivacyGroup(key) || len(members) == 1 {
		target := members[0]
		if len(members) > 1 {
			target = pickByPriority(members)
		}
		el, err := frame.Context(ctx).Element(target.Selector)
		if err != nil {
			return err
		}
		return handler.setCheckbox(ctx, el, target.Selector, true)
	}

	for _, m := range members {
		el, err := frame.Context(ctx).Element(m.Selector)
		if err != nil {
			continue
		}
		if err := handler.setCheckbox(ctx, el, m.Selector, true); err != nil {
			return err
		}
	}
	return nil
}

func isPrivacyGroup(key string) bool {
	lower := strings.ToLower(key)
	for _, tok := range privacyGroupTokens {
		if strings.Contains(lower, strings.ToLower(tok)) {
			return true
		}
	}
	return false
}

func pickByPriority(members []invalidField) invalidField {
	for _, tok := range retryCheckboxTokens {
		for _, m := range members {
			key := strings.ToLower(m.Name + " " + m.Selector)
			if strings.Contains(key, strings.ToLower(tok)) {
				return m
			}
		}
	}
	return members[0]
}

func (e *Executor) retrySingle(ctx context.Context, frame *rod.Page, handler *InputHandler, f invalidField) error {
	el, err := frame.Context(ctx).Element(f.Selector)
	if err != nil {
		return err
	}
	switch f.Type {
	case "select":
		return handler.fillSelect(ctx, el, analyzer.InputAssignment{
			Selector: f.Selector, InputType: "select", AutoAction: analyzer.ActionSelectAlgo,
		})
	case "radio":
		return handler.checkRadioByAlgorithm(ctx, el, f.Selector)
	case "checkbox":
		return handler.setCheckbox(ctx, el, f.Selector, true)
	default:
		// A safe placeholder that passes "required" without asserting
		// content.
		return handler.fillText(ctx, el, f.Selector, clientdata.IdeographicSpace)
	}
}
