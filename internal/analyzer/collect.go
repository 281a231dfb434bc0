package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
)

// collectScript snapshots every form and its elements in one page round
// trip. Selectors are synthesized as data-free CSS paths so they stay stable
// across later queries in the same document.
const collectScript = `
() => {
	const cssPath = (el) => {
		if (el.id) return '#' + CSS.escape(el.id);
		const parts = [];
		while (el && el.nodeType === 1 && parts.length < 8) {
			let part = el.tagName.toLowerCase();
			if (el.name) { parts.unshift(part + '[name="' + el.name + '"]'); break; }
			const parent = el.parentElement;
			if (parent) {
				const idx = Array.from(parent.children).indexOf(el) + 1;
				part += ':nth-child(' + idx + ')';
			}
			parts.unshift(part);
			el = el.parentElement;
		}
		return parts.join(' > ');
	};
	const stableSelector = (el) => {
		if (el.id) return '#' + CSS.escape(el.id);
		if (el.name && el.form) {
			const tag = el.tagName.toLowerCase();
			const sameName = el.form.querySelectorAll(tag + '[name="' + el.name + '"]');
			if (sameName.length === 1) return tag + '[name="' + el.name + '"]';
		}
		return cssPath(el);
	};
	const isVisible = (el) => {
		const st = window.getComputedStyle(el);
		const r = el.getBoundingClientRect();
		return st.display !== 'none' && st.visibility !== 'hidden' &&
			st.opacity !== '0' && (r.width > 0 || r.height > 0);
	};
	const labelFor = (el) => {
		if (el.id) {
			const l = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
			if (l) return l.innerText || '';
		}
		const anc = el.closest('label');
		if (anc) return anc.innerText || '';
		const aria = el.getAttribute('aria-labelledby');
		if (aria) {
			const ref = document.getElementById(aria.split(' ')[0]);
			if (ref) return ref.innerText || '';
		}
		return '';
	};
	const headerFor = (el) => {
		const cell = el.closest('td, dd');
		if (!cell) return '';
		if (cell.tagName === 'TD') {
			const row = cell.closest('tr');
			const th = row && row.querySelector('th');
			if (th) return th.innerText || '';
		} else {
			let prev = cell.previousElementSibling;
			while (prev && prev.tagName !== 'DT') prev = prev.previousElementSibling;
			if (prev) return prev.innerText || '';
		}
		return '';
	};
	const nearby = (el) => {
		const out = [];
		let node = el.previousElementSibling;
		for (let i = 0; node && i < 3; i++) {
			const t = (node.innerText || '').trim();
			if (t) out.push(t.slice(0, 120));
			node = node.previousElementSibling;
		}
		const parent = el.parentElement;
		if (parent) {
			const t = (parent.childNodes[0] && parent.childNodes[0].nodeType === 3)
				? parent.childNodes[0].textContent.trim() : '';
			if (t) out.push(t.slice(0, 120));
		}
		return out;
	};
	const elemInfo = (el, inputIndex) => {
		const r = el.getBoundingClientRect();
		const opts = el.tagName === 'SELECT'
			? Array.from(el.options).map(o => ({value: o.value, label: (o.label || o.text || '').trim()}))
			: [];
		const sibs = el.parentElement
			? Array.from(el.parentElement.children).map(s => s.tagName.toLowerCase()).slice(0, 8)
			: [];
		return {
			tag: el.tagName.toLowerCase(),
			type: (el.getAttribute('type') || (el.tagName === 'TEXTAREA' ? 'textarea' : el.tagName === 'SELECT' ? 'select' : 'text')).toLowerCase(),
			name: el.getAttribute('name') || '',
			id: el.id || '',
			class: el.className && el.className.toString ? el.className.toString() : '',
			placeholder: el.getAttribute('placeholder') || '',
			value: el.value || '',
			selector: stableSelector(el),
			input_index: inputIndex,
			visible: isVisible(el),
			enabled: !el.disabled,
			required: el.required || el.getAttribute('aria-required') === 'true',
			bounds: {x: r.x, y: r.y, width: r.width, height: r.height},
			label_text: (labelFor(el) || '').slice(0, 200),
			associated_text: (headerFor(el) || '').slice(0, 200),
			nearby_text: nearby(el),
			parent_tag: el.parentElement ? el.parentElement.tagName.toLowerCase() : '',
			sibling_tags: sibs,
			options: opts
		};
	};
	const fillableTypes = new Set(['text','email','tel','url','number','password','search','textarea','select','radio','checkbox']);
	const forms = Array.from(document.querySelectorAll('form')).map((form, fi) => {
		const formSel = form.id ? ('#' + CSS.escape(form.id)) : ('form:nth-of-type(' + (fi + 1) + ')');
		const all = Array.from(form.querySelectorAll('input, textarea, select, button'));
		let inputIdx = 0;
		const elements = [];
		const buttons = [];
		let textareas = 0, emails = 0, texts = 0, selects = 0, required = 0, cells = 0, inCells = 0;
		for (const el of all) {
			const tag = el.tagName.toLowerCase();
			const type = (el.getAttribute('type') || (tag === 'textarea' ? 'textarea' : tag === 'select' ? 'select' : tag === 'button' ? 'submit' : 'text')).toLowerCase();
			if (tag === 'button' || type === 'submit' || type === 'image') {
				buttons.push(elemInfo(el, -1));
				continue;
			}
			if (type === 'hidden') continue;
			const idx = fillableTypes.has(type) ? inputIdx++ : -1;
			const info = elemInfo(el, idx);
			elements.push(info);
			if (type === 'textarea') textareas++;
			if (type === 'email') emails++;
			if (type === 'text') texts++;
			if (type === 'select') selects++;
			if (info.required) required++;
			if (el.closest('td')) inCells++;
		}
		cells = form.querySelectorAll('td, th').length;
		return {
			selector: formSel,
			visible: isVisible(form),
			attr_text: ((form.action || '') + ' ' + (form.id || '') + ' ' + (form.className || '') + ' ' + (form.getAttribute('name') || '')).toLowerCase(),
			button_texts: buttons.map(b => (b.value || b.label_text || '')).concat(Array.from(form.querySelectorAll('button')).map(b => (b.innerText || '').trim())),
			form_text: (form.innerText || '').slice(0, 4000),
			textarea_count: textareas,
			email_count: emails,
			text_count: texts,
			select_count: selects,
			required_count: required,
			table_count: form.querySelectorAll('table').length,
			cell_count: cells,
			in_cell_count: inCells,
			elements: elements,
			buttons: buttons
		};
	});
	return {
		forms: forms,
		has_textarea: document.querySelector('textarea') !== null,
		has_required_markers: document.querySelector('[required], [aria-required="true"], .required, .must') !== null,
		body_text: (document.body ? document.body.innerText : '').slice(0, 20000),
		html_length: document.documentElement ? document.documentElement.outerHTML.length : 0
	};
}
`

type collectedForm struct {
	Selector      string         `json:"selector"`
	Visible       bool           `json:"visible"`
	AttrText      string         `json:"attr_text"`
	ButtonTexts   []string       `json:"button_texts"`
	FormText      string         `json:"form_text"`
	TextareaCount int            `json:"textarea_count"`
	EmailCount    int            `json:"email_count"`
	TextCount     int            `json:"text_count"`
	SelectCount   int            `json:"select_count"`
	RequiredCount int            `json:"required_count"`
	TableCount    int            `json:"table_count"`
	CellCount     int            `json:"cell_count"`
	InCellCount   int            `json:"in_cell_count"`
	Elements      []*ElementInfo `json:"elements"`
	Buttons       []*ElementInfo `json:"buttons"`
}

type collectedPage struct {
	Forms              []collectedForm `json:"forms"`
	HasTextarea        bool            `json:"has_textarea"`
	HasRequiredMarkers bool            `json:"has_required_markers"`
	BodyText           string          `json:"body_text"`
	HTMLLength         int             `json:"html_length"`
}

// Collect snapshots the page, chooses the primary form and returns its
// structure. frame may be the main page or a form-bearing iframe page; the
// caller decides which frame wins and reuses it through submission.
func Collect(ctx context.Context, frame *rod.Page) (*FormStructure, bool, error) {
	res, err := frame.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           collectScript,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, false, fmt.Errorf("collect page snapshot: %w", err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, false, fmt.Errorf("marshal page snapshot: %w", err)
	}
	var page collectedPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, false, fmt.Errorf("decode page snapshot: %w", err)
	}

	structure := buildStructure(&page)
	if structure.Found {
		attachHandles(ctx, frame, structure)
	}
	return structure, page.HasTextarea, nil
}

// buildStructure runs the pure selection logic over a collected snapshot.
func buildStructure(page *collectedPage) *FormStructure {
	cands := make([]FormCandidate, 0, len(page.Forms))
	byIdx := make(map[string]*collectedForm, len(page.Forms))
	for i := range page.Forms {
		f := &page.Forms[i]
		byIdx[f.Selector] = f
		cands = append(cands, FormCandidate{
			Selector:      f.Selector,
			Visible:       f.Visible,
			TextareaCount: f.TextareaCount,
			EmailCount:    f.EmailCount,
			TextCount:     f.TextCount,
			SelectCount:   f.SelectCount,
			RequiredCount: f.RequiredCount,
			ButtonTexts:   f.ButtonTexts,
			AttrText:      f.AttrText,
		})
	}

	chosen, ok := ChoosePrimaryForm(cands)
	if !ok {
		// No usable form: return empty structure, never scan the page.
		return &FormStructure{Found: false, FormType: FormOther, PageText: page.BodyText}
	}
	cf := byIdx[chosen.Selector]

	var inputOrder []string
	for _, el := range cf.Elements {
		if el.InputIndex >= 0 {
			inputOrder = append(inputOrder, el.Selector)
		}
	}

	return &FormStructure{
		Found:              true,
		FormSelector:       cf.Selector,
		FormType:           ClassifyFormType(chosen, cf.FormText),
		Elements:           cf.Elements,
		SubmitButtons:      cf.Buttons,
		InputOrder:         inputOrder,
		HasRequiredMarkers: page.HasRequiredMarkers,
		ParallelGroups:     DetectParallelGroups(cf.Elements),
		TableKind:          DetectTableKind(cf.TableCount, cf.CellCount, cf.InCellCount),
		PageText:           page.BodyText,
	}
}

// attachHandles resolves rod element handles for the structure's elements.
// Handles that fail to resolve leave the element usable for scoring but not
// for input; the input handler re-resolves by selector anyway.
func attachHandles(ctx context.Context, frame *rod.Page, s *FormStructure) {
	for _, el := range append(append([]*ElementInfo{}, s.Elements...), s.SubmitButtons...) {
		if el.Selector == "" {
			continue
		}
		h, err := frame.Context(ctx).Element(el.Selector)
		if err == nil {
			el.Handle = h
		}
	}
}

// FindFormFrame locates the frame owning the contact form: the main page
// wins when it has any form; otherwise the first same-origin iframe with a
// form is chosen. The returned selector is empty for the main page.
func FindFormFrame(ctx context.Context, page *rod.Page) (*rod.Page, string, error) {
	hasForm, err := pageHasForm(ctx, page)
	if err != nil {
		return nil, "", err
	}
	if hasForm {
		return page, "", nil
	}
	iframes, err := page.Context(ctx).Elements("iframe")
	if err != nil {
		return page, "", nil
	}
	for i, ifr := range iframes {
		fp, err := ifr.Frame()
		if err != nil {
			continue
		}
		if ok, err := pageHasForm(ctx, fp); err == nil && ok {
			sel := fmt.Sprintf("iframe:nth-of-type(%d)", i+1)
			if src, _ := ifr.Attribute("src"); src != nil && *src != "" {
				sel = fmt.Sprintf(`iframe[src="%s"]`, strings.ReplaceAll(*src, `"`, `\"`))
			}
			return fp, sel, nil
		}
	}
	return page, "", nil
}

func pageHasForm(ctx context.Context, p *rod.Page) (bool, error) {
	res, err := p.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      `() => document.querySelector('form') !== null`,
		ByValue: true,
	})
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}
