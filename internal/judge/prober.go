package judge

import (
	"context"
	"strings"

	"github.com/go-rod/rod"
)

// Prober reads post-submission page state. The rod implementation drives
// the live frame; tests substitute a fake.
type Prober interface {
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	BodyText(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	FormCount(ctx context.Context) (int, error)
	FormInputCount(ctx context.Context) (int, error)
	VisibleSubmitCount(ctx context.Context) (int, error)
	VisibleErrorTexts(ctx context.Context, selectors []string) ([]string, error)
	SuccessContainerText(ctx context.Context, selectors []string) (string, error)
	NewSuccessSiblings(ctx context.Context, formSelector string) (int, error)
	DisabledControlRatio(ctx context.Context) (float64, error)
	BotProtectionPresent(ctx context.Context) (bool, string, error)
}

// PageProber implements Prober over a rod page or frame.
type PageProber struct {
	Page *rod.Page
}

func (p *PageProber) CurrentURL(ctx context.Context) (string, error) {
	info, err := p.Page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p *PageProber) Title(ctx context.Context) (string, error) {
	res, err := p.Page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: `() => document.title`, ByValue: true,
	})
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (p *PageProber) BodyText(ctx context.Context) (string, error) {
	res, err := p.Page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: `() => document.body ? document.body.innerText.slice(0, 30000) : ''`, ByValue: true,
	})
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (p *PageProber) HTML(ctx context.Context) (string, error) {
	return p.Page.Context(ctx).HTML()
}

func (p *PageProber) FormCount(ctx context.Context) (int, error) {
	return p.count(ctx, `document.querySelectorAll('form').length`)
}

func (p *PageProber) FormInputCount(ctx context.Context) (int, error) {
	return p.count(ctx, `document.querySelectorAll('form input:not([type=hidden]), form textarea, form select').length`)
}

func (p *PageProber) VisibleSubmitCount(ctx context.Context) (int, error) {
	return p.count(ctx, `Array.from(document.querySelectorAll('button[type=submit], input[type=submit], form button:not([type=button])'))
		.filter(el => { const r = el.getBoundingClientRect(); return r.width > 0 && r.height > 0; }).length`)
}

func (p *PageProber) count(ctx context.Context, expr string) (int, error) {
	res, err := p.Page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: `() => ` + expr, ByValue: true,
	})
	if err != nil {
		return 0, err
	}
	return int(res.Value.Num()), nil
}

func (p *PageProber) VisibleErrorTexts(ctx context.Context, selectors []string) ([]string, error) {
	js := `(sels) => {
		const out = [];
		for (const sel of sels) {
			for (const el of document.querySelectorAll(sel)) {
				const r = el.getBoundingClientRect();
				if (r.width === 0 && r.height === 0) continue;
				const t = (el.innerText || '').trim();
				if (t) out.push(t.slice(0, 200));
				if (out.length >= 20) return out;
			}
		}
		return out;
	}`
	res, err := p.Page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: js, ByValue: true, JSArgs: []interface{}{selectors},
	})
	if err != nil {
		return nil, err
	}
	var texts []string
	for _, v := range res.Value.Arr() {
		texts = append(texts, v.Str())
	}
	return texts, nil
}

func (p *PageProber) SuccessContainerText(ctx context.Context, selectors []string) (string, error) {
	js := `(sels) => {
		let out = '';
		for (const sel of sels) {
			for (const el of document.querySelectorAll(sel)) {
				out += ' ' + (el.innerText || '');
				if (out.length > 4000) return out;
			}
		}
		return out;
	}`
	res, err := p.Page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: js, ByValue: true, JSArgs: []interface{}{selectors},
	})
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (p *PageProber) NewSuccessSiblings(ctx context.Context, formSelector string) (int, error) {
	js := `(formSel) => {
		const anchor = formSel ? document.querySelector(formSel) : null;
		const scope = anchor && anchor.parentElement ? anchor.parentElement : document.body;
		if (!scope) return 0;
		const tokens = ['thanks', 'complete', 'success', 'sent', 'done'];
		let n = 0;
		for (const el of scope.querySelectorAll('[class], [id]')) {
			const key = ((el.className && el.className.toString ? el.className.toString() : '') + ' ' + el.id).toLowerCase();
			if (tokens.some(t => key.includes(t))) n++;
		}
		return n;
	}`
	res, err := p.Page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: js, ByValue: true, JSArgs: []interface{}{formSelector},
	})
	if err != nil {
		return 0, err
	}
	return int(res.Value.Num()), nil
}

func (p *PageProber) DisabledControlRatio(ctx context.Context) (float64, error) {
	res, err := p.Page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: `() => {
			const all = document.querySelectorAll('input:not([type=hidden]), textarea, select, button');
			if (all.length === 0) return 0;
			let disabled = 0;
			for (const el of all) if (el.disabled) disabled++;
			return disabled / all.length;
		}`, ByValue: true,
	})
	if err != nil {
		return 0, err
	}
	return res.Value.Num(), nil
}

// BotProtectionPresent reports an active challenge: a rendered checkbox
// reCAPTCHA or hCaptcha widget, or a Cloudflare interstitial. Invisible
// badge integrations do not count here; LooseBotMarkers covers those.
func (p *PageProber) BotProtectionPresent(ctx context.Context) (bool, string, error) {
	res, err := p.Page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: `() => {
			const visible = el => { const r = el.getBoundingClientRect(); return r.width > 0 && r.height > 0; };
			for (const f of document.querySelectorAll('iframe[src*="recaptcha/api2/anchor"], iframe[src*="recaptcha/enterprise/anchor"]')) {
				if (!f.src.includes('size=invisible') && visible(f)) return 'recaptcha';
			}
			for (const el of document.querySelectorAll('.g-recaptcha')) {
				if (el.getAttribute('data-size') !== 'invisible' && visible(el)) return 'recaptcha';
			}
			for (const el of document.querySelectorAll('.h-captcha, iframe[src*="hcaptcha.com"]')) {
				if (visible(el)) return 'hcaptcha';
			}
			if (document.querySelector('#challenge-form, #cf-challenge-running, .cf-browser-verification') ||
				/just a moment|checking your browser/i.test(document.title)) return 'cloudflare';
			return '';
		}`, ByValue: true,
	})
	if err != nil {
		return false, "", err
	}
	kind := res.Value.Str()
	return kind != "", kind, nil
}

// LooseBotMarkers scans raw HTML for any bot-protection footprint, invisible
// badge integrations included. Callers treat a hit as a safety boundary, not
// as a failure signal.
func LooseBotMarkers(html string) (bool, string) {
	lower := strings.ToLower(html)
	switch {
	case strings.Contains(lower, "cf-challenge"),
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "checking your browser"):
		return true, "cloudflare"
	case strings.Contains(lower, "g-recaptcha"), strings.Contains(lower, "grecaptcha.execute"):
		return true, "recaptcha"
	case strings.Contains(lower, "h-captcha"):
		return true, "hcaptcha"
	}
	return false, ""
}
