package judge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProber struct {
	url          string
	title        string
	body         string
	html         string
	forms        int
	inputs       int
	submits      int
	errorTexts   []string
	successText  string
	siblings     int
	disabled     float64
	bot          bool
	botKind      string
}

func (f *fakeProber) CurrentURL(context.Context) (string, error) { return f.url, nil }
func (f *fakeProber) Title(context.Context) (string, error)      { return f.title, nil }
func (f *fakeProber) BodyText(context.Context) (string, error)   { return f.body, nil }
func (f *fakeProber) HTML(context.Context) (string, error)       { return f.html, nil }
func (f *fakeProber) FormCount(context.Context) (int, error)     { return f.forms, nil }
func (f *fakeProber) FormInputCount(context.Context) (int, error) {
	return f.inputs, nil
}
func (f *fakeProber) VisibleSubmitCount(context.Context) (int, error) { return f.submits, nil }
func (f *fakeProber) VisibleErrorTexts(context.Context, []string) ([]string, error) {
	return f.errorTexts, nil
}
func (f *fakeProber) SuccessContainerText(context.Context, []string) (string, error) {
	return f.successText, nil
}
func (f *fakeProber) NewSuccessSiblings(context.Context, string) (int, error) {
	return f.siblings, nil
}
func (f *fakeProber) DisabledControlRatio(context.Context) (float64, error) {
	return f.disabled, nil
}
func (f *fakeProber) BotProtectionPresent(context.Context) (bool, string, error) {
	return f.bot, f.botKind, nil
}

func snap() Snapshot {
	return Snapshot{
		URL:          "https://example.co.jp/contact/",
		FormSelector: "#contact",
		FormCount:    1,
		InputCount:   8,
		SubmitCount:  1,
	}
}

func TestProhibitionPreOverridesEverything(t *testing.T) {
	s := snap()
	s.ProhibitionPre = true
	p := &fakeProber{url: "https://example.co.jp/thanks/", body: "送信完了しました"}

	v := New(zap.NewNop()).Judge(context.Background(), p, s)
	require.False(t, v.Success)
	assert.Equal(t, 1.0, v.Confidence)
	assert.Equal(t, 0.0, v.StageID)
}

func TestBotProtectionFailsEarly(t *testing.T) {
	p := &fakeProber{url: snap().URL, bot: true, botKind: "recaptcha", forms: 1, inputs: 8, submits: 1}
	v := New(zap.NewNop()).Judge(context.Background(), p, snap())
	require.False(t, v.Success)
	assert.True(t, v.BotDetected)
	assert.Equal(t, "recaptcha", v.BotKind)
	assert.Equal(t, 0.5, v.StageID)
}

func TestLooseBotMarkers(t *testing.T) {
	// A v3 badge integration leaves script markers but renders no widget.
	ok, kind := LooseBotMarkers(`<script src="https://www.google.com/recaptcha/api.js?render=key"></script>
		<script>grecaptcha.execute('key', {action: 'submit'})</script>`)
	require.True(t, ok)
	assert.Equal(t, "recaptcha", kind)

	ok, kind = LooseBotMarkers(`<div class="h-captcha" data-sitekey="k"></div>`)
	require.True(t, ok)
	assert.Equal(t, "hcaptcha", kind)

	ok, kind = LooseBotMarkers(`<p>cloudflare is checking your browser</p>`)
	require.True(t, ok)
	assert.Equal(t, "cloudflare", kind)

	ok, _ = LooseBotMarkers(`<form><input name="email"></form>`)
	assert.False(t, ok)
}

func TestVisibleErrorsFailEarly(t *testing.T) {
	p := &fakeProber{
		url: snap().URL, forms: 1, inputs: 8, submits: 1,
		errorTexts: []string{"メールアドレスを入力してください"},
	}
	v := New(zap.NewNop()).Judge(context.Background(), p, snap())
	require.False(t, v.Success)
	assert.Equal(t, 0.5, v.StageID)
	assert.Contains(t, v.FailurePhrases[0], "メールアドレス")
}

func TestURLPathChangeSucceeds(t *testing.T) {
	p := &fakeProber{url: "https://example.co.jp/contact/thanks/", forms: 0}
	v := New(zap.NewNop()).Judge(context.Background(), p, snap())
	require.True(t, v.Success)
	assert.Equal(t, 1.0, v.StageID)
	assert.InDelta(t, 0.95, v.Confidence, 0.001, "success token in path raises confidence")
}

func TestQueryOnlyChangeDoesNotPassStage1(t *testing.T) {
	p := &fakeProber{
		url:   "https://example.co.jp/contact/?error=1",
		forms: 1, inputs: 8, submits: 1,
		body: "エラーが発生しました",
	}
	v := New(zap.NewNop()).Judge(context.Background(), p, snap())
	require.False(t, v.Success)
	assert.Equal(t, 5.0, v.StageID, "falls through to the error probe")
}

func TestSuccessMessageStage(t *testing.T) {
	p := &fakeProber{
		url: snap().URL, forms: 1, inputs: 8, submits: 1,
		body: "お問い合わせを受け付けました。確認メールをお送りしました。",
	}
	v := New(zap.NewNop()).Judge(context.Background(), p, snap())
	require.True(t, v.Success)
	assert.Equal(t, 2.0, v.StageID)
	assert.GreaterOrEqual(t, v.Confidence, 0.85)
	assert.LessOrEqual(t, v.Confidence, 0.95)
}

func TestFormDisappearanceStage(t *testing.T) {
	p := &fakeProber{url: snap().URL, forms: 0, body: "ページをご覧いただきありがとうございます"}
	// The thanks phrase also matches stage 2; strip it to isolate stage 3.
	p.body = ""
	v := New(zap.NewNop()).Judge(context.Background(), p, snap())
	require.True(t, v.Success)
	assert.Equal(t, 3.0, v.StageID)
	assert.InDelta(t, 0.85, v.Confidence, 0.001)
}

func TestInputReductionCountsAsDisappearance(t *testing.T) {
	p := &fakeProber{url: snap().URL, forms: 1, inputs: 3, submits: 1}
	v := New(zap.NewNop()).Judge(context.Background(), p, snap())
	require.True(t, v.Success)
	assert.Equal(t, 3.0, v.StageID)
}

func TestErrorProbeFails(t *testing.T) {
	p := &fakeProber{
		url: snap().URL, forms: 1, inputs: 8, submits: 1,
		body: "必須項目が入力されていません",
	}
	v := New(zap.NewNop()).Judge(context.Background(), p, snap())
	require.False(t, v.Success)
	assert.Equal(t, 5.0, v.StageID)
	assert.GreaterOrEqual(t, v.Confidence, 0.70)
	assert.LessOrEqual(t, v.Confidence, 0.75)
}

func TestFallbackFailsOnTwoIndicators(t *testing.T) {
	p := &fakeProber{
		url: snap().URL, forms: 1, inputs: 8, submits: 1,
		title: "404 Not Found",
	}
	hist := ResponseHistory{Status4xx: 1}
	v := New(zap.NewNop()).JudgeWithHistory(context.Background(), p, snap(), hist)
	require.False(t, v.Success)
	assert.Equal(t, 6.0, v.StageID)
	assert.InDelta(t, 0.68, v.Confidence, 0.001)
}

func TestFallbackDefaultsToLowConfidenceSuccess(t *testing.T) {
	p := &fakeProber{url: snap().URL, forms: 1, inputs: 8, submits: 1, title: "お問い合わせ"}
	v := New(zap.NewNop()).Judge(context.Background(), p, snap())
	require.True(t, v.Success)
	assert.Equal(t, 6.0, v.StageID)
	assert.InDelta(t, 0.70, v.Confidence, 0.001)
}

func TestTraceCoversVisitedStages(t *testing.T) {
	p := &fakeProber{
		url: snap().URL, forms: 1, inputs: 8, submits: 1,
		body: "必須項目が入力されていません",
	}
	v := New(zap.NewNop()).Judge(context.Background(), p, snap())

	require.GreaterOrEqual(t, len(v.Trace), 6)
	last := v.Trace[len(v.Trace)-1]
	assert.Equal(t, 5.0, last.ID)
	assert.Equal(t, "failure", last.Outcome)
	assert.NotEmpty(t, last.Patterns)
}
