package submit

import (
	"context"
	"testing"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"formrunner/internal/analyzer"
	"formrunner/internal/classify"
	"formrunner/internal/config"
	"formrunner/internal/judge"
	"formrunner/internal/prohibition"
)

func TestClassifyButton(t *testing.T) {
	cases := []struct {
		text string
		want ButtonKind
	}{
		{"送信する", ButtonFinal},
		{"確認画面へ", ButtonConfirmation},
		{"入力内容を確認する", ButtonConfirmation},
		{"この内容で送信", ButtonFinal},
		{"次へ進む", ButtonConfirmation},
		{"Submit", ButtonFinal},
		{"お申し込み", ButtonFinal},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, classifyButton(c.text), c.text)
	}
}

func TestIsExcluded(t *testing.T) {
	assert.True(t, isExcluded("戻る"))
	assert.True(t, isExcluded("サイト内検索"))
	assert.True(t, isExcluded("Reset form"))
	assert.False(t, isExcluded("送信"))
	assert.False(t, isExcluded("確認"))
}

func TestChooseOptionPrefersBusinessTokens(t *testing.T) {
	labels := []string{"選択してください", "製品について", "お問い合わせ", "採用"}
	assert.Equal(t, 2, chooseOption(labels))
}

func TestChooseOptionNeutralFallback(t *testing.T) {
	labels := []string{"---", "資料請求", "採用", "その他"}
	// "その他" sits in the preferred list too, so it wins there already.
	assert.Equal(t, 3, chooseOption(labels))
}

func TestChooseOptionLastNonPlaceholder(t *testing.T) {
	labels := []string{"選択してください", "赤", "青"}
	assert.Equal(t, 2, chooseOption(labels))
}

func TestChooseOptionAllPlaceholders(t *testing.T) {
	labels := []string{"選択してください", "---"}
	assert.Equal(t, -1, chooseOption(labels))
}

func TestIsPlaceholderOption(t *testing.T) {
	assert.True(t, isPlaceholderOption("選択してください"))
	assert.True(t, isPlaceholderOption("--- Please Select ---"))
	assert.True(t, isPlaceholderOption("  "))
	assert.False(t, isPlaceholderOption("東京都"))
}

func TestCodeForMapping(t *testing.T) {
	e := NewExecutor(config.DefaultWorkerConfig(), nil, nil, zap.NewNop())

	assert.Equal(t, classify.CodeSuccess, e.codeFor(&Result{Success: true}))
	assert.Equal(t, classify.CodeBotDetected, e.codeFor(&Result{BotDetected: true}))
	assert.Equal(t, classify.CodeValidationFormat, e.codeFor(&Result{
		Verdict: &judge.Verdict{FailurePhrases: []string{"email_format: メールアドレスの形式"}},
	}))
	assert.Equal(t, classify.CodeSystem, e.codeFor(&Result{
		Verdict: &judge.Verdict{FailurePhrases: []string{"system: 500 internal"}},
	}))
	assert.Equal(t, classify.CodeSubmissionError, e.codeFor(&Result{
		Verdict: &judge.Verdict{FailurePhrases: []string{"required_missing: 必須項目"}},
	}))
	assert.Equal(t, classify.CodeSubmissionError, e.codeFor(&Result{}))
}

func TestProhibitionPreGatesOnHighLevel(t *testing.T) {
	assert.False(t, prohibitionPre(nil))
	assert.False(t, prohibitionPre(&prohibition.Result{Detected: true, Level: prohibition.LevelMedium}))
	assert.False(t, prohibitionPre(&prohibition.Result{Detected: false, Level: prohibition.LevelHigh}))
	assert.True(t, prohibitionPre(&prohibition.Result{Detected: true, Level: prohibition.LevelHigh}))
}

type fakeLocator struct {
	findCalled  bool
	finalCalled bool
}

func (f *fakeLocator) Find(ctx context.Context, frame *rod.Page, analyzed []*analyzer.ElementInfo, scope string) (*Button, error) {
	f.findCalled = true
	return &Button{Kind: ButtonFinal, Selector: "#submit"}, nil
}

func (f *fakeLocator) FindFinal(ctx context.Context, frame *rod.Page) (*Button, error) {
	f.finalCalled = true
	return &Button{Kind: ButtonFinal, Selector: "#final"}, nil
}

func TestRelocateSubmitTracksFlowStage(t *testing.T) {
	analysis := &analyzer.Analysis{Structure: &analyzer.FormStructure{FormSelector: "#f"}}

	loc := &fakeLocator{}
	b, err := relocateSubmit(context.Background(), loc, nil, analysis, ButtonConfirmation)
	require.NoError(t, err)
	assert.True(t, loc.finalCalled, "confirmation flows retry on the post-navigation page")
	assert.Equal(t, "#final", b.Selector)

	loc = &fakeLocator{}
	b, err = relocateSubmit(context.Background(), loc, nil, analysis, ButtonFinal)
	require.NoError(t, err)
	assert.True(t, loc.findCalled, "single-step flows re-run the scoped search")
	assert.Equal(t, "#submit", b.Selector)
}

func TestIsPrivacyGroup(t *testing.T) {
	assert.True(t, isPrivacyGroup("privacy_policy"))
	assert.True(t, isPrivacyGroup("個人情報の取扱い"))
	assert.False(t, isPrivacyGroup("inquiry_type[]"))
}

func TestPickByPriority(t *testing.T) {
	members := []invalidField{
		{Selector: `input[name="topic_recruit"]`, Name: "topic_recruit"},
		{Selector: `input[name="topic_contact"]`, Name: "topic_contact"},
		{Selector: `input[name="topic_other"]`, Name: "topic_other"},
	}
	// "other" outranks the bare contains-"contact" fallback.
	assert.Equal(t, "topic_other", pickByPriority(members).Name)
}
