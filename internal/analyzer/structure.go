package analyzer

import (
	"sort"
	"strings"
)

// FormCandidate is the collected summary of one <form> on the page.
type FormCandidate struct {
	Selector       string
	Visible        bool
	TextareaCount  int
	EmailCount     int
	TextCount      int
	SelectCount    int
	RequiredCount  int
	ButtonTexts    []string
	AttrText       string // action + id + class + name, lowercased by caller
	InIframe       bool
	IframeSelector string
}

// Negative tokens that mark a form as search/unsubscribe/login rather than
// a contact surface.
var formNegativeTokens = []string{
	"search", "検索", "unsubscribe", "配信停止", "解除", "cancel", "キャンセル",
	"login", "signin", "sign-in", "ログイン",
}

var formPositiveTokens = []string{
	"contact", "inquiry", "inquery", "お問い合わせ", "お問合せ", "toiawase", "form",
}

// scoreFormCandidate weighs one form. Invisible forms are heavily penalized
// rather than excluded: some sites reveal the form after a consent banner.
func scoreFormCandidate(f FormCandidate) int {
	score := 0
	score += f.TextareaCount * 30
	score += f.EmailCount * 25
	score += f.TextCount * 8
	score += f.SelectCount * 5
	score += f.RequiredCount * 6

	attr := strings.ToLower(f.AttrText)
	for _, tok := range formPositiveTokens {
		if strings.Contains(attr, tok) {
			score += 20
		}
	}
	for _, tok := range formNegativeTokens {
		if strings.Contains(attr, tok) {
			score -= 60
		}
	}
	for _, bt := range f.ButtonTexts {
		lower := strings.ToLower(bt)
		for _, tok := range []string{"送信", "submit", "送る", "確認", "send"} {
			if strings.Contains(lower, tok) {
				score += 15
				break
			}
		}
		for _, tok := range formNegativeTokens {
			if strings.Contains(lower, tok) {
				score -= 40
			}
		}
	}
	if !f.Visible {
		score -= 100
	}
	return score
}

// ChoosePrimaryForm picks the highest scoring form above zero. When nothing
// qualifies the page has no usable form; the pipeline must not fall back to
// scanning the whole page.
func ChoosePrimaryForm(forms []FormCandidate) (FormCandidate, bool) {
	best := FormCandidate{}
	bestScore := 0
	found := false
	for _, f := range forms {
		s := scoreFormCandidate(f)
		if !found || s > bestScore {
			best, bestScore, found = f, s, true
		}
	}
	if !found || bestScore <= 0 {
		return FormCandidate{}, false
	}
	return best, true
}

// form type classification ---------------------------------------------------

type formTypeSignal struct {
	t      FormType
	tokens []string
	weight int
}

var formTypeSignals = []formTypeSignal{
	{FormSearch, []string{"search", "検索", "keyword", "キーワード"}, 30},
	{FormNewsletter, []string{"newsletter", "メルマガ", "購読", "subscribe"}, 30},
	{FormOrder, []string{"order", "注文", "購入", "cart", "カート", "決済"}, 25},
	{FormAuth, []string{"login", "password", "パスワード", "ログイン", "会員登録", "signup"}, 30},
	{FormFeedback, []string{"feedback", "フィードバック", "アンケート", "survey"}, 20},
	{FormContact, []string{"contact", "inquiry", "お問い合わせ", "お問合せ", "ご相談", "資料請求"}, 25},
}

// ClassifyFormType scores the form's own text plus element mix. A textarea
// plus email input biases strongly toward contact.
func ClassifyFormType(f FormCandidate, formText string) FormType {
	scores := map[FormType]int{}
	joined := strings.ToLower(f.AttrText + " " + formText + " " + strings.Join(f.ButtonTexts, " "))
	for _, sig := range formTypeSignals {
		for _, tok := range sig.tokens {
			if strings.Contains(joined, tok) {
				scores[sig.t] += sig.weight
			}
		}
	}
	if f.TextareaCount > 0 {
		scores[FormContact] += 25
		scores[FormSearch] -= 20
	}
	if f.EmailCount > 0 {
		scores[FormContact] += 10
		scores[FormNewsletter] += 5
	}
	if f.TextCount <= 1 && f.TextareaCount == 0 {
		scores[FormSearch] += 15
	}

	best, bestScore := FormOther, 0
	for _, t := range []FormType{FormContact, FormSearch, FormNewsletter, FormOrder, FormFeedback, FormAuth} {
		if scores[t] > bestScore {
			best, bestScore = t, scores[t]
		}
	}
	if bestScore < 20 {
		return FormOther
	}
	return best
}

// parallel group detection ---------------------------------------------------

// structuralKey captures the shape used to detect parallel element groups.
func structuralKey(el *ElementInfo) string {
	return el.Tag + "|" + el.Type + "|" + el.ParentTag + "|" + strings.Join(el.SiblingTags, ",")
}

// DetectParallelGroups finds runs of structurally similar inputs; the split
// detector treats them as candidate member sets.
func DetectParallelGroups(elements []*ElementInfo) [][]string {
	byKey := map[string][]string{}
	for _, el := range elements {
		if el.InputIndex < 0 {
			continue
		}
		byKey[structuralKey(el)] = append(byKey[structuralKey(el)], el.Selector)
	}
	var groups [][]string
	for _, sels := range byKey {
		if len(sels) >= 2 {
			groups = append(groups, sels)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	return groups
}

// DetectTableKind classifies table usage from the ratio of form elements to
// table cells inside the chosen form.
func DetectTableKind(tableCount, cellCount, formElemInCells int) TableKind {
	if tableCount == 0 || cellCount == 0 {
		return TableNone
	}
	ratio := float64(formElemInCells) / float64(cellCount)
	switch {
	case ratio >= 0.3:
		return TableForm
	case ratio > 0:
		return TableLayout
	default:
		return TableData
	}
}
