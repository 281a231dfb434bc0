// Package prohibition detects solicitation-refusal notices ("営業お断り")
// on contact pages before a submission is fired. Pages that decline sales
// contact must never receive one.
package prohibition

import (
	"regexp"
)

// targetTerms are the solicitation words a refusal notice talks about.
var targetTerms = []string{
	"営業", "勧誘", "セールス", "売り込み", "売込", "販売目的",
	"営業目的", "宣伝", "広告", "ダイレクトメール",
}

// declineTerms are the refusal forms those notices use.
var declineTerms = []string{
	"お断り", "おことわり", "御断り", "ご遠慮", "遠慮ください",
	"ご遠慮ください", "固くお断り", "堅くお断り", "お控え",
	"禁止", "しないでください", "はご遠慮",
}

// contactTerms tie the refusal to this form rather than some unrelated
// policy text.
var contactTerms = []string{
	"お問い合わせ", "お問合せ", "問い合わせ", "フォーム", "連絡",
	"メール", "ご連絡", "contact",
}

// exclusionTerms neutralize innocent uses of the target words. "営業時間"
// is opening hours, not a refusal.
var exclusionTerms = []string{
	"営業日", "営業時間", "営業所", "営業部", "営業課", "営業担当",
	"営業マン", "営業中", "営業停止", "営業再開", "営業利益",
	"営業拠点", "営業本部",
}

// softExclusionTerms mark policy boilerplate contexts where refusal words
// appear without meaning this form. They reduce the score, they do not
// disqualify.
var softExclusionTerms = []string{
	"個人情報", "プライバシー", "セキュリティ", "カスタマーサービス",
	"利用規約", "免責事項",
}

// strongPhrases hit the full refusal formula in one expression.
var strongPhrases = []string{
	"営業目的のお問い合わせはお断り",
	"営業・勧誘目的のお問い合わせ",
	"セールスお断り",
	"営業お断り",
	"営業電話はお断り",
	"営業電話お断り",
	"電話勧誘はお断り",
	"テレアポお断り",
	"勧誘はお断り",
	"営業メールはご遠慮",
	"営業のご連絡はご遠慮",
}

// combinedRes join a target term with a decline form within a short span,
// optionally through a contact term.
var combinedRes = []*regexp.Regexp{
	regexp.MustCompile(`(営業|勧誘|セールス|売り?込み?)[^。\n]{0,30}?(お断り|おことわり|ご遠慮|お控え|禁止)`),
	regexp.MustCompile(`(お断り|ご遠慮)[^。\n]{0,20}?(営業|勧誘|セールス)`),
	regexp.MustCompile(`(営業|勧誘)[^。\n]{0,20}?(お?問い?合わ?せ|フォーム|メール|ご連絡)[^。\n]{0,25}?(お断り|ご遠慮|お控え|禁止)`),
}

// semanticSelectors bound the fallback scan to elements where refusal
// notices actually live.
var semanticSelectors = []string{
	"footer", "nav", "aside",
	"h1", "h2", "h3", "h4",
	"li", "dt", "dd",
}

// semanticClassTokens match class or id fragments of notice containers.
var semanticClassTokens = []string{
	"footer", "contact", "policy", "notice", "alert", "caution",
	"attention", "form", "warning",
}
