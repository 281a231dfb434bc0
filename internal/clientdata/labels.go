package clientdata

import "strings"

// labelToField maps literal Japanese form labels to canonical fields. The
// scorer consults this before falling back to token scoring.
var labelToField = map[string]string{
	"お名前":      FieldFullName,
	"氏名":       FieldFullName,
	"名前":       FieldFullName,
	"姓":        FieldLastName,
	"名":        FieldFirstName,
	"フリガナ":     FieldFullKana,
	"ふりがな":     FieldFullHira,
	"セイ":       FieldLastKana,
	"メイ":       FieldFirstKana,
	"せい":       FieldLastHira,
	"めい":       FieldFirstHira,
	"会社名":      FieldCompany,
	"貴社名":      FieldCompany,
	"御社名":      FieldCompany,
	"法人名":      FieldCompany,
	"メールアドレス":  FieldEmail,
	"メール":      FieldEmail,
	"Eメール":     FieldEmail,
	"電話番号":     FieldPhone,
	"お電話番号":    FieldPhone,
	"TEL":      FieldPhone,
	"郵便番号":     FieldPostal,
	"住所":       FieldAddress,
	"ご住所":      FieldAddress,
	"都道府県":     FieldPrefecture,
	"市区町村":     FieldCity,
	"件名":       FieldSubject,
	"題名":       FieldSubject,
	"お問い合わせ内容": FieldMessage,
	"お問い合わせ本文": FieldMessage,
	"ご相談内容":    FieldMessage,
	"ご用件":      FieldMessage,
	"メッセージ":    FieldMessage,
	"部署名":      FieldDepartment,
	"役職":       FieldPosition,
	"性別":       FieldGender,
}

// FieldForLabel resolves an exact Japanese label (whitespace and required
// markers trimmed) to a canonical field name.
func FieldForLabel(label string) (string, bool) {
	cleaned := strings.TrimSpace(label)
	for _, marker := range []string{"必須", "※", "*", "：", ":"} {
		cleaned = strings.ReplaceAll(cleaned, marker, "")
	}
	cleaned = strings.TrimSpace(cleaned)
	f, ok := labelToField[cleaned]
	return f, ok
}

// KanaScript classifies which kana script a unified kana input expects.
type KanaScript int

const (
	KanaUnknown KanaScript = iota
	KanaKatakana
	KanaHiragana
)

var (
	katakanaCues = []string{"カタカナ", "フリガナ", "セイ", "メイ", "katakana"}
	hiraganaCues = []string{"ひらがな", "ふりがな", "せい", "めい", "hiragana"}
)

// DetectKanaScript decides katakana vs hiragana for a unified kana field
// from its label, placeholder and nearby context. Explicit script names win;
// otherwise the script of the cue text itself decides.
func DetectKanaScript(label, placeholder string, contexts []string) KanaScript {
	texts := append([]string{label, placeholder}, contexts...)
	for _, t := range texts {
		lower := strings.ToLower(t)
		for _, cue := range hiraganaCues {
			if strings.Contains(lower, strings.ToLower(cue)) && containsHiragana(cue) {
				return KanaHiragana
			}
		}
	}
	for _, t := range texts {
		lower := strings.ToLower(t)
		for _, cue := range katakanaCues {
			if strings.Contains(lower, strings.ToLower(cue)) {
				return KanaKatakana
			}
		}
	}
	for _, t := range texts {
		if containsHiragana(t) && strings.Contains(t, "がな") {
			return KanaHiragana
		}
	}
	return KanaUnknown
}

func containsHiragana(s string) bool {
	for _, r := range s {
		if r >= 0x3041 && r <= 0x3096 {
			return true
		}
	}
	return false
}

// ContainsKatakana reports whether s carries any katakana rune.
func ContainsKatakana(s string) bool {
	for _, r := range s {
		if r >= 0x30A1 && r <= 0x30FA {
			return true
		}
	}
	return false
}
