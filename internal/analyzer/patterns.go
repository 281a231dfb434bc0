package analyzer

import (
	"formrunner/internal/clientdata"
)

// FieldPattern is one row of the recognition catalog. The catalog is ordered
// and fully table-driven so the mapping rules stay auditable.
type FieldPattern struct {
	Field string

	// Tokens matched against name/id/class/placeholder (lowercased).
	Tokens []string
	// NegativeTokens disqualify an otherwise matching element.
	NegativeTokens []string
	// LabelTokens matched against label/associated/nearby text.
	LabelTokens []string
	// UnifiedTokens mark single inputs that carry the whole multipart value.
	UnifiedTokens []string
	// Types lists acceptable input types; empty means any text-likes.
	Types []string
	// MinScore is the per-field floor; candidates below it are dropped.
	MinScore int
	// Essential fields get a larger quick-rank K and drive required-field
	// fallbacks.
	Essential bool
}

// catalog is consulted in order; earlier entries claim elements first via
// the mapper's priority pass.
var catalog = []FieldPattern{
	{
		Field:       clientdata.FieldEmail,
		Tokens:      []string{"email", "e-mail", "mail", "メール"},
		NegativeTokens: []string{"confirm", "confirmation", "再入力", "確認", "magazine", "newsletter"},
		LabelTokens: []string{"メールアドレス", "メール", "email", "e-mail"},
		Types:       []string{"email", "text"},
		MinScore:    20,
		Essential:   true,
	},
	{
		Field:       clientdata.FieldEmailConfirm,
		Tokens:      []string{"email_confirm", "mail_confirm", "email2", "mail2", "confirm_email", "re_mail", "remail"},
		LabelTokens: []string{"メールアドレス確認", "確認のため", "再入力"},
		Types:       []string{"email", "text"},
		MinScore:    25,
	},
	{
		Field:       clientdata.FieldEmail1,
		Tokens:      []string{"mail_account", "email_local", "mail_1", "account"},
		LabelTokens: []string{"＠より前", "@より前", "アカウント"},
		Types:       []string{"text", "email"},
		MinScore:    25,
	},
	{
		Field:       clientdata.FieldEmail2,
		Tokens:      []string{"mail_domain", "email_domain", "mail_2", "domain"},
		LabelTokens: []string{"＠より後", "@より後", "ドメイン"},
		Types:       []string{"text", "email"},
		MinScore:    25,
	},
	{
		Field:       clientdata.FieldMessage,
		Tokens:      []string{"message", "inquiry", "contact", "content", "body", "comment", "お問い合わせ", "内容", "本文"},
		NegativeTokens: []string{"search", "keyword"},
		LabelTokens: []string{"お問い合わせ内容", "お問い合わせ本文", "ご相談内容", "ご用件", "メッセージ", "ご質問"},
		Types:       []string{"textarea"},
		MinScore:    15,
		Essential:   true,
	},
	{
		Field:       clientdata.FieldCompany,
		Tokens:      []string{"company", "corp", "organization", "office", "kaisha", "会社", "法人", "団体"},
		NegativeTokens: []string{"kana", "カナ", "furigana"},
		LabelTokens: []string{"会社名", "貴社名", "御社名", "法人名", "団体名", "企業名"},
		MinScore:    20,
	},
	{
		Field:       clientdata.FieldFullName,
		Tokens:      []string{"name", "fullname", "full_name", "your-name", "yourname", "氏名", "名前", "onamae"},
		NegativeTokens: []string{"company", "kana", "first", "last", "sei", "mei", "family", "given", "会社", "カナ", "フリガナ", "user", "login", "file", "building"},
		LabelTokens: []string{"お名前", "氏名", "ご氏名", "名前"},
		UnifiedTokens: []string{"fullname", "full_name", "full-name"},
		MinScore:    20,
		Essential:   true,
	},
	{
		Field:       clientdata.FieldLastName,
		Tokens:      []string{"last_name", "lastname", "last-name", "family_name", "familyname", "sei", "姓"},
		NegativeTokens: []string{"kana", "カナ", "セイ", "furigana", "hiragana"},
		LabelTokens: []string{"姓", "苗字", "お名前（姓）", "姓名（姓）"},
		MinScore:    20,
	},
	{
		Field:       clientdata.FieldFirstName,
		Tokens:      []string{"first_name", "firstname", "first-name", "given_name", "givenname", "mei", "名"},
		NegativeTokens: []string{"kana", "カナ", "メイ", "furigana", "hiragana", "company", "mail", "メール"},
		LabelTokens: []string{"名", "お名前（名）", "下の名前"},
		MinScore:    20,
	},
	{
		Field:       clientdata.FieldFullKana,
		Tokens:      []string{"kana", "furigana", "フリガナ", "カナ"},
		NegativeTokens: []string{"sei", "mei", "last", "first", "hiragana", "ひらがな", "company", "会社"},
		LabelTokens: []string{"フリガナ", "お名前（カナ）", "氏名（カナ）"},
		UnifiedTokens: []string{"kana_unified", "fullkana", "full_kana"},
		MinScore:    20,
	},
	{
		Field:       clientdata.FieldLastKana,
		Tokens:      []string{"sei_kana", "last_kana", "lastkana", "kana_sei", "セイ"},
		LabelTokens: []string{"セイ", "フリガナ（セイ）"},
		MinScore:    20,
	},
	{
		Field:       clientdata.FieldFirstKana,
		Tokens:      []string{"mei_kana", "first_kana", "firstkana", "kana_mei", "メイ"},
		LabelTokens: []string{"メイ", "フリガナ（メイ）"},
		MinScore:    20,
	},
	{
		Field:       clientdata.FieldFullHira,
		Tokens:      []string{"hiragana", "ひらがな", "ふりがな"},
		NegativeTokens: []string{"sei", "mei", "katakana", "カタカナ"},
		LabelTokens: []string{"ふりがな", "お名前（ひらがな）"},
		MinScore:    20,
	},
	{
		Field:       clientdata.FieldLastHira,
		Tokens:      []string{"sei_hira", "hira_sei", "せい"},
		LabelTokens: []string{"せい", "ふりがな（せい）"},
		MinScore:    20,
	},
	{
		Field:       clientdata.FieldFirstHira,
		Tokens:      []string{"mei_hira", "hira_mei", "めい"},
		LabelTokens: []string{"めい", "ふりがな（めい）"},
		MinScore:    20,
	},
	{
		Field:       clientdata.FieldPhone,
		Tokens:      []string{"tel", "phone", "telephone", "denwa", "電話", "mobile", "携帯"},
		NegativeTokens: []string{"fax", "ファックス", "tel1", "tel2", "tel3", "tel_1", "tel_2", "tel_3", "phone1", "phone2", "phone3"},
		LabelTokens: []string{"電話番号", "お電話番号", "tel", "電話"},
		UnifiedTokens: []string{"tel", "phone", "telephone"},
		Types:       []string{"tel", "text", "number"},
		MinScore:    20,
	},
	{
		Field:       clientdata.FieldPhone1,
		Tokens:      []string{"tel1", "tel_1", "tel-1", "phone1", "phone_1"},
		Types:       []string{"tel", "text", "number"},
		MinScore:    20,
	},
	{
		Field:       clientdata.FieldPhone2,
		Tokens:      []string{"tel2", "tel_2", "tel-2", "phone2", "phone_2"},
		Types:       []string{"tel", "text", "number"},
		MinScore:    20,
	},
	{
		Field:       clientdata.FieldPhone3,
		Tokens:      []string{"tel3", "tel_3", "tel-3", "phone3", "phone_3"},
		Types:       []string{"tel", "text", "number"},
		MinScore:    20,
	},
	{
		Field:       clientdata.FieldPostal,
		Tokens:      []string{"zip", "zipcode", "postal", "postcode", "yubin", "郵便番号", "〒"},
		NegativeTokens: []string{"zip1", "zip2", "zip_1", "zip_2", "postal1", "postal2", "yubin1", "yubin2"},
		LabelTokens: []string{"郵便番号", "〒"},
		UnifiedTokens: []string{"zip", "zipcode", "postal_code"},
		Types:       []string{"text", "tel", "number"},
		MinScore:    20,
	},
	{
		Field:    clientdata.FieldPostal1,
		Tokens:   []string{"zip1", "zip_1", "postal1", "postal_1", "yubin1"},
		Types:    []string{"text", "tel", "number"},
		MinScore: 20,
	},
	{
		Field:    clientdata.FieldPostal2,
		Tokens:   []string{"zip2", "zip_2", "postal2", "postal_2", "yubin2"},
		Types:    []string{"text", "tel", "number"},
		MinScore: 20,
	},
	{
		Field:       clientdata.FieldPrefecture,
		Tokens:      []string{"pref", "prefecture", "todofuken", "都道府県"},
		LabelTokens: []string{"都道府県"},
		MinScore:    20,
	},
	{
		Field:       clientdata.FieldCity,
		Tokens:      []string{"city", "shikuchoson", "市区町村"},
		LabelTokens: []string{"市区町村"},
		MinScore:    20,
	},
	{
		Field:       clientdata.FieldAddress,
		Tokens:      []string{"address", "addr", "jusho", "住所"},
		NegativeTokens: []string{"email", "mail", "メール"},
		LabelTokens: []string{"住所", "ご住所", "所在地"},
		UnifiedTokens: []string{"address", "addr"},
		MinScore:    20,
	},
	{
		Field:       clientdata.FieldBuilding,
		Tokens:      []string{"building", "biru", "建物", "マンション"},
		LabelTokens: []string{"建物名", "ビル名"},
		MinScore:    25,
	},
	{
		Field:       clientdata.FieldSubject,
		Tokens:      []string{"subject", "title", "件名", "題名"},
		NegativeTokens: []string{"position", "役職"},
		LabelTokens: []string{"件名", "題名", "タイトル"},
		MinScore:    20,
	},
	{
		Field:       clientdata.FieldDepartment,
		Tokens:      []string{"department", "busho", "部署"},
		LabelTokens: []string{"部署名", "部署"},
		MinScore:    25,
	},
	{
		Field:       clientdata.FieldPosition,
		Tokens:      []string{"position", "yakushoku", "役職"},
		LabelTokens: []string{"役職"},
		MinScore:    25,
	},
	{
		Field:       clientdata.FieldGender,
		Tokens:      []string{"gender", "sex", "性別"},
		LabelTokens: []string{"性別"},
		Types:       []string{"radio", "select"},
		MinScore:    25,
	},
	{
		Field:       clientdata.FieldURL,
		Tokens:      []string{"url", "website", "homepage", "ホームページ"},
		Types:       []string{"url", "text"},
		MinScore:    25,
	},
}

// patternIndex gives O(1) catalog lookup by canonical field.
var patternIndex = func() map[string]*FieldPattern {
	idx := make(map[string]*FieldPattern, len(catalog))
	for i := range catalog {
		idx[catalog[i].Field] = &catalog[i]
	}
	return idx
}()

// PatternFor returns the catalog row for a canonical field.
func PatternFor(field string) (*FieldPattern, bool) {
	p, ok := patternIndex[field]
	return p, ok
}

// Catalog returns the ordered pattern table.
func Catalog() []FieldPattern {
	return catalog
}

// quick-rank K values: how many top candidates per field survive scoring.
const (
	quickRankK          = 3
	quickRankKEssential = 6
)
