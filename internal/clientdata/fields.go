// Package clientdata maps tenant client records onto canonical form fields:
// the canonical field vocabulary, the combination rules for unified fields,
// label lookup tables, and message template expansion.
package clientdata

// Canonical field names. These identifiers flow through the scorer, mapper,
// duplicate manager and value assigner unchanged; they follow the upstream
// vocabulary, which is Japanese.
const (
	FieldLastName     = "姓"
	FieldFirstName    = "名"
	FieldFullName     = "統合氏名"
	FieldLastKana     = "セイ"
	FieldFirstKana    = "メイ"
	FieldFullKana     = "統合氏名カナ"
	FieldLastHira     = "せい"
	FieldFirstHira    = "めい"
	FieldFullHira     = "統合氏名ひらがな"
	FieldCompany      = "会社名"
	FieldCompanyKana  = "会社名カナ"
	FieldEmail        = "メールアドレス"
	FieldEmailConfirm = "メールアドレス確認"
	FieldEmail1       = "メールアドレス1"
	FieldEmail2       = "メールアドレス2"
	FieldPhone        = "電話番号"
	FieldPhone1       = "電話番号1"
	FieldPhone2       = "電話番号2"
	FieldPhone3       = "電話番号3"
	FieldPostal       = "郵便番号"
	FieldPostal1      = "郵便番号1"
	FieldPostal2      = "郵便番号2"
	FieldAddress      = "住所"
	FieldPrefecture   = "都道府県"
	FieldCity         = "市区町村"
	FieldStreet       = "番地"
	FieldBuilding     = "建物名"
	FieldSubject      = "件名"
	FieldMessage      = "お問い合わせ本文"
	FieldDepartment   = "部署名"
	FieldPosition     = "役職"
	FieldGender       = "性別"
	FieldURL          = "URL"
)

// fieldPriority orders fields for duplicate resolution: when the same value
// lands on two canonical fields, the higher priority keeps it. Larger wins.
var fieldPriority = map[string]int{
	FieldEmail:        100,
	FieldEmailConfirm: 95,
	FieldMessage:      90,
	FieldCompany:      80,
	FieldFullName:     70,
	FieldLastName:     65,
	FieldFirstName:    64,
	FieldFullKana:     60,
	FieldLastKana:     55,
	FieldFirstKana:    54,
	FieldFullHira:     52,
	FieldLastHira:     51,
	FieldFirstHira:    50,
	FieldPhone:        45,
	FieldPhone1:       44,
	FieldPhone2:       43,
	FieldPhone3:       42,
	FieldSubject:      40,
	FieldPostal:       35,
	FieldPostal1:      34,
	FieldPostal2:      33,
	FieldAddress:      30,
	FieldPrefecture:   28,
	FieldCity:         27,
	FieldStreet:       26,
	FieldBuilding:     25,
	FieldDepartment:   20,
	FieldPosition:     19,
	FieldGender:       15,
	FieldURL:          10,
}

// Priority returns the duplicate-resolution priority of a canonical field.
// Unknown fields sort last.
func Priority(field string) int {
	return fieldPriority[field]
}

// deprecatedAliases renames legacy canonical identifiers still emitted by
// old tenant exports.
var deprecatedAliases = map[string]string{
	"form_sender_name":  FieldFullName,
	"form_sender_kana":  FieldFullKana,
	"form_sender_email": FieldEmail,
	"form_sender_tel":   FieldPhone,
}

// CanonicalName resolves deprecated aliases to the current canonical name.
func CanonicalName(field string) string {
	if current, ok := deprecatedAliases[field]; ok {
		return current
	}
	return field
}

// PhoneGroup and PostalGroup list the split members for group exclusivity
// checks in the duplicate manager.
var (
	PhoneSplitFields  = []string{FieldPhone1, FieldPhone2, FieldPhone3}
	PostalSplitFields = []string{FieldPostal1, FieldPostal2}
	NameSplitFields   = []string{FieldLastName, FieldFirstName}
)

// IsPhoneField reports membership in the phone group (unified or split).
func IsPhoneField(field string) bool {
	if field == FieldPhone {
		return true
	}
	for _, f := range PhoneSplitFields {
		if f == field {
			return true
		}
	}
	return false
}
