package clientdata

import (
	"testing"

	"formrunner/internal/config"
)

func sampleClient() config.Client {
	return config.Client{
		CompanyName:       "株式会社サンプル",
		LastName:          "山田",
		FirstName:         "太郎",
		LastNameKana:      "ヤマダ",
		FirstNameKana:     "タロウ",
		LastNameHiragana:  "やまだ",
		FirstNameHiragana: "たろう",
		Email1:            "a.b",
		Email2:            "example.com",
		Phone1:            "03",
		Phone2:            "1234",
		Phone3:            "5678",
		Postal1:           "123",
		Postal2:           "4567",
		Address1:          "東京都",
		Address2:          "千代田区",
		Address3:          "丸の内1-1",
		Address4:          "-1",
		Address5:          "サンプルビル3F",
	}
}

func TestCombinations(t *testing.T) {
	c := NewCombiner(sampleClient())

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"full name", c.FullName(), "山田　太郎"},
		{"full kana", c.FullKana(), "ヤマダ　タロウ"},
		{"full hiragana", c.FullHiragana(), "やまだ　たろう"},
		{"email from split", c.Email(), "a.b@example.com"},
		{"phone concat", c.Phone(), "0312345678"},
		{"phone hyphenated", c.PhoneHyphenated(), "03-1234-5678"},
		{"postal concat", c.Postal(), "1234567"},
		{"postal hyphenated", c.PostalHyphenated(), "123-4567"},
		{"address", c.Address(), "東京都千代田区丸の内1-1-1　サンプルビル3F"},
		{"address after prefecture", c.AddressAfterPrefecture(), "千代田区丸の内1-1-1　サンプルビル3F"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestUnifiedEmailWins(t *testing.T) {
	cl := sampleClient()
	cl.Email = "unified@example.org"
	if got := NewCombiner(cl).Email(); got != "unified@example.org" {
		t.Errorf("Email() = %q, want unified value", got)
	}
}

func TestAddressWithoutBuilding(t *testing.T) {
	cl := sampleClient()
	cl.Address5 = ""
	if got := NewCombiner(cl).Address(); got != "東京都千代田区丸の内1-1-1" {
		t.Errorf("Address() = %q", got)
	}
}

func TestValueFor(t *testing.T) {
	c := NewCombiner(sampleClient())
	tests := []struct {
		field, want string
	}{
		{FieldLastName, "山田"},
		{FieldFullName, "山田　太郎"},
		{FieldEmail, "a.b@example.com"},
		{FieldEmailConfirm, "a.b@example.com"},
		{FieldPhone, "0312345678"},
		{FieldPhone2, "1234"},
		{FieldPostal1, "123"},
		{FieldPrefecture, "東京都"},
		{"form_sender_name", "山田　太郎"}, // deprecated alias
		{"unknown_field", ""},
	}
	for _, tt := range tests {
		if got := c.ValueFor(tt.field); got != tt.want {
			t.Errorf("ValueFor(%q) = %q, want %q", tt.field, got, tt.want)
		}
	}
}

func TestFieldForLabel(t *testing.T) {
	tests := []struct {
		label string
		want  string
		ok    bool
	}{
		{"お名前", FieldFullName, true},
		{"お名前 必須", FieldFullName, true},
		{"※メールアドレス", FieldEmail, true},
		{"会社名：", FieldCompany, true},
		{"趣味", "", false},
	}
	for _, tt := range tests {
		got, ok := FieldForLabel(tt.label)
		if ok != tt.ok || got != tt.want {
			t.Errorf("FieldForLabel(%q) = %q,%v want %q,%v", tt.label, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDetectKanaScript(t *testing.T) {
	tests := []struct {
		name        string
		label, ph   string
		contexts    []string
		want        KanaScript
	}{
		{"explicit hiragana cue", "ふりがな", "", nil, KanaHiragana},
		{"explicit katakana cue", "フリガナ", "", nil, KanaKatakana},
		{"placeholder hiragana", "", "やまだ たろう（ふりがな）", nil, KanaHiragana},
		{"context katakana", "", "", []string{"カタカナでご入力ください"}, KanaKatakana},
		{"no cue", "お名前", "", nil, KanaUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectKanaScript(tt.label, tt.ph, tt.contexts); got != tt.want {
				t.Errorf("DetectKanaScript = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPriorityOrdering(t *testing.T) {
	if Priority(FieldEmail) <= Priority(FieldMessage) {
		t.Error("email must outrank message body")
	}
	if Priority(FieldMessage) <= Priority(FieldCompany) {
		t.Error("message body must outrank company name")
	}
	if Priority(FieldFullName) <= Priority(FieldLastName) {
		t.Error("unified name must outrank split names")
	}
	if Priority(FieldLastName) <= Priority(FieldPhone) {
		t.Error("split names must outrank phone")
	}
	if Priority("no_such_field") != 0 {
		t.Error("unknown fields sort last")
	}
}

func TestExpandTemplate(t *testing.T) {
	got := ExpandTemplate("{{company_name}}様\n{{full_name}}です。{{unknown}}", sampleClient(), "テスト商事")
	want := "テスト商事様\n山田　太郎です。{{unknown}}"
	if got != want {
		t.Errorf("ExpandTemplate = %q, want %q", got, want)
	}
}

func TestDetectMessageContext(t *testing.T) {
	tests := []struct {
		texts []string
		want  MessageContext
	}{
		{[]string{"お見積りのご依頼はこちら"}, ContextQuotation},
		{[]string{"修理のご相談"}, ContextRepair},
		{[]string{"ご来店のご予約"}, ContextAppointment},
		{[]string{"採用エントリー"}, ContextRecruit},
		{[]string{"お問い合わせ"}, ContextDefault},
	}
	for _, tt := range tests {
		if got := DetectMessageContext(tt.texts); got != tt.want {
			t.Errorf("DetectMessageContext(%v) = %v, want %v", tt.texts, got, tt.want)
		}
	}
}
