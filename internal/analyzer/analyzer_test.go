package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"formrunner/internal/clientdata"
	"formrunner/internal/config"
)

func testTenant() *config.Tenant {
	return &config.Tenant{
		TargetingID: 1,
		ClientID:    1,
		Client: config.Client{
			CompanyName: "テスト商事株式会社",
			LastName:    "山田",
			FirstName:   "太郎",
			Email:       "a.b@example.com",
			Phone1:      "03",
			Phone2:      "1234",
			Phone3:      "5678",
			Postal1:     "123",
			Postal2:     "4567",
			Address1:    "東京都",
			Address2:    "千代田区",
			Address3:    "1-2-3",
			Address5:    "テストビル",
			Gender:      "男性",
		},
		Targeting: config.Targeting{
			Subject:        "ご提案の件",
			Message:        "{{company_name}}ご担当者様\nお世話になっております。",
			SendDaysOfWeek: []int{1, 2, 3, 4, 5},
			SendStartTime:  "09:00",
			SendEndTime:    "18:00",
		},
	}
}

func textInput(selector, name, typ string, idx int) *ElementInfo {
	return &ElementInfo{
		Tag:        "input",
		Type:       typ,
		Name:       name,
		Selector:   selector,
		InputIndex: idx,
		Visible:    true,
		Enabled:    true,
	}
}

func contactStructure(elements []*ElementInfo) *FormStructure {
	var order []string
	for _, el := range elements {
		if el.InputIndex >= 0 {
			order = append(order, el.Selector)
		}
	}
	return &FormStructure{
		Found:              true,
		FormSelector:       "#contact",
		FormType:           FormContact,
		Elements:           elements,
		InputOrder:         order,
		HasRequiredMarkers: true,
	}
}

func TestChoosePrimaryForm(t *testing.T) {
	search := FormCandidate{
		Selector: "#search", Visible: true, TextCount: 1,
		AttrText: "search header-search", ButtonTexts: []string{"検索"},
	}
	contact := FormCandidate{
		Selector: "#contact", Visible: true,
		TextareaCount: 1, EmailCount: 1, TextCount: 3, RequiredCount: 2,
		AttrText: "contact-form", ButtonTexts: []string{"送信"},
	}
	got, ok := ChoosePrimaryForm([]FormCandidate{search, contact})
	require.True(t, ok)
	assert.Equal(t, "#contact", got.Selector)
}

func TestChoosePrimaryFormNoneUsable(t *testing.T) {
	search := FormCandidate{
		Selector: "#search", Visible: true, TextCount: 1,
		AttrText: "sitesearch", ButtonTexts: []string{"search"},
	}
	_, ok := ChoosePrimaryForm([]FormCandidate{search})
	assert.False(t, ok, "a search-only page must report no form, not fall back to page scanning")
}

func TestDuplicateGuardPriorityWins(t *testing.T) {
	guard := NewDuplicateGuard()
	el := textInput("#f", "field", "text", 0)

	require.True(t, guard.Claim(clientdata.FieldSubject, el, 40))
	// Email outranks subject and evicts it even with a lower score.
	require.True(t, guard.Claim(clientdata.FieldEmail, el, 30))

	assert.False(t, guard.Claimed(clientdata.FieldSubject))
	holder, taken := guard.ElementTaken("#f")
	require.True(t, taken)
	assert.Equal(t, clientdata.FieldEmail, holder)
}

func TestFamilyClaimedUnifiedVsSplit(t *testing.T) {
	guard := NewDuplicateGuard()
	require.True(t, guard.Claim(clientdata.FieldPhone1, textInput("#t1", "tel1", "tel", 0), 50))
	require.True(t, guard.Claim(clientdata.FieldPhone2, textInput("#t2", "tel2", "tel", 1), 50))

	assert.False(t, guard.FamilyClaimed(clientdata.FieldPhone3),
		"split siblings coexist")
	assert.True(t, guard.FamilyClaimed(clientdata.FieldPhone),
		"a claimed split part excludes the unified field")

	unified := NewDuplicateGuard()
	require.True(t, unified.Claim(clientdata.FieldPostal, textInput("#zip", "zip", "text", 0), 50))
	assert.True(t, unified.FamilyClaimed(clientdata.FieldPostal1))
	assert.False(t, unified.FamilyClaimed(clientdata.FieldEmail))
}

func TestValidateRejectsUnifiedPhoneBesideSplit(t *testing.T) {
	structure := contactStructure([]*ElementInfo{
		textInput("#email", "email", "email", 0),
		textInput("#tel1", "tel1", "tel", 1),
		textInput("#tel2", "tel2", "tel", 2),
		textInput("#tel3", "tel3", "tel", 3),
		textInput("#tel", "tel", "tel", 4),
		{
			Tag: "textarea", Type: "textarea", Name: "inquiry",
			Selector: "#msg", InputIndex: 5, Visible: true, Enabled: true,
		},
	})
	analysis := &Analysis{
		Structure: structure,
		Mappings: map[string]*FieldMapping{
			clientdata.FieldEmail:   {Field: clientdata.FieldEmail, Selector: "#email"},
			clientdata.FieldMessage: {Field: clientdata.FieldMessage, Selector: "#msg"},
		},
		Assignments: []InputAssignment{
			{Field: clientdata.FieldPhone1, Selector: "#tel1", Value: "03"},
			{Field: clientdata.FieldPhone2, Selector: "#tel2", Value: "1234"},
			{Field: clientdata.FieldPhone3, Selector: "#tel3", Value: "5678"},
			{Field: clientdata.FieldPhone, Selector: "#tel", Value: "0312345678"},
		},
	}
	warnings := Validate(analysis)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "phone-family")

	analysis.Assignments = analysis.Assignments[:3]
	assert.Empty(t, Validate(analysis),
		"split parts alone are not a family conflict")
}

func TestDuplicateGuardWhitespacePlaceholder(t *testing.T) {
	el := textInput("#w", "note", "text", 0)
	el.Placeholder = clientdata.IdeographicSpace + " "

	guard := NewDuplicateGuard()
	require.True(t, guard.Claim(clientdata.FieldSubject, el, 30))
	assert.True(t, guard.Excluded(clientdata.FieldSubject))
	_, taken := guard.ElementTaken("#w")
	assert.True(t, taken, "excluded elements stay reserved")
}

func splitPhoneMappings(indices [3]int) (map[string]*FieldMapping, []string) {
	fields := []string{clientdata.FieldPhone1, clientdata.FieldPhone2, clientdata.FieldPhone3}
	names := []string{"tel1", "tel2", "tel3"}
	mappings := make(map[string]*FieldMapping)
	order := make([]string, 8)
	for i := range order {
		order[i] = "#pad" + string(rune('a'+i))
	}
	for i, f := range fields {
		el := textInput("#"+names[i], names[i], "tel", indices[i])
		order[indices[i]] = el.Selector
		mappings[f] = &FieldMapping{Field: f, Element: el, Selector: el.Selector, Score: 50}
	}
	return mappings, order
}

func TestDetectSplitGroupsPhoneContiguous(t *testing.T) {
	mappings, order := splitPhoneMappings([3]int{2, 3, 4})
	groups := DetectSplitGroups(mappings, order)
	require.Len(t, groups, 1)

	g := groups[0]
	assert.Equal(t, SplitPhone, g.Kind)
	assert.Equal(t, "phone-3-split", g.Pattern)
	assert.True(t, g.OrderValidated)
	assert.GreaterOrEqual(t, g.Confidence, 0.45)
	assert.Equal(t, StrategySplit, g.Strategy)
	assert.Equal(t, []string{"#tel1", "#tel2", "#tel3"}, g.Selectors)
}

func TestDetectSplitGroupsRejectsGap(t *testing.T) {
	mappings, order := splitPhoneMappings([3]int{1, 3, 5})
	groups := DetectSplitGroups(mappings, order)
	assert.Empty(t, groups, "non-consecutive input indices must not form a group")
}

func TestDetectSplitGroupsRejectsWrongOrder(t *testing.T) {
	mappings, order := splitPhoneMappings([3]int{4, 3, 2})
	groups := DetectSplitGroups(mappings, order)
	assert.Empty(t, groups)
}

func TestResolveLoneMultipart(t *testing.T) {
	el := textInput("#tel", "tel1", "tel", 0)
	mappings := map[string]*FieldMapping{
		clientdata.FieldPhone1: {Field: clientdata.FieldPhone1, Element: el, Selector: "#tel"},
	}
	ResolveLoneMultipart(mappings, nil)

	assert.NotContains(t, mappings, clientdata.FieldPhone1)
	require.Contains(t, mappings, clientdata.FieldPhone)
	assert.Equal(t, clientdata.FieldPhone, mappings[clientdata.FieldPhone].Field)
}

func TestPlanRequiredPhoneSplit(t *testing.T) {
	elements := []*ElementInfo{
		textInput("#email", "email", "email", 0),
		textInput("#tel1", "tel1", "tel", 1),
		textInput("#tel2", "tel2", "tel", 2),
		textInput("#tel3", "tel3", "tel", 3),
		{
			Tag: "textarea", Type: "textarea", Name: "inquiry",
			Selector: "#msg", InputIndex: 4, Visible: true, Enabled: true,
		},
	}
	for _, el := range elements[1:4] {
		el.Required = true
	}
	structure := contactStructure(elements)

	a := New(testTenant(), zap.NewNop())
	mappings, groups, assignments := a.Plan(structure, "株式会社サンプル")

	require.Contains(t, mappings, clientdata.FieldPhone1)
	require.Contains(t, mappings, clientdata.FieldPhone2)
	require.Contains(t, mappings, clientdata.FieldPhone3)
	assert.NotContains(t, mappings, clientdata.FieldPhone,
		"unified phone must not coexist with a validated split")

	require.Len(t, groups, 1)
	assert.Equal(t, SplitPhone, groups[0].Kind)

	values := map[string]string{}
	for _, as := range assignments {
		values[as.Field] = as.Value
	}
	assert.Equal(t, "03", values[clientdata.FieldPhone1])
	assert.Equal(t, "1234", values[clientdata.FieldPhone2])
	assert.Equal(t, "5678", values[clientdata.FieldPhone3])
	assert.Equal(t, "a.b@example.com", values[clientdata.FieldEmail])
}

func TestPlanMessageTemplateExpansion(t *testing.T) {
	elements := []*ElementInfo{
		textInput("#email", "email", "email", 0),
		{
			Tag: "textarea", Type: "textarea", Name: "inquiry",
			Selector: "#msg", InputIndex: 1, Visible: true, Enabled: true,
		},
	}
	structure := contactStructure(elements)

	a := New(testTenant(), zap.NewNop())
	_, _, assignments := a.Plan(structure, "株式会社サンプル")

	var body string
	for _, as := range assignments {
		if as.Field == clientdata.FieldMessage {
			body = as.Value
		}
	}
	assert.Contains(t, body, "株式会社サンプルご担当者様")
}

func TestMapperDropsUnifiedNameWhenSplitPresent(t *testing.T) {
	last := textInput("#sei", "sei", "text", 0)
	last.LabelText = "姓"
	first := textInput("#mei", "mei", "text", 1)
	first.LabelText = "名"
	unified := textInput("#name", "your-name", "text", 2)
	unified.LabelText = "お名前"

	structure := contactStructure([]*ElementInfo{last, first, unified})
	a := New(testTenant(), zap.NewNop())
	mappings, _, _ := a.Plan(structure, "c")

	assert.Contains(t, mappings, clientdata.FieldLastName)
	assert.Contains(t, mappings, clientdata.FieldFirstName)
	assert.NotContains(t, mappings, clientdata.FieldFullName)
}

func TestPromoteZipPairRequiresRequiredFlag(t *testing.T) {
	build := func(required bool) *FormStructure {
		z1 := textInput("#z1", "zip_a", "text", 0)
		z1.LabelText = "郵便番号"
		z1.Required = required
		z2 := textInput("#z2", "zip_b", "text", 1)
		return contactStructure([]*ElementInfo{z1, z2})
	}

	a := New(testTenant(), zap.NewNop())

	mappings, _, _ := a.Plan(build(true), "c")
	assert.Contains(t, mappings, clientdata.FieldPostal1)
	assert.Contains(t, mappings, clientdata.FieldPostal2)

	mappings, _, _ = a.Plan(build(false), "c")
	assert.NotContains(t, mappings, clientdata.FieldPostal1)
}

func TestHandleUnmappedAgreementCheckbox(t *testing.T) {
	agree := textInput("#agree", "privacy_agree", "checkbox", 0)
	agree.LabelText = "プライバシーポリシーに同意する"
	optIn := textInput("#news", "newsletter", "checkbox", 1)
	optIn.LabelText = "メルマガ配信を希望する"

	structure := contactStructure([]*ElementInfo{agree, optIn})
	guard := NewDuplicateGuard()
	ctx := BuildContextIndex(structure.Elements)

	auto := HandleUnmapped(structure, map[string]*FieldMapping{}, guard, ctx, zap.NewNop())
	require.Len(t, auto, 1)
	assert.Equal(t, "#agree", auto[0].Selector)
	assert.Equal(t, "checkbox", auto[0].InputType)
}

func TestHandleUnmappedEmailConfirmCopiesPrimary(t *testing.T) {
	primary := textInput("#email", "email", "email", 0)
	confirm := textInput("#email2", "mail_kakunin", "email", 1)
	confirm.LabelText = "メールアドレス（確認）"
	confirm.Required = true

	structure := contactStructure([]*ElementInfo{primary, confirm})
	guard := NewDuplicateGuard()
	require.True(t, guard.Claim(clientdata.FieldEmail, primary, 50))
	mappings := map[string]*FieldMapping{
		clientdata.FieldEmail: {Field: clientdata.FieldEmail, Element: primary, Selector: "#email", Score: 50},
	}
	ctx := BuildContextIndex(structure.Elements)

	auto := HandleUnmapped(structure, mappings, guard, ctx, zap.NewNop())
	require.Len(t, auto, 1)
	assert.Equal(t, ActionCopyFrom, auto[0].AutoAction)
	assert.Equal(t, "#email", auto[0].CopyFrom)
	assert.Contains(t, mappings, clientdata.FieldEmailConfirm,
		"required confirmations join the mapping table")
}

func TestScorerLabelTableFastPath(t *testing.T) {
	el := textInput("#f7", "field_7", "text", 0)
	el.LabelText = "お名前※必須"

	scorer := NewScorer(BuildContextIndex([]*ElementInfo{el}))

	var pat *FieldPattern
	for i := range catalog {
		if catalog[i].Field == clientdata.FieldFullName {
			pat = &catalog[i]
			break
		}
	}
	require.NotNil(t, pat)

	c := scorer.ScoreElement(pat, el)
	assert.Equal(t, weightLabelExact, c.Details["label_exact"],
		"a literal label must resolve without token evidence")
	assert.GreaterOrEqual(t, c.Score, pat.MinScore)
}

func TestValidateMissingMessageBody(t *testing.T) {
	structure := contactStructure([]*ElementInfo{
		textInput("#email", "email", "email", 0),
	})
	analysis := &Analysis{
		Structure: structure,
		Mappings: map[string]*FieldMapping{
			clientdata.FieldEmail: {Field: clientdata.FieldEmail, Selector: "#email"},
		},
	}
	warnings := Validate(analysis)
	require.NotEmpty(t, warnings)
	assert.True(t, MissingEssential(warnings))
}

func TestAssignerHyphenatedPhoneFromPlaceholder(t *testing.T) {
	el := textInput("#tel", "tel", "tel", 0)
	el.Placeholder = "03-1234-5678"
	structure := contactStructure([]*ElementInfo{el})
	mappings := map[string]*FieldMapping{
		clientdata.FieldPhone: {
			Field: clientdata.FieldPhone, Element: el, Selector: "#tel", InputType: "tel",
		},
	}

	assigner := NewAssigner(testTenant(), "c", zap.NewNop())
	out := assigner.Assign(structure, mappings, nil, nil, NewDuplicateGuard())
	require.Len(t, out, 1)
	assert.Equal(t, "03-1234-5678", out[0].Value)
}

func TestAssignerBlanksFillerNearOtherRadio(t *testing.T) {
	radio := textInput("#r", "kind", "radio", 0)
	radio.LabelText = "その他"
	radio.Bounds = Bounds{Y: 100}
	filler := textInput("#free", "kind_detail", "text", 1)
	filler.Required = true
	filler.Bounds = Bounds{Y: 130}

	structure := contactStructure([]*ElementInfo{radio, filler})
	auto := []InputAssignment{{
		Field: "auto_required_text_kind_detail", Selector: "#free",
		InputType: "text", Value: "特になし", Required: true, AutoAction: ActionDefault,
	}}

	assigner := NewAssigner(testTenant(), "c", zap.NewNop())
	out := assigner.Assign(structure, map[string]*FieldMapping{}, nil, auto, NewDuplicateGuard())
	require.Len(t, out, 1)
	assert.Empty(t, out[0].Value)
}

func TestFormTypeShortCircuitsMessageRequirement(t *testing.T) {
	structure := contactStructure([]*ElementInfo{
		textInput("#email", "email", "email", 0),
	})
	structure.FormType = FormNewsletter

	analysis := &Analysis{
		Structure: structure,
		Mappings: map[string]*FieldMapping{
			clientdata.FieldEmail: {Field: clientdata.FieldEmail, Selector: "#email"},
		},
	}
	warnings := Validate(analysis)
	assert.False(t, MissingEssential(warnings))
}
