package analyzer

import (
	"strings"

	"go.uber.org/zap"

	"formrunner/internal/clientdata"
)

// agreeTokens mark consent checkboxes the handler checks automatically.
// Marketing opt-ins stay untouched.
var (
	agreeTokens = []string{
		"agree", "consent", "privacy", "policy", "同意", "プライバシー",
		"個人情報", "利用規約", "規約",
	}
	agreeNegativeTokens = []string{
		"newsletter", "magazine", "メルマガ", "配信", "案内を受け取る",
		"subscribe", "dm",
	}
)

// emailConfirmTokens identify confirmation inputs that copy the primary
// email value.
var emailConfirmTokens = []string{
	"confirm", "confirmation", "再入力", "確認", "retype", "re-enter",
}

// HandleUnmapped sweeps elements no mapping claimed and produces auto-handled
// assignments: consent checkboxes, email confirmation copies, required radio
// groups and required selects. Required email-confirm entries are promoted
// back into the mappings so validation sees them.
func HandleUnmapped(
	structure *FormStructure,
	mappings map[string]*FieldMapping,
	guard *DuplicateGuard,
	ctx *ContextIndex,
	log *zap.Logger,
) []InputAssignment {
	var out []InputAssignment
	seenRadioGroups := make(map[string]bool)

	for _, el := range structure.Elements {
		if !el.Visible || !el.Enabled {
			continue
		}
		if _, taken := guard.ElementTaken(el.Selector); taken {
			continue
		}
		switch el.Type {
		case "checkbox":
			if a, ok := agreementAssignment(el, ctx); ok {
				out = append(out, a)
			}
		case "radio":
			key := el.Name
			if key == "" {
				key = el.Selector
			}
			if seenRadioGroups[key] {
				continue
			}
			seenRadioGroups[key] = true
			if a, ok := radioAssignment(el, structure, mappings); ok {
				out = append(out, a)
			}
		case "select":
			if a, ok := selectAssignment(el, mappings); ok {
				out = append(out, a)
			}
		default:
			if a, ok := emailConfirmAssignment(el, mappings, guard, log); ok {
				out = append(out, a)
				continue
			}
			if a, ok := requiredTextAssignment(el); ok {
				out = append(out, a)
			}
		}
	}
	return out
}

func agreementAssignment(el *ElementInfo, ctx *ContextIndex) (InputAssignment, bool) {
	text := strings.ToLower(el.searchText() + " " + el.LabelText + " " +
		strings.Join(ctx.Texts(el.Selector), " "))
	hit := false
	for _, tok := range agreeTokens {
		if strings.Contains(text, strings.ToLower(tok)) {
			hit = true
			break
		}
	}
	if !hit {
		return InputAssignment{}, false
	}
	for _, tok := range agreeNegativeTokens {
		if strings.Contains(text, strings.ToLower(tok)) {
			return InputAssignment{}, false
		}
	}
	return InputAssignment{
		Field:     "auto_agree_checkbox_" + groupName(el),
		Selector:  el.Selector,
		InputType: "checkbox",
		Value:     "on",
		Required:  el.Required,
	}, true
}

// emailConfirmAssignment matches leftover text/email inputs that want the
// email repeated. The value is copied from the mapped email at input time.
func emailConfirmAssignment(
	el *ElementInfo,
	mappings map[string]*FieldMapping,
	guard *DuplicateGuard,
	log *zap.Logger,
) (InputAssignment, bool) {
	if el.Type != "text" && el.Type != "email" {
		return InputAssignment{}, false
	}
	primary, ok := mappings[clientdata.FieldEmail]
	if !ok {
		return InputAssignment{}, false
	}
	if _, confirmed := mappings[clientdata.FieldEmailConfirm]; confirmed {
		return InputAssignment{}, false
	}
	text := strings.ToLower(el.searchText() + " " + el.LabelText)
	if !strings.Contains(text, "mail") && !strings.Contains(text, "メール") {
		return InputAssignment{}, false
	}
	hit := false
	for _, tok := range emailConfirmTokens {
		if strings.Contains(text, strings.ToLower(tok)) {
			hit = true
			break
		}
	}
	if !hit {
		return InputAssignment{}, false
	}
	if !guard.Claim(clientdata.FieldEmailConfirm, el, 30) {
		return InputAssignment{}, false
	}
	a := InputAssignment{
		Field:      clientdata.FieldEmailConfirm,
		Selector:   el.Selector,
		InputType:  el.Type,
		Required:   el.Required,
		AutoAction: ActionCopyFrom,
		CopyFrom:   primary.Selector,
	}
	// Required confirmations join the mapping table so the validator
	// counts them.
	if el.Required {
		mappings[clientdata.FieldEmailConfirm] = &FieldMapping{
			Field:      clientdata.FieldEmailConfirm,
			Element:    el,
			Selector:   el.Selector,
			Score:      30,
			InputType:  el.Type,
			Required:   true,
			AutoAction: ActionCopyFrom,
			CopyFrom:   primary.Selector,
		}
		log.Debug("promoted email confirmation", zap.String("selector", el.Selector))
	}
	return a, true
}

// requiredTextAssignment gives leftover required text inputs a harmless
// filler so validation passes. The assigner blanks the value again when the
// input belongs to an unselected "other" radio.
func requiredTextAssignment(el *ElementInfo) (InputAssignment, bool) {
	if !el.Required {
		return InputAssignment{}, false
	}
	switch el.Type {
	case "text", "textarea":
	default:
		return InputAssignment{}, false
	}
	return InputAssignment{
		Field:      "auto_required_text_" + groupName(el),
		Selector:   el.Selector,
		InputType:  el.Type,
		Value:      "特になし",
		Required:   true,
		AutoAction: ActionDefault,
	}, true
}

// radioPreferredTokens order option labels for required radio groups, most
// wanted first. The last resort is the first option of the group.
var radioPreferredTokens = []string{
	"その他", "other", "上記以外", "お問い合わせ", "ご相談", "法人", "企業",
}

func radioAssignment(el *ElementInfo, structure *FormStructure, mappings map[string]*FieldMapping) (InputAssignment, bool) {
	if !el.Required && !groupRequired(el, structure) {
		return InputAssignment{}, false
	}
	if fieldOwnsRadio(el, mappings) {
		return InputAssignment{}, false
	}
	return InputAssignment{
		Field:      "auto_required_radio_" + groupName(el),
		Selector:   el.Selector,
		InputType:  "radio",
		Required:   true,
		AutoAction: ActionSelectAlgo,
	}, true
}

func selectAssignment(el *ElementInfo, mappings map[string]*FieldMapping) (InputAssignment, bool) {
	if !el.Required {
		return InputAssignment{}, false
	}
	for _, fm := range mappings {
		if fm.Selector == el.Selector {
			return InputAssignment{}, false
		}
	}
	return InputAssignment{
		Field:      "auto_required_select_" + groupName(el),
		Selector:   el.Selector,
		InputType:  "select",
		Required:   true,
		AutoAction: ActionSelectAlgo,
	}, true
}

func groupName(el *ElementInfo) string {
	if el.Name != "" {
		return el.Name
	}
	if el.ID != "" {
		return el.ID
	}
	return "anon"
}

// groupRequired reports whether any member of the element's radio group
// carries the required flag.
func groupRequired(el *ElementInfo, structure *FormStructure) bool {
	if el.Name == "" {
		return false
	}
	for _, other := range structure.Elements {
		if other.Type == "radio" && other.Name == el.Name && other.Required {
			return true
		}
	}
	return false
}

func fieldOwnsRadio(el *ElementInfo, mappings map[string]*FieldMapping) bool {
	for _, fm := range mappings {
		if fm.Element != nil && fm.Element.Type == "radio" &&
			fm.Element.Name != "" && fm.Element.Name == el.Name {
			return true
		}
	}
	return false
}

// PreferredRadioIndex implements the keyword-priority algorithm for a radio
// group's option labels. Index 0 is the fallback.
func PreferredRadioIndex(labels []string) int {
	for _, tok := range radioPreferredTokens {
		for i, l := range labels {
			if strings.Contains(strings.ToLower(l), strings.ToLower(tok)) {
				return i
			}
		}
	}
	return 0
}
