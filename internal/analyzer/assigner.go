package analyzer

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"formrunner/internal/clientdata"
	"formrunner/internal/config"
)

// Assigner turns reconciled mappings into executable input assignments with
// concrete values synthesized from the tenant's client record.
type Assigner struct {
	tenant      *config.Tenant
	combiner    *clientdata.Combiner
	companyName string
	log         *zap.Logger
}

func NewAssigner(tenant *config.Tenant, companyName string, log *zap.Logger) *Assigner {
	return &Assigner{
		tenant:      tenant,
		combiner:    clientdata.NewCombiner(tenant.Client),
		companyName: companyName,
		log:         log,
	}
}

// Assign produces the full input plan: mapped fields first in input order,
// then the auto-handled extras. Fields the guard registered but excluded
// from filling are skipped here; their elements stay reserved.
func (a *Assigner) Assign(
	structure *FormStructure,
	mappings map[string]*FieldMapping,
	groups []*SplitGroup,
	auto []InputAssignment,
	guard *DuplicateGuard,
) []InputAssignment {
	combineFirst := make(map[string]bool) // selector of a combine-group leader
	combineSkip := make(map[string]bool)  // selectors of combine-group followers
	for _, g := range groups {
		if g.Strategy != StrategyCombine || len(g.Selectors) == 0 {
			continue
		}
		combineFirst[g.Selectors[0]] = true
		for _, sel := range g.Selectors[1:] {
			combineSkip[sel] = true
		}
	}

	ordered := make([]*FieldMapping, 0, len(mappings))
	for _, fm := range mappings {
		ordered = append(ordered, fm)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Element.InputIndex < ordered[j].Element.InputIndex
	})

	var out []InputAssignment
	for _, fm := range ordered {
		if guard.Excluded(fm.Field) {
			a.log.Debug("skipping excluded field", zap.String("field", fm.Field))
			continue
		}
		if combineSkip[fm.Selector] {
			continue
		}
		assignment := InputAssignment{
			Field:       fm.Field,
			Selector:    fm.Selector,
			InputType:   fm.InputType,
			Required:    fm.Required,
			AutoAction:  fm.AutoAction,
			CopyFrom:    fm.CopyFrom,
			SelectIndex: fm.SelectIndex,
		}
		switch {
		case fm.AutoAction == ActionCopyFrom:
			// value comes from the source element at input time
		case fm.InputType == "select":
			a.assignSelect(fm, &assignment)
		case combineFirst[fm.Selector]:
			assignment.Value = a.combinedValue(fm.Field)
		default:
			assignment.Value = a.valueFor(fm, structure)
		}
		out = append(out, assignment)
	}

	for _, extra := range auto {
		if strings.HasPrefix(extra.Field, "auto_required_text_") && a.nearOtherRadio(extra, structure) {
			extra.Value = ""
		}
		out = append(out, extra)
	}
	return out
}

// valueFor synthesizes the fill value for one mapped field.
func (a *Assigner) valueFor(fm *FieldMapping, structure *FormStructure) string {
	switch fm.Field {
	case clientdata.FieldMessage:
		return a.messageBody(structure)
	case clientdata.FieldSubject:
		return clientdata.ExpandTemplate(a.tenant.Targeting.Subject, a.tenant.Client, a.companyName)
	case clientdata.FieldPhone:
		if wantsHyphens(fm.Element) {
			return a.combiner.PhoneHyphenated()
		}
		return a.combiner.Phone()
	case clientdata.FieldPostal:
		if wantsHyphens(fm.Element) {
			return a.combiner.PostalHyphenated()
		}
		return a.combiner.Postal()
	case clientdata.FieldPrefecture:
		return a.tenant.Client.Address1
	case clientdata.FieldCity:
		return a.resolveAddressAux(fm, a.tenant.Client.Address2)
	case clientdata.FieldAddress:
		// A lone "住所" input after a mapped prefecture gets the remainder;
		// otherwise it carries the whole address.
		if a.prefectureMappedBefore(fm, structure) {
			return a.combiner.AddressAfterPrefecture()
		}
		return a.combiner.Address()
	case clientdata.FieldBuilding:
		return a.tenant.Client.Address5
	}
	return a.combiner.ValueFor(fm.Field)
}

// combinedValue returns the unified value for a combine-strategy group
// leader.
func (a *Assigner) combinedValue(field string) string {
	switch field {
	case clientdata.FieldPhone1:
		return a.combiner.Phone()
	case clientdata.FieldPostal1:
		return a.combiner.Postal()
	case clientdata.FieldLastName:
		return a.combiner.FullName()
	case clientdata.FieldLastKana:
		return a.combiner.FullKana()
	case clientdata.FieldLastHira:
		return a.combiner.FullHiragana()
	case clientdata.FieldEmail1:
		return a.combiner.Email()
	case clientdata.FieldPrefecture:
		return a.combiner.Address()
	}
	return a.combiner.ValueFor(field)
}

// messageBody picks the context-specific template when the tenant supplies a
// variant for the detected inquiry kind.
func (a *Assigner) messageBody(structure *FormStructure) string {
	tmpl := a.tenant.Targeting.Message
	ctx := clientdata.DetectMessageContext([]string{structure.PageText})
	if ctx != clientdata.ContextDefault {
		if variant, ok := a.tenant.Targeting.MessageVariants[string(ctx)]; ok && variant != "" {
			tmpl = variant
		}
	}
	return clientdata.ExpandTemplate(tmpl, a.tenant.Client, a.companyName)
}

// assignSelect fills select directives. Only gender and prefecture take a
// client value; every other select defers to the algorithm.
func (a *Assigner) assignSelect(fm *FieldMapping, out *InputAssignment) {
	switch fm.Field {
	case clientdata.FieldGender:
		out.Value = a.tenant.Client.Gender
		out.AutoAction = ActionSelectAlgo
	case clientdata.FieldPrefecture:
		out.Value = a.tenant.Client.Address1
		out.AutoAction = ActionSelectAlgo
	default:
		out.AutoAction = ActionSelectAlgo
	}
}

// resolveAddressAux decides whether an auxiliary address input wants the
// city part or the street detail, judged by its context tokens.
func (a *Assigner) resolveAddressAux(fm *FieldMapping, fallback string) string {
	text := strings.ToLower(memberText(fm))
	switch {
	case strings.Contains(text, "番地") || strings.Contains(text, "丁目") ||
		strings.Contains(text, "street"):
		return a.tenant.Client.Address3
	case strings.Contains(text, "市区") || strings.Contains(text, "city"):
		return a.tenant.Client.Address2
	}
	return fallback
}

func (a *Assigner) prefectureMappedBefore(fm *FieldMapping, structure *FormStructure) bool {
	for _, el := range structure.Elements {
		if el.InputIndex >= 0 && el.InputIndex < fm.Element.InputIndex {
			text := strings.ToLower(el.searchText() + " " + el.LabelText)
			if strings.Contains(text, "都道府県") || strings.Contains(text, "pref") {
				return true
			}
		}
	}
	return false
}

// wantsHyphens reports whether the element's placeholder demonstrates a
// hyphenated sample value.
func wantsHyphens(el *ElementInfo) bool {
	ph := el.Placeholder
	return strings.Contains(ph, "-") || strings.Contains(ph, "ー") ||
		strings.Contains(ph, "ハイフン")
}

// nearOtherRadio reports whether a filler text input sits next to an "other"
// radio option. Filling dummy text there would select a choice the sender
// never made.
func (a *Assigner) nearOtherRadio(assignment InputAssignment, structure *FormStructure) bool {
	var target *ElementInfo
	for _, el := range structure.Elements {
		if el.Selector == assignment.Selector {
			target = el
			break
		}
	}
	if target == nil {
		return false
	}
	for _, el := range structure.Elements {
		if el.Type != "radio" {
			continue
		}
		text := strings.ToLower(el.searchText() + " " + el.LabelText)
		if !strings.Contains(text, "その他") && !strings.Contains(text, "other") {
			continue
		}
		dy := target.Bounds.Y - el.Bounds.Y
		if dy < 0 {
			dy = -dy
		}
		if dy < 80 {
			return true
		}
	}
	return false
}
