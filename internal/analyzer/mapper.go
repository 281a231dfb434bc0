package analyzer

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"formrunner/internal/clientdata"
)

// Mapper assigns canonical fields to elements using the scored catalog and
// the duplicate guard, then runs the reconciliation passes.
type Mapper struct {
	scorer *Scorer
	guard  *DuplicateGuard
	log    *zap.Logger
}

func NewMapper(scorer *Scorer, guard *DuplicateGuard, log *zap.Logger) *Mapper {
	return &Mapper{scorer: scorer, guard: guard, log: log}
}

// Map runs the full mapping pass over the form's elements and returns the
// reconciled field mappings plus validated split groups.
func (m *Mapper) Map(structure *FormStructure) (map[string]*FieldMapping, []*SplitGroup) {
	mappings := make(map[string]*FieldMapping)

	// Catalog order is the claim order: earlier entries take contested
	// elements first, the guard settles the rest by priority.
	cat := Catalog()
	for i := range cat {
		p := &cat[i]
		cands := m.scorer.RankCandidates(p, structure.Elements)
		for _, c := range cands {
			if m.guard.Claimed(p.Field) {
				break
			}
			if _, taken := m.guard.ElementTaken(c.Element.Selector); taken {
				continue
			}
			if !m.guard.Claim(p.Field, c.Element, c.Score) {
				continue
			}
			mappings[p.Field] = &FieldMapping{
				Field:     p.Field,
				Element:   c.Element,
				Selector:  c.Element.Selector,
				Score:     c.Score,
				Details:   c.Details,
				Contexts:  m.scorer.ctx.Texts(c.Element.Selector),
				InputType: c.Element.Type,
				Required:  c.Element.Required,
			}
			break
		}
	}

	m.reconcileUnifiedVsSplit(mappings)
	m.pruneSuspectNames(mappings)
	m.correctSwappedNames(mappings)
	m.normalizeKana(mappings)
	m.promoteZipPair(mappings, structure)

	groups := DetectSplitGroups(mappings, structure.InputOrder)
	m.dropInvalidSplits(mappings, groups)
	ResolveLoneMultipart(mappings, groups)

	return mappings, groups
}

// reconcileUnifiedVsSplit drops the losing side when both a unified field and
// its split parts mapped. Split evidence wins when both parts are present;
// a lone part loses to the unified mapping.
func (m *Mapper) reconcileUnifiedVsSplit(mappings map[string]*FieldMapping) {
	families := []struct {
		unified string
		parts   []string
	}{
		{clientdata.FieldFullName, []string{clientdata.FieldLastName, clientdata.FieldFirstName}},
		{clientdata.FieldFullKana, []string{clientdata.FieldLastKana, clientdata.FieldFirstKana}},
		{clientdata.FieldFullHira, []string{clientdata.FieldLastHira, clientdata.FieldFirstHira}},
		{clientdata.FieldPhone, clientdata.PhoneSplitFields},
		{clientdata.FieldPostal, clientdata.PostalSplitFields},
	}
	for _, fam := range families {
		_, hasUnified := mappings[fam.unified]
		if !hasUnified {
			continue
		}
		present := 0
		for _, p := range fam.parts {
			if _, ok := mappings[p]; ok {
				present++
			}
		}
		switch {
		case present >= 2:
			m.drop(mappings, fam.unified, "split parts present")
		case present == 1:
			for _, p := range fam.parts {
				m.drop(mappings, p, "unified field present")
			}
		}
	}
}

// suspectNameTokens flag name mappings that actually belong to another
// concern. A "name" input sitting under a building-name label is not a
// person name.
var suspectNameTokens = []string{
	"住所", "address", "建物", "building", "マンション",
	"郵便", "zip", "post", "部署", "department", "会社", "company",
}

func (m *Mapper) pruneSuspectNames(mappings map[string]*FieldMapping) {
	nameFields := []string{
		clientdata.FieldFullName, clientdata.FieldLastName, clientdata.FieldFirstName,
	}
	for _, f := range nameFields {
		fm, ok := mappings[f]
		if !ok {
			continue
		}
		text := strings.ToLower(memberText(fm))
		for _, tok := range suspectNameTokens {
			if strings.Contains(text, strings.ToLower(tok)) {
				m.drop(mappings, f, "suspect name context: "+tok)
				break
			}
		}
	}
}

// correctSwappedNames swaps last/first mappings when attributes or
// placeholders point the other way. Forms occasionally label the first slot
// "名" while naming it "sei" or vice versa; placeholder text is the stronger
// witness.
func (m *Mapper) correctSwappedNames(mappings map[string]*FieldMapping) {
	pairs := [][2]string{
		{clientdata.FieldLastName, clientdata.FieldFirstName},
		{clientdata.FieldLastKana, clientdata.FieldFirstKana},
		{clientdata.FieldLastHira, clientdata.FieldFirstHira},
	}
	for _, pair := range pairs {
		last, okL := mappings[pair[0]]
		first, okF := mappings[pair[1]]
		if !okL || !okF {
			continue
		}
		if indicatesFirst(last.Element) && indicatesLast(first.Element) {
			last.Field, first.Field = pair[1], pair[0]
			mappings[pair[0]], mappings[pair[1]] = first, last
			m.log.Debug("swapped name pair",
				zap.String("last_selector", mappings[pair[0]].Selector),
				zap.String("first_selector", mappings[pair[1]].Selector))
		}
	}
}

var (
	firstNameCues = []string{"first", "given", "mei", "名前（名）", "名）"}
	lastNameCues  = []string{"last", "family", "sei", "surname", "名前（姓）", "姓）"}
)

func indicatesFirst(el *ElementInfo) bool { return hasAnyCue(el, firstNameCues, lastNameCues) }
func indicatesLast(el *ElementInfo) bool  { return hasAnyCue(el, lastNameCues, firstNameCues) }

func hasAnyCue(el *ElementInfo, cues, counterCues []string) bool {
	text := strings.ToLower(el.searchText() + " " + el.Placeholder)
	hit := false
	for _, c := range cues {
		if strings.Contains(text, strings.ToLower(c)) {
			hit = true
			break
		}
	}
	if !hit {
		return false
	}
	for _, c := range counterCues {
		if strings.Contains(text, strings.ToLower(c)) {
			return false
		}
	}
	return true
}

// normalizeKana moves katakana mappings onto hiragana fields (and back) when
// the element's own text names the other script.
func (m *Mapper) normalizeKana(mappings map[string]*FieldMapping) {
	swaps := [][2]string{
		{clientdata.FieldFullKana, clientdata.FieldFullHira},
		{clientdata.FieldLastKana, clientdata.FieldLastHira},
		{clientdata.FieldFirstKana, clientdata.FieldFirstHira},
	}
	for _, sw := range swaps {
		kana, hira := sw[0], sw[1]
		if fm, ok := mappings[kana]; ok {
			if _, taken := mappings[hira]; !taken && scriptOf(fm) == clientdata.KanaHiragana {
				m.move(mappings, kana, hira)
			}
		}
		if fm, ok := mappings[hira]; ok {
			if _, taken := mappings[kana]; !taken && scriptOf(fm) == clientdata.KanaKatakana {
				m.move(mappings, hira, kana)
			}
		}
	}
}

func scriptOf(fm *FieldMapping) clientdata.KanaScript {
	e := fm.Element
	return clientdata.DetectKanaScript(e.LabelText, e.Placeholder, e.NearbyText)
}

// promoteZipPair upgrades two near-consecutive zip-like text inputs to the
// split postal pair, but only when at least one is marked required.
func (m *Mapper) promoteZipPair(mappings map[string]*FieldMapping, structure *FormStructure) {
	if _, ok := mappings[clientdata.FieldPostal1]; ok {
		return
	}
	var zips []*ElementInfo
	for _, el := range structure.Elements {
		if el.InputIndex < 0 || !el.Visible || !el.Enabled {
			continue
		}
		if el.Type != "text" && el.Type != "tel" && el.Type != "number" {
			continue
		}
		text := strings.ToLower(el.searchText() + " " + el.LabelText)
		if strings.Contains(text, "zip") || strings.Contains(text, "郵便") ||
			strings.Contains(text, "〒") || strings.Contains(text, "postal") {
			zips = append(zips, el)
		}
	}
	if len(zips) != 2 {
		return
	}
	sort.Slice(zips, func(i, j int) bool { return zips[i].InputIndex < zips[j].InputIndex })
	if zips[1].InputIndex-zips[0].InputIndex > 2 {
		return
	}
	if !zips[0].Required && !zips[1].Required {
		return
	}
	// A unified postal mapping sitting on either part converts to the pair.
	if unified, ok := mappings[clientdata.FieldPostal]; ok {
		if unified.Selector != zips[0].Selector && unified.Selector != zips[1].Selector {
			return
		}
		m.drop(mappings, clientdata.FieldPostal, "converted to split postal pair")
	}
	fields := []string{clientdata.FieldPostal1, clientdata.FieldPostal2}
	for i, el := range zips {
		if _, taken := m.guard.ElementTaken(el.Selector); taken {
			return
		}
		if !m.guard.Claim(fields[i], el, 30) {
			return
		}
		mappings[fields[i]] = &FieldMapping{
			Field:     fields[i],
			Element:   el,
			Selector:  el.Selector,
			Score:     30,
			InputType: el.Type,
			Required:  el.Required,
		}
	}
	m.log.Debug("promoted zip pair to split postal",
		zap.String("first", zips[0].Selector), zap.String("second", zips[1].Selector))
}

// dropInvalidSplits removes partial split mappings that failed group
// validation when the group needs all members to make sense. Phone parts
// without a validated group would fill fragments into unrelated inputs.
func (m *Mapper) dropInvalidSplits(mappings map[string]*FieldMapping, groups []*SplitGroup) {
	validated := make(map[string]bool)
	for _, g := range groups {
		for _, f := range g.Fields {
			validated[f] = true
		}
	}
	strict := [][]string{clientdata.PhoneSplitFields, clientdata.PostalSplitFields}
	for _, fam := range strict {
		present := 0
		for _, f := range fam {
			if _, ok := mappings[f]; ok {
				present++
			}
		}
		if present < 2 {
			continue // lone parts are handled by ResolveLoneMultipart
		}
		allValid := true
		for _, f := range fam {
			if _, ok := mappings[f]; ok && !validated[f] {
				allValid = false
			}
		}
		if !allValid {
			for _, f := range fam {
				m.drop(mappings, f, "split group failed validation")
			}
		}
	}
}

func (m *Mapper) drop(mappings map[string]*FieldMapping, field, reason string) {
	if _, ok := mappings[field]; !ok {
		return
	}
	m.log.Debug("dropping mapping", zap.String("field", field), zap.String("reason", reason))
	delete(mappings, field)
	m.guard.Release(field)
}

func (m *Mapper) move(mappings map[string]*FieldMapping, from, to string) {
	fm := mappings[from]
	delete(mappings, from)
	m.guard.Release(from)
	fm.Field = to
	mappings[to] = fm
	m.guard.Claim(to, fm.Element, fm.Score)
}
