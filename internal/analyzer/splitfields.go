package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"formrunner/internal/clientdata"
)

// splitMinConfidence rejects split groups whose combined evidence is weak.
const splitMinConfidence = 0.45

// splitSpec describes one recognizable split pattern: the canonical member
// fields in part order and cue tokens that back the group up.
type splitSpec struct {
	Kind    SplitKind
	Pattern string
	Fields  []string
	Cues    []string
	// NegativeCues disqualify the group outright when found on any member.
	NegativeCues []string
}

var splitSpecs = []splitSpec{
	{
		Kind:    SplitPhone,
		Pattern: "phone-3-split",
		Fields:  []string{clientdata.FieldPhone1, clientdata.FieldPhone2, clientdata.FieldPhone3},
		Cues:    []string{"tel", "phone", "電話"},
	},
	{
		Kind:    SplitPostal,
		Pattern: "postal-2-split",
		Fields:  []string{clientdata.FieldPostal1, clientdata.FieldPostal2},
		Cues:    []string{"zip", "post", "郵便", "〒"},
	},
	{
		Kind:         SplitName,
		Pattern:      "name-2-split",
		Fields:       []string{clientdata.FieldLastName, clientdata.FieldFirstName},
		Cues:         []string{"name", "姓", "名", "last", "first", "family", "given", "sei", "mei"},
		NegativeCues: []string{"company", "会社", "kana", "カナ", "かな", "フリガナ", "ふりがな"},
	},
	{
		Kind:    SplitKana,
		Pattern: "kana-2-split",
		Fields:  []string{clientdata.FieldLastKana, clientdata.FieldFirstKana},
		Cues:    []string{"kana", "カナ", "フリガナ", "セイ", "メイ", "furigana"},
	},
	{
		Kind:    SplitHiragana,
		Pattern: "hiragana-2-split",
		Fields:  []string{clientdata.FieldLastHira, clientdata.FieldFirstHira},
		Cues:    []string{"かな", "ふりがな", "ひらがな", "hiragana"},
	},
	{
		Kind:    SplitEmail,
		Pattern: "email-2-split",
		Fields:  []string{clientdata.FieldEmail1, clientdata.FieldEmail2},
		Cues:    []string{"mail", "メール", "@"},
	},
	{
		Kind:    SplitAddress,
		Pattern: "address-split",
		Fields: []string{
			clientdata.FieldPrefecture, clientdata.FieldCity,
			clientdata.FieldAddress, clientdata.FieldBuilding,
		},
		Cues: []string{"addr", "住所", "都道府県", "市区", "番地", "建物"},
	},
}

// DetectSplitGroups inspects current mappings against the form's input-only
// order and returns validated split groups. Contiguity in the input order is
// the go/no-go gate; physical layout is never consulted.
func DetectSplitGroups(mappings map[string]*FieldMapping, inputOrder []string) []*SplitGroup {
	orderIdx := make(map[string]int, len(inputOrder))
	for i, sel := range inputOrder {
		orderIdx[sel] = i
	}

	var groups []*SplitGroup
	for _, spec := range splitSpecs {
		g := buildGroup(spec, mappings, orderIdx)
		if g != nil {
			groups = append(groups, g)
		}
	}
	return groups
}

func buildGroup(spec splitSpec, mappings map[string]*FieldMapping, orderIdx map[string]int) *SplitGroup {
	type member struct {
		field string
		m     *FieldMapping
		idx   int
	}
	var members []member
	for _, field := range spec.Fields {
		m, ok := mappings[field]
		if !ok || m.Element == nil {
			continue
		}
		idx, ok := orderIdx[m.Selector]
		if !ok {
			continue
		}
		members = append(members, member{field, m, idx})
	}
	// Address groups accept 2..4 mapped parts; everything else needs the
	// full member set.
	minMembers := len(spec.Fields)
	if spec.Kind == SplitAddress {
		minMembers = 2
	}
	if len(members) < minMembers {
		return nil
	}

	ordered := append([]member(nil), members...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].idx < ordered[j].idx })

	// Part order must match field order, with consecutive input indices.
	for i, mb := range ordered {
		if mb.field != members[i].field {
			return nil
		}
		if i > 0 && mb.idx != ordered[i-1].idx+1 {
			return nil
		}
	}

	orderedMappings := make([]*FieldMapping, 0, len(ordered))
	for _, mb := range ordered {
		orderedMappings = append(orderedMappings, mb.m)
	}
	conf := groupConfidence(spec, orderedMappings)
	if conf < splitMinConfidence {
		return nil
	}

	g := &SplitGroup{
		Kind:           spec.Kind,
		Pattern:        spec.Pattern,
		Confidence:     conf,
		OrderValidated: true,
		Strategy:       chooseStrategy(ordered[0].m),
	}
	if spec.Kind == SplitAddress {
		g.Pattern = fmt.Sprintf("address-%d-split", len(ordered))
	}
	for _, mb := range ordered {
		g.Fields = append(g.Fields, mb.field)
		g.Selectors = append(g.Selectors, mb.m.Selector)
	}
	return g
}

// groupConfidence blends field-count fit, cue hits and context quality into
// a 0..1 score.
func groupConfidence(spec splitSpec, members []*FieldMapping) float64 {
	conf := 0.35 // base for a contiguous, order-valid group
	cueHits, withContext := 0, 0
	for _, m := range members {
		text := strings.ToLower(memberText(m))
		for _, neg := range spec.NegativeCues {
			if strings.Contains(text, strings.ToLower(neg)) {
				return 0
			}
		}
		hit := false
		for _, cue := range spec.Cues {
			if strings.Contains(text, strings.ToLower(cue)) {
				hit = true
				break
			}
		}
		if hit {
			cueHits++
		}
		if m.Element.LabelText != "" || m.Element.AssociatedText != "" {
			withContext++
		}
	}
	conf += 0.35 * float64(cueHits) / float64(len(members))
	conf += 0.20 * float64(withContext) / float64(len(members))
	if len(members) >= 3 {
		conf += 0.05
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}

func memberText(m *FieldMapping) string {
	e := m.Element
	parts := []string{e.searchText(), e.LabelText, e.AssociatedText}
	parts = append(parts, e.NearbyText...)
	return strings.Join(parts, " ")
}

// enterTogetherCues and enterEachCues capture designer-intent notes near the
// group's first member.
var (
	enterEachCues     = []string{"それぞれ", "分けて", "個別に", "enter each", "separately"}
	enterTogetherCues = []string{"まとめて", "続けて", "ハイフンなしで続けて", "enter together", "without hyphen"}
)

// chooseStrategy picks split vs combine for the group. Split is the default
// for a contiguous group; explicit "enter together" notes flip it.
func chooseStrategy(first *FieldMapping) InputStrategy {
	text := strings.ToLower(memberText(first))
	for _, cue := range enterTogetherCues {
		if strings.Contains(text, strings.ToLower(cue)) {
			return StrategyCombine
		}
	}
	for _, cue := range enterEachCues {
		if strings.Contains(text, strings.ToLower(cue)) {
			return StrategySplit
		}
	}
	return StrategySplit
}

// loneMultipartFields maps a solitary split-part mapping to the unified field
// whose combined value it should carry when its siblings are absent.
var loneMultipartFields = map[string]string{
	clientdata.FieldPhone1:  clientdata.FieldPhone,
	clientdata.FieldPostal1: clientdata.FieldPostal,
}

// ResolveLoneMultipart rewrites solitary part mappings to carry the full
// combined value. A lone "phone part 1" input is really a unified phone
// field; filling it with three digits would be wrong.
func ResolveLoneMultipart(mappings map[string]*FieldMapping, groups []*SplitGroup) {
	grouped := make(map[string]bool)
	for _, g := range groups {
		for _, f := range g.Fields {
			grouped[f] = true
		}
	}
	for part, unified := range loneMultipartFields {
		m, ok := mappings[part]
		if !ok || grouped[part] {
			continue
		}
		if _, exists := mappings[unified]; exists {
			continue
		}
		delete(mappings, part)
		m.Field = unified
		mappings[unified] = m
	}
}
