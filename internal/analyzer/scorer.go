package analyzer

import (
	"sort"
	"strings"

	"formrunner/internal/clientdata"
)

// Score weights. Tag/type fit is the strongest structural signal; explicit
// labels are the strongest textual one.
const (
	weightTypeFit      = 30
	weightTypeMismatch = -40
	weightToken        = 15
	weightNegative     = -50
	weightLabelExact   = 40
	weightLabelToken   = 25
	weightPlaceholder  = 18
	weightContextNear  = 10
	weightContextFar   = 4
	weightRequired     = 5
	scoreExcluded      = -1000
)

// Candidate is a scored (field, element) pair.
type Candidate struct {
	Element  *ElementInfo
	Score    int
	Details  map[string]int
	Excluded bool
}

// Scorer ranks elements against the pattern catalog. It keeps a per-session
// attribute cache so repeated scoring passes (mapper, unmapped handler,
// retry) reuse one snapshot per element.
type Scorer struct {
	ctx *ContextIndex

	// searchText cache keyed by selector; ElementInfo attributes are
	// snapshots already, this just avoids re-lowering strings.
	textCache map[string]string
}

// NewScorer builds a scorer over one form's context index.
func NewScorer(ctx *ContextIndex) *Scorer {
	return &Scorer{ctx: ctx, textCache: make(map[string]string)}
}

func (s *Scorer) loweredText(el *ElementInfo) string {
	if t, ok := s.textCache[el.Selector]; ok {
		return t
	}
	t := strings.ToLower(el.searchText())
	s.textCache[el.Selector] = t
	return t
}

// ScoreElement scores one element for one catalog row. Disqualified
// elements return Excluded=true with a hard negative score; callers must
// drop them.
func (s *Scorer) ScoreElement(p *FieldPattern, el *ElementInfo) Candidate {
	details := make(map[string]int)
	cand := Candidate{Element: el, Details: details}

	if !el.Visible || !el.Enabled {
		details["gating"] = scoreExcluded
		cand.Score = scoreExcluded
		cand.Excluded = true
		return cand
	}

	text := s.loweredText(el)

	// Negative tokens disqualify outright.
	for _, neg := range p.NegativeTokens {
		if strings.Contains(text, strings.ToLower(neg)) {
			details["negative:"+neg] = weightNegative
			cand.Score = scoreExcluded
			cand.Excluded = true
			return cand
		}
	}

	score := 0

	// Tag/type fit.
	if fit := typeFit(p, el); fit != 0 {
		details["type_fit"] = fit
		score += fit
		if fit < 0 {
			cand.Score = score
			cand.Excluded = true
			return cand
		}
	}

	// Attribute token hits.
	for _, tok := range p.Tokens {
		if strings.Contains(text, strings.ToLower(tok)) {
			details["token:"+tok] = weightToken
			score += weightToken
		}
	}

	// Label and context evidence, proximity weighted. Literal labels are
	// resolved through the label table first; a resolved label settles
	// that candidate without token matching.
	for _, cc := range s.ctx.For(el.Selector) {
		if cc.Source == SourceLabel || cc.Source == SourceTableHeader {
			if f, ok := clientdata.FieldForLabel(cc.Text); ok {
				if f == p.Field {
					if _, seen := details["label_exact"]; !seen {
						details["label_exact"] = weightLabelExact
						score += weightLabelExact
					}
				}
				continue
			}
		}
		lower := strings.ToLower(cc.Text)
		for _, lt := range p.LabelTokens {
			if !strings.Contains(lower, strings.ToLower(lt)) {
				continue
			}
			w := contextWeight(cc)
			key := "context:" + lt
			if prev, ok := details[key]; !ok || w > prev {
				if ok {
					score -= prev
				}
				details[key] = w
				score += w
			}
		}
	}

	if el.Required {
		details["required"] = weightRequired
		score += weightRequired
	}

	cand.Score = score
	return cand
}

// contextWeight maps a candidate's source and proximity to a score weight.
func contextWeight(cc ContextCandidate) int {
	switch cc.Source {
	case SourceLabel:
		if cc.Text != "" && exactLabel(cc.Text) {
			return weightLabelExact
		}
		return weightLabelToken
	case SourceTableHeader:
		return weightLabelToken
	case SourcePlaceholder:
		return weightPlaceholder
	case SourceAdjacentText:
		return weightContextNear
	default:
		if cc.Proximity <= 2 {
			return weightContextNear
		}
		return weightContextFar
	}
}

func exactLabel(text string) bool {
	return len([]rune(strings.TrimSpace(text))) <= 12
}

// typeFit scores structural compatibility. A textarea pattern on anything
// else is a disqualifying mismatch, as is mapping text fields onto
// checkbox/radio inputs.
func typeFit(p *FieldPattern, el *ElementInfo) int {
	elType := el.Type
	if el.Tag == "textarea" {
		elType = "textarea"
	}
	if el.Tag == "select" {
		elType = "select"
	}

	if len(p.Types) == 0 {
		// Text-like expected.
		switch elType {
		case "checkbox", "radio", "file", "hidden", "submit", "button", "textarea", "select":
			return weightTypeMismatch
		}
		return 0
	}
	for _, want := range p.Types {
		if want == elType {
			if want != "text" {
				return weightTypeFit // exact non-generic match is strongest
			}
			return weightTypeFit / 2
		}
	}
	return weightTypeMismatch
}

// RankCandidates scores every element for a field and returns the top K
// non-excluded candidates meeting the field floor, best first.
func (s *Scorer) RankCandidates(p *FieldPattern, elements []*ElementInfo) []Candidate {
	k := quickRankK
	if p.Essential {
		k = quickRankKEssential
	}
	var out []Candidate
	for _, el := range elements {
		c := s.ScoreElement(p, el)
		if c.Excluded || c.Score < p.MinScore {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out
}
