package analyzer

import (
	"sort"
	"strings"
)

// ContextSource ranks where a context text came from. Lower is better.
type ContextSource int

const (
	SourceLabel ContextSource = iota
	SourceTableHeader
	SourceAdjacentText
	SourcePlaceholder
	SourceNearby
)

// ContextCandidate is one piece of text describing an element.
type ContextCandidate struct {
	Text      string
	Source    ContextSource
	Proximity int // smaller = closer; 0 for explicit associations
}

// ContextIndex precomputes per-element context candidates for a form so
// scoring does linear work instead of repeated DOM walks.
type ContextIndex struct {
	bySelector map[string][]ContextCandidate
}

// BuildContextIndex ranks each element's context texts by source then
// proximity.
func BuildContextIndex(elements []*ElementInfo) *ContextIndex {
	idx := &ContextIndex{bySelector: make(map[string][]ContextCandidate, len(elements))}
	for _, el := range elements {
		var cands []ContextCandidate
		if t := clean(el.LabelText); t != "" {
			cands = append(cands, ContextCandidate{Text: t, Source: SourceLabel})
		}
		if t := clean(el.AssociatedText); t != "" {
			cands = append(cands, ContextCandidate{Text: t, Source: SourceTableHeader})
		}
		for i, nt := range el.NearbyText {
			t := clean(nt)
			if t == "" {
				continue
			}
			src := SourceAdjacentText
			if i > 0 {
				src = SourceNearby
			}
			cands = append(cands, ContextCandidate{Text: t, Source: src, Proximity: i})
		}
		if t := clean(el.Placeholder); t != "" {
			cands = append(cands, ContextCandidate{Text: t, Source: SourcePlaceholder})
		}
		sort.SliceStable(cands, func(i, j int) bool {
			if cands[i].Source != cands[j].Source {
				return cands[i].Source < cands[j].Source
			}
			return cands[i].Proximity < cands[j].Proximity
		})
		idx.bySelector[el.Selector] = cands
	}
	return idx
}

// For returns the ranked candidates for an element.
func (c *ContextIndex) For(selector string) []ContextCandidate {
	return c.bySelector[selector]
}

// Texts flattens the ranked candidate texts.
func (c *ContextIndex) Texts(selector string) []string {
	cands := c.bySelector[selector]
	out := make([]string, 0, len(cands))
	for _, cand := range cands {
		out = append(out, cand.Text)
	}
	return out
}

// Best returns the single highest-ranked context text, or "".
func (c *ContextIndex) Best(selector string) string {
	if cands := c.bySelector[selector]; len(cands) > 0 {
		return cands[0].Text
	}
	return ""
}

func clean(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > 120 {
		s = string(r[:120])
	}
	return s
}
