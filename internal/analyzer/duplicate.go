package analyzer

import (
	"strings"

	"formrunner/internal/clientdata"
)

// DuplicateGuard enforces one element per canonical field and one field per
// element across the whole mapping pass. Higher priority fields win contested
// elements; ties fall back to score.
type DuplicateGuard struct {
	byField   map[string]*claim
	byElement map[string]*claim
}

type claim struct {
	Field    string
	Selector string
	Score    int
	Excluded bool
}

func NewDuplicateGuard() *DuplicateGuard {
	return &DuplicateGuard{
		byField:   make(map[string]*claim),
		byElement: make(map[string]*claim),
	}
}

// placeholderOnlyWhitespace reports whether the element's placeholder exists
// and holds nothing but whitespace, ideographic space included. Such elements
// are registered so nothing else lands on them, but excluded from filling.
func placeholderOnlyWhitespace(el *ElementInfo) bool {
	if el.Placeholder == "" {
		return false
	}
	trimmed := strings.TrimSpace(strings.ReplaceAll(el.Placeholder, clientdata.IdeographicSpace, " "))
	return trimmed == ""
}

// groupKey collapses mutually exclusive field families: claiming one member
// of a phone or postal split group blocks the unified sibling and vice versa.
func groupKey(field string) string {
	switch field {
	case clientdata.FieldPhone, clientdata.FieldPhone1, clientdata.FieldPhone2, clientdata.FieldPhone3:
		return "phone-family"
	case clientdata.FieldPostal, clientdata.FieldPostal1, clientdata.FieldPostal2:
		return "postal-family"
	}
	return ""
}

// Claim attempts to register field -> element. It returns true when the claim
// holds, false when a prior claim wins. A losing prior claim is evicted and
// its field becomes claimable again by the caller.
//
// The email confirmation field is exempt from element-level conflict with the
// email field: confirmation inputs legitimately duplicate the email value,
// but they still may not share one element.
func (g *DuplicateGuard) Claim(field string, el *ElementInfo, score int) bool {
	if el == nil || el.Selector == "" {
		return false
	}
	excluded := placeholderOnlyWhitespace(el)

	if prior, ok := g.byField[field]; ok {
		if prior.Score >= score {
			return false
		}
		delete(g.byElement, prior.Selector)
		delete(g.byField, field)
	}

	if prior, ok := g.byElement[el.Selector]; ok {
		if !g.wins(field, score, prior) {
			return false
		}
		delete(g.byField, prior.Field)
		delete(g.byElement, el.Selector)
	}

	c := &claim{Field: field, Selector: el.Selector, Score: score, Excluded: excluded}
	g.byField[field] = c
	g.byElement[el.Selector] = c
	return true
}

// wins decides whether a challenger (field, score) beats the element's
// current holder. Priority first, then score.
func (g *DuplicateGuard) wins(field string, score int, prior *claim) bool {
	if field == prior.Field {
		return score > prior.Score
	}
	cp, pp := clientdata.Priority(field), clientdata.Priority(prior.Field)
	if cp != pp {
		return cp > pp
	}
	return score > prior.Score
}

// Claimed reports whether the field already holds an element.
func (g *DuplicateGuard) Claimed(field string) bool {
	_, ok := g.byField[field]
	return ok
}

// ElementTaken reports whether the element is already owned by another field.
func (g *DuplicateGuard) ElementTaken(sel string) (string, bool) {
	c, ok := g.byElement[sel]
	if !ok {
		return "", false
	}
	return c.Field, true
}

// unifiedOf names the unified member of an exclusion family.
func unifiedOf(key string) string {
	switch key {
	case "phone-family":
		return clientdata.FieldPhone
	case "postal-family":
		return clientdata.FieldPostal
	}
	return ""
}

// FamilyClaimed reports whether a conflicting member of the field's exclusion
// family already holds an element. The unified field conflicts with its split
// parts and each split part conflicts with the unified field; split siblings
// coexist.
func (g *DuplicateGuard) FamilyClaimed(field string) bool {
	key := groupKey(field)
	if key == "" {
		return false
	}
	unified := unifiedOf(key)
	if field == unified {
		for f := range g.byField {
			if f != unified && groupKey(f) == key {
				return true
			}
		}
		return false
	}
	_, ok := g.byField[unified]
	return ok
}

// Excluded reports whether the field's element was registered but barred
// from filling (whitespace-only placeholder).
func (g *DuplicateGuard) Excluded(field string) bool {
	c, ok := g.byField[field]
	return ok && c.Excluded
}

// Release drops the field's claim, freeing its element.
func (g *DuplicateGuard) Release(field string) {
	if c, ok := g.byField[field]; ok {
		delete(g.byElement, c.Selector)
		delete(g.byField, field)
	}
}
