package analyzer

import (
	"fmt"
	"strings"

	"formrunner/internal/clientdata"
)

// Validate checks the completed analysis against the form's expectations and
// returns human-readable warnings. An empty slice means the plan is
// submittable; a non-empty one downgrades the attempt to a mapping failure
// when it names a missing essential.
func Validate(a *Analysis) []string {
	var warnings []string
	structure := a.Structure

	if structure.FormType.RequiresMessageBody() {
		if _, ok := a.Mappings[clientdata.FieldMessage]; !ok {
			warnings = append(warnings, "contact form without a mapped message body")
		}
	}

	if emailCapableInputExists(structure.Elements) {
		if _, ok := a.Mappings[clientdata.FieldEmail]; !ok {
			warnings = append(warnings, "email-capable input present but no email mapping")
		}
	}

	// Re-register the final plan through a fresh guard; assembly bugs that
	// double-book an element or a field show up here.
	guard := NewDuplicateGuard()
	for _, assignment := range a.Assignments {
		el := elementBySelector(structure.Elements, assignment.Selector)
		if el == nil {
			warnings = append(warnings,
				fmt.Sprintf("assignment %q targets unknown selector %q", assignment.Field, assignment.Selector))
			continue
		}
		if guard.FamilyClaimed(assignment.Field) {
			warnings = append(warnings,
				fmt.Sprintf("assignment conflict: %q excluded by a claimed %s sibling",
					assignment.Field, groupKey(assignment.Field)))
			continue
		}
		if !guard.Claim(assignment.Field, el, 1) {
			holder, _ := guard.ElementTaken(assignment.Selector)
			warnings = append(warnings,
				fmt.Sprintf("assignment conflict: %q and %q share element %q",
					assignment.Field, holder, assignment.Selector))
		}
	}

	return warnings
}

// MissingEssential reports whether the warnings include a missing essential
// mapping, which turns the attempt into MAPPING_FAILED rather than a soft
// warning.
func MissingEssential(warnings []string) bool {
	for _, w := range warnings {
		if strings.Contains(w, "message body") || strings.Contains(w, "no email mapping") {
			return true
		}
	}
	return false
}

// emailCapableInputExists finds an email-typed input or a text input whose
// attributes or label carry email tokens.
func emailCapableInputExists(elements []*ElementInfo) bool {
	for _, el := range elements {
		if !el.Visible || !el.Enabled {
			continue
		}
		if el.Type == "email" {
			return true
		}
		if el.Type == "text" {
			text := strings.ToLower(el.searchText() + " " + el.LabelText)
			if strings.Contains(text, "mail") || strings.Contains(text, "メール") {
				return true
			}
		}
	}
	return false
}

func elementBySelector(elements []*ElementInfo, sel string) *ElementInfo {
	for _, el := range elements {
		if el.Selector == sel {
			return el
		}
	}
	return nil
}
