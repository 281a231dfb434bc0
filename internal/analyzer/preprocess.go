package analyzer

import (
	"formrunner/internal/clientdata"
)

// NeedsProgressiveScroll decides whether the page must be scrolled through
// before collection so lazily rendered fields attach. Scrolling every page
// costs seconds per submission, so the default is no.
func NeedsProgressiveScroll(elementCount int, pageHeight float64) bool {
	return elementCount > 40 || pageHeight > 3000
}

// coreFields are treated as required when the page exposes no required
// markers at all. Pages with explicit markers keep their own flags.
var coreFields = []string{
	clientdata.FieldEmail,
	clientdata.FieldMessage,
	clientdata.FieldFullName,
	clientdata.FieldLastName,
	clientdata.FieldFirstName,
	clientdata.FieldCompany,
}

// ApplyRequiredFallback marks core mappings required on marker-free pages.
func ApplyRequiredFallback(structure *FormStructure, mappings map[string]*FieldMapping) {
	if structure.HasRequiredMarkers {
		return
	}
	for _, f := range coreFields {
		if fm, ok := mappings[f]; ok {
			fm.Required = true
		}
	}
}
