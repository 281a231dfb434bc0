// Package analyzer implements the multi-stage rule-based form analyzer:
// structure discovery, element scoring, duplicate/split reconciliation,
// field mapping and input-plan assembly. Everything below the collection
// layer operates on plain ElementInfo records so the pipeline is testable
// without a browser.
package analyzer

import (
	"github.com/go-rod/rod"
)

// Bounds is an element's bounding box in page coordinates.
type Bounds struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ElementInfo is the analyzer's view of one DOM node. The rod handle is
// borrowed from the page and never serialized.
type ElementInfo struct {
	Handle *rod.Element `json:"-"`

	Tag         string `json:"tag"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	ID          string `json:"id"`
	Class       string `json:"class"`
	Placeholder string `json:"placeholder"`
	Value       string `json:"value"`

	Selector   string `json:"selector"`    // stable CSS selector
	InputIndex int    `json:"input_index"` // position in the form's input-only order, -1 for non-inputs

	Visible  bool   `json:"visible"`
	Enabled  bool   `json:"enabled"`
	Required bool   `json:"required"`
	Bounds   Bounds `json:"bounds"`

	LabelText      string   `json:"label_text"`      // via for=, ancestor label, aria-labelledby
	AssociatedText string   `json:"associated_text"` // table header or definition term
	NearbyText     []string `json:"nearby_text"`
	ParentTag      string   `json:"parent_tag"`
	SiblingTags    []string `json:"sibling_tags"`

	// Select/radio options, value then label per entry.
	Options []OptionInfo `json:"options,omitempty"`
}

// OptionInfo is one option of a select element.
type OptionInfo struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// searchText returns the attribute text the token matcher runs against.
func (e *ElementInfo) searchText() string {
	return e.Name + " " + e.ID + " " + e.Class + " " + e.Placeholder
}

// FormType classifies the primary form.
type FormType string

const (
	FormContact    FormType = "contact"
	FormSearch     FormType = "search"
	FormNewsletter FormType = "newsletter"
	FormOrder      FormType = "order"
	FormFeedback   FormType = "feedback"
	FormAuth       FormType = "auth"
	FormOther      FormType = "other"
)

// RequiresMessageBody reports whether the validator demands a mapped
// message-body field for this form type.
func (t FormType) RequiresMessageBody() bool {
	switch t {
	case FormContact, FormFeedback:
		return true
	}
	return false
}

// FormStructure is the output of structure analysis.
type FormStructure struct {
	Found          bool           `json:"found"`
	FormSelector   string         `json:"form_selector"`
	IframeSelector string         `json:"iframe_selector,omitempty"`
	FormType       FormType       `json:"form_type"`
	Elements       []*ElementInfo `json:"elements"`
	SubmitButtons  []*ElementInfo `json:"submit_buttons"`

	// InputOrder lists stable selectors of fillable inputs in DOM order;
	// split-group contiguity is judged against this.
	InputOrder []string `json:"input_order"`

	// HasRequiredMarkers is false when the page exposes no required
	// attributes or markers at all; core fields are then treated required.
	HasRequiredMarkers bool `json:"has_required_markers"`

	ParallelGroups [][]string `json:"parallel_groups,omitempty"` // selector groups with similar structure
	TableKind      TableKind  `json:"table_kind"`

	// PageText holds body text used by the prohibition detector and the
	// form-type classifier.
	PageText string `json:"-"`
}

// TableKind classifies table use inside the form.
type TableKind string

const (
	TableNone   TableKind = "none"
	TableForm   TableKind = "form-table"
	TableData   TableKind = "data-table"
	TableLayout TableKind = "layout-table"
)

// AutoAction directs the input handler when plain fill is not enough.
type AutoAction string

const (
	ActionFill        AutoAction = "fill"
	ActionSelectAlgo  AutoAction = "select_by_algorithm"
	ActionSelectIndex AutoAction = "select_index"
	ActionCopyFrom    AutoAction = "copy_from"
	ActionDefault     AutoAction = "default"
)

// FieldMapping binds a canonical field to a concrete element.
type FieldMapping struct {
	Field    string         `json:"field"`
	Element  *ElementInfo   `json:"element"`
	Selector string         `json:"selector"`
	Score    int            `json:"score"`
	Details  map[string]int `json:"details,omitempty"`
	Contexts []string       `json:"contexts,omitempty"`

	InputType string `json:"input_type"`
	Required  bool   `json:"required"`

	Value       string     `json:"value,omitempty"`
	AutoAction  AutoAction `json:"auto_action,omitempty"`
	CopyFrom    string     `json:"copy_from,omitempty"`
	SelectIndex int        `json:"select_index,omitempty"`
}

// InputAssignment is the executable per-field instruction.
type InputAssignment struct {
	Field       string     `json:"field"`
	Selector    string     `json:"selector"`
	InputType   string     `json:"input_type"`
	Value       string     `json:"value"`
	Required    bool       `json:"required"`
	AutoAction  AutoAction `json:"auto_action,omitempty"`
	CopyFrom    string     `json:"copy_from,omitempty"`
	SelectIndex int        `json:"select_index,omitempty"`
}

// SplitKind types a split-field group.
type SplitKind string

const (
	SplitAddress  SplitKind = "address"
	SplitPhone    SplitKind = "phone"
	SplitName     SplitKind = "name"
	SplitKana     SplitKind = "name-kana"
	SplitHiragana SplitKind = "name-hiragana"
	SplitEmail    SplitKind = "email"
	SplitPostal   SplitKind = "postal"
)

// InputStrategy decides whether a group receives part values or one
// combined value.
type InputStrategy string

const (
	StrategySplit   InputStrategy = "split"
	StrategyCombine InputStrategy = "combine"
)

// SplitGroup is a validated split-field group.
type SplitGroup struct {
	Kind           SplitKind     `json:"kind"`
	Pattern        string        `json:"pattern"` // e.g. "phone-3-split"
	Fields         []string      `json:"fields"`  // canonical names in part order
	Selectors      []string      `json:"selectors"`
	Confidence     float64       `json:"confidence"`
	OrderValidated bool          `json:"order_validated"`
	Strategy       InputStrategy `json:"strategy"`
}

// Analysis is the full analyzer output for one page.
type Analysis struct {
	Structure   *FormStructure           `json:"structure"`
	Mappings    map[string]*FieldMapping `json:"mappings"`
	SplitGroups []*SplitGroup            `json:"split_groups,omitempty"`
	Assignments []InputAssignment        `json:"assignments"`
	Warnings    []string                 `json:"warnings,omitempty"`

	// HasTextarea records whether any textarea exists in the whole DOM;
	// the NO_MESSAGE_AREA verdict depends on it.
	HasTextarea bool `json:"has_textarea"`
}
