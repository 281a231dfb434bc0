package classify

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Evidence carries the observable facts that led to a verdict. Everything in
// here must survive json.Marshal unchanged.
type Evidence struct {
	SuccessPhrases []string `json:"success_phrases,omitempty"`
	FailurePhrases []string `json:"failure_phrases,omitempty"`
	HTTPStatus     int      `json:"http_status,omitempty"`
	RedirectURLs   []string `json:"redirect_urls,omitempty"`
	OriginalURL    string   `json:"original_url,omitempty"`
	FinalURL       string   `json:"final_url,omitempty"`

	JudgeStageID    int     `json:"judge_stage_id"`
	JudgeStageName  string  `json:"judge_stage_name,omitempty"`
	JudgeConfidence float64 `json:"judge_confidence,omitempty"`

	ProhibitionLevel      string  `json:"prohibition_level,omitempty"`
	ProhibitionSource     string  `json:"prohibition_source,omitempty"`
	ProhibitionPhrases    int     `json:"prohibition_phrases,omitempty"`
	ProhibitionConfidence float64 `json:"prohibition_confidence,omitempty"`
}

// Detail is the classify_detail payload written by mark-done.
type Detail struct {
	Code            Code     `json:"code"`
	Category        Category `json:"category"`
	Retryable       bool     `json:"retryable"`
	CooldownSeconds int      `json:"cooldown_seconds"`
	Confidence      float64  `json:"confidence"`
	Evidence        Evidence `json:"evidence"`
}

// Build assembles a Detail from a code and evidence. Category, retryable and
// cooldown always come from the policy table so PROHIBITION_DETECTED and
// NO_MESSAGE_AREA cannot lose their canonical classification on any path.
func Build(code Code, confidence float64, ev Evidence) Detail {
	return Detail{
		Code:            code,
		Category:        CategoryOf(code),
		Retryable:       Retryable(code),
		CooldownSeconds: CooldownSeconds(code),
		Confidence:      confidence,
		Evidence:        ev,
	}
}

// maxProjectionDepth bounds recursion when projecting analyzer output into
// the submissions.field_mapping column.
const maxProjectionDepth = 6

// ProjectFieldMapping converts an arbitrary analyzer mapping value into a
// JSON-safe tree: DOM handles, funcs and channels are dropped, recursion is
// capped, and map keys are stringified.
func ProjectFieldMapping(v interface{}) interface{} {
	return project(reflect.ValueOf(v), 0)
}

func project(rv reflect.Value, depth int) interface{} {
	if depth > maxProjectionDepth || !rv.IsValid() {
		return nil
	}
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return project(rv.Elem(), depth)
	case reflect.Struct:
		out := make(map[string]interface{})
		t := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			f := t.Field(i)
			if f.PkgPath != "" { // unexported
				continue
			}
			if f.Tag.Get("json") == "-" {
				continue
			}
			if p := project(rv.Field(i), depth+1); p != nil {
				out[jsonName(f)] = p
			}
		}
		return out
	case reflect.Map:
		out := make(map[string]interface{}, rv.Len())
		for _, k := range rv.MapKeys() {
			if p := project(rv.MapIndex(k), depth+1); p != nil {
				out[fmt.Sprintf("%v", k.Interface())] = p
			}
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out = append(out, project(rv.Index(i), depth+1))
		}
		return out
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return nil
	default:
		if !rv.CanInterface() {
			return nil
		}
		if _, err := json.Marshal(rv.Interface()); err != nil {
			return fmt.Sprintf("%v", rv.Interface())
		}
		return rv.Interface()
	}
}

func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" {
		return f.Name
	}
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			if i == 0 {
				return f.Name
			}
			return tag[:i]
		}
	}
	return tag
}
