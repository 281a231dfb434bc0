package judge

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Snapshot captures pre-submission page state. It must be taken before the
// submit click so stages 1 and 3 have a baseline to diff against.
type Snapshot struct {
	URL            string
	FormSelector   string
	FormCount      int
	InputCount     int
	SubmitCount    int
	ProhibitionPre bool // prohibition detector fired before submission
}

// ResponseHistory aggregates network responses observed since the click.
type ResponseHistory struct {
	Status3xx    int
	Status4xx    int
	Status5xx    int
	RedirectURLs []string
	FinalStatus  int
}

// StageTrace records one stage's work for the persisted evidence.
type StageTrace struct {
	ID         float64       `json:"id"`
	Name       string        `json:"name"`
	Outcome    string        `json:"outcome"` // success, failure, continue
	Confidence float64       `json:"confidence,omitempty"`
	Patterns   []string      `json:"patterns,omitempty"`
	Elements   int           `json:"elements,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

// Verdict is the judge's final call.
type Verdict struct {
	Success    bool
	Confidence float64
	StageID    float64
	StageName  string

	BotDetected bool
	BotKind     string

	SuccessPhrases []string
	FailurePhrases []string
	Trace          []StageTrace
}

// Judge walks the stages in order. ExtraSuccessPatterns extends the phrase
// catalog from configuration.
type Judge struct {
	ExtraSuccessPatterns []string
	log                  *zap.Logger
}

func New(log *zap.Logger) *Judge {
	return &Judge{log: log}
}

const (
	outcomeSuccess  = "success"
	outcomeFailure  = "failure"
	outcomeContinue = "continue"
)

// Judge runs all stages against the post-submission page.
func (j *Judge) Judge(ctx context.Context, p Prober, snap Snapshot) Verdict {
	return j.JudgeWithHistory(ctx, p, snap, ResponseHistory{})
}

func (j *Judge) JudgeWithHistory(ctx context.Context, p Prober, snap Snapshot, hist ResponseHistory) Verdict {
	var v Verdict

	run := func(id float64, name string, fn func() (string, float64, []string, int)) bool {
		start := time.Now()
		outcome, conf, patterns, elements := fn()
		v.Trace = append(v.Trace, StageTrace{
			ID: id, Name: name, Outcome: outcome, Confidence: conf,
			Patterns: patterns, Elements: elements, Duration: time.Since(start),
		})
		if outcome == outcomeContinue {
			return false
		}
		j.log.Debug("judge stage decided",
			zap.Float64("stage", id),
			zap.String("name", name),
			zap.String("outcome", outcome),
			zap.Float64("confidence", conf))
		v.Success = outcome == outcomeSuccess
		v.Confidence = conf
		v.StageID = id
		v.StageName = name
		if v.Success {
			v.SuccessPhrases = patterns
		} else {
			v.FailurePhrases = patterns
		}
		return true
	}

	// Page reads shared across stages.
	currentURL, _ := p.CurrentURL(ctx)
	body, _ := p.BodyText(ctx)

	if run(0, "prohibition_pre", func() (string, float64, []string, int) {
		if snap.ProhibitionPre {
			return outcomeFailure, 1.0, []string{"prohibition detected pre-submission"}, 0
		}
		return outcomeContinue, 0, nil, 0
	}) {
		return v
	}

	if run(0.5, "early_failure_gate", func() (string, float64, []string, int) {
		if bot, kind, err := p.BotProtectionPresent(ctx); err == nil && bot {
			v.BotDetected = true
			v.BotKind = kind
			return outcomeFailure, 0.9, []string{"bot protection: " + kind}, 0
		}
		errTexts, _ := p.VisibleErrorTexts(ctx, errorElementSelectors)
		if len(errTexts) > 0 {
			return outcomeFailure, 0.85, errTexts, len(errTexts)
		}
		if patterns, hit := strictTextGate(body, currentURL); hit {
			return outcomeFailure, 0.8, patterns, 0
		}
		return outcomeContinue, 0, nil, 0
	}) {
		return v
	}

	if run(1, "url_change", func() (string, float64, []string, int) {
		changed, indicator := pathChanged(snap.URL, currentURL)
		if !changed {
			return outcomeContinue, 0, nil, 0
		}
		// Guard: a path change onto an error or challenge page is not
		// success.
		if bot, kind, err := p.BotProtectionPresent(ctx); err == nil && bot {
			v.BotDetected = true
			v.BotKind = kind
			return outcomeFailure, 0.9, []string{"bot protection after redirect: " + kind}, 0
		}
		if errTexts, _ := p.VisibleErrorTexts(ctx, errorElementSelectors); len(errTexts) > 0 {
			return outcomeFailure, 0.85, errTexts, len(errTexts)
		}
		conf := 0.85
		patterns := []string{"path changed: " + currentURL}
		if indicator {
			conf = 0.95
			patterns = append(patterns, "success token in path")
		}
		return outcomeSuccess, conf, patterns, 0
	}) {
		return v
	}

	if run(2, "success_message", func() (string, float64, []string, int) {
		containerText, _ := p.SuccessContainerText(ctx, successContainerClasses)
		matches := j.successMatches(body + " " + containerText)
		if len(matches) == 0 {
			return outcomeContinue, 0, nil, 0
		}
		conf := 0.85 + 0.02*float64(len(matches)-1)
		if conf > 0.95 {
			conf = 0.95
		}
		return outcomeSuccess, conf, matches, 0
	}) {
		return v
	}

	if run(3, "form_disappearance", func() (string, float64, []string, int) {
		forms, err := p.FormCount(ctx)
		if err != nil {
			return outcomeContinue, 0, nil, 0
		}
		if snap.FormCount > 0 && forms == 0 {
			return outcomeSuccess, 0.85, []string{"all forms gone"}, 0
		}
		inputs, _ := p.FormInputCount(ctx)
		if snap.InputCount > 0 && inputs*2 <= snap.InputCount {
			return outcomeSuccess, 0.78, []string{"form inputs halved"}, inputs
		}
		submits, _ := p.VisibleSubmitCount(ctx)
		if snap.SubmitCount > 0 && submits == 0 {
			return outcomeSuccess, 0.75, []string{"submit buttons gone"}, 0
		}
		return outcomeContinue, 0, nil, 0
	}) {
		return v
	}

	if run(4, "sibling_analysis", func() (string, float64, []string, int) {
		siblings, err := p.NewSuccessSiblings(ctx, snap.FormSelector)
		if err == nil && siblings > 0 {
			return outcomeSuccess, 0.78, []string{"success-classed siblings"}, siblings
		}
		ratio, err := p.DisabledControlRatio(ctx)
		if err == nil && ratio >= 0.8 {
			return outcomeSuccess, 0.75, []string{"controls mass-disabled"}, 0
		}
		return outcomeContinue, 0, nil, 0
	}) {
		return v
	}

	if run(5, "error_probe", func() (string, float64, []string, int) {
		families, patterns := matchErrorFamilies(body)
		if len(families) == 0 {
			return outcomeContinue, 0, nil, 0
		}
		conf := 0.70 + 0.01*float64(len(families))
		if conf > 0.75 {
			conf = 0.75
		}
		return outcomeFailure, conf, patterns, 0
	}) {
		return v
	}

	run(6, "final_fallback", func() (string, float64, []string, int) {
		var indicators []string
		if hist.Status4xx > 0 || hist.Status5xx > 0 {
			indicators = append(indicators, "error responses observed")
		}
		if hist.Status3xx > 2 {
			indicators = append(indicators, "redirect loop")
		}
		if title, err := p.Title(ctx); err == nil && titleIndicatesError(title) {
			indicators = append(indicators, "error title: "+title)
		}
		if errTexts, _ := p.VisibleErrorTexts(ctx, []string{"[role=\"alert\"]", ".alert"}); len(errTexts) > 0 {
			indicators = append(indicators, "visible alerts")
		}
		if len(indicators) >= 2 {
			return outcomeFailure, 0.68, indicators, 0
		}
		conf := 0.65
		if len(indicators) == 0 {
			conf = 0.70
		}
		return outcomeSuccess, conf, []string{"no failure evidence"}, 0
	})
	return v
}

func (j *Judge) successMatches(text string) []string {
	var matches []string
	for _, re := range successPhrases {
		if m := re.FindString(text); m != "" {
			matches = append(matches, m)
		}
	}
	for _, extra := range j.ExtraSuccessPatterns {
		if extra != "" && strings.Contains(text, extra) {
			matches = append(matches, extra)
		}
	}
	return matches
}

// strictTextGate fails only on matches in two or more failure categories,
// with no strong success phrase and no success-looking URL.
func strictTextGate(body, currentURL string) ([]string, bool) {
	for _, re := range strongSuccessPhrases {
		if re.MatchString(body) {
			return nil, false
		}
	}
	if _, indicator := pathChanged("", currentURL); indicator {
		return nil, false
	}

	families, patterns := matchErrorFamilies(body)
	hit := 0
	for _, fam := range families {
		for _, gate := range strictGateFamilies {
			if fam == gate {
				hit++
				break
			}
		}
	}
	if hit >= 2 {
		return patterns, true
	}
	return nil, false
}

func matchErrorFamilies(body string) ([]string, []string) {
	var families, patterns []string
	for _, fam := range errorFamilies {
		for _, re := range fam.Patterns {
			if m := re.FindString(body); m != "" {
				families = append(families, fam.Name)
				patterns = append(patterns, fam.Name+": "+m)
				break
			}
		}
	}
	return families, patterns
}

// pathChanged compares URL paths only. Query and fragment churn is routine
// on failed posts and never passes stage 1. The second return reports a
// success token in the new path.
func pathChanged(before, after string) (bool, bool) {
	bu, err1 := url.Parse(before)
	au, err2 := url.Parse(after)
	if err2 != nil {
		return false, false
	}
	lowerPath := strings.ToLower(au.Path)
	indicator := false
	for _, tok := range successURLTokens {
		if strings.Contains(lowerPath, tok) {
			indicator = true
			break
		}
	}
	if err1 != nil || before == "" {
		return false, indicator
	}
	return bu.Path != au.Path || bu.Host != au.Host, indicator
}

func titleIndicatesError(title string) bool {
	lower := strings.ToLower(title)
	for _, tok := range errorTitleTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}
