package prohibition

import (
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"formrunner/internal/config"
)

// ConfidenceLevel grades how sure the detector is that the page refuses
// solicitation contact.
type ConfidenceLevel string

const (
	LevelNone    ConfidenceLevel = "none"
	LevelVeryLow ConfidenceLevel = "very_low"
	LevelLow     ConfidenceLevel = "low"
	LevelMedium  ConfidenceLevel = "medium"
	LevelHigh    ConfidenceLevel = "high"
)

// ordinal orders levels for threshold comparison.
func (l ConfidenceLevel) ordinal() int {
	switch l {
	case LevelVeryLow:
		return 1
	case LevelLow:
		return 2
	case LevelMedium:
		return 3
	case LevelHigh:
		return 4
	}
	return 0
}

// AtLeast reports whether l meets the named minimum. The config spells
// thresholds as "weak"/"moderate"/"strong" per upstream vocabulary.
func (l ConfidenceLevel) AtLeast(min string) bool {
	var want int
	switch strings.ToLower(min) {
	case "weak", "very_low":
		want = 1
	case "low":
		want = 2
	case "moderate", "medium":
		want = 3
	case "strong", "high":
		want = 4
	default:
		return false
	}
	return l.ordinal() >= want
}

// Result is a prohibition verdict for one page.
type Result struct {
	Detected bool            `json:"detected"`
	Level    ConfidenceLevel `json:"level"`
	Score    int             `json:"score"` // 0..100
	Phrases  []string        `json:"phrases,omitempty"`
	Source   string          `json:"source"` // "advanced" or "fallback"
}

// Detector runs the pattern catalog over page HTML, with a shared result
// cache in front.
type Detector struct {
	cache *resultCache
	log   *zap.Logger
}

func NewDetector(cfg config.ProhibitionConfig, log *zap.Logger) *Detector {
	return &Detector{
		cache: newResultCache(cfg.CacheSize, time.Duration(cfg.CacheTTLSec)*time.Second),
		log:   log,
	}
}

// Detect analyzes the page HTML. tenantKey partitions the cache so two
// tenants never share verdicts across config changes.
func (d *Detector) Detect(html, tenantKey string) Result {
	if r, ok := d.cache.get(html, tenantKey); ok {
		return r
	}
	r := d.analyze(html)
	d.cache.put(html, tenantKey, r)
	if r.Detected {
		d.log.Info("prohibition detected",
			zap.String("level", string(r.Level)),
			zap.Int("score", r.Score),
			zap.Int("phrases", len(r.Phrases)),
			zap.String("source", r.Source))
	}
	return r
}

var tagRe = regexp.MustCompile(`(?s)<script.*?</script>|<style.*?</style>|<[^>]+>`)
var spaceRe = regexp.MustCompile(`[\s\x{3000}]+`)

// normalize strips markup and collapses whitespace so phrase patterns match
// across element boundaries.
func normalize(html string) string {
	text := tagRe.ReplaceAllString(html, " ")
	return spaceRe.ReplaceAllString(text, " ")
}

func (d *Detector) analyze(html string) Result {
	text := normalize(html)

	r := scoreText(text)
	r.Source = "advanced"
	if r.Detected {
		return r
	}

	// The advanced pass found nothing; scan the bounded semantic elements
	// for refusal text the full-page normalization may have diluted.
	if fb := scanSemanticElements(html); fb.Detected {
		fb.Source = "fallback"
		return fb
	}
	return r
}

// scoreText runs the catalog over normalized text and grades the outcome.
func scoreText(text string) Result {
	var r Result
	seen := make(map[string]bool)
	addPhrase := func(p string) {
		if !seen[p] {
			seen[p] = true
			r.Phrases = append(r.Phrases, p)
		}
	}

	excluded := func(idx int) bool {
		lo := idx - 12
		if lo < 0 {
			lo = 0
		}
		window := text[lo:min(idx+24, len(text))]
		for _, ex := range exclusionTerms {
			if strings.Contains(window, ex) {
				return true
			}
		}
		return false
	}

	score := 0
	for _, phrase := range strongPhrases {
		if idx := strings.Index(text, phrase); idx >= 0 && !excluded(idx) {
			score += 40
			addPhrase(phrase)
		}
	}
	for _, re := range combinedRes {
		for _, loc := range re.FindAllStringIndex(text, 4) {
			if excluded(loc[0]) {
				continue
			}
			score += 25
			addPhrase(text[loc[0]:loc[1]])
		}
	}

	// Weak signal: a decline form and a target term both present but never
	// joined. Worth a low score only.
	if score == 0 {
		hasTarget, hasDecline := false, false
		for _, tgt := range targetTerms {
			if idx := strings.Index(text, tgt); idx >= 0 && !excluded(idx) {
				hasTarget = true
				break
			}
		}
		for _, dec := range declineTerms {
			if strings.Contains(text, dec) {
				hasDecline = true
				break
			}
		}
		if hasTarget && hasDecline {
			score = 15
		}
	}

	for _, soft := range softExclusionTerms {
		if strings.Contains(text, soft) && score > 0 && score < 40 {
			score -= 5
		}
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	r.Score = score
	r.Level = levelFor(score)
	r.Detected = r.Level != LevelNone
	return r
}

func levelFor(score int) ConfidenceLevel {
	switch {
	case score >= 60:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	case score >= 25:
		return LevelLow
	case score >= 10:
		return LevelVeryLow
	}
	return LevelNone
}

// ShouldAbort applies the early-abort rule: any satisfied threshold aborts.
func ShouldAbort(r Result, cfg config.ProhibitionConfig) bool {
	if !r.Detected {
		return false
	}
	if r.Level.AtLeast(cfg.EarlyAbortMinLevel) {
		return true
	}
	if r.Level.AtLeast(cfg.EarlyAbortMinConfidence) {
		return true
	}
	if cfg.EarlyAbortMinScore > 0 && float64(r.Score) >= cfg.EarlyAbortMinScore {
		return true
	}
	if cfg.EarlyAbortMinMatches > 0 && len(r.Phrases) >= cfg.EarlyAbortMinMatches {
		return true
	}
	return false
}
