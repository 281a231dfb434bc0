package logging

import (
	"regexp"

	"go.uber.org/zap/zapcore"
)

// The sanitizer runs once at the core, not per call site, so a field that
// happens to carry an address or phone number is masked no matter which
// package logged it.

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRe = regexp.MustCompile(`\b0\d{1,4}-?\d{1,4}-?\d{3,4}\b`)
)

// Sanitize masks email addresses and JP phone numbers in a string.
func Sanitize(s string) string {
	s = emailRe.ReplaceAllString(s, "<email>")
	s = phoneRe.ReplaceAllString(s, "<phone>")
	return s
}

type sanitizingCore struct {
	zapcore.Core
}

func (c *sanitizingCore) With(fields []zapcore.Field) zapcore.Core {
	return &sanitizingCore{Core: c.Core.With(sanitizeFields(fields))}
}

func (c *sanitizingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *sanitizingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = Sanitize(ent.Message)
	return c.Core.Write(ent, sanitizeFields(fields))
}

func sanitizeFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	copy(out, fields)
	for i := range out {
		if out[i].Type == zapcore.StringType {
			out[i].String = Sanitize(out[i].String)
		}
	}
	return out
}
