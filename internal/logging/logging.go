// Package logging builds the process-wide zap logger for the runner.
//
// CI runs are expected to stay quiet: lifecycle events (process_start,
// process_done) log at INFO, everything else at DEBUG. Setting
// QUIET_MAPPING_LOGS=1 lifts the analyzer/mapper subtree to WARN so mapping
// chatter never reaches CI output.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// quietEnv suppresses mapping INFO/DEBUG when set to a truthy value.
const quietEnv = "QUIET_MAPPING_LOGS"

// mappingSubtrees are logger names raised to WARN under QUIET_MAPPING_LOGS.
var mappingSubtrees = []string{"analyzer", "mapper", "splitfields"}

// New constructs the root logger. verbose switches the floor to DEBUG.
func New(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &sanitizingCore{Core: core}
	}))
	if err != nil {
		return nil, err
	}
	return logger, nil
}

// Quiet reports whether mapping logs are suppressed for this process.
func Quiet() bool {
	v := strings.TrimSpace(os.Getenv(quietEnv))
	return v == "1" || strings.EqualFold(v, "true")
}

// For returns a named child logger, applying the QUIET_MAPPING_LOGS floor
// for mapping subtrees.
func For(root *zap.Logger, name string) *zap.Logger {
	l := root.Named(name)
	if Quiet() {
		for _, sub := range mappingSubtrees {
			if name == sub || strings.HasPrefix(name, sub+".") {
				return l.WithOptions(zap.IncreaseLevel(zapcore.WarnLevel))
			}
		}
	}
	return l
}
