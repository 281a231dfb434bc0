package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"
)

func TestSanitizeMasksMachineData(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"contact a.b@example.com now", "contact <email> now"},
		{"tel 03-1234-5678 listed", "tel <phone> listed"},
		{"plain message", "plain message"},
		{"both x@y.co.jp and 090-1111-2222", "both <email> and <phone>"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizingCoreAppliesToFields(t *testing.T) {
	obs, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(&sanitizingCore{Core: obs})

	logger.Info("filled a.b@example.com", zap.String("value", "090-1234-5678"))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Message != "filled <email>" {
		t.Errorf("message = %q", entries[0].Message)
	}
	if got := entries[0].ContextMap()["value"]; got != "<phone>" {
		t.Errorf("field value = %q, want <phone>", got)
	}
}

func TestQuietMappingLogs(t *testing.T) {
	t.Setenv(quietEnv, "1")

	obs, logs := observer.New(zapcore.DebugLevel)
	root := zap.New(obs)

	For(root, "analyzer").Info("mapping chatter")
	For(root, "analyzer").Warn("kept")
	For(root, "worker").Info("lifecycle")

	var msgs []string
	for _, e := range logs.All() {
		msgs = append(msgs, e.Message)
	}
	if len(msgs) != 2 || msgs[0] != "kept" || msgs[1] != "lifecycle" {
		t.Errorf("messages = %v, want [kept lifecycle]", msgs)
	}
}
