package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTenant() *Tenant {
	return &Tenant{
		TargetingID: 7,
		ClientID:    3,
		Active:      true,
		Client: Client{
			LastName:  "山田",
			FirstName: "太郎",
			Email1:    "a.b",
			Email2:    "example.com",
		},
		Targeting: Targeting{
			Message:        "ご連絡いたしました。",
			SendDaysOfWeek: []int{1, 2, 3, 4, 5},
			SendStartTime:  "09:00",
			SendEndTime:    "18:00",
			MaxDailySends:  20,
		},
	}
}

func TestTenantValidate(t *testing.T) {
	require.NoError(t, validTenant().Validate())

	tests := []struct {
		name   string
		mutate func(*Tenant)
		phrase string
	}{
		{"bad start time", func(tn *Tenant) { tn.Targeting.SendStartTime = "9:00" }, "send_start_time"},
		{"bad end time", func(tn *Tenant) { tn.Targeting.SendEndTime = "24:00" }, "send_end_time"},
		{"day out of range", func(tn *Tenant) { tn.Targeting.SendDaysOfWeek = []int{1, 7} }, "send_days_of_week"},
		{"no days", func(tn *Tenant) { tn.Targeting.SendDaysOfWeek = nil }, "send_days_of_week"},
		{"negative cap", func(tn *Tenant) { tn.Targeting.MaxDailySends = -1 }, "max_daily_sends"},
		{"no message", func(tn *Tenant) { tn.Targeting.Message = "" }, "message"},
		{"no email", func(tn *Tenant) { tn.Client.Email1 = "" }, "email"},
		{"no targeting id", func(tn *Tenant) { tn.TargetingID = 0 }, "targeting_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tn := validTenant()
			tt.mutate(tn)
			err := tn.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.phrase)
		})
	}
}

func TestTenantValidateUnifiedEmailSuffices(t *testing.T) {
	tn := validTenant()
	tn.Client.Email1, tn.Client.Email2 = "", ""
	tn.Client.Email = "a.b@example.com"
	require.NoError(t, tn.Validate())
}

func TestResolveNewestPicksLatestMatch(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "client_config_1.json")
	newer := filepath.Join(dir, "client_config_2.json")
	require.NoError(t, os.WriteFile(old, []byte("{}"), 0o600))
	require.NoError(t, os.WriteFile(newer, []byte("{}"), 0o600))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	got, err := ResolveNewest(filepath.Join(dir, "client_config_*.json"))
	require.NoError(t, err)
	assert.Equal(t, newer, got)
}

func TestResolveNewestPlainPathPassesThrough(t *testing.T) {
	got, err := ResolveNewest("/does/not/exist.json")
	require.NoError(t, err)
	assert.Equal(t, "/does/not/exist.json", got)
}

func TestResolveNewestNoMatch(t *testing.T) {
	_, err := ResolveNewest(filepath.Join(t.TempDir(), "*.json"))
	require.Error(t, err)
}

func TestWriteTenantHandoff(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteTenantHandoff(dir, validTenant())
	require.NoError(t, err)

	base := filepath.Base(path)
	assert.True(t, strings.HasPrefix(base, "client_config_"), "name %q", base)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var round Tenant
	require.NoError(t, json.Unmarshal(data, &round))
	assert.Equal(t, int64(7), round.TargetingID)

	// No temp siblings left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".tmp_"), "leftover %s", e.Name())
	}
}

func TestLoadWorkerConfigDefaultsAndOverride(t *testing.T) {
	cfg, err := LoadWorkerConfig("")
	require.NoError(t, err)
	assert.Equal(t, 180*time.Second, cfg.HardTimeout())
	assert.Equal(t, 300, cfg.Queue.StaleRequeueIntervalSec)

	path := filepath.Join(t.TempDir(), "worker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hard_timeout_sec: 60\nnum_workers: 3\n"), 0o600))
	cfg, err = LoadWorkerConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, cfg.HardTimeout())
	assert.Equal(t, 3, cfg.NumWorkers)
	// Untouched keys keep defaults.
	assert.Equal(t, "moderate", cfg.Prohibition.EarlyAbortMinLevel)
}

func TestLoadTenantRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteTenantHandoff(dir, validTenant())
	require.NoError(t, err)

	tn, err := LoadTenant(path)
	require.NoError(t, err)
	assert.Equal(t, "山田", tn.Client.LastName)

	tn, err = LoadTenant(filepath.Join(dir, "client_config_*.json"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), tn.ClientID)
}

func TestEnvRunIDFallback(t *testing.T) {
	t.Setenv("GITHUB_RUN_ID", "")
	e := ReadEnv()
	assert.True(t, strings.HasPrefix(e.RunID, "local-"))

	t.Setenv("GITHUB_RUN_ID", "123456")
	e = ReadEnv()
	assert.Equal(t, "123456", e.RunID)
}

func TestUseExtraTables(t *testing.T) {
	t.Setenv("SEND_QUEUE_TABLE", "send_queue_extra")
	t.Setenv("COMPANY_TABLE", "")
	assert.True(t, ReadEnv().UseExtraTables())

	t.Setenv("SEND_QUEUE_TABLE", "send_queue")
	assert.False(t, ReadEnv().UseExtraTables())
}
