// Package config holds the runner's configuration surfaces: the worker
// config (YAML, checked into the repo or passed on the command line) and the
// tenant config (the two-sheet client/targeting JSON handed over by the
// upstream loader). Worker config always wins where the two overlap.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// WorkerConfig tunes the per-worker pipeline.
type WorkerConfig struct {
	// Retries and pacing.
	MaxRetries       int `yaml:"max_retries"`
	PostInputDelayMs int `yaml:"post_input_delay_ms"`

	// Timeouts, all in seconds unless suffixed.
	PageLoadTimeoutSec    int `yaml:"page_load_timeout_sec"`
	ElementWaitTimeoutSec int `yaml:"element_wait_timeout_sec"`
	ClickTimeoutSec       int `yaml:"click_timeout_sec"`
	PreProcessingMaxSec   int `yaml:"pre_processing_max_sec"`
	HardTimeoutSec        int `yaml:"hard_timeout_sec"`

	// Multi-process sizing.
	NumWorkers int `yaml:"num_workers"`

	// Company names containing any of these are skipped before DOM work.
	SkipNameKeywords []string `yaml:"skip_name_keywords"`

	// Prohibition detector.
	Prohibition ProhibitionConfig `yaml:"prohibition"`

	// Browser environment.
	Browser BrowserConfig `yaml:"browser"`

	// Shard rotation.
	Shard ShardConfig `yaml:"shard"`

	// Queue coordination.
	Queue QueueConfig `yaml:"queue"`
}

// ProhibitionConfig tunes the no-solicitation detector and its early abort.
type ProhibitionConfig struct {
	EarlyAbortMinLevel      string  `yaml:"early_abort_min_level"`      // "moderate"
	EarlyAbortMinConfidence string  `yaml:"early_abort_min_confidence"` // "high"
	EarlyAbortMinScore      float64 `yaml:"early_abort_min_score"`
	EarlyAbortMinMatches    int     `yaml:"early_abort_min_matches"`
	CacheSize               int     `yaml:"cache_size"`
	CacheTTLSec             int     `yaml:"cache_ttl_sec"`
}

// BrowserConfig mirrors the browser manager knobs.
type BrowserConfig struct {
	Headless         string   `yaml:"headless"` // auto, true, false
	UserAgent        string   `yaml:"user_agent"`
	AcceptLanguage   string   `yaml:"accept_language"`
	Locale           string   `yaml:"locale"`
	Timezone         string   `yaml:"timezone"`
	BlockedResources []string `yaml:"blocked_resources"` // image, font, stylesheet
	CookieControl    CookieControlConfig `yaml:"cookie_control"`
}

// CookieControlConfig drives the cookie/CMP blackhole.
type CookieControlConfig struct {
	BlockConsentScripts  bool `yaml:"block_consent_scripts"`
	StripThirdPartySetCookie bool `yaml:"strip_third_party_set_cookie"`
	OverrideDocumentCookie   bool `yaml:"override_document_cookie"`
	BannerRejectWindowMs     int  `yaml:"banner_reject_window_ms"`
}

// ShardConfig controls queue shard pinning and rotation.
type ShardConfig struct {
	RotationEnabled bool   `yaml:"rotation_enabled"`
	RotationMode    string `yaml:"rotation_mode"` // sequential, random
	EmptyWindowSec  int    `yaml:"empty_window_sec"`
	MaxShards       int    `yaml:"max_shards"`
}

// QueueConfig controls claim backoff and maintenance.
type QueueConfig struct {
	StaleRequeueIntervalSec int `yaml:"stale_requeue_interval_sec"`
	StaleThresholdMin       int `yaml:"stale_threshold_min"`
	SuccessCountTTLSec      int `yaml:"success_count_ttl_sec"`
	EmptyBackoffBaseSec     int `yaml:"empty_backoff_base_sec"`
	EmptyBackoffMaxSec      int `yaml:"empty_backoff_max_sec"`
}

// DefaultWorkerConfig returns the tuned defaults used when no YAML is given.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		MaxRetries:            1,
		PostInputDelayMs:      150,
		PageLoadTimeoutSec:    30,
		ElementWaitTimeoutSec: 10,
		ClickTimeoutSec:       10,
		PreProcessingMaxSec:   30,
		HardTimeoutSec:        180,
		NumWorkers:            1,
		SkipNameKeywords: []string{
			"市役所", "区役所", "役場", "省庁", "警察", "消防", "裁判所",
		},
		Prohibition: ProhibitionConfig{
			EarlyAbortMinLevel:      "moderate",
			EarlyAbortMinConfidence: "high",
			EarlyAbortMinScore:      60,
			EarlyAbortMinMatches:    2,
			CacheSize:               256,
			CacheTTLSec:             600,
		},
		Browser: BrowserConfig{
			Headless:       "auto",
			AcceptLanguage: "ja-JP,ja;q=0.9,en;q=0.8",
			Locale:         "ja-JP",
			Timezone:       "Asia/Tokyo",
			BlockedResources: []string{"image", "font"},
			CookieControl: CookieControlConfig{
				BlockConsentScripts:  true,
				BannerRejectWindowMs: 3000,
			},
		},
		Shard: ShardConfig{
			RotationEnabled: true,
			RotationMode:    "sequential",
			EmptyWindowSec:  120,
			MaxShards:       8,
		},
		Queue: QueueConfig{
			StaleRequeueIntervalSec: 300,
			StaleThresholdMin:       15,
			SuccessCountTTLSec:      30,
			EmptyBackoffBaseSec:     5,
			EmptyBackoffMaxSec:      120,
		},
	}
}

// LoadWorkerConfig reads a YAML worker config, layering it over defaults.
func LoadWorkerConfig(path string) (WorkerConfig, error) {
	cfg := DefaultWorkerConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read worker config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse worker config: %w", err)
	}
	return cfg, nil
}

// HardTimeout returns the per-company watchdog duration.
func (c WorkerConfig) HardTimeout() time.Duration {
	if c.HardTimeoutSec <= 0 {
		return 180 * time.Second
	}
	return time.Duration(c.HardTimeoutSec) * time.Second
}

// PageLoadTimeout returns the navigation timeout.
func (c WorkerConfig) PageLoadTimeout() time.Duration {
	if c.PageLoadTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.PageLoadTimeoutSec) * time.Second
}

// ElementWaitTimeout returns the selector wait timeout.
func (c WorkerConfig) ElementWaitTimeout() time.Duration {
	if c.ElementWaitTimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ElementWaitTimeoutSec) * time.Second
}

// ClickTimeout returns the click step timeout.
func (c WorkerConfig) ClickTimeout() time.Duration {
	if c.ClickTimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ClickTimeoutSec) * time.Second
}
