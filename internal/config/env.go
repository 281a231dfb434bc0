package config

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

// Env collects the process environment the runner reads. Credentials stay
// out of the config files on purpose.
type Env struct {
	StoreURL string // persistence layer base URL
	StoreKey string // service key

	CompanyTable   string // "" or "extra" variant selector
	SendQueueTable string

	RunID    string // claim owner
	Headless string // PLAYWRIGHT_HEADLESS override, "" if unset
}

// ReadEnv snapshots the relevant environment variables.
func ReadEnv() Env {
	e := Env{
		StoreURL:       os.Getenv("SUPABASE_URL"),
		StoreKey:       os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		CompanyTable:   os.Getenv("COMPANY_TABLE"),
		SendQueueTable: os.Getenv("SEND_QUEUE_TABLE"),
		RunID:          os.Getenv("GITHUB_RUN_ID"),
		Headless:       os.Getenv("PLAYWRIGHT_HEADLESS"),
	}
	if e.RunID == "" {
		// Local runs claim under a unique owner so stale requeue can still
		// distinguish them.
		e.RunID = "local-" + uuid.NewString()
	}
	return e
}

// UseExtraTables reports whether the RPC name suffix variant is selected.
func (e Env) UseExtraTables() bool {
	return strings.HasSuffix(e.SendQueueTable, "_extra") ||
		strings.HasSuffix(e.CompanyTable, "_extra")
}
