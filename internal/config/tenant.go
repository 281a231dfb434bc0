package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
)

// Client is the identity record filled into forms. Field names follow the
// upstream two-sheet export.
type Client struct {
	CompanyName     string `json:"company_name"`
	CompanyNameKana string `json:"company_name_kana"`

	LastName          string `json:"last_name"`
	FirstName         string `json:"first_name"`
	LastNameKana      string `json:"last_name_kana"`
	FirstNameKana     string `json:"first_name_kana"`
	LastNameHiragana  string `json:"last_name_hiragana"`
	FirstNameHiragana string `json:"first_name_hiragana"`

	Email  string `json:"email"`   // unified
	Email1 string `json:"email_1"` // local part
	Email2 string `json:"email_2"` // domain part

	Phone  string `json:"phone"` // unified
	Phone1 string `json:"phone_1"`
	Phone2 string `json:"phone_2"`
	Phone3 string `json:"phone_3"`

	Postal1 string `json:"postal_code_1"`
	Postal2 string `json:"postal_code_2"`

	Address1 string `json:"address_1"` // prefecture
	Address2 string `json:"address_2"` // city
	Address3 string `json:"address_3"` // street
	Address4 string `json:"address_4"` // building number
	Address5 string `json:"address_5"` // building name

	Department string `json:"department"`
	Position   string `json:"position"`
	Gender     string `json:"gender"`
	URL        string `json:"url"`
}

// Targeting is the per-tenant sending policy and message content.
type Targeting struct {
	Subject string `json:"subject"`
	Message string `json:"message"`

	// MessageVariants holds optional context-specific bodies keyed by
	// inquiry kind (quotation, repair, appointment, recruit). The default
	// Message is used when a detected context has no variant.
	MessageVariants map[string]string `json:"message_variants,omitempty"`

	SendDaysOfWeek []int  `json:"send_days_of_week"` // 0=Sunday .. 6=Saturday
	SendStartTime  string `json:"send_start_time"`   // HH:MM
	SendEndTime    string `json:"send_end_time"`     // HH:MM
	MaxDailySends  int    `json:"max_daily_sends"`   // 0 = uncapped
	Timezone       string `json:"timezone"`          // defaults to Asia/Tokyo
}

// Tenant is the two-sheet tenant config handed over by the upstream loader.
type Tenant struct {
	Client      Client    `json:"client"`
	Targeting   Targeting `json:"targeting"`
	TargetingID int64     `json:"targeting_id"`
	ClientID    int64     `json:"client_id"`
	Active      bool      `json:"active"`
}

var hhmmRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Validate enforces the strict two-sheet rules. It reports every violation
// rather than the first one so a broken export is fixed in one round.
func (t *Tenant) Validate() error {
	var problems []string

	if t.TargetingID <= 0 {
		problems = append(problems, "targeting_id must be a positive integer")
	}
	if t.ClientID <= 0 {
		problems = append(problems, "client_id must be a positive integer")
	}
	if t.Targeting.Message == "" {
		problems = append(problems, "targeting.message is required")
	}
	if !hhmmRe.MatchString(t.Targeting.SendStartTime) {
		problems = append(problems, fmt.Sprintf("targeting.send_start_time %q is not HH:MM", t.Targeting.SendStartTime))
	}
	if !hhmmRe.MatchString(t.Targeting.SendEndTime) {
		problems = append(problems, fmt.Sprintf("targeting.send_end_time %q is not HH:MM", t.Targeting.SendEndTime))
	}
	if len(t.Targeting.SendDaysOfWeek) == 0 {
		problems = append(problems, "targeting.send_days_of_week is required")
	}
	for _, d := range t.Targeting.SendDaysOfWeek {
		if d < 0 || d > 6 {
			problems = append(problems, fmt.Sprintf("targeting.send_days_of_week contains %d, want 0-6", d))
		}
	}
	if t.Targeting.MaxDailySends < 0 {
		problems = append(problems, "targeting.max_daily_sends must be a positive integer when set")
	}
	if t.Client.LastName == "" || t.Client.FirstName == "" {
		problems = append(problems, "client.last_name and client.first_name are required")
	}
	if t.Client.Email == "" && (t.Client.Email1 == "" || t.Client.Email2 == "") {
		problems = append(problems, "client email is required (unified or split)")
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("tenant config invalid: %v", problems)
}

// LoadTenant reads and validates a tenant config file. The path may be a
// glob; the newest match wins (the upstream loader writes one file per
// refresh and never deletes old ones mid-run).
func LoadTenant(pathOrGlob string) (*Tenant, error) {
	path, err := ResolveNewest(pathOrGlob)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenant config: %w", err)
	}
	var t Tenant
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse tenant config %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}
