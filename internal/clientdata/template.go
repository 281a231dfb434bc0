package clientdata

import (
	"strings"

	"formrunner/internal/config"
)

// ExpandTemplate substitutes {{placeholder}} tokens in a tenant message or
// subject template. Unknown placeholders are left in place so a broken
// template is visible in the submitted text rather than silently blanked.
func ExpandTemplate(tmpl string, client config.Client, companyName string) string {
	c := NewCombiner(client)
	repl := strings.NewReplacer(
		"{{company_name}}", companyName,
		"{{client_company}}", client.CompanyName,
		"{{full_name}}", c.FullName(),
		"{{last_name}}", client.LastName,
		"{{first_name}}", client.FirstName,
		"{{email}}", c.Email(),
		"{{phone}}", c.Phone(),
		"{{url}}", client.URL,
	)
	return repl.Replace(tmpl)
}

// MessageContext selects a context-specific template variant. Forms whose
// surrounding text signals a specific inquiry kind (quotation, repair,
// appointment, recruiting) get the matching body when the tenant supplies
// one; otherwise the default message is used.
type MessageContext string

const (
	ContextDefault     MessageContext = "default"
	ContextQuotation   MessageContext = "quotation"
	ContextRepair      MessageContext = "repair"
	ContextAppointment MessageContext = "appointment"
	ContextRecruit     MessageContext = "recruit"
)

var messageContextCues = []struct {
	ctx  MessageContext
	cues []string
}{
	{ContextQuotation, []string{"見積", "お見積り", "quotation", "estimate"}},
	{ContextRepair, []string{"修理", "故障", "repair"}},
	{ContextAppointment, []string{"予約", "来店", "appointment", "reservation"}},
	{ContextRecruit, []string{"採用", "求人", "リクルート", "recruit"}},
}

// DetectMessageContext scans form-scoped text for inquiry-kind cues.
func DetectMessageContext(texts []string) MessageContext {
	joined := strings.ToLower(strings.Join(texts, " "))
	for _, entry := range messageContextCues {
		for _, cue := range entry.cues {
			if strings.Contains(joined, strings.ToLower(cue)) {
				return entry.ctx
			}
		}
	}
	return ContextDefault
}
