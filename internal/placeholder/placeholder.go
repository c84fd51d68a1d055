// Package placeholder extracts and substitutes {{token}} markers in email
// template subjects and bodies.
package placeholder

import (
	"regexp"
	"time"
)

// tokenPattern matches a well-formed token. \w is ASCII-only in RE2, so an
// identifier is exactly [A-Za-z0-9_]+.
var tokenPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Template is the pair of fields that may carry tokens.
type Template struct {
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
}

// Values maps a token name to its replacement.
type Values map[string]string

// Extract returns the unique token names in text, in order of first
// occurrence. Malformed markers are skipped.
func Extract(text string) []string {
	matches := tokenPattern.FindAllStringSubmatch(text, -1)
	tokens := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		name := m[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		tokens = append(tokens, name)
	}
	return tokens
}

// ExtractTemplate returns the tokens of the subject followed by any new
// tokens of the body.
func ExtractTemplate(t Template) []string {
	return Merge(Extract(t.Subject), Extract(t.HTMLBody))
}

// Replace substitutes every well-formed token in text. Tokens without a value
// become the empty string. Substituted values are not scanned again.
func Replace(text string, values Values) string {
	return tokenPattern.ReplaceAllStringFunc(text, func(match string) string {
		// match is "{{name}}"
		return values[match[2:len(match)-2]]
	})
}

// ReplaceTemplate applies Replace to both fields.
func ReplaceTemplate(t Template, values Values) Template {
	return Template{
		Subject:  Replace(t.Subject, values),
		HTMLBody: Replace(t.HTMLBody, values),
	}
}

// Merge concatenates token lists, dropping duplicates and keeping the first
// occurrence.
func Merge(lists ...[]string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, tok := range list {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			out = append(out, tok)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// Missing returns the tokens that have no entry in values.
func Missing(tokens []string, values Values) []string {
	out := []string{}
	for _, tok := range tokens {
		if _, ok := values[tok]; !ok {
			out = append(out, tok)
		}
	}
	return out
}

const sampleDateLayout = "January 2, 2006"

// Defaults returns sample values for quick previews. Date samples are
// derived from now.
func Defaults(now time.Time) Values {
	return Values{
		"user_name":           "John Doe",
		"user_email":          "john.doe@example.com",
		"user_phone":          "+1 (555) 123-4567",
		"company_name":        "Move Plan",
		"support_email":       "support@moveplan.com",
		"current_year":        now.Format("2006"),
		"ticket_id":           "TICKET-12345",
		"ticket_subject":      "Sample Support Ticket",
		"ticket_status":       "Open",
		"ticket_message":      "I am experiencing an issue with...",
		"response_message":    "Thank you for contacting us. We have reviewed your issue...",
		"responder_name":      "Sarah Smith",
		"meeting_title":       "Team Standup Meeting",
		"meeting_date":        now.Format(sampleDateLayout),
		"meeting_time":        "10:00 AM",
		"meeting_link":        "https://meet.example.com/sample-meeting",
		"host_name":           "Jane Doe",
		"duration_minutes":    "30",
		"meeting_notes":       "Please review the agenda before joining.",
		"cancellation_reason": "Scheduling conflict",
		"verification_link":   "https://example.com/verify?token=SAMPLE_TOKEN",
		"reset_link":          "https://example.com/reset-password?token=SAMPLE_TOKEN",
		"order_id":            "ORD-12345",
		"order_total":         "$149.99",
		"order_items":         "3 items",
		"newsletter_title":    "Monthly Newsletter - January 2025",
		"newsletter_content":  "This month we have exciting updates...",
		"unsubscribe_link":    "https://example.com/unsubscribe",
		"trial_end_date":      now.AddDate(0, 0, 14).Format(sampleDateLayout),
	}
}

// WithOverrides returns a copy of base with overrides applied on top.
func WithOverrides(base, overrides Values) Values {
	out := make(Values, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
