package models

import "strings"

// EnrichedEntry is a human-readable logged item.
type EnrichedEntry struct {
	Title     string  `json:"title"`
	SpentTime float64 `json:"spentTime"`
}

// EmailReport maps a member email to the entries they logged today.
// An email missing from the map means nothing was logged.
type EmailReport map[string][]EnrichedEntry

// Has reports whether the email has any report entry.
func (r EmailReport) Has(email string) bool {
	_, ok := r[email]
	return ok
}

// Total sums the spent time for the email; 0 when absent.
func (r EmailReport) Total(email string) float64 {
	total := 0.0
	for _, e := range r[email] {
		total += e.SpentTime
	}
	return total
}

// Merge appends entries for email, never replacing what is already there.
func (r EmailReport) Merge(email string, entries []EnrichedEntry) {
	r[email] = append(r[email], entries...)
}

// Category is the classification bucket of a member's logged time.
type Category string

const (
	CategoryValid   Category = "valid"
	CategoryInvalid Category = "invalid"
	CategoryZero    Category = "zero"
)

// RosterMember is a configured report recipient.
type RosterMember struct {
	Email      string `json:"email"`
	Webhook    string `json:"webhook"`
	ShowDetail bool   `json:"show_detail"`
}

// DisplayName derives the directory name by stripping the mail suffix.
func (m RosterMember) DisplayName(suffix string) string {
	return DisplayNameFromEmail(m.Email, suffix)
}

// DisplayNameFromEmail strips suffix from email when present.
func DisplayNameFromEmail(email, suffix string) string {
	if suffix == "" {
		return email
	}
	return strings.TrimSuffix(email, suffix)
}

// Directory maps a Slack display name to its stable user ID.
type Directory map[string]string

// Mention returns a Slack mention for name, or the bare name when unknown.
func (d Directory) Mention(name string) string {
	if id, ok := d[name]; ok && id != "" {
		return "<@" + id + ">"
	}
	return name
}
