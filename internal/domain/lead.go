// Package domain contains core domain types for the lead agent.
package domain

import "strings"

// Placeholder values carried by the fallback lead.
const (
	UnknownName    = "Unknown"
	UnknownEmail   = "unknown@example.com"
	UnknownCompany = "Unknown"
)

// LeadRecord holds the contact fields extracted from a free-text message.
type LeadRecord struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
}

// FallbackLead returns the sentinel lead used when extraction cannot produce
// trustworthy data.
func FallbackLead() LeadRecord {
	return LeadRecord{
		Name:    UnknownName,
		Email:   UnknownEmail,
		Company: UnknownCompany,
	}
}

// IsFallback reports whether the lead is exactly the fallback sentinel.
func (l LeadRecord) IsFallback() bool {
	return l == FallbackLead()
}

// HasContactInfo reports whether at least one field carries real contact data.
// Blank fields and the fallback placeholders count as absent.
func (l LeadRecord) HasContactInfo() bool {
	return present(l.Name, UnknownName) ||
		present(l.Email, UnknownEmail) ||
		present(l.Company, UnknownCompany)
}

func present(value, placeholder string) bool {
	v := strings.TrimSpace(value)
	return v != "" && v != placeholder
}
