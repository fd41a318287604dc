package agent

import (
	"strings"

	"github.com/ashureev/lead-agent/internal/domain"
)

// IsValidLead checks the structural shape of extractor output: an object
// carrying name, email and company, where a non-empty email contains '@'.
// It accepts a domain.LeadRecord, a map[string]string or a map[string]interface{}.
func IsValidLead(v interface{}) bool {
	var email string

	switch t := v.(type) {
	case domain.LeadRecord:
		email = t.Email
	case *domain.LeadRecord:
		if t == nil {
			return false
		}
		email = t.Email
	case map[string]string:
		for _, f := range requiredFields {
			if _, ok := t[f]; !ok {
				return false
			}
		}
		email = t["email"]
	case map[string]interface{}:
		for _, f := range requiredFields {
			if _, ok := t[f]; !ok {
				return false
			}
		}
		s, ok := t["email"].(string)
		if !ok && t["email"] != nil {
			return false
		}
		email = s
	default:
		return false
	}

	return email == "" || strings.Contains(email, "@")
}
