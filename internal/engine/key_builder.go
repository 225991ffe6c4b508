package engine

import (
	"strings"

	"cshealth/internal/domain"
)

// BuildAlertID builds stable alert identity for one rule type and account.
// Params: alert type and account ID.
// Returns: "{type}-{accountId}", identical across scoring passes.
func BuildAlertID(alertType domain.AlertType, accountID string) string {
	var b strings.Builder
	b.Grow(len(alertType) + 1 + len(accountID))
	b.WriteString(string(alertType))
	b.WriteByte('-')
	b.WriteString(strings.TrimSpace(accountID))
	return b.String()
}

// ParseAlertID splits stable alert ID into type and account.
// Params: alert ID produced by BuildAlertID.
// Returns: alert type, account ID, and false when no known type prefix matches.
func ParseAlertID(alertID string) (domain.AlertType, string, bool) {
	for _, alertType := range domain.AlertTypes {
		prefix := string(alertType) + "-"
		if strings.HasPrefix(alertID, prefix) && len(alertID) > len(prefix) {
			return alertType, alertID[len(prefix):], true
		}
	}
	return "", "", false
}
