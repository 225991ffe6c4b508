package domain

import (
	"errors"
	"time"
)

var (
	// ErrAccountNotFound indicates no report was received for account ID.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidAlertID indicates alert ID without a known type prefix.
	ErrInvalidAlertID = errors.New("invalid alert id")
)

// Account is unified per-account view: latest report joined with enrichment and health.
type Account struct {
	AccountID   string             `json:"accountId"`
	AccountName string             `json:"accountName,omitempty"`
	OwnerID     string             `json:"ownerId,omitempty"`
	OwnerName   string             `json:"ownerName,omitempty"`
	Segment     string             `json:"segment,omitempty"`
	Tier        string             `json:"tier,omitempty"`
	Health      AccountHealth      `json:"health"`
	Usage       UsageMetrics       `json:"usage"`
	Commercial  *CommercialMetrics `json:"commercial,omitempty"`
	Support     *SupportMetrics    `json:"support,omitempty"`
	ARR         *float64           `json:"arr,omitempty"`
	AlertCount  int                `json:"alertCount"`
	ReceivedAt  time.Time          `json:"receivedAt"`
	EvaluatedAt time.Time          `json:"evaluatedAt"`
}

// AlertFilter narrows alert listings; empty fields match everything.
type AlertFilter struct {
	AccountID string
	Severity  Severity
	Status    AlertStatus
}

// Match reports whether alert passes filter.
func (f AlertFilter) Match(alert Alert) bool {
	if f.AccountID != "" && alert.AccountID != f.AccountID {
		return false
	}
	if f.Severity != "" && alert.Severity != f.Severity {
		return false
	}
	if f.Status != "" && alert.Status != f.Status {
		return false
	}
	return true
}
