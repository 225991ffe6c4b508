package domain

import "time"

// ActivityPoint is one weekly bucket of tenant activity.
type ActivityPoint struct {
	Date        string `json:"date"`
	Items       int    `json:"items"`
	KanbanCards int    `json:"kanbanCards"`
	Orders      int    `json:"orders"`
	ActiveUsers int    `json:"activeUsers"`
}

// Actions returns total tracked actions in the bucket.
// Params: none.
// Returns: items + kanban cards + orders.
func (p ActivityPoint) Actions() int {
	return p.Items + p.KanbanCards + p.Orders
}

// UsageMetrics aggregates product usage for one account across its tenants.
type UsageMetrics struct {
	TotalItems            int             `json:"totalItems"`
	TotalKanbanCards      int             `json:"totalKanbanCards"`
	TotalOrders           int             `json:"totalOrders"`
	TotalUsers            int             `json:"totalUsers"`
	ActiveUsersLast7Days  int             `json:"activeUsersLast7Days"`
	ActiveUsersLast30Days int             `json:"activeUsersLast30Days"`
	DaysSinceLastActivity int             `json:"daysSinceLastActivity"`
	LastActivityAt        *time.Time      `json:"lastActivityAt,omitempty"`
	ActivityTimeline      []ActivityPoint `json:"activityTimeline,omitempty"`
}

// TotalActivity returns lifetime tracked actions.
// Params: none.
// Returns: items + kanban cards + orders.
func (u UsageMetrics) TotalActivity() int {
	return u.TotalItems + u.TotalKanbanCards + u.TotalOrders
}

// CommercialMetrics carries billing state for alerting.
type CommercialMetrics struct {
	PaymentStatus PaymentStatus `json:"paymentStatus,omitempty"`
	DaysToRenewal *int          `json:"daysToRenewal,omitempty"`
	RenewalDate   *time.Time    `json:"renewalDate,omitempty"`
	ARR           *float64      `json:"arr,omitempty"`
	MRR           *float64      `json:"mrr,omitempty"`
	OverdueAmount float64       `json:"overdueAmount,omitempty"`
	Plan          string        `json:"plan,omitempty"`
}

// SupportMetrics carries ticket state for alerting.
type SupportMetrics struct {
	OpenTickets          int      `json:"openTickets"`
	CriticalTickets      int      `json:"criticalTickets"`
	AvgResponseTimeHours *float64 `json:"avgResponseTimeHours,omitempty"`
	CSAT                 *float64 `json:"csat,omitempty"`
}

// AlertGenerationInput is full rule-engine context for one account.
// Params: identity, current/previous health, and usage/commercial/support metrics.
// Returns: immutable input for one alert generation pass.
type AlertGenerationInput struct {
	AccountID      string             `json:"accountId"`
	AccountName    string             `json:"accountName,omitempty"`
	AccountAgeDays int                `json:"accountAgeDays"`
	Health         *AccountHealth     `json:"health,omitempty"`
	PreviousHealth *AccountHealth     `json:"previousHealth,omitempty"`
	Usage          UsageMetrics       `json:"usage"`
	Commercial     *CommercialMetrics `json:"commercial,omitempty"`
	Support        *SupportMetrics    `json:"support,omitempty"`
	ARR            *float64           `json:"arr,omitempty"`
	OwnerID        string             `json:"ownerId,omitempty"`
	OwnerName      string             `json:"ownerName,omitempty"`
}

// CRMRecord is relationship enrichment resolved for one tenant.
type CRMRecord struct {
	CompanyID                  string
	Name                       string
	OwnerID                    string
	OwnerName                  string
	Segment                    string
	Tier                       string
	DaysSinceLastCSContact     *int
	InteractionCountLast30Days *int
	HasChampion                *bool
}

// BillingRecord is commercial enrichment resolved for one tenant.
type BillingRecord struct {
	CustomerID    string
	PaymentStatus PaymentStatus
	DaysToRenewal *int
	RenewalDate   *time.Time
	ARR           *float64
	MRR           *float64
	OverdueAmount float64
	Plan          string
}
