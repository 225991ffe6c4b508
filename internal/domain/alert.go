package domain

import "time"

// AlertType is closed set of rule kinds.
type AlertType string

const (
	AlertChurnRisk            AlertType = "churn_risk"
	AlertHealthDrop           AlertType = "health_drop"
	AlertLowEngagement        AlertType = "low_engagement"
	AlertOnboardingStalled    AlertType = "onboarding_stalled"
	AlertRenewalApproaching   AlertType = "renewal_approaching"
	AlertExpansionOpportunity AlertType = "expansion_opportunity"
	AlertSupportEscalation    AlertType = "support_escalation"
	AlertUsageDecline         AlertType = "usage_decline"
	AlertPaymentOverdue       AlertType = "payment_overdue"
	AlertChampionLeft         AlertType = "champion_left"
)

// AlertTypes lists every rule kind in evaluation order.
var AlertTypes = []AlertType{
	AlertChurnRisk,
	AlertHealthDrop,
	AlertLowEngagement,
	AlertOnboardingStalled,
	AlertRenewalApproaching,
	AlertExpansionOpportunity,
	AlertSupportEscalation,
	AlertUsageDecline,
	AlertPaymentOverdue,
	AlertChampionLeft,
}

// IsKnown reports whether type belongs to the closed rule set.
// Params: none.
// Returns: true for supported alert types.
func (t AlertType) IsKnown() bool {
	for _, known := range AlertTypes {
		if t == known {
			return true
		}
	}
	return false
}

// AlertCategory groups alert types for triage.
type AlertCategory string

const (
	CategoryRisk           AlertCategory = "risk"
	CategoryOpportunity    AlertCategory = "opportunity"
	CategoryActionRequired AlertCategory = "action_required"
	CategoryInformational  AlertCategory = "informational"
)

// Category maps alert type to its fixed category.
// Params: none.
// Returns: category for the type; informational for unknown values.
func (t AlertType) Category() AlertCategory {
	switch t {
	case AlertChurnRisk, AlertHealthDrop, AlertLowEngagement, AlertUsageDecline, AlertChampionLeft:
		return CategoryRisk
	case AlertExpansionOpportunity:
		return CategoryOpportunity
	case AlertOnboardingStalled, AlertRenewalApproaching, AlertSupportEscalation, AlertPaymentOverdue:
		return CategoryActionRequired
	default:
		return CategoryInformational
	}
}

// Severity ranks alert urgency.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank returns sort rank where lower is more urgent.
// Params: none.
// Returns: 0 critical .. 3 low, 4 for unknown.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// IsKnown reports whether severity is one of four supported levels.
// Params: none.
// Returns: true for critical/high/medium/low.
func (s Severity) IsKnown() bool {
	return s.Rank() < 4
}

// SLAStatus tracks progress against alert deadline.
type SLAStatus string

const (
	SLAOnTrack  SLAStatus = "on_track"
	SLAAtRisk   SLAStatus = "at_risk"
	SLABreached SLAStatus = "breached"
	SLANone     SLAStatus = "none"
)

// AlertStatus is user-controlled lifecycle state.
type AlertStatus string

const (
	StatusOpen         AlertStatus = "open"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusInProgress   AlertStatus = "in_progress"
	StatusResolved     AlertStatus = "resolved"
	StatusSnoozed      AlertStatus = "snoozed"
)

// IsKnown reports whether status is one of lifecycle states.
// Params: none.
// Returns: true for supported statuses.
func (s AlertStatus) IsKnown() bool {
	switch s {
	case StatusOpen, StatusAcknowledged, StatusInProgress, StatusResolved, StatusSnoozed:
		return true
	default:
		return false
	}
}

// Alert is one triggered rule for one account.
// Params: computed content from rule engine plus lifecycle fields merged from store.
// Returns: presentation payload serialized verbatim.
type Alert struct {
	ID              string        `json:"id"`
	AccountID       string        `json:"accountId"`
	AccountName     string        `json:"accountName,omitempty"`
	Type            AlertType     `json:"type"`
	Category        AlertCategory `json:"category"`
	Severity        Severity      `json:"severity"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Evidence        []string      `json:"evidence"`
	SuggestedAction string        `json:"suggestedAction"`
	Playbook        string        `json:"playbook,omitempty"`
	OwnerID         string        `json:"ownerId,omitempty"`
	OwnerName       string        `json:"ownerName,omitempty"`
	SLAHours        int           `json:"slaHours,omitempty"`
	SLADeadline     *time.Time    `json:"slaDeadline,omitempty"`
	SLAStatus       SLAStatus     `json:"slaStatus"`
	Status          AlertStatus   `json:"status"`
	CreatedAt       time.Time     `json:"createdAt"`
	ARRAtRisk       *float64      `json:"arrAtRisk,omitempty"`

	AcknowledgedAt *time.Time  `json:"acknowledgedAt,omitempty"`
	AcknowledgedBy string      `json:"acknowledgedBy,omitempty"`
	SnoozedUntil   *time.Time  `json:"snoozedUntil,omitempty"`
	SnoozeReason   string      `json:"snoozeReason,omitempty"`
	ResolvedAt     *time.Time  `json:"resolvedAt,omitempty"`
	ResolvedBy     string      `json:"resolvedBy,omitempty"`
	Outcome        string      `json:"outcome,omitempty"`
	Notes          []AlertNote `json:"notes,omitempty"`
}

// AlertNote is one free-text note appended to an alert.
type AlertNote struct {
	ID        string    `json:"id"`
	AlertID   string    `json:"alertId"`
	Content   string    `json:"content"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// StoredUpdate holds lifecycle fields that survive alert recomputation.
type StoredUpdate struct {
	AlertID        string      `json:"alertId"`
	Status         AlertStatus `json:"status,omitempty"`
	AcknowledgedAt *time.Time  `json:"acknowledgedAt,omitempty"`
	AcknowledgedBy string      `json:"acknowledgedBy,omitempty"`
	SnoozedUntil   *time.Time  `json:"snoozedUntil,omitempty"`
	SnoozeReason   string      `json:"snoozeReason,omitempty"`
	ResolvedAt     *time.Time  `json:"resolvedAt,omitempty"`
	ResolvedBy     string      `json:"resolvedBy,omitempty"`
	Outcome        string      `json:"outcome,omitempty"`
	OwnerID        string      `json:"ownerId,omitempty"`
	OwnerName      string      `json:"ownerName,omitempty"`
	Notes          []AlertNote `json:"notes,omitempty"`
	FirstSeenAt    *time.Time  `json:"firstSeenAt,omitempty"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// NoteInput is note payload inside a lifecycle update request.
type NoteInput struct {
	Content   string `json:"content"`
	CreatedBy string `json:"createdBy"`
}

// AlertUpdate is partial lifecycle update; nil fields are left unchanged.
type AlertUpdate struct {
	Status         *AlertStatus `json:"status,omitempty"`
	AcknowledgedAt *time.Time   `json:"acknowledgedAt,omitempty"`
	AcknowledgedBy *string      `json:"acknowledgedBy,omitempty"`
	SnoozedUntil   *time.Time   `json:"snoozedUntil,omitempty"`
	SnoozeReason   *string      `json:"snoozeReason,omitempty"`
	ResolvedAt     *time.Time   `json:"resolvedAt,omitempty"`
	ResolvedBy     *string      `json:"resolvedBy,omitempty"`
	Outcome        *string      `json:"outcome,omitempty"`
	AssignedTo     *string      `json:"assignedTo,omitempty"`
	AssignedToName *string      `json:"assignedToName,omitempty"`
	Note           *NoteInput   `json:"note,omitempty"`

	// FirstSeenAt is set by the scoring pass only, never by API callers.
	FirstSeenAt *time.Time `json:"-"`
}

// Notification is outbound payload for one newly raised alert.
type Notification struct {
	Channel      string    `json:"channel"`
	Message      string    `json:"message"`
	Alert        Alert     `json:"alert"`
	PlaybookName string    `json:"playbook_name,omitempty"`
	HealthScore  *int      `json:"health_score,omitempty"`
	HealthGrade  Grade     `json:"health_grade,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
