package domain

import "time"

// Grade is letter summary of composite health score.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// Trend describes score movement against previous pass.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// DataFreshness classifies how recent the latest tenant activity is.
// Params: fresh (<=1 day), stale (<=7), outdated (<=30), missing (older).
// Returns: freshness marker serialized verbatim for dashboard consumers.
type DataFreshness string

const (
	FreshnessFresh    DataFreshness = "fresh"
	FreshnessStale    DataFreshness = "stale"
	FreshnessOutdated DataFreshness = "outdated"
	FreshnessMissing  DataFreshness = "missing"
)

// Impact classifies one factor contribution.
type Impact string

const (
	ImpactPositive Impact = "positive"
	ImpactNeutral  Impact = "neutral"
	ImpactNegative Impact = "negative"
)

// PaymentStatus is billing standing of one account.
type PaymentStatus string

const (
	PaymentCurrent PaymentStatus = "current"
	PaymentOverdue PaymentStatus = "overdue"
	PaymentAtRisk  PaymentStatus = "at_risk"
	PaymentUnknown PaymentStatus = "unknown"
)

// IsKnown reports whether status carries a scoring signal.
// Params: none.
// Returns: true for current/overdue/at_risk.
func (s PaymentStatus) IsKnown() bool {
	switch s {
	case PaymentCurrent, PaymentOverdue, PaymentAtRisk:
		return true
	default:
		return false
	}
}

// HealthScoringInput is one account snapshot for a scoring pass.
// Params: required usage counts plus optional relationship/support/commercial signals (nil means absent).
// Returns: ephemeral scoring input, never persisted.
type HealthScoringInput struct {
	ItemCount             int `json:"itemCount"`
	KanbanCardCount       int `json:"kanbanCardCount"`
	OrderCount            int `json:"orderCount"`
	TotalUsers            int `json:"totalUsers"`
	ActiveUsersLast7Days  int `json:"activeUsersLast7Days"`
	ActiveUsersLast30Days int `json:"activeUsersLast30Days"`
	DaysSinceLastActivity int `json:"daysSinceLastActivity"`
	AccountAgeDays        int `json:"accountAgeDays"`

	DaysSinceLastCSContact     *int  `json:"daysSinceLastCSContact,omitempty"`
	InteractionCountLast30Days *int  `json:"interactionCountLast30Days,omitempty"`
	HasChampion                *bool `json:"hasChampion,omitempty"`

	OpenTickets          *int     `json:"openTickets,omitempty"`
	CriticalTickets      *int     `json:"criticalTickets,omitempty"`
	AvgResponseTimeHours *float64 `json:"avgResponseTimeHours,omitempty"`
	CSAT                 *float64 `json:"csat,omitempty"`

	PaymentStatus PaymentStatus `json:"paymentStatus,omitempty"`
	DaysToRenewal *int          `json:"daysToRenewal,omitempty"`

	Segment       string `json:"segment,omitempty"`
	Tier          string `json:"tier,omitempty"`
	PreviousScore *int   `json:"previousScore,omitempty"`
}

// HealthFactor is one explainable contribution to a component score.
type HealthFactor struct {
	Name        string  `json:"name"`
	Value       any     `json:"value"`
	Impact      Impact  `json:"impact"`
	Points      float64 `json:"points"`
	Explanation string  `json:"explanation"`
}

// HealthComponent is one weighted scoring dimension.
type HealthComponent struct {
	Score         int            `json:"score"`
	Weight        float64        `json:"weight"`
	WeightedScore float64        `json:"weightedScore"`
	Trend         Trend          `json:"trend"`
	Factors       []HealthFactor `json:"factors"`
	DataPoints    int            `json:"dataPoints"`
	LastUpdated   time.Time      `json:"lastUpdated"`
}

// ComponentName identifies one of the five scoring dimensions.
type ComponentName string

const (
	ComponentAdoption     ComponentName = "adoption"
	ComponentEngagement   ComponentName = "engagement"
	ComponentRelationship ComponentName = "relationship"
	ComponentSupport      ComponentName = "support"
	ComponentCommercial   ComponentName = "commercial"
)

// ComponentOrder is fixed iteration order used for tie-breaking.
var ComponentOrder = []ComponentName{
	ComponentAdoption,
	ComponentEngagement,
	ComponentRelationship,
	ComponentSupport,
	ComponentCommercial,
}

// HealthComponents holds exactly the five named dimensions.
type HealthComponents struct {
	Adoption     HealthComponent `json:"adoption"`
	Engagement   HealthComponent `json:"engagement"`
	Relationship HealthComponent `json:"relationship"`
	Support      HealthComponent `json:"support"`
	Commercial   HealthComponent `json:"commercial"`
}

// Get returns component by name.
// Params: component name.
// Returns: component copy and false for unknown names.
func (c HealthComponents) Get(name ComponentName) (HealthComponent, bool) {
	switch name {
	case ComponentAdoption:
		return c.Adoption, true
	case ComponentEngagement:
		return c.Engagement, true
	case ComponentRelationship:
		return c.Relationship, true
	case ComponentSupport:
		return c.Support, true
	case ComponentCommercial:
		return c.Commercial, true
	default:
		return HealthComponent{}, false
	}
}

// AccountHealth is scoring output for one account.
type AccountHealth struct {
	Score         int              `json:"score"`
	Grade         Grade            `json:"grade"`
	Trend         Trend            `json:"trend"`
	Components    HealthComponents `json:"components"`
	PreviousScore *int             `json:"previousScore,omitempty"`
	ScoreChange   int              `json:"scoreChange"`
	ChangeReason  string           `json:"changeReason"`
	CalculatedAt  time.Time        `json:"calculatedAt"`
	DataFreshness DataFreshness    `json:"dataFreshness"`
	Confidence    int              `json:"confidence"`
}
