package scoring

import (
	"fmt"
	"math"
	"time"

	"cshealth/internal/domain"
)

const (
	trendThreshold  = 5
	stableThreshold = 3
	corePoints      = 4
	optionalPoints  = 6
)

type componentFunc func(domain.HealthScoringInput) (float64, []domain.HealthFactor)

var calculators = map[domain.ComponentName]componentFunc{
	domain.ComponentAdoption:     adoption,
	domain.ComponentEngagement:   engagement,
	domain.ComponentRelationship: relationship,
	domain.ComponentSupport:      support,
	domain.ComponentCommercial:   commercial,
}

// CalculateHealthScore computes composite health for one account snapshot.
// Params: scoring input, process scoring config, and calculation time.
// Returns: full health record; never fails for any input value.
func CalculateHealthScore(in domain.HealthScoringInput, cfg Config, now time.Time) domain.AccountHealth {
	effective := cfg.Effective(in.Segment)

	var components domain.HealthComponents
	var weighted float64
	for _, name := range domain.ComponentOrder {
		raw, factors := calculators[name](in)
		score := clampScore(math.Round(raw))
		weight := effective.Weights.Of(name)
		component := domain.HealthComponent{
			Score:         score,
			Weight:        weight,
			WeightedScore: float64(score) * weight,
			Trend:         domain.TrendStable,
			Factors:       factors,
			DataPoints:    len(factors),
			LastUpdated:   now,
		}
		weighted += component.WeightedScore
		setComponent(&components, name, component)
	}

	composite := clampScore(math.Round(weighted))
	health := domain.AccountHealth{
		Score:         composite,
		Grade:         effective.Grades.Grade(composite),
		Trend:         domain.TrendStable,
		Components:    components,
		CalculatedAt:  now,
		DataFreshness: Freshness(in.DaysSinceLastActivity),
		Confidence:    confidence(in),
	}

	if in.PreviousScore != nil {
		previous := *in.PreviousScore
		health.PreviousScore = &previous
		health.ScoreChange = composite - previous
	}
	health.Trend = trendOf(health.ScoreChange)
	health.ChangeReason = changeReason(health.ScoreChange, components)
	return health
}

// Freshness classifies activity recency.
// Params: days since last activity.
// Returns: fresh (<=1), stale (<=7), outdated (<=30), else missing.
func Freshness(days int) domain.DataFreshness {
	switch {
	case days <= 1:
		return domain.FreshnessFresh
	case days <= 7:
		return domain.FreshnessStale
	case days <= 30:
		return domain.FreshnessOutdated
	default:
		return domain.FreshnessMissing
	}
}

func trendOf(change int) domain.Trend {
	switch {
	case change >= trendThreshold:
		return domain.TrendImproving
	case change <= -trendThreshold:
		return domain.TrendDeclining
	default:
		return domain.TrendStable
	}
}

// changeReason names the lowest component; ties resolve in ComponentOrder.
func changeReason(change int, components domain.HealthComponents) string {
	if change > -stableThreshold && change < stableThreshold {
		return "Score is stable"
	}

	lowestName := domain.ComponentOrder[0]
	lowest, _ := components.Get(lowestName)
	for _, name := range domain.ComponentOrder[1:] {
		component, _ := components.Get(name)
		if component.Score < lowest.Score {
			lowestName, lowest = name, component
		}
	}

	direction := "improved"
	if change < 0 {
		direction = "declined"
		change = -change
	}
	return fmt.Sprintf("Score %s by %d points; primary driver: %s (score %d)", direction, change, lowestName, lowest.Score)
}

// confidence is the share of supplied data points out of ten possible.
func confidence(in domain.HealthScoringInput) int {
	supplied := corePoints
	for _, present := range []bool{
		in.DaysSinceLastCSContact != nil,
		in.InteractionCountLast30Days != nil,
		in.HasChampion != nil,
		in.OpenTickets != nil,
		in.PaymentStatus.IsKnown(),
		in.DaysToRenewal != nil,
	} {
		if present {
			supplied++
		}
	}
	return int(math.Round(float64(supplied) / float64(corePoints+optionalPoints) * 100))
}

func setComponent(dst *domain.HealthComponents, name domain.ComponentName, component domain.HealthComponent) {
	switch name {
	case domain.ComponentAdoption:
		dst.Adoption = component
	case domain.ComponentEngagement:
		dst.Engagement = component
	case domain.ComponentRelationship:
		dst.Relationship = component
	case domain.ComponentSupport:
		dst.Support = component
	case domain.ComponentCommercial:
		dst.Commercial = component
	}
}

func clampScore(v float64) int {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return int(v)
	}
}
