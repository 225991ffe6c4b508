package scoring

import (
	"fmt"
	"math"

	"cshealth/internal/domain"
)

const (
	itemTarget    = 50.0
	itemMaxPts    = 25.0
	kanbanTarget  = 100.0
	kanbanMaxPts  = 30.0
	orderTarget   = 20.0
	orderMaxPts   = 30.0
	recencyMaxPts = 35.0
	monthlyMaxPts = 30.0
	weeklyMaxPts  = 20.0
	userMaxPts    = 15.0
	contactMaxPts = 40.0
	touchMaxPts   = 30.0
	championPts   = 30.0

	relationshipNoData = 50.0
	contactUnknownPts  = 25.0
	supportNoData      = 80.0
	supportBase        = 60.0
	ticketMaxPts       = 40.0
	criticalPenalty    = 20.0
	commercialNoData   = 70.0
	paymentBonus       = 30.0
)

// adoption scores product breadth and activity velocity.
func adoption(in domain.HealthScoringInput) (float64, []domain.HealthFactor) {
	items := math.Min(itemMaxPts, float64(in.ItemCount)/itemTarget*itemMaxPts)
	kanban := math.Min(kanbanMaxPts, float64(in.KanbanCardCount)/kanbanTarget*kanbanMaxPts)
	orders := math.Min(orderMaxPts, float64(in.OrderCount)/orderTarget*orderMaxPts)

	total := in.ItemCount + in.KanbanCardCount + in.OrderCount
	// Accounts younger than one day are treated as one day old.
	velocity := float64(total) / float64(max(in.AccountAgeDays, 1))
	var bonus float64
	switch {
	case velocity > 2:
		bonus = 15
	case velocity > 1:
		bonus = 10
	case velocity > 0.5:
		bonus = 5
	}

	factors := []domain.HealthFactor{
		{
			Name:        "Items created",
			Value:       in.ItemCount,
			Impact:      impactOf(items, itemMaxPts),
			Points:      round1(items),
			Explanation: fmt.Sprintf("%d items tracked (full credit at %d)", in.ItemCount, int(itemTarget)),
		},
		{
			Name:        "Kanban cards",
			Value:       in.KanbanCardCount,
			Impact:      impactOf(kanban, kanbanMaxPts),
			Points:      round1(kanban),
			Explanation: fmt.Sprintf("%d workflow cards created (full credit at %d)", in.KanbanCardCount, int(kanbanTarget)),
		},
		{
			Name:        "Orders placed",
			Value:       in.OrderCount,
			Impact:      impactOf(orders, orderMaxPts),
			Points:      round1(orders),
			Explanation: fmt.Sprintf("%d orders placed (full credit at %d)", in.OrderCount, int(orderTarget)),
		},
		{
			Name:        "Adoption velocity",
			Value:       round1(velocity),
			Impact:      impactOf(bonus, 15),
			Points:      bonus,
			Explanation: fmt.Sprintf("%.1f actions per day since signup", velocity),
		},
	}
	return items + kanban + orders + bonus, factors
}

// engagement scores recency and breadth of active users.
func engagement(in domain.HealthScoringInput) (float64, []domain.HealthFactor) {
	recency := math.Max(0, recencyMaxPts-math.Min(recencyMaxPts, float64(in.DaysSinceLastActivity)*2.5))

	var monthly, ratio float64
	if in.TotalUsers > 0 {
		ratio = float64(in.ActiveUsersLast30Days) / float64(in.TotalUsers)
		monthly = math.Round(ratio * monthlyMaxPts)
	}
	weekly := math.Min(weeklyMaxPts, float64(in.ActiveUsersLast7Days)*4)
	users := math.Min(userMaxPts, float64(in.TotalUsers)*3)

	factors := []domain.HealthFactor{
		{
			Name:        "Activity recency",
			Value:       in.DaysSinceLastActivity,
			Impact:      recencyImpact(in.DaysSinceLastActivity),
			Points:      round1(recency),
			Explanation: fmt.Sprintf("Last activity %d days ago", in.DaysSinceLastActivity),
		},
		{
			Name:        "Monthly active ratio",
			Value:       round1(ratio * 100),
			Impact:      impactOf(monthly, monthlyMaxPts),
			Points:      monthly,
			Explanation: fmt.Sprintf("%d of %d users active in the last 30 days", in.ActiveUsersLast30Days, in.TotalUsers),
		},
		{
			Name:        "Weekly active users",
			Value:       in.ActiveUsersLast7Days,
			Impact:      impactOf(weekly, weeklyMaxPts),
			Points:      weekly,
			Explanation: fmt.Sprintf("%d users active in the last 7 days", in.ActiveUsersLast7Days),
		},
		{
			Name:        "Team size",
			Value:       in.TotalUsers,
			Impact:      impactOf(users, userMaxPts),
			Points:      users,
			Explanation: fmt.Sprintf("%d users provisioned", in.TotalUsers),
		},
	}
	return recency + monthly + weekly + users, factors
}

// relationship scores CS touch recency, interactions, and champion presence.
func relationship(in domain.HealthScoringInput) (float64, []domain.HealthFactor) {
	if in.DaysSinceLastCSContact == nil && in.InteractionCountLast30Days == nil && in.HasChampion == nil {
		return relationshipNoData, []domain.HealthFactor{{
			Name:        "Relationship data",
			Value:       nil,
			Impact:      domain.ImpactNeutral,
			Points:      relationshipNoData,
			Explanation: "No CRM relationship data; neutral baseline applied",
		}}
	}

	var score float64
	factors := make([]domain.HealthFactor, 0, 3)

	if in.DaysSinceLastCSContact != nil {
		days := *in.DaysSinceLastCSContact
		pts := math.Max(0, contactMaxPts-math.Min(contactMaxPts, float64(days)*1.5))
		score += pts
		factors = append(factors, domain.HealthFactor{
			Name:        "CS contact recency",
			Value:       days,
			Impact:      impactOf(pts, contactMaxPts),
			Points:      round1(pts),
			Explanation: fmt.Sprintf("Last customer-success contact %d days ago", days),
		})
	} else {
		score += contactUnknownPts
		factors = append(factors, domain.HealthFactor{
			Name:        "CS contact recency",
			Value:       nil,
			Impact:      domain.ImpactNeutral,
			Points:      contactUnknownPts,
			Explanation: "Last customer-success contact unknown",
		})
	}

	if in.InteractionCountLast30Days != nil {
		count := *in.InteractionCountLast30Days
		pts := math.Min(touchMaxPts, float64(count)*10)
		score += pts
		factors = append(factors, domain.HealthFactor{
			Name:        "Recent interactions",
			Value:       count,
			Impact:      impactOf(pts, touchMaxPts),
			Points:      pts,
			Explanation: fmt.Sprintf("%d interactions in the last 30 days", count),
		})
	}

	if in.HasChampion != nil {
		if *in.HasChampion {
			score += championPts
			factors = append(factors, domain.HealthFactor{
				Name:        "Champion",
				Value:       true,
				Impact:      domain.ImpactPositive,
				Points:      championPts,
				Explanation: "Account has an identified champion",
			})
		} else {
			factors = append(factors, domain.HealthFactor{
				Name:        "Champion",
				Value:       false,
				Impact:      domain.ImpactNegative,
				Points:      0,
				Explanation: "No identified champion",
			})
		}
	}
	return score, factors
}

// support scores ticket load and satisfaction; no data reads as healthy.
func support(in domain.HealthScoringInput) (float64, []domain.HealthFactor) {
	score := supportNoData
	var factors []domain.HealthFactor

	if in.OpenTickets != nil {
		open := *in.OpenTickets
		next := supportBase + math.Max(0, ticketMaxPts-math.Min(ticketMaxPts, float64(open)*10))
		impact := domain.ImpactNegative
		switch {
		case open == 0:
			impact = domain.ImpactPositive
		case open <= 2:
			impact = domain.ImpactNeutral
		}
		factors = append(factors, domain.HealthFactor{
			Name:        "Open tickets",
			Value:       open,
			Impact:      impact,
			Points:      next - score,
			Explanation: fmt.Sprintf("%d open support tickets", open),
		})
		score = next
	}

	if in.CriticalTickets != nil && *in.CriticalTickets > 0 {
		critical := *in.CriticalTickets
		next := math.Max(0, score-float64(critical)*criticalPenalty)
		factors = append(factors, domain.HealthFactor{
			Name:        "Critical tickets",
			Value:       critical,
			Impact:      domain.ImpactNegative,
			Points:      next - score,
			Explanation: fmt.Sprintf("%d critical tickets open", critical),
		})
		score = next
	}

	if in.CSAT != nil {
		csat := *in.CSAT
		next := score*0.7 + (csat/100*30)*0.3
		impact := domain.ImpactNegative
		switch {
		case csat >= 80:
			impact = domain.ImpactPositive
		case csat >= 60:
			impact = domain.ImpactNeutral
		}
		factors = append(factors, domain.HealthFactor{
			Name:        "CSAT",
			Value:       csat,
			Impact:      impact,
			Points:      round1(next - score),
			Explanation: fmt.Sprintf("Customer satisfaction %.0f/100", csat),
		})
		score = next
	}

	if len(factors) == 0 {
		factors = append(factors, domain.HealthFactor{
			Name:        "Support data",
			Value:       nil,
			Impact:      domain.ImpactNeutral,
			Points:      supportNoData,
			Explanation: "No support tickets on record",
		})
	}
	return score, factors
}

// commercial scores payment standing and renewal proximity.
func commercial(in domain.HealthScoringInput) (float64, []domain.HealthFactor) {
	score := commercialNoData
	var factors []domain.HealthFactor

	if in.PaymentStatus.IsKnown() {
		next := paymentPoints(in.PaymentStatus) + paymentBonus
		impact := domain.ImpactPositive
		switch in.PaymentStatus {
		case domain.PaymentOverdue:
			impact = domain.ImpactNegative
		case domain.PaymentAtRisk:
			impact = domain.ImpactNeutral
		}
		factors = append(factors, domain.HealthFactor{
			Name:        "Payment status",
			Value:       string(in.PaymentStatus),
			Impact:      impact,
			Points:      next - score,
			Explanation: fmt.Sprintf("Payment status is %s", in.PaymentStatus),
		})
		score = next
	}

	if in.DaysToRenewal != nil {
		days := *in.DaysToRenewal
		renewal := renewalPoints(days)
		next := score*0.6 + renewal*0.4
		impact := domain.ImpactPositive
		switch {
		case days <= 30:
			impact = domain.ImpactNegative
		case days <= 90:
			impact = domain.ImpactNeutral
		}
		factors = append(factors, domain.HealthFactor{
			Name:        "Renewal proximity",
			Value:       days,
			Impact:      impact,
			Points:      round1(next - score),
			Explanation: fmt.Sprintf("Renewal in %d days", days),
		})
		score = next
	}

	if len(factors) == 0 {
		factors = append(factors, domain.HealthFactor{
			Name:        "Billing data",
			Value:       nil,
			Impact:      domain.ImpactNeutral,
			Points:      commercialNoData,
			Explanation: "No billing data; neutral baseline applied",
		})
	}
	return score, factors
}

func paymentPoints(status domain.PaymentStatus) float64 {
	switch status {
	case domain.PaymentCurrent:
		return 40
	case domain.PaymentOverdue:
		return 10
	case domain.PaymentAtRisk:
		return 25
	default:
		return 0
	}
}

func renewalPoints(days int) float64 {
	switch {
	case days <= 30:
		return 10
	case days <= 60:
		return 20
	case days <= 90:
		return 25
	default:
		return 30
	}
}

// impactOf classifies earned points against the factor ceiling.
func impactOf(points, ceiling float64) domain.Impact {
	switch {
	case points >= ceiling/2:
		return domain.ImpactPositive
	case points > 0:
		return domain.ImpactNeutral
	default:
		return domain.ImpactNegative
	}
}

func recencyImpact(days int) domain.Impact {
	switch {
	case days <= 3:
		return domain.ImpactPositive
	case days <= 7:
		return domain.ImpactNeutral
	default:
		return domain.ImpactNegative
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
