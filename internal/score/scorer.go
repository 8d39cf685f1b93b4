// Package score rates opportunities against the business profile. Every
// function here is pure: same opportunity, profile, and clock in, same
// scores out. All outputs live on a 0-100 scale.
package score

import (
	"strings"
	"time"

	"github.com/rednix/eu-grants-monitor-agent/internal/config"
	"github.com/rednix/eu-grants-monitor-agent/internal/models"
)

// Scorer bundles the profile and weight configuration so callers score many
// opportunities without re-passing them.
type Scorer struct {
	profile models.BusinessProfile
	cfg     config.ScoringConfig
}

// New returns a Scorer. The config is assumed validated.
func New(profile models.BusinessProfile, cfg config.ScoringConfig) *Scorer {
	return &Scorer{profile: profile, cfg: cfg}
}

// Score computes the full score set for one opportunity at the given time.
func (s *Scorer) Score(opp models.Opportunity, now time.Time) models.ScoreResult {
	rel := Relevance(opp, s.profile)
	cplx := Complexity(opp, s.profile)
	success := SuccessProbability(rel, cplx, s.cfg.Success)
	urgency := DeadlineUrgency(opp, now, s.cfg.UrgencyHorizonDays)

	w := s.cfg.Weights
	priority := w.Relevance*rel +
		w.Simplicity*(100-cplx) +
		w.Success*success +
		w.Urgency*urgency

	return models.ScoreResult{
		Relevance:          rel,
		Complexity:         cplx,
		SuccessProbability: success,
		DeadlineUrgency:    urgency,
		Priority:           clamp(priority),
	}
}

// Relevance measures how well an opportunity matches the profile. An
// opportunity that carries no keywords or technology areas scores zero; with
// nothing to match on, it cannot be judged relevant.
func Relevance(opp models.Opportunity, profile models.BusinessProfile) float64 {
	oppTerms := lowerSet(append(append([]string{}, opp.Keywords...), opp.TechnologyAreas...))
	if len(oppTerms) == 0 {
		return 0
	}

	var score float64

	if countryMatches(profile.Country, opp.EligibleCountries) {
		score += 10
	}
	if organizationMatches(profile.CompanySize, opp.TargetOrganizations) {
		score += 15
	}

	expertise := lowerSet(append(append([]string{}, profile.AIExpertise...), profile.TechnologyFocus...))
	score += overlapRatio(expertise, oppTerms) * 40

	sectors := lowerSet(profile.IndustrySectors)
	score += overlapRatio(sectors, oppTerms) * 30

	score += fundingFit(opp, profile) * 30

	return clamp(score)
}

// countryMatches treats an empty eligibility list as open to everyone.
func countryMatches(country string, eligible []string) bool {
	if len(eligible) == 0 {
		return true
	}
	country = strings.ToLower(strings.TrimSpace(country))
	if country == "" {
		return false
	}
	for _, c := range eligible {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == country || c == "eu" || c == "all" {
			return true
		}
	}
	return false
}

// smeHints mark target-organization labels that include small companies.
var smeHints = []string{"sme", "small", "startup", "micro", "enterprise", "business", "company", "any"}

func organizationMatches(companySize string, targets []string) bool {
	if len(targets) == 0 {
		return true
	}
	for _, t := range targets {
		t = strings.ToLower(t)
		for _, hint := range smeHints {
			if strings.Contains(t, hint) {
				return true
			}
		}
	}
	return false
}

// overlapRatio is |profile ∩ opp| / |profile|, matched by substring in
// either direction so "machine learning" meets "machine learning models".
func overlapRatio(profileTerms, oppTerms map[string]struct{}) float64 {
	if len(profileTerms) == 0 {
		return 0
	}
	matched := 0
	for p := range profileTerms {
		for o := range oppTerms {
			if strings.Contains(o, p) || strings.Contains(p, o) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(profileTerms))
}

// fundingFit returns 1 inside the preferred range and degrades with partial
// credit outside it. Below the minimum, credit scales with how close the
// amount gets; above the maximum, credit shrinks as the excess grows and
// bottoms out at twice the preferred maximum.
func fundingFit(opp models.Opportunity, profile models.BusinessProfile) float64 {
	amount, ok := opp.FundingAmount()
	if !ok {
		return 0.5
	}
	min, max := profile.PreferredFundingMin, profile.PreferredFundingMax
	if min <= 0 && max <= 0 {
		return 1
	}

	switch {
	case max > 0 && amount > max:
		excess := amount / max
		if excess > 2 {
			excess = 2
		}
		return (2 - excess) * 0.5
	case min > 0 && amount < min:
		return (amount / min) * 0.5
	default:
		return 1
	}
}

// Complexity estimates application effort. Monotonic in the funding amount,
// the budget range breadth, and the number of eligibility constraints.
func Complexity(opp models.Opportunity, profile models.BusinessProfile) float64 {
	score := 30.0

	if amount, ok := opp.FundingAmount(); ok {
		switch {
		case amount > 1_000_000:
			score += 30
		case amount > 500_000:
			score += 20
		case amount > 100_000:
			score += 10
		}
	}

	if opp.BudgetMin != nil && opp.BudgetMax != nil {
		switch breadth := *opp.BudgetMax - *opp.BudgetMin; {
		case breadth > 2_000_000:
			score += 15
		case breadth > 500_000:
			score += 10
		case breadth > 100_000:
			score += 5
		}
	}

	constraints := len(opp.EligibleCountries) + len(opp.TargetOrganizations)
	constraintPoints := float64(constraints) * 4
	if constraintPoints > 20 {
		constraintPoints = 20
	}
	score += constraintPoints

	if profile.MaxProjectDurationMonths > 0 && opp.DurationMonths > profile.MaxProjectDurationMonths {
		over := float64(opp.DurationMonths - profile.MaxProjectDurationMonths)
		points := over * 2
		if points > 15 {
			points = 15
		}
		score += points
	}

	if hasConsortiumLanguage(opp) {
		score += 15
	}

	return clamp(score)
}

var consortiumHints = []string{"consortium", "partnership", "collaboration", "joint", "multi-partner", "multinational"}

func hasConsortiumLanguage(opp models.Opportunity) bool {
	haystack := strings.ToLower(strings.Join(opp.Keywords, " ") + " " + opp.Synopsis + " " + opp.Description)
	for _, hint := range consortiumHints {
		if strings.Contains(haystack, hint) {
			return true
		}
	}
	return false
}

// SuccessProbability blends relevance with inverted complexity.
func SuccessProbability(relevance, complexity float64, w config.SuccessWeights) float64 {
	return clamp(w.Relevance*relevance + w.Simplicity*(100-complexity))
}

// DeadlineUrgency rises quadratically as an open deadline approaches:
// 100 × (1 − d/H)² for d days remaining inside the horizon H, zero outside
// it and zero for anything not currently open.
func DeadlineUrgency(opp models.Opportunity, now time.Time, horizonDays float64) float64 {
	if opp.Status != models.StatusOpen {
		return 0
	}
	days, ok := opp.DaysUntilDeadline(now)
	if !ok || days < 0 || days > horizonDays {
		return 0
	}
	frac := 1 - days/horizonDays
	return clamp(100 * frac * frac)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

func lowerSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			set[item] = struct{}{}
		}
	}
	return set
}
