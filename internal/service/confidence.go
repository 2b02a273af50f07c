package service

import (
	"math"
	"time"

	"github.com/credence-io/credence/internal/domain"
)

const (
	DefaultBoostFactor   = 0.1
	DefaultPenaltyFactor = 0.2
	DefaultInstanceTrust = 1.0

	// Every provenance entry carries an implied individual confidence of
	// 0.8. A richer model would derive this per entry.
	baselineSourceConfidence = 0.8

	// Diversity reward saturates once a claim has evidence from this many
	// distinct source types.
	sourceDiversitySaturation = 3.0
)

// ConfidenceConfig tunes the effective-confidence pipeline.
type ConfidenceConfig struct {
	BoostFactor   float64 `json:"boost_factor"`
	PenaltyFactor float64 `json:"penalty_factor"`
	InstanceTrust float64 `json:"instance_trust"`
}

func DefaultConfidenceConfig() ConfidenceConfig {
	return ConfidenceConfig{
		BoostFactor:   DefaultBoostFactor,
		PenaltyFactor: DefaultPenaltyFactor,
		InstanceTrust: DefaultInstanceTrust,
	}
}

// RelatedClaim pairs a relationship with the counterpart claim's
// stale-adjusted confidence. Callers supply the stale-adjusted value rather
// than the counterpart's full effective confidence; that cut is what keeps
// evaluation from recursing forever around relationship cycles.
type RelatedClaim struct {
	Relationship    domain.Relationship
	StaleConfidence domain.ConfidenceInterval
}

// ComputeEffectiveConfidence recomputes a claim's confidence interval from
// its evidence, its age and its relationships. Pure and total: any input
// produces a valid interval.
//
// The pipeline runs four steps in fixed order: provenance aggregation,
// staleness decay, relationship adjustment, instance trust scaling.
func ComputeEffectiveConfidence(
	provenance []domain.ProvenanceEntry,
	now time.Time,
	staleAt *time.Time,
	halfLife time.Duration,
	related []RelatedClaim,
	cfg ConfidenceConfig,
) domain.ConfidenceInterval {
	lower, upper := aggregateProvenance(provenance)

	factor := stalenessFactor(now, staleAt, halfLife)
	lower *= factor
	upper *= factor

	boost, penalty := relationshipAdjustments(related, cfg)
	lower *= penalty
	upper = math.Min(upper*boost*penalty, 1.0)

	lower *= cfg.InstanceTrust
	upper *= cfg.InstanceTrust

	return domain.ClampedConfidence(lower, upper)
}

// StaleAdjustedConfidence runs only the provenance and staleness steps.
// Callers use it to prepare counterpart values for RelatedClaim.
func StaleAdjustedConfidence(provenance []domain.ProvenanceEntry, now time.Time, staleAt *time.Time, halfLife time.Duration) domain.ConfidenceInterval {
	lower, upper := aggregateProvenance(provenance)
	factor := stalenessFactor(now, staleAt, halfLife)
	return domain.ClampedConfidence(lower*factor, upper*factor)
}

// aggregateProvenance folds a claim's evidence into raw bounds. The upper
// bound is the probability that at least one source is right; the lower bound
// anchors on the strongest source, scaled by how diverse the evidence is.
func aggregateProvenance(provenance []domain.ProvenanceEntry) (lower, upper float64) {
	if len(provenance) == 0 {
		return 0, 0
	}

	product := 1.0
	maxConfidence := 0.0
	sourceTypes := make(map[string]struct{}, len(provenance))
	for _, entry := range provenance {
		c := baselineSourceConfidence
		product *= 1 - c
		if c > maxConfidence {
			maxConfidence = c
		}
		sourceTypes[entry.SourceType] = struct{}{}
	}
	upper = 1 - product

	diversity := 0.5 + 0.5*math.Min(float64(len(sourceTypes))/sourceDiversitySaturation, 1.0)
	lower = maxConfidence * diversity

	return lower, upper
}

// stalenessFactor is exactly 1.0 until the staleness marker passes, then
// halves for every half-life elapsed since it.
func stalenessFactor(now time.Time, staleAt *time.Time, halfLife time.Duration) float64 {
	if staleAt == nil {
		return 1.0
	}
	if !now.After(*staleAt) {
		return 1.0
	}
	halfLives := float64(now.Sub(*staleAt)) / float64(halfLife)
	return math.Pow(0.5, halfLives)
}

// relationshipAdjustments weighs each counterpart's stale-adjusted upper
// bound by the relationship strength. Supports feed the boost, Contradicts
// feed the penalty, all other relationship types are neutral here.
func relationshipAdjustments(related []RelatedClaim, cfg ConfidenceConfig) (boost, penalty float64) {
	supportSum := 0.0
	contradictionSum := 0.0

	for _, rc := range related {
		weighted := rc.StaleConfidence.Upper * rc.Relationship.Strength
		switch rc.Relationship.Type {
		case domain.RelSupports:
			supportSum += weighted
		case domain.RelContradicts:
			contradictionSum += weighted
		}
	}

	boost = 1 + supportSum*cfg.BoostFactor
	penalty = math.Max(0, 1-contradictionSum*cfg.PenaltyFactor)
	return boost, penalty
}
