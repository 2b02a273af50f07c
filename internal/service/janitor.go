package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/credence-io/credence/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrStore wraps claim store failures surfaced during a sweep.
var ErrStore = errors.New("janitor store operation failed")

// ErrInvalidTransition marks a tier move that skips rungs of the ladder.
var ErrInvalidTransition = errors.New("invalid tier transition")

// Demoting a permanent claim takes near-total distrust, not merely dipping
// under the ordinary demotion threshold.
const permanentDemotionFloor = 0.2

// Janitor enforces the retention lifecycle: it deletes claims that outlived
// their tier's TTL, promotes claims that earned durability, and demotes
// claims whose confidence collapsed. Permanent claims are never deleted.
type Janitor struct {
	store  domain.ClaimStore
	config JanitorConfig
	logger *zap.Logger

	// mu serializes sweeps and guards metrics.
	mu      sync.Mutex
	metrics *JanitorMetrics
}

func NewJanitor(store domain.ClaimStore, config JanitorConfig, logger *zap.Logger) (*Janitor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Janitor{
		store:   store,
		config:  config,
		logger:  logger,
		metrics: NewJanitorMetrics(),
	}, nil
}

func (j *Janitor) Config() JanitorConfig {
	return j.config
}

// Metrics returns a snapshot of the cumulative lifecycle counters.
func (j *Janitor) Metrics() *JanitorMetrics {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.metrics.Clone()
}

func (j *Janitor) ResetMetrics() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.metrics.Reset()
}

// Sweep runs one full lifecycle cycle: TTL deletion for ephemeral, task and
// project tiers, then promotions, then demotions. It returns a snapshot of
// the cumulative metrics. A store failure aborts the cycle; counters already
// recorded for completed phases are kept.
func (j *Janitor) Sweep(ctx context.Context) (*JanitorMetrics, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	start := time.Now()
	now := start.UTC()

	j.logger.Debug("starting sweep", zap.Bool("dry_run", j.config.DryRun))

	deleted := 0
	for _, tier := range []domain.Tier{domain.TierEphemeral, domain.TierTask, domain.TierProject} {
		ttl, _ := j.config.TTLFor(tier)
		n, err := j.sweepTier(ctx, tier, ttl, now)
		if err != nil {
			return nil, err
		}
		deleted += n
	}

	// A claim moves at most one tier per sweep. Without this, a claim
	// promoted into a tier would be picked up again by that tier's own
	// pass and cascade several rungs in a single cycle.
	moved := make(map[uuid.UUID]struct{})

	promoted := 0
	if j.config.AutoPromote {
		for _, tier := range []domain.Tier{domain.TierEphemeral, domain.TierTask, domain.TierProject} {
			n, err := j.promoteCandidates(ctx, tier, now, moved)
			if err != nil {
				return nil, err
			}
			promoted += n
		}
	}

	demoted := 0
	if j.config.AutoDemote {
		for _, tier := range []domain.Tier{domain.TierPermanent, domain.TierProject, domain.TierTask} {
			n, err := j.demoteCandidates(ctx, tier, now, moved)
			if err != nil {
				return nil, err
			}
			demoted += n
		}
	}

	j.metrics.RecordSweep()
	j.metrics.AddRuntime(time.Since(start))

	j.logger.Info("sweep complete",
		zap.Int("deleted", deleted),
		zap.Int("promoted", promoted),
		zap.Int("demoted", demoted),
		zap.Duration("runtime", time.Since(start)))

	return j.metrics.Clone(), nil
}

// sweepTier deletes claims in the tier whose age exceeds the TTL. Permanent
// claims are exempt from deletion no matter what TTL is passed.
func (j *Janitor) sweepTier(ctx context.Context, tier domain.Tier, ttl time.Duration, now time.Time) (int, error) {
	if tier == domain.TierPermanent {
		return 0, nil
	}

	claims, err := j.store.Query(ctx, domain.ClaimQuery{Tier: tier})
	if err != nil {
		return 0, storeErr(fmt.Sprintf("query %s claims", tier), err)
	}

	cutoff := now.Add(-ttl)
	var stale []uuid.UUID
	for i := range claims {
		if claims[i].CreatedAt.Before(cutoff) {
			stale = append(stale, claims[i].ID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	if j.config.DryRun {
		j.logger.Info("dry run: would delete stale claims",
			zap.String("tier", string(tier)),
			zap.Int("count", len(stale)))
		return 0, nil
	}

	n, err := j.store.DeleteClaims(ctx, stale)
	if err != nil {
		return 0, storeErr(fmt.Sprintf("delete %s claims", tier), err)
	}

	j.metrics.RecordDeletion(tier, n)
	j.logger.Info("deleted stale claims",
		zap.String("tier", string(tier)),
		zap.Int("count", n),
		zap.Time("cutoff", cutoff))
	return n, nil
}

// promoteCandidates moves qualifying claims one tier up. Only claims already
// at or above the confidence threshold are fetched.
func (j *Janitor) promoteCandidates(ctx context.Context, tier domain.Tier, now time.Time, moved map[uuid.UUID]struct{}) (int, error) {
	claims, err := j.store.Query(ctx, domain.ClaimQuery{
		Tier:          tier,
		MinConfidence: j.config.DemotionConfidenceThreshold,
	})
	if err != nil {
		return 0, storeErr(fmt.Sprintf("query %s promotion candidates", tier), err)
	}

	promoted := 0
	for i := range claims {
		claim := &claims[i]
		if _, done := moved[claim.ID]; done {
			continue
		}
		if !j.shouldPromote(claim, now) {
			continue
		}
		next, hasNext := claim.Tier.Next()
		if !hasNext {
			continue
		}
		applied, err := j.promoteClaim(ctx, claim, next)
		if err != nil {
			return promoted, err
		}
		if applied {
			moved[claim.ID] = struct{}{}
			j.metrics.RecordPromotion(claim.Tier)
			promoted++
		}
	}
	return promoted, nil
}

// demoteCandidates moves decayed claims one tier down.
func (j *Janitor) demoteCandidates(ctx context.Context, tier domain.Tier, now time.Time, moved map[uuid.UUID]struct{}) (int, error) {
	claims, err := j.store.Query(ctx, domain.ClaimQuery{Tier: tier})
	if err != nil {
		return 0, storeErr(fmt.Sprintf("query %s demotion candidates", tier), err)
	}

	demoted := 0
	for i := range claims {
		claim := &claims[i]
		if _, done := moved[claim.ID]; done {
			continue
		}
		if !j.shouldDemote(claim, now) {
			continue
		}
		prev, hasPrev := claim.Tier.Previous()
		if !hasPrev {
			continue
		}
		applied, err := j.demoteClaim(ctx, claim, prev)
		if err != nil {
			return demoted, err
		}
		if applied {
			moved[claim.ID] = struct{}{}
			j.metrics.RecordDemotion(claim.Tier)
			demoted++
		}
	}
	return demoted, nil
}

// shouldPromote reports whether a claim has earned the next tier: confidence
// lower bound at or above the threshold, and still young relative to its
// tier's TTL window.
func (j *Janitor) shouldPromote(claim *domain.Claim, now time.Time) bool {
	if claim.Confidence.Lower < j.config.DemotionConfidenceThreshold {
		return false
	}
	ttl, ok := j.config.TTLFor(claim.Tier)
	if !ok {
		return false
	}
	return claim.Age(now) < ttl/2
}

// shouldDemote reports whether a claim has decayed out of its tier.
// Ephemeral claims are never demoted; they are deleted by the TTL sweep.
func (j *Janitor) shouldDemote(claim *domain.Claim, now time.Time) bool {
	confidenceLow := claim.Confidence.Lower < j.config.DemotionConfidenceThreshold

	switch claim.Tier {
	case domain.TierTask:
		return confidenceLow && claim.Age(now) > j.config.TaskTTL()*3/4
	case domain.TierProject:
		return confidenceLow && claim.Age(now) > j.config.ProjectStaleThreshold()*3/4
	case domain.TierPermanent:
		return confidenceLow && claim.Confidence.Lower < permanentDemotionFloor
	default:
		return false
	}
}

func (j *Janitor) promoteClaim(ctx context.Context, claim *domain.Claim, to domain.Tier) (bool, error) {
	if next, ok := claim.Tier.Next(); !ok || to != next {
		return false, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, claim.Tier, to)
	}

	if j.config.DryRun {
		j.logger.Info("dry run: would promote claim",
			zap.String("claim_id", claim.ID.String()),
			zap.String("from", string(claim.Tier)),
			zap.String("to", string(to)))
		return false, nil
	}

	if err := j.store.UpdateTier(ctx, claim.ID, to); err != nil {
		return false, storeErr(fmt.Sprintf("promote claim %s", claim.ID), err)
	}

	j.logger.Info("promoted claim",
		zap.String("claim_id", claim.ID.String()),
		zap.String("from", string(claim.Tier)),
		zap.String("to", string(to)),
		zap.Float64("confidence_lower", claim.Confidence.Lower))
	return true, nil
}

func (j *Janitor) demoteClaim(ctx context.Context, claim *domain.Claim, to domain.Tier) (bool, error) {
	if prev, ok := claim.Tier.Previous(); !ok || to != prev {
		return false, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, claim.Tier, to)
	}

	if j.config.DryRun {
		j.logger.Info("dry run: would demote claim",
			zap.String("claim_id", claim.ID.String()),
			zap.String("from", string(claim.Tier)),
			zap.String("to", string(to)))
		return false, nil
	}

	if err := j.store.UpdateTier(ctx, claim.ID, to); err != nil {
		return false, storeErr(fmt.Sprintf("demote claim %s", claim.ID), err)
	}

	j.logger.Info("demoted claim",
		zap.String("claim_id", claim.ID.String()),
		zap.String("from", string(claim.Tier)),
		zap.String("to", string(to)),
		zap.Float64("confidence_lower", claim.Confidence.Lower))
	return true, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
