package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/credence-io/credence/internal/domain"
	"github.com/credence-io/credence/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrClaimRejected signals that the gatekeeper refused an assertion. The
// ValidationResult returned alongside carries the reasons.
var ErrClaimRejected = errors.New("claim rejected")

const (
	defaultSearchLimit = 10

	// DefaultHalfLife governs staleness decay when no half-life is
	// configured: confidence halves for every week past StaleAt.
	DefaultHalfLife = 7 * 24 * time.Hour
)

// AssertClaimInput carries everything an assertion needs. Tier defaults to
// ephemeral when empty. Supersedes lists claims this assertion replaces,
// which excuses duplicate hits on them and records supersedes edges.
type AssertClaimInput struct {
	Namespace  string
	Subject    string
	Predicate  string
	Object     string
	Confidence domain.ConfidenceInterval
	Tier       domain.Tier
	StaleAt    *time.Time
	Provenance []domain.ProvenanceEntry
	Supersedes []uuid.UUID
}

// ConfidenceReport is the result of an effective-confidence computation.
type ConfidenceReport struct {
	ClaimID       uuid.UUID                 `json:"claim_id"`
	Stored        domain.ConfidenceInterval `json:"stored"`
	Effective     domain.ConfidenceInterval `json:"effective"`
	Provenance    int                       `json:"provenance_entries"`
	Relationships int                       `json:"relationships"`
	ComputedAt    time.Time                 `json:"computed_at"`
}

// ClaimService orchestrates assertion, retrieval and trust computation on
// top of a claim store.
type ClaimService struct {
	store      domain.ClaimStore
	embedder   domain.EmbeddingClient
	gatekeeper *Gatekeeper
	logger     *zap.Logger

	halfLife      time.Duration
	confidenceCfg ConfidenceConfig
}

func NewClaimService(cs domain.ClaimStore, embedder domain.EmbeddingClient, gatekeeper *Gatekeeper, logger *zap.Logger, halfLife time.Duration) *ClaimService {
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	return &ClaimService{
		store:         cs,
		embedder:      embedder,
		gatekeeper:    gatekeeper,
		logger:        logger,
		halfLife:      halfLife,
		confidenceCfg: DefaultConfidenceConfig(),
	}
}

// Assert validates, embeds and stores a new claim, then records its
// provenance and any supersedes edges. On rejection the validation result is
// returned alongside ErrClaimRejected.
func (s *ClaimService) Assert(ctx context.Context, input AssertClaimInput) (*domain.Claim, *ValidationResult, error) {
	tier := input.Tier
	if tier == "" {
		tier = domain.TierEphemeral
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, nil, fmt.Errorf("generate claim id: %w", err)
	}

	now := time.Now().UTC()
	claim := &domain.Claim{
		ID:         id,
		Namespace:  input.Namespace,
		Subject:    input.Subject,
		Predicate:  input.Predicate,
		Object:     input.Object,
		Confidence: input.Confidence,
		Tier:       tier,
		CreatedAt:  now,
		StaleAt:    input.StaleAt,
	}

	embedding, err := s.embedder.Embed(ctx, claim.Text())
	if err != nil {
		return nil, nil, fmt.Errorf("embed claim text: %w", err)
	}
	claim.Embedding = embedding

	result, err := s.gatekeeper.Validate(ctx, claim, s.store, input.Supersedes)
	if err != nil {
		return nil, nil, err
	}
	if !result.Accepted() {
		return nil, result, ErrClaimRejected
	}

	if _, err := s.store.Assert(ctx, claim); err != nil {
		return nil, nil, fmt.Errorf("assert claim: %w", err)
	}

	for _, entry := range input.Provenance {
		if entry.Timestamp.IsZero() {
			entry.Timestamp = now
		}
		if err := s.store.AddProvenance(ctx, claim.ID, entry); err != nil {
			return nil, nil, fmt.Errorf("record provenance: %w", err)
		}
	}

	for _, superseded := range input.Supersedes {
		rel, err := domain.NewRelationship(claim.ID, superseded, domain.RelSupersedes, 1.0, now)
		if err != nil {
			return nil, nil, fmt.Errorf("supersedes relationship: %w", err)
		}
		if err := s.store.AddRelationship(ctx, rel); err != nil {
			return nil, nil, fmt.Errorf("record supersedes edge: %w", err)
		}
	}

	s.logger.Info("claim asserted",
		zap.String("claim_id", claim.ID.String()),
		zap.String("namespace", claim.Namespace),
		zap.String("tier", string(claim.Tier)),
		zap.Float64("quality_score", result.QualityScore))

	return claim, result, nil
}

func (s *ClaimService) Get(ctx context.Context, id uuid.UUID) (*domain.Claim, error) {
	return s.store.Get(ctx, id)
}

func (s *ClaimService) Query(ctx context.Context, q domain.ClaimQuery) ([]domain.Claim, error) {
	return s.store.Query(ctx, q)
}

// Search embeds the text and runs a vector similarity query.
func (s *ClaimService) Search(ctx context.Context, text, namespace string, limit int) ([]domain.ClaimWithScore, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed search text: %w", err)
	}

	return s.store.Search(ctx, embedding, domain.ClaimQuery{
		Namespace: namespace,
		Limit:     limit,
	})
}

// Provenance lists the evidence recorded for a claim.
func (s *ClaimService) Provenance(ctx context.Context, id uuid.UUID) ([]domain.ProvenanceEntry, error) {
	return s.store.GetProvenance(ctx, id)
}

// AddRelationship links two existing claims.
func (s *ClaimService) AddRelationship(ctx context.Context, from, to uuid.UUID, relType domain.RelationshipType, strength float64) (*domain.Relationship, error) {
	rel, err := domain.NewRelationship(from, to, relType, strength, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if _, err := s.store.Get(ctx, from); err != nil {
		return nil, fmt.Errorf("from claim %s: %w", from, err)
	}
	if _, err := s.store.Get(ctx, to); err != nil {
		return nil, fmt.Errorf("to claim %s: %w", to, err)
	}

	if err := s.store.AddRelationship(ctx, rel); err != nil {
		return nil, fmt.Errorf("add relationship: %w", err)
	}

	s.logger.Info("relationship added",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.String("type", string(relType)),
		zap.Float64("strength", strength))

	return &rel, nil
}

// Relationships lists edges touching a claim, in both directions.
func (s *ClaimService) Relationships(ctx context.Context, id uuid.UUID) ([]domain.Relationship, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.GetRelationships(ctx, id)
}

// EffectiveConfidence recomputes a claim's trust value from its provenance,
// staleness and incoming relationship edges. Counterparts contribute their
// stale-adjusted confidence only, which keeps the computation from chasing
// cycles through the relationship graph.
func (s *ClaimService) EffectiveConfidence(ctx context.Context, id uuid.UUID) (*ConfidenceReport, error) {
	claim, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	provenance, err := s.store.GetProvenance(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load provenance: %w", err)
	}

	rels, err := s.store.GetRelationships(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load relationships: %w", err)
	}

	now := time.Now().UTC()
	related := make([]RelatedClaim, 0, len(rels))
	for _, rel := range rels {
		// Only incoming edges weigh on this claim; outgoing edges describe
		// its influence on others.
		if rel.ToClaim != id {
			continue
		}

		counterpart, err := s.store.Get(ctx, rel.FromClaim)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				s.logger.Debug("skipping dangling relationship",
					zap.String("claim_id", id.String()),
					zap.String("counterpart", rel.FromClaim.String()))
				continue
			}
			return nil, fmt.Errorf("load counterpart %s: %w", rel.FromClaim, err)
		}

		counterpartProv, err := s.store.GetProvenance(ctx, counterpart.ID)
		if err != nil {
			return nil, fmt.Errorf("load counterpart provenance: %w", err)
		}

		related = append(related, RelatedClaim{
			Relationship:    rel,
			StaleConfidence: StaleAdjustedConfidence(counterpartProv, now, counterpart.StaleAt, s.halfLife),
		})
	}

	effective := ComputeEffectiveConfidence(provenance, now, claim.StaleAt, s.halfLife, related, s.confidenceCfg)

	return &ConfidenceReport{
		ClaimID:       claim.ID,
		Stored:        claim.Confidence,
		Effective:     effective,
		Provenance:    len(provenance),
		Relationships: len(related),
		ComputedAt:    now,
	}, nil
}
