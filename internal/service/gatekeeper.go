package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/credence-io/credence/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ValidationStatus string

const (
	ValidationAccepted ValidationStatus = "accepted"
	ValidationRejected ValidationStatus = "rejected"
	// ValidationDeferred is reserved for transient failures; the current
	// checks either accept, reject, or return a hard error.
	ValidationDeferred ValidationStatus = "deferred"
)

type RejectionCode string

const (
	ReasonInvalidEntityFormat     RejectionCode = "invalid_entity_format"
	ReasonInvalidConfidenceBounds RejectionCode = "invalid_confidence_bounds"
	ReasonInvalidNamespace        RejectionCode = "invalid_namespace"
	ReasonTierConfidence          RejectionCode = "tier_confidence_requirement"
	ReasonDuplicate               RejectionCode = "duplicate"
	ReasonSemanticDuplicate       RejectionCode = "semantic_duplicate"
)

type RejectionReason struct {
	Code       RejectionCode `json:"code"`
	Detail     string        `json:"detail"`
	ExistingID *uuid.UUID    `json:"existing_id,omitempty"`
	Similarity float64       `json:"similarity,omitempty"`
}

type ValidationResult struct {
	Status       ValidationStatus  `json:"status"`
	Reasons      []RejectionReason `json:"reasons,omitempty"`
	QualityScore float64           `json:"quality_score"`
}

func (r *ValidationResult) Accepted() bool {
	return r.Status == ValidationAccepted
}

// Quality deductions per failed check.
const (
	entityFormatDeduction     = 0.3
	confidenceBoundsDeduction = 0.4
	namespaceDeduction        = 0.3
	tierConfidenceDeduction   = 0.2
	duplicateDeduction        = 0.5
)

const (
	duplicateScanLimit = 100
	semanticScanLimit  = 5
)

// ValidationConfig toggles the individual gate checks and sets per-tier
// confidence floors.
type ValidationConfig struct {
	ValidateEntityFormat       bool
	ValidateConfidenceBounds   bool
	ValidateNamespace          bool
	ValidateTierConfidence     bool
	ValidateDuplicates         bool
	ValidateSemanticDuplicates bool

	SemanticDuplicateThreshold float64

	EphemeralMinConfidence float64
	TaskMinConfidence      float64
	ProjectMinConfidence   float64
	PermanentMinConfidence float64
}

func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		ValidateEntityFormat:       true,
		ValidateConfidenceBounds:   true,
		ValidateNamespace:          true,
		ValidateTierConfidence:     true,
		ValidateDuplicates:         true,
		ValidateSemanticDuplicates: false,
		SemanticDuplicateThreshold: 0.95,
		EphemeralMinConfidence:     0.0,
		TaskMinConfidence:          0.4,
		ProjectMinConfidence:       0.6,
		PermanentMinConfidence:     0.8,
	}
}

// PermissiveValidationConfig keeps only the structural checks; anything
// well-formed gets through regardless of confidence or duplication.
func PermissiveValidationConfig() ValidationConfig {
	return ValidationConfig{
		ValidateEntityFormat:       true,
		ValidateConfidenceBounds:   true,
		ValidateNamespace:          true,
		ValidateTierConfidence:     false,
		ValidateDuplicates:         false,
		ValidateSemanticDuplicates: false,
		SemanticDuplicateThreshold: 0.99,
		EphemeralMinConfidence:     0.0,
		TaskMinConfidence:          0.0,
		ProjectMinConfidence:       0.0,
		PermanentMinConfidence:     0.0,
	}
}

// StrictValidationConfig enables every check, including semantic duplicate
// detection over claim embeddings, with tighter confidence floors.
func StrictValidationConfig() ValidationConfig {
	return ValidationConfig{
		ValidateEntityFormat:       true,
		ValidateConfidenceBounds:   true,
		ValidateNamespace:          true,
		ValidateTierConfidence:     true,
		ValidateDuplicates:         true,
		ValidateSemanticDuplicates: true,
		SemanticDuplicateThreshold: 0.90,
		EphemeralMinConfidence:     0.0,
		TaskMinConfidence:          0.5,
		ProjectMinConfidence:       0.7,
		PermanentMinConfidence:     0.85,
	}
}

// ValidationPreset resolves a named preset. An empty name selects the
// default.
func ValidationPreset(name string) (ValidationConfig, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return DefaultValidationConfig(), nil
	case "permissive":
		return PermissiveValidationConfig(), nil
	case "strict":
		return StrictValidationConfig(), nil
	default:
		return ValidationConfig{}, fmt.Errorf("%w: unknown validation preset %q", ErrConfig, name)
	}
}

func (c ValidationConfig) minConfidenceFor(tier domain.Tier) float64 {
	switch tier {
	case domain.TierEphemeral:
		return c.EphemeralMinConfidence
	case domain.TierTask:
		return c.TaskMinConfidence
	case domain.TierProject:
		return c.ProjectMinConfidence
	case domain.TierPermanent:
		return c.PermanentMinConfidence
	default:
		return 0
	}
}

// Gatekeeper screens claims before they reach the store.
type Gatekeeper struct {
	config ValidationConfig
	logger *zap.Logger
}

func NewGatekeeper(config ValidationConfig, logger *zap.Logger) *Gatekeeper {
	return &Gatekeeper{config: config, logger: logger}
}

// Validate runs the configured checks against a candidate claim. The store
// may be nil, which skips duplicate detection. supersedes lists claim ids
// the assertion declares it replaces; exact and semantic duplicate hits on
// those ids are excused.
func (g *Gatekeeper) Validate(ctx context.Context, claim *domain.Claim, cs domain.ClaimStore, supersedes []uuid.UUID) (*ValidationResult, error) {
	var reasons []RejectionReason
	quality := 1.0

	if g.config.ValidateEntityFormat {
		if reason := g.checkEntityFormat(claim); reason != nil {
			reasons = append(reasons, *reason)
			quality -= entityFormatDeduction
		}
	}

	if g.config.ValidateConfidenceBounds {
		if reason := g.checkConfidenceBounds(claim); reason != nil {
			reasons = append(reasons, *reason)
			quality -= confidenceBoundsDeduction
		}
	}

	if g.config.ValidateNamespace {
		if err := domain.ValidateNamespace(claim.Namespace); err != nil {
			reasons = append(reasons, RejectionReason{
				Code:   ReasonInvalidNamespace,
				Detail: err.Error(),
			})
			quality -= namespaceDeduction
		}
	}

	if g.config.ValidateTierConfidence {
		if reason := g.checkTierConfidence(claim); reason != nil {
			reasons = append(reasons, *reason)
			quality -= tierConfidenceDeduction
		}
	}

	superseded := make(map[uuid.UUID]struct{}, len(supersedes))
	for _, id := range supersedes {
		superseded[id] = struct{}{}
	}

	if g.config.ValidateDuplicates && cs != nil {
		reason, err := g.checkDuplicates(ctx, claim, cs, superseded)
		if err != nil {
			return nil, err
		}
		if reason != nil {
			reasons = append(reasons, *reason)
			quality -= duplicateDeduction
		}
	}

	if g.config.ValidateSemanticDuplicates && cs != nil {
		reason, err := g.checkSemanticDuplicates(ctx, claim, cs, superseded)
		if err != nil {
			return nil, err
		}
		if reason != nil {
			reasons = append(reasons, *reason)
			quality -= duplicateDeduction
		}
	}

	status := ValidationAccepted
	if len(reasons) > 0 {
		status = ValidationRejected
		g.logger.Debug("claim rejected",
			zap.String("namespace", claim.Namespace),
			zap.Int("reasons", len(reasons)),
			zap.String("first_reason", string(reasons[0].Code)))
	}

	if quality < 0 {
		quality = 0
	}

	return &ValidationResult{
		Status:       status,
		Reasons:      reasons,
		QualityScore: quality,
	}, nil
}

// checkEntityFormat requires subject, predicate and object to each be a
// prefix:value entity. The first offending field is reported.
func (g *Gatekeeper) checkEntityFormat(claim *domain.Claim) *RejectionReason {
	fields := []struct {
		name  string
		value string
	}{
		{"subject", claim.Subject},
		{"predicate", claim.Predicate},
		{"object", claim.Object},
	}

	for _, f := range fields {
		prefix, value, found := strings.Cut(f.value, ":")
		if !found || prefix == "" || value == "" {
			return &RejectionReason{
				Code:   ReasonInvalidEntityFormat,
				Detail: fmt.Sprintf("%s %q does not match prefix:value format", f.name, f.value),
			}
		}
	}
	return nil
}

func (g *Gatekeeper) checkConfidenceBounds(claim *domain.Claim) *RejectionReason {
	lower, upper := claim.Confidence.Lower, claim.Confidence.Upper

	var issue string
	switch {
	case lower < 0 || lower > 1:
		issue = fmt.Sprintf("lower bound %g is outside [0, 1]", lower)
	case upper < 0 || upper > 1:
		issue = fmt.Sprintf("upper bound %g is outside [0, 1]", upper)
	case lower >= upper:
		issue = fmt.Sprintf("lower bound %g must be less than upper bound %g", lower, upper)
	default:
		return nil
	}

	return &RejectionReason{Code: ReasonInvalidConfidenceBounds, Detail: issue}
}

func (g *Gatekeeper) checkTierConfidence(claim *domain.Claim) *RejectionReason {
	if !domain.ValidTier(string(claim.Tier)) {
		return &RejectionReason{
			Code:   ReasonTierConfidence,
			Detail: fmt.Sprintf("unknown tier %q", claim.Tier),
		}
	}

	required := g.config.minConfidenceFor(claim.Tier)
	if claim.Confidence.Lower < required {
		return &RejectionReason{
			Code: ReasonTierConfidence,
			Detail: fmt.Sprintf("tier %s requires confidence lower bound >= %g, got %g",
				claim.Tier, required, claim.Confidence.Lower),
		}
	}
	return nil
}

func (g *Gatekeeper) checkDuplicates(ctx context.Context, claim *domain.Claim, cs domain.ClaimStore, superseded map[uuid.UUID]struct{}) (*RejectionReason, error) {
	existing, err := cs.Query(ctx, domain.ClaimQuery{
		Namespace: claim.Namespace,
		Tier:      claim.Tier,
		Limit:     duplicateScanLimit,
	})
	if err != nil {
		return nil, storeErr("query duplicate candidates", err)
	}

	for i := range existing {
		e := &existing[i]
		if e.Namespace != claim.Namespace {
			continue
		}
		if e.Subject != claim.Subject || e.Predicate != claim.Predicate || e.Object != claim.Object {
			continue
		}
		if _, ok := superseded[e.ID]; ok {
			continue
		}
		id := e.ID
		return &RejectionReason{
			Code:       ReasonDuplicate,
			Detail:     fmt.Sprintf("claim already asserted as %s", id),
			ExistingID: &id,
		}, nil
	}
	return nil, nil
}

func (g *Gatekeeper) checkSemanticDuplicates(ctx context.Context, claim *domain.Claim, cs domain.ClaimStore, superseded map[uuid.UUID]struct{}) (*RejectionReason, error) {
	if len(claim.Embedding) == 0 {
		return nil, nil
	}

	hits, err := cs.Search(ctx, claim.Embedding, domain.ClaimQuery{
		Namespace: claim.Namespace,
		Limit:     semanticScanLimit,
	})
	if err != nil {
		return nil, storeErr("search semantic duplicates", err)
	}

	for _, hit := range hits {
		if hit.Claim.ID == claim.ID {
			continue
		}
		if _, ok := superseded[hit.Claim.ID]; ok {
			continue
		}
		if hit.Score >= g.config.SemanticDuplicateThreshold {
			id := hit.Claim.ID
			return &RejectionReason{
				Code:       ReasonSemanticDuplicate,
				Detail:     fmt.Sprintf("claim %s is semantically equivalent (similarity %.2f)", id, hit.Score),
				ExistingID: &id,
				Similarity: hit.Score,
			}, nil
		}
	}
	return nil, nil
}
