package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Claim is the fundamental unit of knowledge: a subject-predicate-object
// assertion carrying an explicit confidence interval instead of being treated
// as absolute fact. Claims are immutable once asserted; only the tier
// changes, and only through janitor promotion or demotion.
type Claim struct {
	// ID is a UUIDv7, so ids sort by creation time.
	ID        uuid.UUID `json:"id"`
	Namespace string    `json:"namespace"`
	Subject   string    `json:"subject"`
	Predicate string    `json:"predicate"`
	Object    string    `json:"object"`

	Confidence ConfidenceInterval `json:"confidence"`
	Tier       Tier               `json:"tier"`
	CreatedAt  time.Time          `json:"created_at"`

	// StaleAt, when set, marks the instant past which confidence starts
	// decaying exponentially. Independent of the tier TTL used by deletion
	// sweeps.
	StaleAt *time.Time `json:"stale_at,omitempty"`

	Embedding []float32 `json:"-"`
}

// NewClaim asserts a new claim into the ephemeral tier with a fresh
// time-ordered ID.
func NewClaim(namespace, subject, predicate, object string, confidence ConfidenceInterval) (*Claim, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if subject == "" || predicate == "" || object == "" {
		return nil, fmt.Errorf("claim requires subject, predicate and object")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate claim id: %w", err)
	}
	return &Claim{
		ID:         id,
		Namespace:  namespace,
		Subject:    subject,
		Predicate:  predicate,
		Object:     object,
		Confidence: confidence,
		Tier:       TierEphemeral,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Age measures time since assertion.
func (c *Claim) Age(now time.Time) time.Duration {
	return now.Sub(c.CreatedAt)
}

// Text renders the claim as a plain sentence for embedding.
func (c *Claim) Text() string {
	return strings.Join([]string{c.Subject, c.Predicate, c.Object}, " ")
}

// ClaimWithScore pairs a claim with a similarity score from a vector search.
type ClaimWithScore struct {
	Claim Claim   `json:"claim"`
	Score float64 `json:"score"`
}
