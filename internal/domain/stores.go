package domain

import (
	"context"

	"github.com/google/uuid"
)

// ClaimQuery filters a claim listing. Zero values mean no constraint.
type ClaimQuery struct {
	// Namespace matches the exact namespace or any descendant of it.
	Namespace string `json:"namespace,omitempty"`
	Tier      Tier   `json:"tier,omitempty"`
	// MinConfidence filters on the stored confidence lower bound.
	MinConfidence float64 `json:"min_confidence,omitempty"`
	Limit         int     `json:"limit,omitempty"`
}

// ClaimStore is the persistence boundary for claims, their provenance and
// their relationships.
type ClaimStore interface {
	// Core claim access
	Assert(ctx context.Context, c *Claim) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (*Claim, error)
	Query(ctx context.Context, q ClaimQuery) ([]Claim, error)

	// Lifecycle mutations used by the janitor
	DeleteClaims(ctx context.Context, ids []uuid.UUID) (int, error)
	UpdateTier(ctx context.Context, id uuid.UUID, tier Tier) error

	// Evidence
	AddProvenance(ctx context.Context, claimID uuid.UUID, entry ProvenanceEntry) error
	GetProvenance(ctx context.Context, claimID uuid.UUID) ([]ProvenanceEntry, error)

	// Relationship graph. GetRelationships returns edges in both directions.
	AddRelationship(ctx context.Context, rel Relationship) error
	GetRelationships(ctx context.Context, claimID uuid.UUID) ([]Relationship, error)

	// Vector similarity over claim embeddings
	Search(ctx context.Context, embedding []float32, q ClaimQuery) ([]ClaimWithScore, error)
}

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
