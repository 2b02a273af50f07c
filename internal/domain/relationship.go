package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidRelationship marks an edge with an unknown type or a strength
// outside [0, 1].
var ErrInvalidRelationship = errors.New("invalid relationship")

// RelationshipType classifies a directed edge between two claims.
type RelationshipType string

const (
	// RelSupports marks evidence that one claim strengthens another.
	RelSupports RelationshipType = "supports"

	// RelContradicts marks conflicting claims.
	RelContradicts RelationshipType = "contradicts"

	// RelDerivedFrom marks a claim synthesized from another.
	RelDerivedFrom RelationshipType = "derived_from"

	// RelReferences marks a loose citation.
	RelReferences RelationshipType = "references"

	// RelSupersedes marks a newer version of a claim.
	RelSupersedes RelationshipType = "supersedes"
)

func ValidRelationshipType(t string) bool {
	switch RelationshipType(t) {
	case RelSupports, RelContradicts, RelDerivedFrom, RelReferences, RelSupersedes:
		return true
	}
	return false
}

func ParseRelationshipType(s string) (RelationshipType, error) {
	if !ValidRelationshipType(s) {
		return "", fmt.Errorf("%w: unknown type %q", ErrInvalidRelationship, s)
	}
	return RelationshipType(s), nil
}

// Relationship is a directed pairwise edge between two claims. Only pairwise
// edges exist; anything involving more than two claims must be modeled as a
// separately asserted derived claim.
type Relationship struct {
	FromClaim uuid.UUID        `json:"from_claim"`
	ToClaim   uuid.UUID        `json:"to_claim"`
	Type      RelationshipType `json:"type"`
	Strength  float64          `json:"strength"`
	CreatedAt time.Time        `json:"created_at"`
}

// NewRelationship rejects strengths outside [0, 1].
func NewRelationship(from, to uuid.UUID, relType RelationshipType, strength float64, createdAt time.Time) (Relationship, error) {
	if !ValidRelationshipType(string(relType)) {
		return Relationship{}, fmt.Errorf("%w: unknown type %q", ErrInvalidRelationship, relType)
	}
	if strength < 0 || strength > 1 {
		return Relationship{}, fmt.Errorf("%w: strength must be in [0, 1], got %g", ErrInvalidRelationship, strength)
	}
	return Relationship{
		FromClaim: from,
		ToClaim:   to,
		Type:      relType,
		Strength:  strength,
		CreatedAt: createdAt,
	}, nil
}
