package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/credence-io/credence/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// PostgresStore persists claims in Postgres with pgvector-backed similarity
// search. This is the backend for anything beyond a single process.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// EnsureSchema creates the tables and indexes if they do not exist. The
// embedding column is sized for text-embedding-3-small.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS claims (
			id               UUID PRIMARY KEY,
			namespace        TEXT NOT NULL,
			subject          TEXT NOT NULL,
			predicate        TEXT NOT NULL,
			object           TEXT NOT NULL,
			confidence_lower DOUBLE PRECISION NOT NULL,
			confidence_upper DOUBLE PRECISION NOT NULL,
			tier             TEXT NOT NULL,
			embedding        vector(1536),
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			stale_at         TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_namespace ON claims (namespace)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_tier ON claims (tier)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_created_at ON claims (created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS provenance (
			id          BIGSERIAL PRIMARY KEY,
			claim_id    UUID NOT NULL REFERENCES claims(id) ON DELETE CASCADE,
			source      TEXT NOT NULL,
			source_type TEXT NOT NULL,
			rationale   TEXT NOT NULL DEFAULT '',
			recorded_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_provenance_claim ON provenance (claim_id)`,
		`CREATE TABLE IF NOT EXISTS relationships (
			id         BIGSERIAL PRIMARY KEY,
			from_claim UUID NOT NULL REFERENCES claims(id) ON DELETE CASCADE,
			to_claim   UUID NOT NULL REFERENCES claims(id) ON DELETE CASCADE,
			type       TEXT NOT NULL,
			strength   DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationships (from_claim)`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships (to_claim)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Assert(ctx context.Context, c *domain.Claim) (uuid.UUID, error) {
	var embedding *pgvector.Vector
	if len(c.Embedding) > 0 {
		v := pgvector.NewVector(c.Embedding)
		embedding = &v
	}

	tag, err := s.db.Exec(ctx,
		`INSERT INTO claims (id, namespace, subject, predicate, object, confidence_lower, confidence_upper, tier, embedding, created_at, stale_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO NOTHING`,
		c.ID, c.Namespace, c.Subject, c.Predicate, c.Object,
		c.Confidence.Lower, c.Confidence.Upper, string(c.Tier),
		embedding, c.CreatedAt, c.StaleAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return uuid.Nil, ErrConflict
	}
	return c.ID, nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*domain.Claim, error) {
	c := &domain.Claim{}
	var tier string
	err := s.db.QueryRow(ctx,
		`SELECT id, namespace, subject, predicate, object, confidence_lower, confidence_upper, tier, created_at, stale_at
		 FROM claims WHERE id = $1`, id,
	).Scan(&c.ID, &c.Namespace, &c.Subject, &c.Predicate, &c.Object,
		&c.Confidence.Lower, &c.Confidence.Upper, &tier, &c.CreatedAt, &c.StaleAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.Tier = domain.Tier(tier)
	return c, nil
}

func (s *PostgresStore) Query(ctx context.Context, q domain.ClaimQuery) ([]domain.Claim, error) {
	conditions, args := pgClaimFilter(q)

	query := `SELECT id, namespace, subject, predicate, object, confidence_lower, confidence_upper, tier, created_at, stale_at
	 FROM claims`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}
	defer rows.Close()

	var results []domain.Claim
	for rows.Next() {
		var (
			c    domain.Claim
			tier string
		)
		if err := rows.Scan(&c.ID, &c.Namespace, &c.Subject, &c.Predicate, &c.Object,
			&c.Confidence.Lower, &c.Confidence.Upper, &tier, &c.CreatedAt, &c.StaleAt); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		c.Tier = domain.Tier(tier)
		results = append(results, c)
	}
	return results, rows.Err()
}

func (s *PostgresStore) DeleteClaims(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	idStrings := make([]string, len(ids))
	for i, id := range ids {
		idStrings[i] = id.String()
	}

	tag, err := s.db.Exec(ctx,
		`DELETE FROM claims WHERE id = ANY($1::uuid[])`, idStrings)
	if err != nil {
		return 0, fmt.Errorf("delete claims: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) UpdateTier(ctx context.Context, id uuid.UUID, tier domain.Tier) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE claims SET tier = $1 WHERE id = $2`, string(tier), id)
	if err != nil {
		return fmt.Errorf("update tier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AddProvenance(ctx context.Context, claimID uuid.UUID, entry domain.ProvenanceEntry) error {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO provenance (claim_id, source, source_type, rationale, recorded_at)
		 SELECT $1, $2, $3, $4, $5 WHERE EXISTS (SELECT 1 FROM claims WHERE id = $1)`,
		claimID, entry.Source, entry.SourceType, entry.Rationale, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert provenance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetProvenance(ctx context.Context, claimID uuid.UUID) ([]domain.ProvenanceEntry, error) {
	var exists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM claims WHERE id = $1)`, claimID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	rows, err := s.db.Query(ctx,
		`SELECT source, source_type, rationale, recorded_at
		 FROM provenance WHERE claim_id = $1 ORDER BY recorded_at, id`, claimID)
	if err != nil {
		return nil, fmt.Errorf("query provenance: %w", err)
	}
	defer rows.Close()

	var entries []domain.ProvenanceEntry
	for rows.Next() {
		var e domain.ProvenanceEntry
		if err := rows.Scan(&e.Source, &e.SourceType, &e.Rationale, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan provenance: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) AddRelationship(ctx context.Context, rel domain.Relationship) error {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO relationships (from_claim, to_claim, type, strength, created_at)
		 SELECT $1, $2, $3, $4, $5
		 WHERE EXISTS (SELECT 1 FROM claims WHERE id = $1)
		   AND EXISTS (SELECT 1 FROM claims WHERE id = $2)`,
		rel.FromClaim, rel.ToClaim, string(rel.Type), rel.Strength, rel.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert relationship: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetRelationships(ctx context.Context, claimID uuid.UUID) ([]domain.Relationship, error) {
	rows, err := s.db.Query(ctx,
		`SELECT from_claim, to_claim, type, strength, created_at
		 FROM relationships WHERE from_claim = $1 OR to_claim = $1
		 ORDER BY created_at, id`, claimID)
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	defer rows.Close()

	var rels []domain.Relationship
	for rows.Next() {
		var (
			rel     domain.Relationship
			relType string
		)
		if err := rows.Scan(&rel.FromClaim, &rel.ToClaim, &relType, &rel.Strength, &rel.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		rel.Type = domain.RelationshipType(relType)
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}

func (s *PostgresStore) Search(ctx context.Context, embedding []float32, q domain.ClaimQuery) ([]domain.ClaimWithScore, error) {
	conditions, args := pgClaimFilter(q)
	conditions = append(conditions, "embedding IS NOT NULL")

	args = append(args, pgvector.NewVector(embedding))
	embeddingParam := len(args)

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	args = append(args, limit)
	limitParam := len(args)

	query := fmt.Sprintf(
		`SELECT id, namespace, subject, predicate, object, confidence_lower, confidence_upper, tier, created_at, stale_at,
		        1 - (embedding <=> $%d) AS score
		 FROM claims
		 WHERE %s
		 ORDER BY score DESC, id
		 LIMIT $%d`,
		embeddingParam,
		strings.Join(conditions, " AND "),
		limitParam,
	)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search claims: %w", err)
	}
	defer rows.Close()

	var results []domain.ClaimWithScore
	for rows.Next() {
		var (
			cs   domain.ClaimWithScore
			tier string
		)
		if err := rows.Scan(&cs.Claim.ID, &cs.Claim.Namespace, &cs.Claim.Subject, &cs.Claim.Predicate, &cs.Claim.Object,
			&cs.Claim.Confidence.Lower, &cs.Claim.Confidence.Upper, &tier, &cs.Claim.CreatedAt, &cs.Claim.StaleAt,
			&cs.Score); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		cs.Claim.Tier = domain.Tier(tier)
		results = append(results, cs)
	}
	return results, rows.Err()
}

func pgClaimFilter(q domain.ClaimQuery) ([]string, []any) {
	var conditions []string
	var args []any

	if q.Tier != "" {
		args = append(args, string(q.Tier))
		conditions = append(conditions, fmt.Sprintf("tier = $%d", len(args)))
	}
	if q.Namespace != "" {
		args = append(args, q.Namespace)
		exact := len(args)
		args = append(args, likeEscape(q.Namespace)+"/%")
		conditions = append(conditions, fmt.Sprintf(`(namespace = $%d OR namespace LIKE $%d ESCAPE '\')`, exact, len(args)))
	}
	if q.MinConfidence > 0 {
		args = append(args, q.MinConfidence)
		conditions = append(conditions, fmt.Sprintf("confidence_lower >= $%d", len(args)))
	}

	return conditions, args
}
