package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/credence-io/credence/internal/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists claims in an embedded SQLite database. Vector search
// scans candidate rows and ranks them in Go; for corpora that outgrow that,
// use the postgres backend.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (or creates) the database at path, configures pragmas and
// applies pending migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return initSQLite(db, path)
}

// OpenSQLiteMemory opens a throwaway in-memory database, used by tests.
func OpenSQLiteMemory() (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// The in-memory database vanishes when its sole connection closes.
	db.SetMaxOpenConns(1)
	return initSQLite(db, ":memory:")
}

func initSQLite(db *sql.DB, path string) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, path: path}
	if err := s.configurePragmas(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "claims: subject-predicate-object assertions with confidence",
		SQL: `
CREATE TABLE claims (
    id               TEXT PRIMARY KEY,
    namespace        TEXT NOT NULL,
    subject          TEXT NOT NULL,
    predicate        TEXT NOT NULL,
    object           TEXT NOT NULL,
    confidence_lower REAL NOT NULL,
    confidence_upper REAL NOT NULL,
    tier             TEXT NOT NULL CHECK (tier IN ('ephemeral', 'task', 'project', 'permanent')),
    embedding        BLOB,
    created_at       INTEGER NOT NULL,
    stale_at         INTEGER
);

CREATE INDEX idx_claims_namespace  ON claims(namespace);
CREATE INDEX idx_claims_tier       ON claims(tier);
CREATE INDEX idx_claims_created_at ON claims(created_at DESC);
`,
	},
	{
		Version:     2,
		Description: "provenance: evidence entries per claim",
		SQL: `
CREATE TABLE provenance (
    id          INTEGER PRIMARY KEY,
    claim_id    TEXT NOT NULL,
    source      TEXT NOT NULL,
    source_type TEXT NOT NULL,
    rationale   TEXT,
    recorded_at INTEGER NOT NULL,
    FOREIGN KEY (claim_id) REFERENCES claims(id) ON DELETE CASCADE
);

CREATE INDEX idx_provenance_claim ON provenance(claim_id);
`,
	},
	{
		Version:     3,
		Description: "relationships: directed edges between claims",
		SQL: `
CREATE TABLE relationships (
    id         INTEGER PRIMARY KEY,
    from_claim TEXT NOT NULL,
    to_claim   TEXT NOT NULL,
    type       TEXT NOT NULL CHECK (type IN ('supports', 'contradicts', 'derived_from', 'references', 'supersedes')),
    strength   REAL NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (from_claim) REFERENCES claims(id) ON DELETE CASCADE,
    FOREIGN KEY (to_claim)   REFERENCES claims(id) ON DELETE CASCADE
);

CREATE INDEX idx_relationships_from ON relationships(from_claim);
CREATE INDEX idx_relationships_to   ON relationships(to_claim);
`,
	},
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *SQLiteStore) SchemaVersion() (int, error) {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}

const claimColumns = "id, namespace, subject, predicate, object, confidence_lower, confidence_upper, tier, embedding, created_at, stale_at"

func (s *SQLiteStore) Assert(ctx context.Context, c *domain.Claim) (uuid.UUID, error) {
	var embedding []byte
	if len(c.Embedding) > 0 {
		embedding = encodeEmbedding(c.Embedding)
	}
	var staleAt any
	if c.StaleAt != nil {
		staleAt = c.StaleAt.UnixMilli()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO claims (`+claimColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.Namespace, c.Subject, c.Predicate, c.Object,
		c.Confidence.Lower, c.Confidence.Upper, string(c.Tier),
		embedding, c.CreatedAt.UnixMilli(), staleAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert claim: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return uuid.Nil, err
	}
	if affected == 0 {
		return uuid.Nil, ErrConflict
	}
	return c.ID, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (*domain.Claim, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE id = ?`, id.String())
	c, err := scanClaim(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) Query(ctx context.Context, q domain.ClaimQuery) ([]domain.Claim, error) {
	where, args := claimFilter(q)
	query := `SELECT ` + claimColumns + ` FROM claims` + where + ` ORDER BY created_at DESC, id`
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}
	defer rows.Close()

	var results []domain.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) DeleteClaims(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id.String()
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM claims WHERE id IN (`+strings.Join(placeholders, ", ")+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete claims: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *SQLiteStore) UpdateTier(ctx context.Context, id uuid.UUID, tier domain.Tier) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE claims SET tier = ? WHERE id = ?`, string(tier), id.String())
	if err != nil {
		return fmt.Errorf("update tier: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) AddProvenance(ctx context.Context, claimID uuid.UUID, entry domain.ProvenanceEntry) error {
	if err := s.requireClaim(ctx, claimID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO provenance (claim_id, source, source_type, rationale, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		claimID.String(), entry.Source, entry.SourceType, entry.Rationale, entry.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert provenance: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetProvenance(ctx context.Context, claimID uuid.UUID) ([]domain.ProvenanceEntry, error) {
	if err := s.requireClaim(ctx, claimID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT source, source_type, rationale, recorded_at
		 FROM provenance WHERE claim_id = ? ORDER BY recorded_at, id`, claimID.String())
	if err != nil {
		return nil, fmt.Errorf("query provenance: %w", err)
	}
	defer rows.Close()

	var entries []domain.ProvenanceEntry
	for rows.Next() {
		var (
			e        domain.ProvenanceEntry
			recorded int64
		)
		if err := rows.Scan(&e.Source, &e.SourceType, &e.Rationale, &recorded); err != nil {
			return nil, fmt.Errorf("scan provenance: %w", err)
		}
		e.Timestamp = time.UnixMilli(recorded).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) AddRelationship(ctx context.Context, rel domain.Relationship) error {
	if err := s.requireClaim(ctx, rel.FromClaim); err != nil {
		return err
	}
	if err := s.requireClaim(ctx, rel.ToClaim); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO relationships (from_claim, to_claim, type, strength, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rel.FromClaim.String(), rel.ToClaim.String(), string(rel.Type), rel.Strength, rel.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert relationship: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRelationships(ctx context.Context, claimID uuid.UUID) ([]domain.Relationship, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_claim, to_claim, type, strength, created_at
		 FROM relationships WHERE from_claim = ? OR to_claim = ?
		 ORDER BY created_at, id`,
		claimID.String(), claimID.String())
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	defer rows.Close()

	var rels []domain.Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}

func (s *SQLiteStore) Search(ctx context.Context, embedding []float32, q domain.ClaimQuery) ([]domain.ClaimWithScore, error) {
	where, args := claimFilter(q)
	if where == "" {
		where = " WHERE embedding IS NOT NULL"
	} else {
		where += " AND embedding IS NOT NULL"
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+claimColumns+` FROM claims`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("search claims: %w", err)
	}
	defer rows.Close()

	var results []domain.ClaimWithScore
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		results = append(results, domain.ClaimWithScore{
			Claim: c,
			Score: cosineSimilarity(embedding, c.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Claim.ID.String() < results[j].Claim.ID.String()
	})

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *SQLiteStore) requireClaim(ctx context.Context, id uuid.UUID) error {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM claims WHERE id = ?`, id.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// claimFilter renders ClaimQuery filters as a WHERE clause. Namespace
// matches the exact value or any slash-delimited descendant.
func claimFilter(q domain.ClaimQuery) (string, []any) {
	var conditions []string
	var args []any

	if q.Tier != "" {
		conditions = append(conditions, "tier = ?")
		args = append(args, string(q.Tier))
	}
	if q.Namespace != "" {
		conditions = append(conditions, `(namespace = ? OR namespace LIKE ? ESCAPE '\')`)
		args = append(args, q.Namespace, likeEscape(q.Namespace)+"/%")
	}
	if q.MinConfidence > 0 {
		conditions = append(conditions, "confidence_lower >= ?")
		args = append(args, q.MinConfidence)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// likeEscape neutralizes LIKE wildcards in a literal prefix. Underscores are
// legal namespace characters and would otherwise match any single character.
func likeEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(sc rowScanner) (domain.Claim, error) {
	var (
		c         domain.Claim
		id        string
		tier      string
		embedding []byte
		createdAt int64
		staleAt   sql.NullInt64
	)
	err := sc.Scan(&id, &c.Namespace, &c.Subject, &c.Predicate, &c.Object,
		&c.Confidence.Lower, &c.Confidence.Upper, &tier, &embedding, &createdAt, &staleAt)
	if err != nil {
		return domain.Claim{}, err
	}

	c.ID, err = uuid.Parse(id)
	if err != nil {
		return domain.Claim{}, fmt.Errorf("parse claim id %q: %w", id, err)
	}
	c.Tier = domain.Tier(tier)
	c.CreatedAt = time.UnixMilli(createdAt).UTC()
	if staleAt.Valid {
		t := time.UnixMilli(staleAt.Int64).UTC()
		c.StaleAt = &t
	}
	if len(embedding) > 0 {
		c.Embedding = decodeEmbedding(embedding)
	}
	return c, nil
}

func scanRelationship(sc rowScanner) (domain.Relationship, error) {
	var (
		rel       domain.Relationship
		from, to  string
		relType   string
		createdAt int64
	)
	err := sc.Scan(&from, &to, &relType, &rel.Strength, &createdAt)
	if err != nil {
		return domain.Relationship{}, fmt.Errorf("scan relationship: %w", err)
	}

	rel.FromClaim, err = uuid.Parse(from)
	if err != nil {
		return domain.Relationship{}, fmt.Errorf("parse from claim %q: %w", from, err)
	}
	rel.ToClaim, err = uuid.Parse(to)
	if err != nil {
		return domain.Relationship{}, fmt.Errorf("parse to claim %q: %w", to, err)
	}
	rel.Type = domain.RelationshipType(relType)
	rel.CreatedAt = time.UnixMilli(createdAt).UTC()
	return rel, nil
}

// encodeEmbedding packs a vector as 4 bytes per component, little-endian.
func encodeEmbedding(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	n := len(buf) / 4
	vec := make([]float32, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
