package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/labtrace/labtrace/pkg/models"
)

// AnalyteStore is the repository for analytes and their aliases, backing
// all three tiers of C8's mapping applier.
type AnalyteStore struct {
	db Querier
}

// WithTx returns a copy of the store bound to tx.
func (s *AnalyteStore) WithTx(tx pgx.Tx) *AnalyteStore {
	return &AnalyteStore{db: tx}
}

// FindByExactAlias is tier 1 of the mapping applier: an exact match on the
// normalized alias.
func (s *AnalyteStore) FindByExactAlias(ctx context.Context, normalized string) (*models.Analyte, error) {
	row := s.db.QueryRow(ctx, `
		SELECT a.id, a.name, a.category, a.created_at
		FROM analytes a JOIN analyte_aliases al ON al.analyte_id = a.id
		WHERE al.normalized = $1
	`, normalized)
	return scanAnalyte(row)
}

// FuzzyCandidate is a trigram-similarity match produced by FindFuzzyAliases.
type FuzzyCandidate struct {
	AnalyteID  string
	Alias      string
	Similarity float64
}

// FindFuzzyAliases is tier 2 of the mapping applier: trigram similarity
// search against pg_trgm, returning candidates above minSimilarity ordered
// best-first.
func (s *AnalyteStore) FindFuzzyAliases(ctx context.Context, normalized string, minSimilarity float64, limit int) ([]FuzzyCandidate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT analyte_id, normalized, similarity(normalized, $1) AS sim
		FROM analyte_aliases
		WHERE similarity(normalized, $1) >= $2
		ORDER BY sim DESC
		LIMIT $3
	`, normalized, minSimilarity, limit)
	if err != nil {
		return nil, fmt.Errorf("fuzzy alias search: %w", err)
	}
	defer rows.Close()

	var out []FuzzyCandidate
	for rows.Next() {
		var c FuzzyCandidate
		if err := rows.Scan(&c.AnalyteID, &c.Alias, &c.Similarity); err != nil {
			return nil, fmt.Errorf("scan fuzzy candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Create inserts a new canonical analyte.
func (s *AnalyteStore) Create(ctx context.Context, name, category string) (*models.Analyte, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO analytes (id, name, category) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET category = EXCLUDED.category
		RETURNING id, name, category, created_at
	`, uuid.NewString(), name, category)
	return scanAnalyte(row)
}

// Get returns an analyte by id.
func (s *AnalyteStore) Get(ctx context.Context, id string) (*models.Analyte, error) {
	row := s.db.QueryRow(ctx, `SELECT id, name, category, created_at FROM analytes WHERE id = $1`, id)
	return scanAnalyte(row)
}

// AddAlias attaches a new alias to an analyte, used by admin approvals.
func (s *AnalyteStore) AddAlias(ctx context.Context, analyteID, alias, normalized string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO analyte_aliases (id, analyte_id, alias, normalized)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (normalized) DO NOTHING
	`, uuid.NewString(), analyteID, alias, normalized)
	if err != nil {
		return fmt.Errorf("add analyte alias: %w", err)
	}
	return nil
}

func scanAnalyte(row pgx.Row) (*models.Analyte, error) {
	var a models.Analyte
	if err := row.Scan(&a.ID, &a.Name, &a.Category, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan analyte: %w", err)
	}
	return &a, nil
}
