package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"product-catalog-migrator/internal/domain"
)

const termColumns = `id, taxonomy, name, slug, parent_id`

func scanTerm(row rowScanner) (*domain.Term, error) {
	var t domain.Term
	if err := row.Scan(&t.ID, &t.Taxonomy, &t.Name, &t.Slug, &t.ParentID); err != nil {
		return nil, err
	}
	return &t, nil
}

// --- TermStorer Implementation ---

func (s *PostgresStore) GetTerm(ctx context.Context, id int64) (*domain.Term, error) {
	query := `SELECT ` + termColumns + ` FROM catalog.terms WHERE id = $1;`
	t, err := scanTerm(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTermNotFound
		}
		return nil, fmt.Errorf("store: GetTerm failed to scan row: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) FindTermBySlug(ctx context.Context, taxonomy, slug string) (*domain.Term, error) {
	query := `SELECT ` + termColumns + ` FROM catalog.terms WHERE taxonomy = $1 AND slug = $2;`
	t, err := scanTerm(s.db.QueryRowContext(ctx, query, taxonomy, slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTermNotFound
		}
		return nil, fmt.Errorf("store: FindTermBySlug failed to scan row: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) FindTermsByName(ctx context.Context, taxonomy, name string, parentID *int64) ([]domain.Term, error) {
	if parentID == nil {
		query := `SELECT ` + termColumns + ` FROM catalog.terms WHERE taxonomy = $1 AND lower(name) = lower($2) ORDER BY id;`
		return s.queryTerms(ctx, "FindTermsByName", query, taxonomy, name)
	}
	query := `SELECT ` + termColumns + ` FROM catalog.terms WHERE taxonomy = $1 AND lower(name) = lower($2) AND parent_id = $3 ORDER BY id;`
	return s.queryTerms(ctx, "FindTermsByName", query, taxonomy, name, *parentID)
}

func (s *PostgresStore) ListTerms(ctx context.Context, taxonomy string, parentID *int64) ([]domain.Term, error) {
	if parentID == nil {
		query := `SELECT ` + termColumns + ` FROM catalog.terms WHERE taxonomy = $1 ORDER BY id;`
		return s.queryTerms(ctx, "ListTerms", query, taxonomy)
	}
	query := `SELECT ` + termColumns + ` FROM catalog.terms WHERE taxonomy = $1 AND parent_id = $2 ORDER BY id;`
	return s.queryTerms(ctx, "ListTerms", query, taxonomy, *parentID)
}

func (s *PostgresStore) CreateTerm(ctx context.Context, term *domain.Term) (*domain.Term, error) {
	query := `
		INSERT INTO catalog.terms (taxonomy, name, slug, parent_id)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + termColumns + `;`
	t, err := scanTerm(s.db.QueryRowContext(ctx, query, term.Taxonomy, term.Name, term.Slug, term.ParentID))
	if err != nil {
		if isUniqueViolation(err, "terms_taxonomy_slug_key") {
			return nil, ErrTermSlugExists
		}
		return nil, fmt.Errorf("store: CreateTerm failed to scan row: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) UpdateTerm(ctx context.Context, term *domain.Term) (*domain.Term, error) {
	query := `
		UPDATE catalog.terms
		SET name = $1, slug = $2, parent_id = $3
		WHERE id = $4
		RETURNING ` + termColumns + `;`
	t, err := scanTerm(s.db.QueryRowContext(ctx, query, term.Name, term.Slug, term.ParentID, term.ID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTermNotFound
		}
		if isUniqueViolation(err, "terms_taxonomy_slug_key") {
			return nil, ErrTermSlugExists
		}
		return nil, fmt.Errorf("store: UpdateTerm failed to scan row: %w", err)
	}
	return t, nil
}

// DeleteTerm removes a term, its memberships and its language tag. Children are left in place.
func (s *PostgresStore) DeleteTerm(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: DeleteTerm failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx, `DELETE FROM catalog.terms WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("store: DeleteTerm failed to execute delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: DeleteTerm failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrTermNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog.translations WHERE object_type = 'term' AND object_id = $1;`, id); err != nil {
		return fmt.Errorf("store: DeleteTerm failed to drop language tag: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: DeleteTerm failed to commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetObjectTerms(ctx context.Context, productID int64, taxonomy string, termIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: SetObjectTerms failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM catalog.product_terms WHERE product_id = $1 AND taxonomy = $2;`, productID, taxonomy,
	); err != nil {
		return fmt.Errorf("store: SetObjectTerms failed to clear memberships: %w", err)
	}

	// The SELECT form drops ids that are not terms of the taxonomy.
	insert := `
		INSERT INTO catalog.product_terms (product_id, term_id, taxonomy, position)
		SELECT $1, id, taxonomy, $4 FROM catalog.terms WHERE id = $2 AND taxonomy = $3
		ON CONFLICT (product_id, term_id) DO NOTHING;
	`
	for pos, termID := range termIDs {
		if _, err := tx.ExecContext(ctx, insert, productID, termID, taxonomy, pos); err != nil {
			return fmt.Errorf("store: SetObjectTerms failed to insert term %d: %w", termID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: SetObjectTerms failed to commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetObjectTerms(ctx context.Context, productID int64, taxonomy string) ([]domain.Term, error) {
	query := `
		SELECT t.id, t.taxonomy, t.name, t.slug, t.parent_id
		FROM catalog.product_terms pt
		JOIN catalog.terms t ON t.id = pt.term_id
		WHERE pt.product_id = $1 AND pt.taxonomy = $2
		ORDER BY pt.position, t.id;
	`
	return s.queryTerms(ctx, "GetObjectTerms", query, productID, taxonomy)
}

func (s *PostgresStore) ListObjectsWithTerm(ctx context.Context, termID int64) ([]int64, error) {
	query := `SELECT product_id FROM catalog.product_terms WHERE term_id = $1 ORDER BY product_id;`
	return s.queryIDs(ctx, "ListObjectsWithTerm", query, termID)
}

func (s *PostgresStore) queryTerms(ctx context.Context, op, query string, args ...interface{}) ([]domain.Term, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: %s failed to query terms: %w", op, err)
	}
	defer rows.Close()

	terms := []domain.Term{}
	for rows.Next() {
		t, err := scanTerm(rows)
		if err != nil {
			return nil, fmt.Errorf("store: %s failed to scan term row: %w", op, err)
		}
		terms = append(terms, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: %s iteration error: %w", op, err)
	}
	return terms, nil
}
