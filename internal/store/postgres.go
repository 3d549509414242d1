package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"product-catalog-migrator/internal/domain"
)

// Predefined errors for store operations
var (
	ErrProductNotFound = errors.New("store: product not found")
	ErrTermNotFound    = errors.New("store: term not found")
	ErrTermSlugExists  = errors.New("store: term slug already exists in taxonomy")
	ErrAssetNotFound   = errors.New("store: asset not found")
	ErrAssetURLExists  = errors.New("store: asset source url already registered")
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore implements Storer and the translation linking operations using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ping checks that the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: failed to close database connection pool: %w", err)
	}
	return nil
}

// Migrate applies the catalog schema. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("store: Migrate failed to apply schema: %w", err)
	}
	return nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505" && strings.Contains(pqErr.Constraint, constraint)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const productColumns = `id, slug, title, status, content, excerpt, author_id, created_at, modified_at`

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	var status string
	if err := row.Scan(&p.ID, &p.Slug, &p.Title, &status, &p.Content, &p.Excerpt, &p.AuthorID, &p.CreatedAt, &p.ModifiedAt); err != nil {
		return nil, err
	}
	p.Status = domain.Status(status)
	return &p, nil
}

// --- ProductStorer Implementation ---

func (s *PostgresStore) CreateProduct(ctx context.Context, fields domain.ProductFields) (*domain.Product, error) {
	query := `
		INSERT INTO catalog.products (slug, title, status, content, excerpt, author_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + productColumns + `;`
	p, err := scanProduct(s.db.QueryRowContext(ctx, query,
		valueOrEmpty(fields.Slug), fields.Title, string(fields.Status),
		valueOrEmpty(fields.Content), valueOrEmpty(fields.Excerpt), fields.AuthorID,
	))
	if err != nil {
		return nil, fmt.Errorf("store: CreateProduct failed to scan row: %w", err)
	}
	return p, nil
}

// UpdateProduct writes fields onto an existing record. Nil optional fields and a
// zero author keep their stored values.
func (s *PostgresStore) UpdateProduct(ctx context.Context, id int64, fields domain.ProductFields) (*domain.Product, error) {
	query := `
		UPDATE catalog.products
		SET slug = COALESCE($2, slug), title = $3, status = $4,
			content = COALESCE($5, content), excerpt = COALESCE($6, excerpt),
			author_id = CASE WHEN $7::bigint > 0 THEN $7::bigint ELSE author_id END,
			modified_at = now()
		WHERE id = $1
		RETURNING ` + productColumns + `;`
	p, err := scanProduct(s.db.QueryRowContext(ctx, query,
		id, nullString(fields.Slug), fields.Title, string(fields.Status),
		nullString(fields.Content), nullString(fields.Excerpt), fields.AuthorID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: UpdateProduct failed for id %d: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM catalog.products WHERE id = $1;`
	p, err := scanProduct(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: GetProductByID failed to scan row: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) FindProductsBySlug(ctx context.Context, slug string) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM catalog.products WHERE slug = $1 ORDER BY id;`
	return s.queryProducts(ctx, "FindProductsBySlug", query, slug)
}

func (s *PostgresStore) FindProductsByMeta(ctx context.Context, key, value string) ([]int64, error) {
	query := `SELECT product_id FROM catalog.product_meta WHERE meta_key = $1 AND meta_value = $2 ORDER BY product_id;`
	return s.queryIDs(ctx, "FindProductsByMeta", query, key, value)
}

func (s *PostgresStore) ListProducts(ctx context.Context, params ListProductsParams) ([]domain.Product, error) {
	var queryArgs []interface{}
	var whereClauses []string
	argID := 1

	if len(params.Statuses) > 0 {
		statuses := make([]string, len(params.Statuses))
		for i, st := range params.Statuses {
			statuses[i] = string(st)
		}
		whereClauses = append(whereClauses, fmt.Sprintf("status = ANY($%d)", argID))
		queryArgs = append(queryArgs, pq.Array(statuses))
		argID++
	}
	if len(params.IDs) > 0 {
		whereClauses = append(whereClauses, fmt.Sprintf("id = ANY($%d)", argID))
		queryArgs = append(queryArgs, pq.Array(params.IDs))
		argID++
	}

	query := "SELECT " + productColumns + " FROM catalog.products"
	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	query += " ORDER BY id"
	if params.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argID, argID+1)
		queryArgs = append(queryArgs, params.Limit, params.Offset)
	}
	return s.queryProducts(ctx, "ListProducts", query+";", queryArgs...)
}

// DeleteProduct removes a record with its metadata, memberships and language tag.
func (s *PostgresStore) DeleteProduct(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: DeleteProduct failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx, `DELETE FROM catalog.products WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("store: DeleteProduct failed to execute delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: DeleteProduct failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrProductNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog.translations WHERE object_type = 'product' AND object_id = $1;`, id); err != nil {
		return fmt.Errorf("store: DeleteProduct failed to drop language tag: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: DeleteProduct failed to commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProductMeta(ctx context.Context, id int64, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT meta_value FROM catalog.product_meta WHERE product_id = $1 AND meta_key = $2;`, id, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("store: GetProductMeta failed for %d/%s: %w", id, key, err)
	}
	return value, true, nil
}

func (s *PostgresStore) GetAllProductMeta(ctx context.Context, id int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT meta_key, meta_value FROM catalog.product_meta WHERE product_id = $1 ORDER BY meta_key;`, id)
	if err != nil {
		return nil, fmt.Errorf("store: GetAllProductMeta failed to query: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("store: GetAllProductMeta failed to scan row: %w", err)
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: GetAllProductMeta iteration error: %w", err)
	}
	return meta, nil
}

func (s *PostgresStore) SetProductMeta(ctx context.Context, id int64, key, value string) error {
	query := `
		INSERT INTO catalog.product_meta (product_id, meta_key, meta_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id, meta_key) DO UPDATE SET meta_value = EXCLUDED.meta_value;
	`
	if _, err := s.db.ExecContext(ctx, query, id, key, value); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return ErrProductNotFound
		}
		return fmt.Errorf("store: SetProductMeta failed for %d/%s: %w", id, key, err)
	}
	return nil
}

func (s *PostgresStore) SetModifiedAt(ctx context.Context, id int64, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE catalog.products SET modified_at = $2 WHERE id = $1;`, id, at)
	if err != nil {
		return fmt.Errorf("store: SetModifiedAt failed for id %d: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrProductNotFound
	}
	return nil
}

// RecomputeDerived rebuilds the full-text search vector of a record.
func (s *PostgresStore) RecomputeDerived(ctx context.Context, id int64) error {
	query := `
		UPDATE catalog.products
		SET search_vector = to_tsvector('simple', title || ' ' || excerpt || ' ' || content)
		WHERE id = $1;
	`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("store: RecomputeDerived failed for id %d: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) queryProducts(ctx context.Context, op, query string, args ...interface{}) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: %s failed to query products: %w", op, err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("store: %s failed to scan product row: %w", op, err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: %s iteration error: %w", op, err)
	}
	return products, nil
}

func (s *PostgresStore) queryIDs(ctx context.Context, op, query string, args ...interface{}) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: %s failed to query: %w", op, err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: %s failed to scan id: %w", op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: %s iteration error: %w", op, err)
	}
	return ids, nil
}

func valueOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}
