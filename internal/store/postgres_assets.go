package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"product-catalog-migrator/internal/domain"
)

const assetColumns = `id, source_url, title, alt, caption, parent_id, local_path, mime_type, width, height`

func scanAsset(row rowScanner) (*domain.Asset, error) {
	var a domain.Asset
	if err := row.Scan(&a.ID, &a.SourceURL, &a.Title, &a.Alt, &a.Caption, &a.ParentID,
		&a.LocalPath, &a.MimeType, &a.Width, &a.Height); err != nil {
		return nil, err
	}
	return &a, nil
}

// --- AssetStorer Implementation ---

func (s *PostgresStore) FindAssetByURL(ctx context.Context, url string) (*domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM catalog.assets WHERE source_url = $1;`
	a, err := scanAsset(s.db.QueryRowContext(ctx, query, url))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAssetNotFound
		}
		return nil, fmt.Errorf("store: FindAssetByURL failed to scan row: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) GetAsset(ctx context.Context, id int64) (*domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM catalog.assets WHERE id = $1;`
	a, err := scanAsset(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAssetNotFound
		}
		return nil, fmt.Errorf("store: GetAsset failed to scan row: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) CreateAsset(ctx context.Context, asset *domain.Asset) (*domain.Asset, error) {
	query := `
		INSERT INTO catalog.assets (source_url, title, alt, caption, parent_id, local_path, mime_type, width, height)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + assetColumns + `;`
	a, err := scanAsset(s.db.QueryRowContext(ctx, query,
		asset.SourceURL, asset.Title, asset.Alt, asset.Caption, asset.ParentID,
		asset.LocalPath, asset.MimeType, asset.Width, asset.Height,
	))
	if err != nil {
		if isUniqueViolation(err, "assets_source_url_key") {
			return nil, ErrAssetURLExists
		}
		return nil, fmt.Errorf("store: CreateAsset failed to scan row: %w", err)
	}
	return a, nil
}

// UpdateAsset writes the descriptive fields and the parent of an asset.
func (s *PostgresStore) UpdateAsset(ctx context.Context, asset *domain.Asset) error {
	query := `
		UPDATE catalog.assets
		SET title = $1, alt = $2, caption = $3, parent_id = $4
		WHERE id = $5;
	`
	result, err := s.db.ExecContext(ctx, query, asset.Title, asset.Alt, asset.Caption, asset.ParentID, asset.ID)
	if err != nil {
		return fmt.Errorf("store: UpdateAsset failed for id %d: %w", asset.ID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: UpdateAsset failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAssetNotFound
	}
	return nil
}

func (s *PostgresStore) ListAssetsByParent(ctx context.Context, parentID int64) ([]domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM catalog.assets WHERE parent_id = $1 ORDER BY id;`
	rows, err := s.db.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("store: ListAssetsByParent failed to query: %w", err)
	}
	defer rows.Close()

	assets := []domain.Asset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("store: ListAssetsByParent failed to scan row: %w", err)
		}
		assets = append(assets, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListAssetsByParent iteration error: %w", err)
	}
	return assets, nil
}
