package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/lib/pq"

	"product-catalog-migrator/internal/domain"
)

const (
	objectProduct = "product"
	objectTerm    = "term"
)

// HasTranslationTables reports whether the host schema carries the translation-linking tables.
func (s *PostgresStore) HasTranslationTables(ctx context.Context) (bool, error) {
	var present bool
	err := s.db.QueryRowContext(ctx,
		`SELECT to_regclass('catalog.translations') IS NOT NULL AND to_regclass('catalog.languages') IS NOT NULL;`,
	).Scan(&present)
	if err != nil {
		return false, fmt.Errorf("store: HasTranslationTables failed: %w", err)
	}
	return present, nil
}

func (s *PostgresStore) Languages(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code FROM catalog.languages ORDER BY code;`)
	if err != nil {
		return nil, fmt.Errorf("store: Languages failed to query: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("store: Languages failed to scan row: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: Languages iteration error: %w", err)
	}
	return codes, nil
}

func (s *PostgresStore) SetProductLanguage(ctx context.Context, productID int64, lang string) error {
	return s.setLanguage(ctx, objectProduct, productID, lang)
}

func (s *PostgresStore) ProductLanguage(ctx context.Context, productID int64) (string, error) {
	return s.language(ctx, objectProduct, productID)
}

func (s *PostgresStore) ProductGroup(ctx context.Context, productID int64) (domain.TranslationGroup, error) {
	return s.group(ctx, objectProduct, productID)
}

func (s *PostgresStore) SaveProductGroup(ctx context.Context, group domain.TranslationGroup) error {
	return s.saveGroup(ctx, objectProduct, group)
}

func (s *PostgresStore) ProductsByLanguage(ctx context.Context, lang string) ([]int64, error) {
	query := `SELECT object_id FROM catalog.translations WHERE object_type = 'product' AND lang = $1 ORDER BY object_id;`
	return s.queryIDs(ctx, "ProductsByLanguage", query, lang)
}

func (s *PostgresStore) SetTermLanguage(ctx context.Context, termID int64, lang string) error {
	return s.setLanguage(ctx, objectTerm, termID, lang)
}

func (s *PostgresStore) TermLanguage(ctx context.Context, termID int64) (string, error) {
	return s.language(ctx, objectTerm, termID)
}

func (s *PostgresStore) TermGroup(ctx context.Context, termID int64) (domain.TranslationGroup, error) {
	return s.group(ctx, objectTerm, termID)
}

func (s *PostgresStore) SaveTermGroup(ctx context.Context, group domain.TranslationGroup) error {
	return s.saveGroup(ctx, objectTerm, group)
}

func (s *PostgresStore) setLanguage(ctx context.Context, objectType string, id int64, lang string) error {
	query := `
		INSERT INTO catalog.translations (object_type, object_id, lang)
		VALUES ($1, $2, $3)
		ON CONFLICT (object_type, object_id) DO UPDATE SET lang = EXCLUDED.lang;
	`
	if _, err := s.db.ExecContext(ctx, query, objectType, id, lang); err != nil {
		return fmt.Errorf("store: set %s language failed for %d: %w", objectType, id, err)
	}
	return nil
}

func (s *PostgresStore) language(ctx context.Context, objectType string, id int64) (string, error) {
	var lang string
	err := s.db.QueryRowContext(ctx,
		`SELECT lang FROM catalog.translations WHERE object_type = $1 AND object_id = $2;`, objectType, id,
	).Scan(&lang)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("store: get %s language failed for %d: %w", objectType, id, err)
	}
	return lang, nil
}

// group returns the translation group of an object. An object that is tagged but
// not grouped forms a group of its own.
func (s *PostgresStore) group(ctx context.Context, objectType string, id int64) (domain.TranslationGroup, error) {
	query := `
		SELECT t.lang, t.object_id
		FROM catalog.translations s
		JOIN catalog.translations t ON t.object_type = s.object_type AND t.group_id = s.group_id
		WHERE s.object_type = $1 AND s.object_id = $2
		ORDER BY t.object_id;
	`
	rows, err := s.db.QueryContext(ctx, query, objectType, id)
	if err != nil {
		return nil, fmt.Errorf("store: get %s group failed for %d: %w", objectType, id, err)
	}
	defer rows.Close()

	group := domain.TranslationGroup{}
	for rows.Next() {
		var lang string
		var objectID int64
		if err := rows.Scan(&lang, &objectID); err != nil {
			return nil, fmt.Errorf("store: get %s group failed to scan row: %w", objectType, err)
		}
		if _, taken := group[lang]; !taken {
			group[lang] = objectID
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: get %s group iteration error: %w", objectType, err)
	}
	if len(group) > 0 {
		return group, nil
	}

	lang, err := s.language(ctx, objectType, id)
	if err != nil {
		return nil, err
	}
	if lang != "" {
		group[lang] = id
	}
	return group, nil
}

// saveGroup stores group under the id of its smallest member and detaches former
// members that are no longer part of it.
func (s *PostgresStore) saveGroup(ctx context.Context, objectType string, group domain.TranslationGroup) error {
	if len(group) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(group))
	for _, id := range group {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	groupID := ids[0]

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: save %s group failed to begin transaction: %w", objectType, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`UPDATE catalog.translations SET group_id = NULL WHERE object_type = $1 AND group_id = $2 AND NOT (object_id = ANY($3));`,
		objectType, groupID, pq.Array(ids),
	); err != nil {
		return fmt.Errorf("store: save %s group failed to detach members: %w", objectType, err)
	}

	upsert := `
		INSERT INTO catalog.translations (object_type, object_id, lang, group_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (object_type, object_id) DO UPDATE SET lang = EXCLUDED.lang, group_id = EXCLUDED.group_id;
	`
	langs := make([]string, 0, len(group))
	for lang := range group {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	for _, lang := range langs {
		if _, err := tx.ExecContext(ctx, upsert, objectType, group[lang], lang, groupID); err != nil {
			return fmt.Errorf("store: save %s group failed for %s=%d: %w", objectType, lang, group[lang], err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: save %s group failed to commit: %w", objectType, err)
	}
	return nil
}
