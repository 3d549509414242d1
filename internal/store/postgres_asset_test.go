package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-catalog-migrator/internal/domain"
)

var assetRowColumns = []string{"id", "source_url", "title", "alt", "caption", "parent_id", "local_path", "mime_type", "width", "height"}

func TestPostgresStore_FindAssetByURL(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`FROM catalog.assets WHERE source_url = $1;`)
	mock.ExpectQuery(query).WithArgs("https://cdn/a.jpg").
		WillReturnRows(sqlmock.NewRows(assetRowColumns).
			AddRow(int64(4), "https://cdn/a.jpg", "A", "alt", "", int64(9), "/m/a.jpg", "image/jpeg", 800, 600))
	mock.ExpectQuery(query).WithArgs("https://cdn/b.jpg").
		WillReturnRows(sqlmock.NewRows(assetRowColumns))

	a, err := store.FindAssetByURL(context.Background(), "https://cdn/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, int64(9), a.ParentID)
	assert.Equal(t, 800, a.Width)

	_, err = store.FindAssetByURL(context.Background(), "https://cdn/b.jpg")
	assert.ErrorIs(t, err, ErrAssetNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateAsset_URLExists(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO catalog.assets`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "assets_source_url_key"})

	_, err := store.CreateAsset(context.Background(), &domain.Asset{SourceURL: "https://cdn/a.jpg"})
	assert.ErrorIs(t, err, ErrAssetURLExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateAsset(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`UPDATE catalog.assets SET title = $1, alt = $2, caption = $3, parent_id = $4 WHERE id = $5;`)
	mock.ExpectExec(query).WithArgs("T", "A", "C", int64(9), int64(4)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("T", "A", "C", int64(9), int64(5)).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.UpdateAsset(context.Background(), &domain.Asset{ID: 4, Title: "T", Alt: "A", Caption: "C", ParentID: 9}))
	err := store.UpdateAsset(context.Background(), &domain.Asset{ID: 5, Title: "T", Alt: "A", Caption: "C", ParentID: 9})
	assert.ErrorIs(t, err, ErrAssetNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
