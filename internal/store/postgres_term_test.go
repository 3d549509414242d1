package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-catalog-migrator/internal/domain"
)

var termRowColumns = []string{"id", "taxonomy", "name", "slug", "parent_id"}

func TestPostgresStore_CreateTerm(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	termToCreate := &domain.Term{Taxonomy: "al_product-attributes", Name: "MARQUE", Slug: "marque-fr"}

	query := regexp.QuoteMeta(`INSERT INTO catalog.terms (taxonomy, name, slug, parent_id)`)
	mock.ExpectQuery(query).
		WithArgs(termToCreate.Taxonomy, termToCreate.Name, termToCreate.Slug, int64(0)).
		WillReturnRows(sqlmock.NewRows(termRowColumns).AddRow(int64(12), termToCreate.Taxonomy, "MARQUE", "marque-fr", int64(0)))

	created, err := store.CreateTerm(context.Background(), termToCreate)

	require.NoError(t, err, "CreateTerm should not return an error")
	assert.Equal(t, int64(12), created.ID)
	assert.True(t, created.IsRoot())
	require.NoError(t, mock.ExpectationsWereMet(), "SQLmock expectations were not met")
}

func TestPostgresStore_CreateTerm_SlugExists(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	termToCreate := &domain.Term{Taxonomy: "al_product-attributes", Name: "Philips", Slug: "philips-fr", ParentID: 12}

	pqErr := &pq.Error{Code: "23505", Constraint: "terms_taxonomy_slug_key"}
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO catalog.terms (taxonomy, name, slug, parent_id)`)).
		WithArgs(termToCreate.Taxonomy, termToCreate.Name, termToCreate.Slug, termToCreate.ParentID).
		WillReturnError(pqErr)

	created, err := store.CreateTerm(context.Background(), termToCreate)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTermSlugExists), "Error should be ErrTermSlugExists")
	assert.Nil(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindTermBySlug(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`SELECT id, taxonomy, name, slug, parent_id FROM catalog.terms WHERE taxonomy = $1 AND slug = $2;`)
	mock.ExpectQuery(query).
		WithArgs("al_product-cat", "lampes-fr").
		WillReturnRows(sqlmock.NewRows(termRowColumns).AddRow(int64(3), "al_product-cat", "Lampes", "lampes-fr", int64(0)))
	mock.ExpectQuery(query).
		WithArgs("al_product-cat", "nope").
		WillReturnRows(sqlmock.NewRows(termRowColumns))

	term, err := store.FindTermBySlug(context.Background(), "al_product-cat", "lampes-fr")
	require.NoError(t, err)
	assert.Equal(t, "Lampes", term.Name)

	_, err = store.FindTermBySlug(context.Background(), "al_product-cat", "nope")
	assert.ErrorIs(t, err, ErrTermNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindTermsByName_UnderParent(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`WHERE taxonomy = $1 AND lower(name) = lower($2) AND parent_id = $3 ORDER BY id;`)
	mock.ExpectQuery(query).
		WithArgs("al_product-attributes", "philips", int64(12)).
		WillReturnRows(sqlmock.NewRows(termRowColumns).AddRow(int64(30), "al_product-attributes", "Philips", "philips-fr", int64(12)))

	terms, err := store.FindTermsByName(context.Background(), "al_product-attributes", "philips", PtrTo(int64(12)))

	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, int64(30), terms[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListTerms_Roots(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM catalog.terms WHERE taxonomy = $1 AND parent_id = $2 ORDER BY id;`)).
		WithArgs("al_product-attributes", int64(0)).
		WillReturnRows(sqlmock.NewRows(termRowColumns).
			AddRow(int64(1), "al_product-attributes", "MARQUE", "marque-fr", int64(0)).
			AddRow(int64(2), "al_product-attributes", "Brand", "brand", int64(0)))

	roots, err := store.ListTerms(context.Background(), "al_product-attributes", PtrTo(int64(0)))

	require.NoError(t, err)
	assert.Len(t, roots, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateTerm_NotFound(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE catalog.terms SET name = $1, slug = $2, parent_id = $3 WHERE id = $4`)).
		WithArgs("MARQUE", "marque-fr", int64(0), int64(99)).
		WillReturnRows(sqlmock.NewRows(termRowColumns))

	_, err := store.UpdateTerm(context.Background(), &domain.Term{ID: 99, Name: "MARQUE", Slug: "marque-fr"})
	assert.ErrorIs(t, err, ErrTermNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteTerm(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM catalog.terms WHERE id = $1;`)).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM catalog.translations WHERE object_type = 'term' AND object_id = $1;`)).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, store.DeleteTerm(context.Background(), 2))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetObjectTerms(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM catalog.product_terms WHERE product_id = $1 AND taxonomy = $2;`)).
		WithArgs(int64(5), "al_product-cat").
		WillReturnResult(sqlmock.NewResult(0, 3))
	insert := regexp.QuoteMeta(`INSERT INTO catalog.product_terms (product_id, term_id, taxonomy, position)`)
	mock.ExpectExec(insert).WithArgs(int64(5), int64(40), "al_product-cat", 0).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).WithArgs(int64(5), int64(999), "al_product-cat", 1).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, store.SetObjectTerms(context.Background(), 5, "al_product-cat", []int64{40, 999}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetObjectTerms_EmptyClears(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM catalog.product_terms WHERE product_id = $1 AND taxonomy = $2;`)).
		WithArgs(int64(5), "al_product-cat").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, store.SetObjectTerms(context.Background(), 5, "al_product-cat", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetObjectTerms(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE pt.product_id = $1 AND pt.taxonomy = $2 ORDER BY pt.position, t.id;`)).
		WithArgs(int64(5), "language").
		WillReturnRows(sqlmock.NewRows(termRowColumns).AddRow(int64(1), "language", "Français", "fr", int64(0)))

	terms, err := store.GetObjectTerms(context.Background(), 5, "language")
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, "Français", terms[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}
