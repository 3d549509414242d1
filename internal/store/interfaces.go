package store

import (
	"context"
	"time"

	"product-catalog-migrator/internal/domain"
)

// ListProductsParams holds filters for listing products.
type ListProductsParams struct {
	Limit    int // 0 means no limit
	Offset   int
	Statuses []domain.Status // empty means any status
	IDs      []int64         // restrict to these ids when non-empty
}

// ProductStorer defines the host store operations on product records and their metadata.
type ProductStorer interface {
	CreateProduct(ctx context.Context, fields domain.ProductFields) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id int64, fields domain.ProductFields) (*domain.Product, error)
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
	// FindProductsBySlug returns every record using slug, in any language, ordered by id.
	FindProductsBySlug(ctx context.Context, slug string) ([]domain.Product, error)
	// FindProductsByMeta returns the ids of records whose metadata key equals value, ordered by id.
	FindProductsByMeta(ctx context.Context, key, value string) ([]int64, error)
	ListProducts(ctx context.Context, params ListProductsParams) ([]domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	GetProductMeta(ctx context.Context, id int64, key string) (string, bool, error)
	GetAllProductMeta(ctx context.Context, id int64) (map[string]string, error)
	SetProductMeta(ctx context.Context, id int64, key, value string) error

	// SetModifiedAt overwrites the modified timestamp without touching anything else.
	SetModifiedAt(ctx context.Context, id int64, at time.Time) error
	// RecomputeDerived refreshes data the host derives from a record (search index, caches).
	RecomputeDerived(ctx context.Context, id int64) error
}

// TermStorer defines the host store operations on hierarchical taxonomies.
type TermStorer interface {
	GetTerm(ctx context.Context, id int64) (*domain.Term, error)
	FindTermBySlug(ctx context.Context, taxonomy, slug string) (*domain.Term, error)
	// FindTermsByName matches names case-insensitively. A nil parentID searches the whole taxonomy.
	FindTermsByName(ctx context.Context, taxonomy, name string, parentID *int64) ([]domain.Term, error)
	// ListTerms lists terms ordered by id. A nil parentID lists the whole taxonomy.
	ListTerms(ctx context.Context, taxonomy string, parentID *int64) ([]domain.Term, error)
	CreateTerm(ctx context.Context, term *domain.Term) (*domain.Term, error)
	UpdateTerm(ctx context.Context, term *domain.Term) (*domain.Term, error)
	DeleteTerm(ctx context.Context, id int64) error

	// SetObjectTerms replaces the memberships of a product in one taxonomy, in order.
	// Ids that are not terms of the taxonomy are dropped.
	SetObjectTerms(ctx context.Context, productID int64, taxonomy string, termIDs []int64) error
	GetObjectTerms(ctx context.Context, productID int64, taxonomy string) ([]domain.Term, error)
	ListObjectsWithTerm(ctx context.Context, termID int64) ([]int64, error)
}

// AssetStorer defines the host store operations on managed media.
type AssetStorer interface {
	FindAssetByURL(ctx context.Context, url string) (*domain.Asset, error)
	GetAsset(ctx context.Context, id int64) (*domain.Asset, error)
	CreateAsset(ctx context.Context, asset *domain.Asset) (*domain.Asset, error)
	UpdateAsset(ctx context.Context, asset *domain.Asset) error
	ListAssetsByParent(ctx context.Context, parentID int64) ([]domain.Asset, error)
}

// Storer is the full host content store.
type Storer interface {
	ProductStorer
	TermStorer
	AssetStorer
}
