// Package media resolves product images to managed assets, one asset per source URL.
package media

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"product-catalog-migrator/internal/cache"
	"product-catalog-migrator/internal/domain"
	"product-catalog-migrator/internal/lang"
	"product-catalog-migrator/internal/metrics"
	"product-catalog-migrator/internal/store"
)

// Resolver maps image references to asset ids, downloading what the host does not have yet.
type Resolver struct {
	assets      store.AssetStorer
	products    store.ProductStorer
	fetcher     Fetcher
	index       cache.Client
	primaryLang string
	log         zerolog.Logger
}

// NewResolver creates a Resolver. index may be nil; it only short-cuts the URL lookup.
func NewResolver(assets store.AssetStorer, products store.ProductStorer, fetcher Fetcher, index cache.Client, primaryLang string, log zerolog.Logger) *Resolver {
	if primaryLang == "" {
		primaryLang = "en"
	}
	return &Resolver{
		assets:      assets,
		products:    products,
		fetcher:     fetcher,
		index:       index,
		primaryLang: primaryLang,
		log:         log,
	}
}

// Ensure returns the asset id for img attached to owner, or 0 when img has no URL
// or the asset could not be obtained. Failures are logged and never returned.
func (r *Resolver) Ensure(ctx context.Context, img domain.ImageRef, owner int64, lng string) int64 {
	url := strings.TrimSpace(img.URL)
	if url == "" {
		return 0
	}
	log := r.log.With().Str("url", url).Int64("owner_id", owner).Logger()

	existing, err := r.lookup(ctx, url)
	if err != nil {
		log.Debug().Err(err).Msg("asset lookup failed")
		metrics.RecordAsset("failed")
		return 0
	}
	if existing != nil {
		if err := r.refresh(ctx, existing, img, owner, lng); err != nil {
			log.Debug().Err(err).Int64("asset_id", existing.ID).Msg("asset update failed")
		}
		metrics.RecordAsset("reused")
		return existing.ID
	}

	dl, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		log.Debug().Err(err).Msg("asset download failed")
		metrics.RecordAsset("failed")
		return 0
	}
	created, err := r.assets.CreateAsset(ctx, &domain.Asset{
		SourceURL: url,
		Title:     img.Title,
		Alt:       img.Alt,
		Caption:   img.Caption,
		ParentID:  owner,
		LocalPath: dl.LocalPath,
		MimeType:  dl.MimeType,
		Width:     dl.Width,
		Height:    dl.Height,
	})
	if errors.Is(err, store.ErrAssetURLExists) {
		created, err = r.assets.FindAssetByURL(ctx, url)
	}
	if err != nil {
		log.Debug().Err(err).Msg("asset registration failed")
		metrics.RecordAsset("failed")
		return 0
	}
	r.remember(ctx, url, created.ID)
	metrics.RecordAsset("downloaded")
	log.Debug().Int64("asset_id", created.ID).Msg("[MEDIA] sideloaded")
	return created.ID
}

// refresh updates descriptive fields (primary language only, non-empty values only)
// and the parent. Nothing is written when nothing changes.
func (r *Resolver) refresh(ctx context.Context, a *domain.Asset, img domain.ImageRef, owner int64, lng string) error {
	changed := false
	if lang.Match(lng, r.primaryLang) {
		for _, f := range []struct {
			dst *string
			src string
		}{{&a.Title, img.Title}, {&a.Alt, img.Alt}, {&a.Caption, img.Caption}} {
			if v := strings.TrimSpace(f.src); v != "" && v != *f.dst {
				*f.dst = v
				changed = true
			}
		}
	}
	if owner > 0 && a.ParentID != owner {
		a.ParentID = owner
		changed = true
	}
	if !changed {
		return nil
	}
	return r.assets.UpdateAsset(ctx, a)
}

func (r *Resolver) lookup(ctx context.Context, url string) (*domain.Asset, error) {
	if r.index != nil {
		if raw, err := r.index.Get(ctx, cache.AssetURLKey(url)); err == nil {
			if id, perr := strconv.ParseInt(string(raw), 10, 64); perr == nil {
				a, gerr := r.assets.GetAsset(ctx, id)
				if gerr == nil && a.SourceURL == url {
					return a, nil
				}
			}
			_ = r.index.Delete(ctx, cache.AssetURLKey(url))
		}
	}
	a, err := r.assets.FindAssetByURL(ctx, url)
	if errors.Is(err, store.ErrAssetNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.remember(ctx, url, a.ID)
	return a, nil
}

func (r *Resolver) remember(ctx context.Context, url string, id int64) {
	if r.index == nil {
		return
	}
	if err := r.index.Set(ctx, cache.AssetURLKey(url), []byte(strconv.FormatInt(id, 10)), 0); err != nil {
		r.log.Debug().Err(err).Str("url", url).Msg("asset index write failed")
	}
}

// Images is the outcome of ImportImages.
type Images struct {
	FeaturedID int64
	GalleryIDs []int64
}

// ImportImages resolves the featured image and the gallery of row and records them on
// the product. An absent image or gallery leaves the corresponding metadata untouched,
// as does a gallery none of whose images could be resolved.
func (r *Resolver) ImportImages(ctx context.Context, productID int64, row domain.Row, lng string) (Images, error) {
	var out Images
	if row.Image != nil && strings.TrimSpace(row.Image.URL) != "" {
		out.FeaturedID = r.Ensure(ctx, *row.Image, productID, lng)
		if out.FeaturedID > 0 {
			if err := r.products.SetProductMeta(ctx, productID, domain.MetaThumbnail, strconv.FormatInt(out.FeaturedID, 10)); err != nil {
				return out, err
			}
		}
	}

	if len(row.Images) == 0 {
		return out, nil
	}
	out.GalleryIDs = []int64{}
	for _, img := range row.Images {
		if strings.TrimSpace(img.URL) == "" {
			continue
		}
		if id := r.Ensure(ctx, img, productID, lng); id > 0 {
			out.GalleryIDs = append(out.GalleryIDs, id)
		}
	}
	if len(out.GalleryIDs) == 0 {
		r.log.Debug().Int64("id", productID).Msg("no gallery image resolved, gallery kept")
		return out, nil
	}
	if err := r.products.SetProductMeta(ctx, productID, domain.MetaGalleryIDs, domain.EncodeJSON(out.GalleryIDs)); err != nil {
		return out, err
	}
	return out, nil
}
