package domain

import (
	"time"
)

// Status is the publication state of a product record, using the host's wire values.
type Status string

const (
	StatusPublished Status = "publish"
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusPrivate   Status = "private"
	StatusScheduled Status = "future"
	// StatusTrash is only ever set by the delete-lang maintenance command.
	StatusTrash Status = "trash"
)

// AllowedStatuses lists the statuses an import row or the CLI may request.
var AllowedStatuses = []Status{StatusPublished, StatusDraft, StatusPending, StatusPrivate, StatusScheduled}

// IsAllowed reports whether s is one of AllowedStatuses.
func (s Status) IsAllowed() bool {
	for _, a := range AllowedStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// Well-known metadata keys persisted on product records.
const (
	MetaSourceID   = "_source_id"
	MetaTouch      = "_catalog_touch"
	MetaGalleryIDs = "_gallery_ids"
	MetaThumbnail  = "_thumbnail_id"
)

// Product represents a catalog record in the host content store.
// The json tags correspond to the fields used by the HTTP API.
type Product struct {
	ID         int64     `json:"id"`
	Slug       string    `json:"slug"`
	Title      string    `json:"title"`
	Status     Status    `json:"status"`
	Content    string    `json:"content"`
	Excerpt    string    `json:"excerpt"`
	AuthorID   int64     `json:"author_id"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ProductFields is the field set written by a create or an update.
// Nil pointers leave the stored value untouched on update.
type ProductFields struct {
	Slug     *string
	Title    string
	Status   Status
	Content  *string
	Excerpt  *string
	AuthorID int64
}

// Term is a node of a hierarchical taxonomy. ParentID is 0 for root terms.
type Term struct {
	ID       int64  `json:"id"`
	Taxonomy string `json:"taxonomy"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	ParentID int64  `json:"parent"`
}

// IsRoot reports whether the term sits at the top of its taxonomy.
func (t Term) IsRoot() bool { return t.ParentID == 0 }

// Asset is a managed media file attached to a product.
type Asset struct {
	ID        int64  `json:"id"`
	SourceURL string `json:"url"`
	Title     string `json:"title"`
	Alt       string `json:"alt"`
	Caption   string `json:"caption"`
	ParentID  int64  `json:"parent"`
	LocalPath string `json:"local_path,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// TranslationGroup maps a language code to the id of the object carrying that language.
type TranslationGroup map[string]int64

// Languages returns the number of distinct languages in the group.
func (g TranslationGroup) Languages() int { return len(g) }

// Equal reports whether both groups hold exactly the same entries.
func (g TranslationGroup) Equal(other TranslationGroup) bool {
	if len(g) != len(other) {
		return false
	}
	for code, id := range g {
		if other[code] != id {
			return false
		}
	}
	return true
}
