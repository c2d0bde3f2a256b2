package odm

import (
	"context"

	"github.com/mickamy/docmap/scope"
)

// IDKey is the record field holding a document's identity.
const IDKey = "_id"

// Timestamp keys maintained by Document.Save on every model.
const (
	CreatedAtKey = "created_at"
	UpdatedAtKey = "updated_at"
)

// Record is the stored form of a document. IDKey holds the identity.
type Record map[string]any

// Store is the document persistence backend. Implementations live under
// store/. Results without an explicit ordering come back in insertion
// order. Count ignores Limit and Offset.
type Store interface {
	Find(ctx context.Context, collection string, q scope.Query) ([]Record, error)
	Count(ctx context.Context, collection string, q scope.Query) (int64, error)
	Insert(ctx context.Context, collection string, rec Record) error
	Update(ctx context.Context, collection string, id string, rec Record) error
	Delete(ctx context.Context, collection string, id string) error
}

// Initializer is implemented by stores that need collections (tables,
// indexes) to be created before use. indexes lists fields worth indexing,
// typically foreign keys.
type Initializer interface {
	EnsureCollection(ctx context.Context, collection string, indexes []string) error
}
