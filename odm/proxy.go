package odm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mickamy/docmap/scope"
)

// Many is the collection view of a has_many or has_many_through
// association, bound to one owner document. Document.Many returns a
// *DirectProxy or a *ThroughProxy depending on the association kind; no
// other implementations exist.
//
// Reads are sandboxed to the owner: caller conditions are ANDed with the
// owner-implied ones and may not contradict them. A proxy whose owner is
// new reads as empty without touching the store.
//
// Append and Replace are additive. Replace does not remove related
// documents missing from the new set; callers that want a full replacement
// must delete those first.
type Many interface {
	Association() *Association

	All(ctx context.Context, scopes ...scope.Scope) ([]*Document, error)
	First(ctx context.Context, scopes ...scope.Scope) (*Document, error)
	Last(ctx context.Context, scopes ...scope.Scope) (*Document, error)
	FindByID(ctx context.Context, id string) (*Document, error)
	FindByIDs(ctx context.Context, ids ...string) ([]*Document, error)
	Count(ctx context.Context, scopes ...scope.Scope) (int64, error)
	Paginate(ctx context.Context, page, perPage int, scopes ...scope.Scope) (*Page, error)

	// Load returns the cached related documents followed by those added
	// but not written yet. The cache is filled on first use and dropped by
	// every mutation.
	Load(ctx context.Context) ([]*Document, error)
	// Size is Count plus the number of buffered additions.
	Size(ctx context.Context) (int64, error)

	Build(attrs Attrs) (*Document, error)
	Create(ctx context.Context, attrs Attrs) (*Document, error)
	Append(ctx context.Context, docs ...*Document) error
	Replace(ctx context.Context, docs []*Document) error
	Reset()

	many()
}

var (
	_ Many = (*DirectProxy)(nil)
	_ Many = (*ThroughProxy)(nil)
)

func checkTarget(a *Association, docs []*Document) error {
	for _, d := range docs {
		if d.model != a.target {
			return fmt.Errorf("%w: %s.%s wants %s, got %s", ErrTargetMismatch, a.owner.name, a.name, a.target.name, d.model.name)
		}
	}
	return nil
}

func logFlush(ctx context.Context, owner *Document, a *Association, n int) {
	if n == 0 {
		return
	}
	owner.db.log(ctx, "flush", owner.model, slog.String("association", a.name), slog.Int("entries", n))
}
