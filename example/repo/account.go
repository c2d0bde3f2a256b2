package repo

import (
	"context"
	"fmt"

	"github.com/mickamy/docmap/example/model"
	"github.com/mickamy/docmap/odm"
	"github.com/mickamy/docmap/scope"
)

// AccountRepository wraps account documents and their associations.
type AccountRepository struct {
	db *odm.DB
}

func NewAccountRepository(db *odm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// New builds an unsaved account with one new user per login. Nothing is
// written until the account is saved.
func (r *AccountRepository) New(name string, logins ...string) (*odm.Document, error) {
	account, err := r.db.New(model.Account, odm.Attrs{"name": name})
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	users, err := account.Many("users")
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	for _, login := range logins {
		if _, err := users.Build(odm.Attrs{"login": login}); err != nil {
			return nil, fmt.Errorf("build %s: %w", login, err)
		}
	}
	return account, nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*odm.Document, error) {
	c, err := r.db.Collection(model.Account)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	return c.FindByID(ctx, id) //nolint:wrapcheck // pass through
}

func (r *AccountRepository) Users(ctx context.Context, account *odm.Document, scopes ...scope.Scope) ([]*odm.Document, error) {
	users, err := account.Many("users")
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	return users.All(ctx, scopes...) //nolint:wrapcheck // pass through
}

func (r *AccountRepository) CountUsers(ctx context.Context, account *odm.Document, scopes ...scope.Scope) (int64, error) {
	users, err := account.Many("users")
	if err != nil {
		return 0, err //nolint:wrapcheck // pass through
	}
	return users.Count(ctx, scopes...) //nolint:wrapcheck // pass through
}

func (r *AccountRepository) PageUsers(ctx context.Context, account *odm.Document, page, perPage int) (*odm.Page, error) {
	users, err := account.Many("users")
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	return users.Paginate(ctx, page, perPage, scope.OrderBy("role")) //nolint:wrapcheck // pass through
}

// AddUser appends an existing user to a saved account. The membership is
// written immediately.
func (r *AccountRepository) AddUser(ctx context.Context, account, user *odm.Document) error {
	users, err := account.Many("users")
	if err != nil {
		return err //nolint:wrapcheck // pass through
	}
	return users.Append(ctx, user) //nolint:wrapcheck // pass through
}

func (r *AccountRepository) CreateProject(ctx context.Context, account *odm.Document, title string) (*odm.Document, error) {
	projects, err := account.Many("projects")
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	return projects.Create(ctx, odm.Attrs{"title": title}) //nolint:wrapcheck // pass through
}
