package testdata

import "time"

type Account struct {
	ID          string
	Name        string              `doc:"name"`
	Memberships []AccountMembership `rel:"has_many,name:account_memberships"`
	Users       []*AccountUser      `rel:"has_many_through,through:account_memberships"`
	Projects    []Project           `rel:"has_many"`
	Profile     *Profile            `rel:"has_one"`
}

type AccountUser struct {
	ID          string
	Login       string
	Memberships []AccountMembership `rel:"has_many,name:account_memberships"`
	Accounts    []Account           `rel:"has_many_through,through:account_memberships"`
}

type AccountMembership struct {
	ID            string
	AccountID     string
	AccountUserID string
	Role          string    `doc:"role,default:member"`
	Position      int       `doc:",default:0"`
	JoinedAt      time.Time `doc:"joined_at"`
	Note          string    `doc:"-"`
	internal      string
	Account       *Account     `rel:"belongs_to"`
	AccountUser   *AccountUser `rel:"belongs_to"`
}

type Project struct {
	ID        string
	Title     string
	Account   *Account `rel:"belongs_to"`
	CreatedAt time.Time
}

func (Project) CollectionName() string { return "account_projects" }

type Profile struct {
	ID        string
	Bio       string
	AccountID string
}

// Options has no ID and is not a model.
type Options struct {
	Verbose bool
}
