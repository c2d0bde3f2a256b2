package testdata

type Account struct {
	ID          string
	Name        string
	Memberships []AccountMembership `rel:"has_many,name:account_memberships"`
	Users       []AccountUser       `rel:"has_many_through,through:account_memberships"`
}

type AccountUser struct {
	ID    string
	Login string
}

type AccountMembership struct {
	ID            string
	AccountID     string
	AccountUserID string
	Role          string       `doc:"role,default:member"`
	Account       *Account     `rel:"belongs_to"`
	AccountUser   *AccountUser `rel:"belongs_to"`
}
