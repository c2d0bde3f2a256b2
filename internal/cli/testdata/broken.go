package testdata

type Account struct {
	ID    string
	Users []AccountUser `rel:"has_many_through,through:memberships"`
}

type AccountUser struct {
	ID string
}
