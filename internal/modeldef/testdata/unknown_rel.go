package testdata

type Broken struct {
	ID    string
	Links []Broken `rel:"has_lots"`
}
