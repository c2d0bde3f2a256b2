package testdata

type Orphan struct {
	ID     string
	Parent *Missing `rel:"belongs_to"`
}
