package testdata

type Counter struct {
	ID    string
	Total int `doc:"total,default:many"`
}
