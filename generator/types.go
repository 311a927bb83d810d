package generator

// Draft is the finished note ready for the publishing stage.
type Draft struct {
	Title string
	Body  string
	Tags  []string
}

// DraftContext carries the retrieved (and possibly compressed) material
// into composition.
type DraftContext struct {
	Topic    string
	Domain   string
	Material string
}
