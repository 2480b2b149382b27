package runtime

// AppLoader reads app definitions from files.
type AppLoader interface {
	// Extensions returns the glob patterns of files the loader reads.
	Extensions() []string
	Load(filePath string) (*AppDefinition, error)
}
