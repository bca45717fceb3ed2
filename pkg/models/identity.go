package models

// Identity describes one worker process for the lifetime of that process.
// ID must be unique within Group while registered; the registry's set
// semantics make duplicate registration a no-op rather than an error.
type Identity struct {
	Group   string
	ID      string
	WorkDir string
	// Cleanup removes benchmark data files from WorkDir after each task.
	Cleanup bool
}
