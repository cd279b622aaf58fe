package testutil

// FixedIDGenerator generates the same run ID every time.
//
// Recorded history then uses a known run ID, so tests can look runs up
// without reading the ID back first.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a new fixed run ID generator.
//
// If id is empty, Generate() returns "test-run-default".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed run ID.
//
// Implements history.IDGenerator.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
