package runid

import (
	"crypto/rand"
	"fmt"
)

// idBytes keeps IDs short enough to grep for yet unique across a host's
// evidence log.
const idBytes = 6

// RandomGenerator produces random hex run IDs.
type RandomGenerator struct{}

// NewRandomGenerator creates a run ID generator backed by crypto/rand.
func NewRandomGenerator() *RandomGenerator {
	return &RandomGenerator{}
}

// Generate returns a 12-char hex string.
func (g *RandomGenerator) Generate() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return fmt.Sprintf("%x", b), nil
}
