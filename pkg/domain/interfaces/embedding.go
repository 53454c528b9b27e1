package interfaces

import "context"

// Embedder turns text into a fixed-length vector. Implementations must be safe for
// concurrent use and stable enough that identical text yields identical rankings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}
