package embedstore

import (
	"math"

	"github.com/magetools/grimorium/vectorstore"
)

// cosine computes cosine similarity between two vectors of equal length.
func cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, vectorstore.ErrLengthMismatch
	}
	var dot, na, nb float64
	for i := 0; i < len(a); i++ {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	den := math.Sqrt(na) * math.Sqrt(nb)
	if den == 0 {
		return 0, nil
	}
	return dot / den, nil
}

// distance converts a similarity into the dissimilarity score the engine
// ranks by.
func distance(similarity float64) float64 {
	return 1 - similarity
}
