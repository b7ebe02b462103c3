// Package relevance scores feed events and discovery candidates against
// the user's project contexts using cosine similarity over embeddings.
package relevance

import (
	"fmt"
	"math"
)

// DimensionMismatchError reports two vectors of different lengths, which
// usually means embeddings from different models are being compared.
type DimensionMismatchError struct {
	A, B int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: %d vs %d", e.A, e.B)
}

// Cosine returns the cosine similarity of a and b in [-1, 1]. A zero
// magnitude vector yields 0.0 rather than NaN.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, &DimensionMismatchError{A: len(a), B: len(b)}
	}

	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}

// Candidate pairs an identifier with its embedding for best-match scoring.
type Candidate struct {
	ID     string
	Vector []float64
}

// BestMatch returns the candidate with the highest cosine similarity to
// query and that score. Ties keep the earliest candidate. An empty
// candidate list returns ("", 0, nil).
func BestMatch(query []float64, candidates []Candidate) (string, float64, error) {
	bestID := ""
	bestScore := math.Inf(-1)
	for _, c := range candidates {
		score, err := Cosine(query, c.Vector)
		if err != nil {
			return "", 0, fmt.Errorf("scoring against %s: %w", c.ID, err)
		}
		if score > bestScore {
			bestID = c.ID
			bestScore = score
		}
	}
	if bestID == "" {
		return "", 0, nil
	}
	return bestID, bestScore, nil
}
