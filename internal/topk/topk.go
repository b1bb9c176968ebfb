// Package topk ranks classifier outputs against their label catalog.
package topk

import (
	"errors"
	"fmt"
	"sort"
)

// ErrShapeMismatch is returned when a probability vector and its label
// catalog have different lengths.
var ErrShapeMismatch = errors.New("probability vector and label catalog lengths differ")

// Ranked is one entry of a top-k selection.
type Ranked struct {
	Label string
	Score float32
	Rank  int
	// Index is the position of Label in the catalog.
	Index int
}

// SelectTopK returns the k highest-scoring labels, best first, with ranks
// starting at 1. Equal scores keep catalog order. k is clamped to the catalog
// size; a non-positive k yields an empty result.
func SelectTopK(probabilities []float32, labels []string, k int) ([]Ranked, error) {
	if len(probabilities) != len(labels) {
		return nil, fmt.Errorf("%w: %d probabilities, %d labels", ErrShapeMismatch, len(probabilities), len(labels))
	}
	if k <= 0 {
		return []Ranked{}, nil
	}
	if k > len(labels) {
		k = len(labels)
	}

	idx := make([]int, len(probabilities))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return probabilities[idx[a]] > probabilities[idx[b]]
	})

	out := make([]Ranked, k)
	for i := 0; i < k; i++ {
		j := idx[i]
		out[i] = Ranked{
			Label: labels[j],
			Score: probabilities[j],
			Rank:  i + 1,
			Index: j,
		}
	}
	return out, nil
}
