// Package pool holds an evaluation dataset: labels, per-document weights,
// optional ranking pairs and named numeric feature columns.
package pool

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Sentinel errors for dataset validation.
var (
	ErrMissingTarget   = errors.New("target column is required")
	ErrBadValue        = errors.New("invalid numeric value")
	ErrLengthMismatch  = errors.New("column length mismatch")
	ErrPairIndex       = errors.New("pair index out of range")
	ErrInvalidPartSize = errors.New("part size must be positive")
)

// Pair is an ordered pair of documents where Winner should be ranked above Loser.
type Pair struct {
	Winner int
	Loser  int
	Weight float32
}

// Pool is an in-memory evaluation dataset.
//
// Target and Weight always have one entry per document. Features are keyed by
// column name and have the same length as Target.
type Pool struct {
	Target   []float32
	Weight   []float32
	Pairs    []Pair
	Features map[string][]float32
}

// New creates a pool from targets with unit weights.
func New(target []float32) *Pool {
	weight := make([]float32, len(target))
	for i := range weight {
		weight[i] = 1
	}

	return &Pool{
		Target:   target,
		Weight:   weight,
		Features: make(map[string][]float32),
	}
}

// DocCount returns the number of documents.
func (p *Pool) DocCount() int {
	if p == nil {
		return 0
	}

	return len(p.Target)
}

// FeatureNames returns the feature column names in sorted order.
func (p *Pool) FeatureNames() []string {
	return slices.Sorted(maps.Keys(p.Features))
}

// Validate checks that all columns agree on the document count and that every
// pair references an existing document.
func (p *Pool) Validate() error {
	docCount := len(p.Target)

	if len(p.Weight) != docCount {
		return fmt.Errorf("%w: weight has %d values, target has %d", ErrLengthMismatch, len(p.Weight), docCount)
	}

	for name, column := range p.Features {
		if len(column) != docCount {
			return fmt.Errorf("%w: feature %q has %d values, target has %d", ErrLengthMismatch, name, len(column), docCount)
		}
	}

	for i, pair := range p.Pairs {
		if pair.Winner < 0 || pair.Winner >= docCount || pair.Loser < 0 || pair.Loser >= docCount {
			return fmt.Errorf("%w: pair %d (%d, %d) with %d documents", ErrPairIndex, i, pair.Winner, pair.Loser, docCount)
		}
	}

	return nil
}

// Split partitions the pool into consecutive parts of at most size documents.
// Pairs whose ends fall into different parts cannot be evaluated per part and
// are dropped; the number of dropped pairs is returned.
func (p *Pool) Split(size int) ([]*Pool, int, error) {
	if size <= 0 {
		return nil, 0, fmt.Errorf("%w: %d", ErrInvalidPartSize, size)
	}

	docCount := p.DocCount()
	if docCount <= size {
		return []*Pool{p}, 0, nil
	}

	parts := make([]*Pool, 0, (docCount+size-1)/size)

	for begin := 0; begin < docCount; begin += size {
		parts = append(parts, p.slice(begin, min(docCount, begin+size)))
	}

	dropped := 0

	for _, pair := range p.Pairs {
		winnerPart := pair.Winner / size
		if winnerPart != pair.Loser/size {
			dropped++

			continue
		}

		offset := winnerPart * size
		part := parts[winnerPart]
		part.Pairs = append(part.Pairs, Pair{
			Winner: pair.Winner - offset,
			Loser:  pair.Loser - offset,
			Weight: pair.Weight,
		})
	}

	return parts, dropped, nil
}

func (p *Pool) slice(begin, end int) *Pool {
	part := &Pool{
		Target:   p.Target[begin:end],
		Weight:   p.Weight[begin:end],
		Features: make(map[string][]float32, len(p.Features)),
	}

	for name, column := range p.Features {
		part.Features[name] = column[begin:end]
	}

	return part
}
