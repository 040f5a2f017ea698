// Package model implements an oblivious decision-tree ensemble that produces
// raw predictions for a contiguous range of its trees.
package model

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/metricplot/pkg/executor"
	"github.com/Sumatoshi-tech/metricplot/pkg/pool"
)

// Sentinel errors for model loading and application.
var (
	ErrInvalidModel   = errors.New("invalid model")
	ErrUnknownFeature = errors.New("feature not found in pool")
	ErrInvalidRange   = errors.New("invalid tree range")
)

//go:embed schema.json
var schemaJSON []byte

// Split sends a document to the right half of a tree level when its feature
// value is strictly greater than Border.
type Split struct {
	Feature string  `yaml:"feature" json:"feature"`
	Border  float32 `yaml:"border"  json:"border"`
}

// Tree is one oblivious tree: every level shares a split, so a document's leaf
// index has bit i set when it goes right at level i.
type Tree struct {
	Splits     []Split     `yaml:"splits"      json:"splits"`
	LeafValues [][]float64 `yaml:"leaf_values" json:"leaf_values"`
}

// Ensemble is an additive sequence of trees.
type Ensemble struct {
	Dimension int    `yaml:"approx_dimension" json:"approx_dimension"`
	Trees     []Tree `yaml:"trees"            json:"trees"`
}

// Load reads a YAML or JSON model file.
func Load(path string) (*Ensemble, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes, schema-checks and validates a model document.
func Parse(data []byte) (*Ensemble, error) {
	var doc any

	err := yaml.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaJSON), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: schema check: %w", ErrInvalidModel, err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}

		return nil, fmt.Errorf("%w: %s", ErrInvalidModel, strings.Join(msgs, "; "))
	}

	var ens Ensemble

	err = yaml.Unmarshal(data, &ens)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}

	err = ens.Validate()
	if err != nil {
		return nil, err
	}

	return &ens, nil
}

// Validate checks the structural constraints the schema cannot express.
func (e *Ensemble) Validate() error {
	if e.Dimension < 1 {
		return fmt.Errorf("%w: approx_dimension must be positive", ErrInvalidModel)
	}

	for i, tree := range e.Trees {
		leaves := 1 << len(tree.Splits)
		if len(tree.LeafValues) != leaves {
			return fmt.Errorf("%w: tree %d has %d leaves, want %d", ErrInvalidModel, i, len(tree.LeafValues), leaves)
		}

		for j, leaf := range tree.LeafValues {
			if len(leaf) != e.Dimension {
				return fmt.Errorf("%w: tree %d leaf %d has %d values, want %d",
					ErrInvalidModel, i, j, len(leaf), e.Dimension)
			}
		}
	}

	return nil
}

// TreeCount returns the number of trees, which is the model's iteration count.
func (e *Ensemble) TreeCount() int {
	return len(e.Trees)
}

// ApproxDimension returns the number of prediction values per document.
func (e *Ensemble) ApproxDimension() int {
	return e.Dimension
}

// Apply returns the [dimension][document] sum of trees [begin, end) over every
// document of p. Documents are processed in parallel blocks.
func (e *Ensemble) Apply(ctx context.Context, exec *executor.Executor, p *pool.Pool, begin, end int) ([][]float64, error) {
	if begin < 0 || end > len(e.Trees) || begin > end {
		return nil, fmt.Errorf("%w: [%d, %d) of %d trees", ErrInvalidRange, begin, end, len(e.Trees))
	}

	docCount := p.DocCount()

	result := make([][]float64, e.Dimension)
	for dim := range result {
		result[dim] = make([]float64, docCount)
	}

	columns, err := e.resolveColumns(p, begin, end)
	if err != nil {
		return nil, err
	}

	err = exec.ExecRange(ctx, 0, docCount, 0, func(_ context.Context, blockBegin, blockEnd int) error {
		for t := begin; t < end; t++ {
			tree := e.Trees[t]
			treeColumns := columns[t-begin]

			for doc := blockBegin; doc < blockEnd; doc++ {
				leaf := 0

				for level, split := range tree.Splits {
					if treeColumns[level][doc] > split.Border {
						leaf |= 1 << level
					}
				}

				for dim, value := range tree.LeafValues[leaf] {
					result[dim][doc] += value
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply trees [%d, %d): %w", begin, end, err)
	}

	return result, nil
}

func (e *Ensemble) resolveColumns(p *pool.Pool, begin, end int) ([][][]float32, error) {
	columns := make([][][]float32, 0, end-begin)

	for t := begin; t < end; t++ {
		splits := e.Trees[t].Splits
		treeColumns := make([][]float32, len(splits))

		for level, split := range splits {
			column, ok := p.Features[split.Feature]
			if !ok {
				return nil, fmt.Errorf("%w: %q (tree %d)", ErrUnknownFeature, split.Feature, t)
			}

			treeColumns[level] = column
		}

		columns = append(columns, treeColumns)
	}

	return columns, nil
}
