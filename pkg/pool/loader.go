package pool

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
)

// Reserved column names in a dataset CSV.
const (
	ColumnTarget = "target"
	ColumnWeight = "weight"
)

const defaultPairWeight = 1

// pairRow is one line of a pairs CSV.
type pairRow struct {
	Winner int    `csv:"winner"`
	Loser  int    `csv:"loser"`
	Weight string `csv:"weight"`
}

// LoadCSV reads a dataset from a CSV file with a header row.
func LoadCSV(path string) (*Pool, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer file.Close()

	return ReadCSV(file)
}

// ReadCSV parses a dataset CSV. The target column is required, the weight
// column is optional (missing weights default to 1) and every other column is
// treated as a numeric feature.
func ReadCSV(r io.Reader) (*Pool, error) {
	rows, err := gocsv.CSVToMaps(r)
	if err != nil {
		return nil, fmt.Errorf("read dataset csv: %w", err)
	}

	result := &Pool{
		Target:   make([]float32, 0, len(rows)),
		Weight:   make([]float32, 0, len(rows)),
		Features: make(map[string][]float32),
	}

	for lineIdx, raw := range rows {
		row := normalizeKeys(raw)

		targetStr, ok := row[ColumnTarget]
		if !ok {
			return nil, ErrMissingTarget
		}

		target, parseErr := parseFloat(targetStr)
		if parseErr != nil {
			return nil, fmt.Errorf("row %d, column %s: %w", lineIdx+1, ColumnTarget, parseErr)
		}

		weight := float32(1)

		if weightStr := row[ColumnWeight]; weightStr != "" {
			weight, parseErr = parseFloat(weightStr)
			if parseErr != nil {
				return nil, fmt.Errorf("row %d, column %s: %w", lineIdx+1, ColumnWeight, parseErr)
			}
		}

		result.Target = append(result.Target, target)
		result.Weight = append(result.Weight, weight)

		for name, valueStr := range row {
			if name == ColumnTarget || name == ColumnWeight {
				continue
			}

			value, featureErr := parseFloat(valueStr)
			if featureErr != nil {
				return nil, fmt.Errorf("row %d, column %s: %w", lineIdx+1, name, featureErr)
			}

			result.Features[name] = append(result.Features[name], value)
		}
	}

	return result, nil
}

// LoadPairs reads a pairs CSV (winner, loser and an optional weight column)
// and attaches the pairs to the pool.
func (p *Pool) LoadPairs(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open pairs: %w", err)
	}
	defer file.Close()

	return p.ReadPairs(file)
}

// ReadPairs parses pairs from r and validates them against the pool.
func (p *Pool) ReadPairs(r io.Reader) error {
	var rows []pairRow

	err := gocsv.Unmarshal(r, &rows)
	if err != nil {
		return fmt.Errorf("read pairs csv: %w", err)
	}

	pairs := make([]Pair, 0, len(rows))

	for i, row := range rows {
		weight := float32(defaultPairWeight)

		if row.Weight != "" {
			weight, err = parseFloat(row.Weight)
			if err != nil {
				return fmt.Errorf("pair %d: %w", i+1, err)
			}
		}

		pairs = append(pairs, Pair{Winner: row.Winner, Loser: row.Loser, Weight: weight})
	}

	p.Pairs = append(p.Pairs, pairs...)

	return p.Validate()
}

func normalizeKeys(row map[string]string) map[string]string {
	out := make(map[string]string, len(row))
	for k, v := range row {
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	return out
}

func parseFloat(s string) (float32, error) {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadValue, s)
	}

	return float32(v), nil
}
