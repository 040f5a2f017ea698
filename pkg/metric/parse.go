package metric

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel errors for metric descriptions.
var (
	ErrUnknownMetric = errors.New("unknown metric")
	ErrInvalidParam  = errors.New("invalid metric parameter")
)

const paramBorder = "border"

// Names returns the names accepted by Parse.
func Names() []string {
	return []string{
		NameRMSE, NameMAE, NameLogloss, NameAccuracy, NameMultiClass,
		NamePairLogit, NamePairAccuracy,
	}
}

// Parse builds a metric from a description of the form "Name" or
// "Name:key=value;key=value".
func Parse(description string) (Metric, error) {
	name, rawParams, _ := strings.Cut(strings.TrimSpace(description), ":")

	params, err := parseParams(rawParams)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", description, err)
	}

	var m Metric

	switch name {
	case NameAccuracy:
		return parseAccuracy(params)
	case NameRMSE:
		m = NewRMSE()
	case NameMAE:
		m = NewMAE()
	case NameLogloss:
		m = NewLogloss()
	case NameMultiClass:
		m = NewMultiClass()
	case NamePairLogit:
		m = NewPairLogit()
	case NamePairAccuracy:
		m = NewPairAccuracy()
	default:
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownMetric, name, strings.Join(Names(), ", "))
	}

	err = checkNoParams(name, params)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// ParseAll parses every description, failing on the first invalid one.
func ParseAll(descriptions []string) ([]Metric, error) {
	metrics := make([]Metric, 0, len(descriptions))

	for _, desc := range descriptions {
		m, err := Parse(desc)
		if err != nil {
			return nil, err
		}

		metrics = append(metrics, m)
	}

	return metrics, nil
}

func parseAccuracy(params map[string]string) (Metric, error) {
	border := DefaultAccuracyBorder

	for key, value := range params {
		if key != paramBorder {
			return nil, fmt.Errorf("%w: %s does not accept %q", ErrInvalidParam, NameAccuracy, key)
		}

		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: border=%q", ErrInvalidParam, value)
		}

		border = parsed
	}

	return NewAccuracy(border), nil
}

func parseParams(raw string) (map[string]string, error) {
	params := make(map[string]string)
	if raw == "" {
		return params, nil
	}

	for pair := range strings.SplitSeq(raw, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidParam, pair)
		}

		params[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	return params, nil
}

func checkNoParams(name string, params map[string]string) error {
	for key := range params {
		return fmt.Errorf("%w: %s does not accept %q", ErrInvalidParam, name, key)
	}

	return nil
}
