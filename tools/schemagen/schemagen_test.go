package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xeipuuv/gojsonschema"

	"github.com/Sumatoshi-tech/metricplot/pkg/metric"
	"github.com/Sumatoshi-tech/metricplot/pkg/report"
)

func TestGenerateSchema_EvalMeta(t *testing.T) {
	t.Parallel()

	schema := generateSchema("eval", &report.EvalMeta{})

	assert.Equal(t, "object", schema.Type)
	assert.ElementsMatch(t,
		[]string{"iteration_count", "launch_mode", "metrics", "tokens", "iterations"},
		schema.Required)
	assert.Equal(t, "#/definitions/MetricMeta", schema.Properties["metrics"].Items.Ref)

	metricDef := schema.Definitions["MetricMeta"]
	require.NotNil(t, metricDef)
	assert.Equal(t, "number", metricDef.Properties["best_value"].Type)
	assert.NotContains(t, metricDef.Required, "best_value")
}

func TestRun_GeneratedSchemaValidatesMeta(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, run(dir))

	res, err := report.NewResult([]metric.Metric{metric.NewRMSE()}, []int{0, 1},
		[][]float64{{2, 1}}, [][]metric.Stats{{{Error: 4, Weight: 1}, {Error: 1, Weight: 1}}})
	require.NoError(t, err)

	doc, err := json.Marshal(res.Meta())
	require.NoError(t, err)

	schemaBytes, err := os.ReadFile(filepath.Join(dir, "eval.json"))
	require.NoError(t, err)

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaBytes), gojsonschema.NewBytesLoader(doc))
	require.NoError(t, err)
	assert.True(t, result.Valid(), "%v", result.Errors())
}
