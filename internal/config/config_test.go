package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaults_SetsConservativeBaseline(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 10000, cfg.Processing.BatchSize)
	assert.Equal(t, 4, cfg.Processing.ParallelWorkers)
	assert.Equal(t, 0, cfg.Processing.MaxFilesPerPayer)
	assert.Equal(t, 80.0, cfg.Processing.MinCompletenessPct)
	assert.Equal(t, 0.5, cfg.Processing.MinAccuracyScore)
	assert.Equal(t, 0.01, cfg.QualityRules.Rates.MinRate)
	assert.Equal(t, 1_000_000.0, cfg.QualityRules.Rates.MaxRate)
}

func TestConfig_UnmarshalsYAMLOverDefaults(t *testing.T) {
	doc := `
payer_endpoints:
  acme: https://acme.example/toc.json
cpt_whitelist:
  - "99213"
  - "99214"
processing:
  batch_size: 5000
  parallel_workers: 8
  min_completeness_pct: 90
  min_accuracy_score: 0.75
output:
  local_directory: /data/out
  s3:
    bucket: my-bucket
    prefix: mrf
    region: us-east-1
quality_rules:
  rates:
    min_rate: 0.5
    max_rate: 50000
  high_cost_procedures:
    max_reasonable_rates:
      "99213": 500
`
	cfg := Defaults()
	require.NoError(t, yaml.Unmarshal([]byte(doc), &cfg))

	assert.Equal(t, map[string]string{"acme": "https://acme.example/toc.json"}, cfg.PayerEndpoints)
	assert.Equal(t, []string{"99213", "99214"}, cfg.CPTWhitelist)
	assert.Equal(t, 5000, cfg.Processing.BatchSize)
	assert.Equal(t, 8, cfg.Processing.ParallelWorkers)
	assert.Equal(t, 90.0, cfg.Processing.MinCompletenessPct)
	assert.Equal(t, "/data/out", cfg.Output.LocalDirectory)
	require.NotNil(t, cfg.Output.S3)
	assert.Equal(t, "my-bucket", cfg.Output.S3.Bucket)
	assert.Equal(t, "mrf", cfg.Output.S3.Prefix)
	assert.Equal(t, "us-east-1", cfg.Output.S3.Region)
	assert.Equal(t, 0.5, cfg.QualityRules.Rates.MinRate)
	assert.Equal(t, 50000.0, cfg.QualityRules.Rates.MaxRate)
	assert.Equal(t, 500.0, cfg.QualityRules.HighCostProcedures.MaxReasonableRates["99213"])
}

func TestConfig_NoS3SectionLeavesOutputNilPointer(t *testing.T) {
	doc := `
payer_endpoints:
  acme: https://acme.example/toc.json
output:
  local_directory: /data/out
`
	cfg := Defaults()
	require.NoError(t, yaml.Unmarshal([]byte(doc), &cfg))
	assert.Nil(t, cfg.Output.S3)
}
