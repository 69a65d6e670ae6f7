// Package config declares the shape of a pipeline run's configuration. The
// engine itself never reads files, environment variables, or flags —
// loading configuration is the CLI's job. This package exists so that
// caller (a cobra command, a test, an embedding program) has a stable
// struct to decode YAML into via gopkg.in/yaml.v3 and hand to the
// orchestrator.
package config

// Config is the root configuration document. Field names mirror the YAML
// keys verbatim.
type Config struct {
	PayerEndpoints map[string]string `yaml:"payer_endpoints"`
	CPTWhitelist   []string          `yaml:"cpt_whitelist"`
	Processing     Processing        `yaml:"processing"`
	Output         Output            `yaml:"output"`
	QualityRules   QualityRules      `yaml:"quality_rules"`
}

type Processing struct {
	BatchSize          int     `yaml:"batch_size"`
	ParallelWorkers     int     `yaml:"parallel_workers"`
	MaxFilesPerPayer    int     `yaml:"max_files_per_payer"`
	MaxRecordsPerFile   int     `yaml:"max_records_per_file"`
	MinCompletenessPct  float64 `yaml:"min_completeness_pct"`
	MinAccuracyScore    float64 `yaml:"min_accuracy_score"`
	MemoryThresholdMB   int     `yaml:"memory_threshold_mb"`
	MaxProcessingTime   string  `yaml:"max_processing_time"`
}

type Output struct {
	LocalDirectory string   `yaml:"local_directory"`
	S3             *S3Output `yaml:"s3"`
}

type S3Output struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

type QualityRules struct {
	Rates               RateBounds                 `yaml:"rates"`
	HighCostProcedures  HighCostProcedures         `yaml:"high_cost_procedures"`
}

type RateBounds struct {
	MinRate float64 `yaml:"min_rate"`
	MaxRate float64 `yaml:"max_rate"`
}

type HighCostProcedures struct {
	MaxReasonableRates map[string]float64 `yaml:"max_reasonable_rates"`
}

// Defaults returns a conservative baseline a caller can start from and
// override selectively.
func Defaults() Config {
	return Config{
		Processing: Processing{
			BatchSize:          10000,
			ParallelWorkers:    4,
			MaxFilesPerPayer:   0, // 0 == unbounded
			MaxRecordsPerFile:  0,
			MinCompletenessPct: 80,
			MinAccuracyScore:   0.5,
			MemoryThresholdMB:  2048,
			MaxProcessingTime:  "2h",
		},
		QualityRules: QualityRules{
			Rates: RateBounds{MinRate: 0.01, MaxRate: 1_000_000},
		},
	}
}
