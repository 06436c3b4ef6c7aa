package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"review-prep/internal/core/types"
	"slices"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"
)

// PipelineOptions are the knobs of a single prepare run. They are read from
// the environment, optionally overridden by a YAML file, and stored with each
// job.
type PipelineOptions struct {
	MaxSeqLength    int     `env:"MAX_SEQ_LENGTH" envDefault:"128" yaml:"max_seq_length" json:"max_seq_length"`
	DataColumn      string  `env:"DATA_COLUMN" envDefault:"review_body" yaml:"data_column" json:"data_column"`
	LabelColumn     string  `env:"LABEL_COLUMN" envDefault:"star_rating" yaml:"label_column" json:"label_column"`
	LabelValues     []int   `env:"LABEL_VALUES" envDefault:"1,2,3,4,5" yaml:"label_values" json:"label_values"`
	TrainSplit      float64 `env:"TRAIN_SPLIT" envDefault:"0.90" yaml:"train_split" json:"train_split"`
	ValidationSplit float64 `env:"VALIDATION_SPLIT" envDefault:"0.05" yaml:"validation_split" json:"validation_split"`
	TestSplit       float64 `env:"TEST_SPLIT" envDefault:"0.05" yaml:"test_split" json:"test_split"`
	BalanceSeed     int64   `env:"BALANCE_SEED" envDefault:"27" yaml:"balance_seed" json:"balance_seed"`
	SplitSeed       int64   `env:"SPLIT_SEED" envDefault:"27" yaml:"split_seed" json:"split_seed"`
	StrictLabels    bool    `env:"STRICT_LABELS" envDefault:"true" yaml:"strict_labels" json:"strict_labels"`
	ProgressEvery   int     `env:"PROGRESS_EVERY" envDefault:"1000" yaml:"progress_every" json:"progress_every"`
}

func (o PipelineOptions) SplitRatios() types.SplitRatios {
	return types.SplitRatios{Train: o.TrainSplit, Validation: o.ValidationSplit, Test: o.TestSplit}
}

func (o PipelineOptions) Labels() (types.LabelIndex, error) {
	return types.NewLabelIndex(o.LabelValues)
}

// Validate checks the options before any data is read. Invalid ratios are
// reported as *types.InvalidSplitRatioError.
func (o PipelineOptions) Validate() error {
	if err := o.SplitRatios().Validate(); err != nil {
		return err
	}
	if _, err := o.Labels(); err != nil {
		return fmt.Errorf("invalid LABEL_VALUES: %w", err)
	}
	if o.MaxSeqLength < 2 {
		return fmt.Errorf("MAX_SEQ_LENGTH must be at least 2, got %d", o.MaxSeqLength)
	}
	if o.DataColumn == "" || o.LabelColumn == "" {
		return fmt.Errorf("DATA_COLUMN and LABEL_COLUMN must be set")
	}
	if o.DataColumn == o.LabelColumn {
		return fmt.Errorf("DATA_COLUMN and LABEL_COLUMN must differ, both are '%s'", o.DataColumn)
	}
	if o.ProgressEvery <= 0 {
		return fmt.Errorf("PROGRESS_EVERY must be positive, got %d", o.ProgressEvery)
	}
	return nil
}

func (o PipelineOptions) JSON() ([]byte, error) {
	return json.Marshal(o)
}

func ParsePipelineOptions(data []byte) (PipelineOptions, error) {
	var opts PipelineOptions
	if err := json.Unmarshal(data, &opts); err != nil {
		return PipelineOptions{}, fmt.Errorf("error parsing pipeline options: %w", err)
	}
	return opts, nil
}

type TokenizerConfig struct {
	File      string `env:"TOKENIZER_FILE"`
	Name      string `env:"TOKENIZER_NAME"`
	VocabFile string `env:"VOCAB_FILE"`
	Lowercase bool   `env:"LOWERCASE" envDefault:"true"`
}

type S3Config struct {
	Endpoint        string `env:"S3_ENDPOINT_URL"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
}

type Config struct {
	Pipeline PipelineOptions

	InputData      string   `env:"INPUT_DATA" envDefault:"/opt/ml/processing/input/data"`
	OutputData     string   `env:"OUTPUT_DATA" envDefault:"/opt/ml/processing/output"`
	CurrentHost    string   `env:"CURRENT_HOST"`
	Hosts          []string `env:"HOSTS"`
	ResourceConfig string   `env:"RESOURCE_CONFIG" envDefault:"/opt/ml/config/resourceconfig.json"`

	Tokenizer TokenizerConfig
	S3        S3Config

	EncodeWorkers int `env:"ENCODE_WORKERS" envDefault:"4"`
	LoadWorkers   int `env:"LOAD_WORKERS" envDefault:"4"`

	PipelineConfig string `env:"PIPELINE_CONFIG"`
}

// Load parses the environment, applies PIPELINE_CONFIG if set and validates
// the pipeline options.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("error parsing environment: %w", err)
	}

	if cfg.PipelineConfig != "" {
		if err := LoadPipelineFile(cfg.PipelineConfig, &cfg.Pipeline); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.Pipeline.Validate(); err != nil {
		return Config{}, err
	}

	if cfg.S3.Endpoint != "" && (cfg.S3.AccessKeyID == "" || cfg.S3.SecretAccessKey == "") {
		slog.Warn("S3_ENDPOINT_URL is set, but AWS_ACCESS_KEY_ID or AWS_SECRET_ACCESS_KEY are missing")
	}

	return cfg, nil
}

// LoadPipelineFile overrides the options present in a YAML file. Keys that
// are absent keep their current value.
func LoadPipelineFile(path string, opts *PipelineOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading pipeline config %s: %w", path, err)
	}

	if err := yaml.UnmarshalStrict(data, opts); err != nil {
		return fmt.Errorf("error parsing pipeline config %s: %w", path, err)
	}

	slog.Info("loaded pipeline config", "path", path)
	return nil
}

// ResourceConfig is the host layout file of a multi host processing job.
type ResourceConfig struct {
	CurrentHost string   `json:"current_host"`
	Hosts       []string `json:"hosts"`
}

const UnknownHost = "unknown"

// ResolveHosts fills CurrentHost and Hosts from the resource config file when
// they are not set in the environment. A missing file is not an error.
func (c *Config) ResolveHosts() error {
	if c.CurrentHost != "" && len(c.Hosts) > 0 {
		return nil
	}

	data, err := os.ReadFile(c.ResourceConfig)
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("no resource config found", "path", c.ResourceConfig)
	} else if err != nil {
		return fmt.Errorf("error reading resource config %s: %w", c.ResourceConfig, err)
	} else {
		var rc ResourceConfig
		if err := json.Unmarshal(data, &rc); err != nil {
			return fmt.Errorf("error parsing resource config %s: %w", c.ResourceConfig, err)
		}
		if c.CurrentHost == "" {
			c.CurrentHost = rc.CurrentHost
		}
		if len(c.Hosts) == 0 {
			c.Hosts = rc.Hosts
		}
	}

	if c.CurrentHost == "" {
		c.CurrentHost = UnknownHost
	}
	if len(c.Hosts) == 0 {
		c.Hosts = []string{c.CurrentHost}
	}
	return nil
}

// PartitionId is the index of the current host in Hosts, used to keep output
// file names of different workers apart.
func (c *Config) PartitionId() string {
	if i := slices.Index(c.Hosts, c.CurrentHost); i >= 0 {
		return fmt.Sprint(i)
	}
	return "0"
}
