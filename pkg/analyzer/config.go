package analyzer

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/parsegraph/pkg/shardtable"
	"github.com/Sumatoshi-tech/parsegraph/pkg/telemetry"
)

const (
	configName = ".parsegraph"
	configType = "yaml"
	envPrefix  = "PARSEGRAPH"
	envKeySep  = "_"

	// DefaultAnalysisTimeout matches the spec's debug-build default; the
	// spec calls for 5s in release builds and 0 (unbounded) on wasm, which
	// this library leaves to the host via Config.
	DefaultAnalysisTimeout = time.Second
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("analyzer: invalid config")

// Config configures an Analyzer: shard counts for the document table and
// the semantic database, an analysis timeout, a task queue depth, and the
// embedded telemetry configuration. Loadable via spf13/viper from YAML,
// the same mapstructure-tag convention the teacher's
// internal/config.Config used, trimmed to this library's knobs.
//
// New applies only the two shard counts. AnalysisTimeout and
// TaskQueueDepth are validated and defaulted but not applied: waits on an
// attribute-record lock are bounded only by the caller's context.
type Config struct {
	DocumentShardCount int           `mapstructure:"document_shard_count" yaml:"document_shard_count"`
	SemanticShardCount int           `mapstructure:"semantic_shard_count" yaml:"semantic_shard_count"`
	AnalysisTimeout    time.Duration `mapstructure:"analysis_timeout" yaml:"analysis_timeout"`
	TaskQueueDepth     int           `mapstructure:"task_queue_depth" yaml:"task_queue_depth"`

	Telemetry telemetry.Config `mapstructure:"telemetry" yaml:"telemetry"`
}

// Validate checks Config for internally-consistent values, filling in
// library defaults for anything left at its zero value.
func (c *Config) Validate() error {
	if c.DocumentShardCount <= 0 {
		c.DocumentShardCount = shardtable.DefaultShardCount()
	}

	if c.SemanticShardCount <= 0 {
		c.SemanticShardCount = shardtable.DefaultShardCount()
	}

	if c.AnalysisTimeout <= 0 {
		c.AnalysisTimeout = DefaultAnalysisTimeout
	}

	if c.TaskQueueDepth < 0 {
		return fmt.Errorf("%w: task_queue_depth must be >= 0", ErrInvalidConfig)
	}

	return nil
}

// LoadConfig loads configuration from file, environment variables, and
// defaults. If configPath is non-empty it is used as the explicit config
// file path; otherwise the config file is searched for in the current
// directory and $HOME. A missing config file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()
	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySep))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	if err := viperCfg.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config

	if err := viperCfg.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Dump renders the effective configuration back to YAML, using the same
// tags LoadConfig reads, so a host can print or persist what it actually
// resolved (defaults included) rather than just what was supplied.
func (c *Config) Dump() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	return data, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("document_shard_count", 0)
	viperCfg.SetDefault("semantic_shard_count", 0)
	viperCfg.SetDefault("analysis_timeout", DefaultAnalysisTimeout.String())
	viperCfg.SetDefault("task_queue_depth", 0)
}
