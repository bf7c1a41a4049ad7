// Package config loads estateml settings from defaults, an optional YAML
// file, an optional .env file and ESTATEML_ environment variables, in
// increasing order of precedence.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/estateml/estateml/pkg/errors"
	"github.com/estateml/estateml/pkg/log"
	"github.com/estateml/estateml/preprocessing"
	"github.com/estateml/estateml/training"
)

// EnvPrefix prefixes every environment override, e.g. ESTATEML_TRAINING_N_TRIALS.
const EnvPrefix = "ESTATEML"

// Config is the full application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Data      DataConfig      `mapstructure:"data"`
	Features  FeaturesConfig  `mapstructure:"features"`
	Training  TrainingConfig  `mapstructure:"training"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Tracking  TrackingConfig  `mapstructure:"tracking"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

type DataConfig struct {
	Path         string  `mapstructure:"path"`
	TestFraction float64 `mapstructure:"test_fraction" validate:"gt=0,lt=1"`
	// OutlierIQRWeight enables IQR filtering of the target when > 0.
	OutlierIQRWeight float64 `mapstructure:"outlier_iqr_weight" validate:"gte=0"`
	Strict           bool    `mapstructure:"strict"`
}

type FeaturesConfig struct {
	LegacyWeekend  bool   `mapstructure:"legacy_weekend"`
	ProceduresPath string `mapstructure:"procedures_path"`
	DistrictsPath  string `mapstructure:"districts_path"`
}

type TrainingConfig struct {
	Experiment          string        `mapstructure:"experiment" validate:"required"`
	ModelBaseName       string        `mapstructure:"model_base_name" validate:"required"`
	NTrials             int           `mapstructure:"n_trials" validate:"gte=0"`
	Timeout             time.Duration `mapstructure:"timeout" validate:"gte=0"`
	NJobs               int           `mapstructure:"n_jobs" validate:"gte=1"`
	CVSplits            int           `mapstructure:"cv_splits" validate:"gte=2"`
	Seed                uint64        `mapstructure:"seed"`
	NStartupTrials      int           `mapstructure:"n_startup_trials" validate:"gte=0"`
	Multivariate        bool          `mapstructure:"multivariate"`
	Pruning             bool          `mapstructure:"pruning"`
	PrunerStartupTrials int           `mapstructure:"pruner_startup_trials" validate:"gte=0"`
	PrunerWarmupSteps   int           `mapstructure:"pruner_warmup_steps" validate:"gte=0"`
	// EarlyStoppingRounds of 0 disables early stopping during the search.
	EarlyStoppingRounds   int     `mapstructure:"early_stopping_rounds" validate:"gte=0"`
	EarlyStoppingFraction float64 `mapstructure:"early_stopping_fraction" validate:"gte=0,lt=1"`
	// Space replaces the default search space when set.
	Space *training.SearchSpace `mapstructure:"space"`
}

type ArtifactsConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

type TrackingConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=sqlite memory"`
	DBPath  string `mapstructure:"db_path" validate:"required_if=Backend sqlite"`
}

type MetricsConfig struct {
	// TextfilePath, when set, receives the search metrics in Prometheus
	// text format after training.
	TextfilePath string `mapstructure:"textfile_path"`
}

func setDefaults(v *viper.Viper) {
	def := training.DefaultConfig()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("data.path", "")
	v.SetDefault("data.test_fraction", 0.2)
	v.SetDefault("data.outlier_iqr_weight", 0.0)
	v.SetDefault("data.strict", false)

	v.SetDefault("features.legacy_weekend", false)
	v.SetDefault("features.procedures_path", "")
	v.SetDefault("features.districts_path", "")

	v.SetDefault("training.experiment", def.Experiment)
	v.SetDefault("training.model_base_name", def.ModelBaseName)
	v.SetDefault("training.n_trials", def.NTrials)
	v.SetDefault("training.timeout", def.Timeout)
	v.SetDefault("training.n_jobs", def.NJobs)
	v.SetDefault("training.cv_splits", def.CVSplits)
	v.SetDefault("training.seed", def.Seed)
	v.SetDefault("training.n_startup_trials", def.NStartupTrials)
	v.SetDefault("training.multivariate", def.Multivariate)
	v.SetDefault("training.pruning", def.Pruning)
	v.SetDefault("training.pruner_startup_trials", def.PrunerStartupTrials)
	v.SetDefault("training.pruner_warmup_steps", def.PrunerWarmupSteps)
	v.SetDefault("training.early_stopping_rounds", def.EarlyStopping.Rounds)
	v.SetDefault("training.early_stopping_fraction", def.EarlyStopping.Fraction)

	v.SetDefault("artifacts.dir", "artifacts")

	v.SetDefault("tracking.backend", "sqlite")
	v.SetDefault("tracking.db_path", "mlruns/tracking.db")

	v.SetDefault("metrics.textfile_path", "")
}

// Load reads the configuration. path may be empty; envFiles that do not
// exist are skipped.
func Load(path string, envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, errors.Wrapf(err, "load env file %s", f)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	if c.Training.NTrials == 0 && c.Training.Timeout <= 0 {
		return errors.NewValidationError("training.n_trials", "either n_trials or timeout is required", 0)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return c.TrainerConfig().Validate()
}

// TrainerConfig maps the training section onto training.Config.
func (c *Config) TrainerConfig() training.Config {
	out := training.DefaultConfig()
	t := c.Training
	out.Experiment = t.Experiment
	out.ModelBaseName = t.ModelBaseName
	out.NTrials = t.NTrials
	out.Timeout = t.Timeout
	out.NJobs = t.NJobs
	out.CVSplits = t.CVSplits
	out.Seed = t.Seed
	out.NStartupTrials = t.NStartupTrials
	out.Multivariate = t.Multivariate
	out.Pruning = t.Pruning
	out.PrunerStartupTrials = t.PrunerStartupTrials
	out.PrunerWarmupSteps = t.PrunerWarmupSteps
	out.EarlyStopping = training.EarlyStopping{Rounds: t.EarlyStoppingRounds, Fraction: t.EarlyStoppingFraction}
	if t.Space != nil {
		out.Space = *t.Space
	}
	return out
}

// Builder creates the feature builder described by the features section.
func (c *Config) Builder(logger log.Logger) (*preprocessing.Builder, error) {
	opts := []preprocessing.BuilderOption{preprocessing.WithLogger(logger)}
	if c.Features.ProceduresPath != "" || c.Features.DistrictsPath != "" {
		lookups, err := preprocessing.LoadLookups(c.Features.ProceduresPath, c.Features.DistrictsPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, preprocessing.WithLookups(lookups))
	}
	if c.Features.LegacyWeekend {
		opts = append(opts, preprocessing.WithTemporalOptions(preprocessing.WithLegacyWeekendFlag()))
	}
	return preprocessing.NewBuilder(opts...), nil
}
