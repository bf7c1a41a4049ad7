package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estateml/estateml/pkg/log"
	"github.com/estateml/estateml/preprocessing"
	"github.com/estateml/estateml/training"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "CatBoost_Dubai_Real_Estate", cfg.Training.Experiment)
	assert.Equal(t, "catboost_dubai_property_model", cfg.Training.ModelBaseName)
	assert.Equal(t, 10, cfg.Training.NTrials)
	assert.Equal(t, 3, cfg.Training.CVSplits)
	assert.Equal(t, 3*time.Hour, cfg.Training.Timeout)
	assert.Equal(t, uint64(42), cfg.Training.Seed)
	assert.Equal(t, 10, cfg.Training.NStartupTrials)
	assert.True(t, cfg.Training.Multivariate)
	assert.False(t, cfg.Features.LegacyWeekend)
	assert.Equal(t, 0.2, cfg.Data.TestFraction)
	assert.Equal(t, "sqlite", cfg.Tracking.Backend)

	tc := cfg.TrainerConfig()
	require.NoError(t, tc.Validate())
	assert.Equal(t, cfg.Training.Experiment, tc.Experiment)
	assert.Equal(t, uint64(42), tc.Seed)
	assert.Equal(t, training.EarlyStopping{Rounds: 50, Fraction: 0.1}, tc.EarlyStopping)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "estateml.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
training:
  n_trials: 25
  timeout: 45m
  cv_splits: 5
features:
  legacy_weekend: true
data:
  outlier_iqr_weight: 3
`), 0o644))

	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("ESTATEML_ARTIFACTS_DIR=/tmp/models\n"), 0o644))
	t.Setenv("ESTATEML_TRAINING_N_TRIALS", "40")
	// godotenv never overrides variables that are already set
	t.Setenv("ESTATEML_ARTIFACTS_DIR", "")
	require.NoError(t, os.Unsetenv("ESTATEML_ARTIFACTS_DIR"))

	cfg, err := Load(path, envFile, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 40, cfg.Training.NTrials)
	assert.Equal(t, 45*time.Minute, cfg.Training.Timeout)
	assert.Equal(t, 5, cfg.Training.CVSplits)
	assert.True(t, cfg.Features.LegacyWeekend)
	assert.Equal(t, 3.0, cfg.Data.OutlierIQRWeight)
	assert.Equal(t, "/tmp/models", cfg.Artifacts.Dir)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"cv_splits": "training:\n  cv_splits: 1\n",
		"fraction":  "data:\n  test_fraction: 1.5\n",
		"backend":   "tracking:\n  backend: postgres\n",
		"log level": "log:\n  level: loud\n",
		"budget":    "training:\n  n_trials: 0\n  timeout: 0s\n",
		"holdout":   "training:\n  early_stopping_rounds: 20\n  early_stopping_fraction: 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestBuilderHonoursLegacyWeekend(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Features.LegacyWeekend = true

	b, err := cfg.Builder(log.NewTestLogger(log.LevelError))
	require.NoError(t, err)
	assert.Equal(t, preprocessing.DefaultLookups().Versions(), b.Lookups().Versions())

	cfg.Features.DistrictsPath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = cfg.Builder(log.NewTestLogger(log.LevelError))
	assert.Error(t, err)
}

func TestLoadSearchSpaceOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "space.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
training:
  space:
    iterations: [50, 100]
    learning_rate: [0.1, 0.2]
    depth: [2, 4]
    l2_leaf_reg: [0.5, 3]
    border_count: [16]
    random_strength: [0.1, 1]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Training.Space)
	tc := cfg.TrainerConfig()
	assert.Equal(t, []int{50, 100}, tc.Space.Iterations)
	assert.Equal(t, [2]float64{0.1, 0.2}, tc.Space.LearningRate)
	assert.Equal(t, [2]int{2, 4}, tc.Space.Depth)
	assert.Equal(t, []int{16}, tc.Space.BorderCount)

	def, err := Load("")
	require.NoError(t, err)
	assert.Nil(t, def.Training.Space)
	assert.Equal(t, []int{500, 1000}, def.TrainerConfig().Space.Iterations)
}
