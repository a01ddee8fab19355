package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
data:
  image_size: 64
training:
  epochs: 3
  batch_size: 8
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 64, cfg.Data.ImageSize)
	require.Equal(t, 3, cfg.Training.Epochs)
	require.Equal(t, 8, cfg.Training.BatchSize)
	require.Equal(t, "debug", cfg.Log.Level)
	// Untouched fields keep their defaults.
	require.Equal(t, 1e-4, cfg.Training.LearningRate)
	require.Equal(t, 0.4, cfg.Model.DropoutRate)
	require.Len(t, cfg.Data.Categories, 3)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data:\n  image_size: 100\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "image_size")
}

func TestValidateCatchesBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"too few categories", func(c *Config) { c.Data.Categories = c.Data.Categories[:1] }},
		{"duplicate category", func(c *Config) { c.Data.Categories[1].Name = c.Data.Categories[0].Name }},
		{"empty dir", func(c *Config) { c.Data.Categories[0].Dir = "" }},
		{"zero epochs", func(c *Config) { c.Training.Epochs = 0 }},
		{"negative lr", func(c *Config) { c.Training.LearningRate = -1 }},
		{"holdout too large", func(c *Config) { c.Training.HoldoutFraction = 1 }},
		{"dropout out of range", func(c *Config) { c.Model.DropoutRate = 1 }},
		{"inverted brightness", func(c *Config) { c.Augment.BrightnessMin = 2 }},
		{"zoom out of range", func(c *Config) { c.Augment.ZoomFraction = 1 }},
		{"empty checkpoint path", func(c *Config) { c.Output.CheckpointPath = "" }},
		{"empty model path", func(c *Config) { c.Output.ModelPath = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
