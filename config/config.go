package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// CategoryConfig maps one class name to the directory holding its images.
type CategoryConfig struct {
	Name string `yaml:"name"`
	Dir  string `yaml:"dir"`
}

// Config holds the full training pipeline configuration.
type Config struct {
	Data struct {
		Categories []CategoryConfig `yaml:"categories"`
		ImageSize  int              `yaml:"image_size"`
		Workers    int              `yaml:"workers"`
	} `yaml:"data"`

	Training struct {
		Seed            int64   `yaml:"seed"`
		BatchSize       int     `yaml:"batch_size"`
		Epochs          int     `yaml:"epochs"`
		LearningRate    float64 `yaml:"learning_rate"`
		Patience        int     `yaml:"patience"`
		MinDelta        float64 `yaml:"min_delta"`
		HoldoutFraction float64 `yaml:"holdout_fraction"`
	} `yaml:"training"`

	Model struct {
		HiddenUnits int     `yaml:"hidden_units"`
		DropoutRate float64 `yaml:"dropout_rate"`
		L2Lambda    float64 `yaml:"l2_lambda"`
	} `yaml:"model"`

	Augment struct {
		RotationDegrees   float64 `yaml:"rotation_degrees"`
		TranslateFraction float64 `yaml:"translate_fraction"`
		ShearFraction     float64 `yaml:"shear_fraction"`
		ZoomFraction      float64 `yaml:"zoom_fraction"`
		HorizontalFlip    bool    `yaml:"horizontal_flip"`
		VerticalFlip      bool    `yaml:"vertical_flip"`
		BrightnessMin     float64 `yaml:"brightness_min"`
		BrightnessMax     float64 `yaml:"brightness_max"`
	} `yaml:"augment"`

	Output struct {
		CheckpointPath string `yaml:"checkpoint_path"`
		ModelPath      string `yaml:"model_path"`
		PlotDir        string `yaml:"plot_dir"`
		GradCAMLayer   string `yaml:"gradcam_layer"`
	} `yaml:"output"`

	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

// Default returns the configuration used when a field is absent from the
// YAML file.
func Default() *Config {
	cfg := &Config{}
	cfg.Data.Categories = []CategoryConfig{
		{Name: "Contaminated Recyclables", Dir: "data/contaminated"},
		{Name: "Recyclable", Dir: "data/recyclable"},
		{Name: "Non-Recyclable", Dir: "data/non_recyclable"},
	}
	cfg.Data.ImageSize = 512
	cfg.Data.Workers = 4

	cfg.Training.Seed = 42
	cfg.Training.BatchSize = 64
	cfg.Training.Epochs = 10
	cfg.Training.LearningRate = 1e-4
	cfg.Training.Patience = 7
	cfg.Training.MinDelta = 0
	cfg.Training.HoldoutFraction = 0.3

	cfg.Model.HiddenUnits = 128
	cfg.Model.DropoutRate = 0.4
	cfg.Model.L2Lambda = 0.001

	cfg.Augment.RotationDegrees = 30
	cfg.Augment.TranslateFraction = 0.2
	cfg.Augment.ShearFraction = 0.2
	cfg.Augment.ZoomFraction = 0.2
	cfg.Augment.HorizontalFlip = true
	cfg.Augment.VerticalFlip = true
	cfg.Augment.BrightnessMin = 0.8
	cfg.Augment.BrightnessMax = 1.2

	cfg.Output.CheckpointPath = "checkpoints/best_model.json"
	cfg.Output.ModelPath = "checkpoints/final_model.json"
	cfg.Output.PlotDir = "plots"
	cfg.Output.GradCAMLayer = "conv5"

	cfg.Log.Level = "info"
	return cfg
}

// Load reads a YAML config file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %v", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if len(c.Data.Categories) < 2 {
		return fmt.Errorf("at least two categories are required, got %d", len(c.Data.Categories))
	}
	seen := make(map[string]bool, len(c.Data.Categories))
	for _, cat := range c.Data.Categories {
		if cat.Name == "" || cat.Dir == "" {
			return fmt.Errorf("every category needs a name and a dir")
		}
		if seen[cat.Name] {
			return fmt.Errorf("duplicate category name %q", cat.Name)
		}
		seen[cat.Name] = true
	}
	if c.Data.ImageSize <= 0 || c.Data.ImageSize%32 != 0 {
		return fmt.Errorf("image_size must be a positive multiple of 32, got %d", c.Data.ImageSize)
	}
	if c.Data.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Data.Workers)
	}
	if c.Training.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1, got %d", c.Training.BatchSize)
	}
	if c.Training.Epochs < 1 {
		return fmt.Errorf("epochs must be at least 1, got %d", c.Training.Epochs)
	}
	if c.Training.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive, got %g", c.Training.LearningRate)
	}
	if c.Training.Patience < 1 {
		return fmt.Errorf("patience must be at least 1, got %d", c.Training.Patience)
	}
	if c.Training.HoldoutFraction <= 0 || c.Training.HoldoutFraction >= 1 {
		return fmt.Errorf("holdout_fraction must be in (0, 1), got %g", c.Training.HoldoutFraction)
	}
	if c.Model.HiddenUnits < 1 {
		return fmt.Errorf("hidden_units must be at least 1, got %d", c.Model.HiddenUnits)
	}
	if c.Model.DropoutRate < 0 || c.Model.DropoutRate >= 1 {
		return fmt.Errorf("dropout_rate must be in [0, 1), got %g", c.Model.DropoutRate)
	}
	if c.Model.L2Lambda < 0 {
		return fmt.Errorf("l2_lambda must not be negative, got %g", c.Model.L2Lambda)
	}
	if c.Augment.BrightnessMin > c.Augment.BrightnessMax || c.Augment.BrightnessMin <= 0 {
		return fmt.Errorf("brightness range [%g, %g] is invalid", c.Augment.BrightnessMin, c.Augment.BrightnessMax)
	}
	if c.Augment.ZoomFraction < 0 || c.Augment.ZoomFraction >= 1 {
		return fmt.Errorf("zoom_fraction must be in [0, 1), got %g", c.Augment.ZoomFraction)
	}
	if c.Output.CheckpointPath == "" {
		return fmt.Errorf("checkpoint_path must not be empty")
	}
	if c.Output.ModelPath == "" {
		return fmt.Errorf("model_path must not be empty")
	}
	return nil
}
