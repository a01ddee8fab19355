package pipeline

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"wastenet/config"
)

// writeNoisyImage gives each category a distinct dominant color with pixel
// noise, enough signal for a tiny model to separate in a couple of epochs.
func writeNoisyImage(t *testing.T, path string, base color.RGBA, rng *rand.Rand) {
	t.Helper()
	const size = 16
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			noise := uint8(rng.Intn(60))
			img.SetRGBA(x, y, color.RGBA{
				R: base.R/2 + noise,
				G: base.G/2 + noise,
				B: base.B/2 + noise,
				A: 255,
			})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func makeCategory(t *testing.T, root, name string, count int, base color.RGBA, rng *rand.Rand) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for i := 0; i < count; i++ {
		writeNoisyImage(t, filepath.Join(dir, string(rune('a'+i))+".png"), base, rng)
	}
	return dir
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	rng := rand.New(rand.NewSource(7))

	cfg := config.Default()
	cfg.Data.Categories = []config.CategoryConfig{
		{Name: "Recyclable", Dir: makeCategory(t, root, "rec", 10, color.RGBA{R: 250}, rng)},
		{Name: "Non-Recyclable", Dir: makeCategory(t, root, "non", 10, color.RGBA{B: 250}, rng)},
	}
	cfg.Data.ImageSize = 32
	cfg.Data.Workers = 2
	cfg.Training.Epochs = 2
	cfg.Training.BatchSize = 4
	cfg.Training.LearningRate = 1e-3
	cfg.Model.HiddenUnits = 8
	cfg.Model.DropoutRate = 0
	cfg.Output.CheckpointPath = filepath.Join(root, "ckpt", "best.json")
	cfg.Output.ModelPath = filepath.Join(root, "ckpt", "final.json")
	cfg.Output.PlotDir = filepath.Join(root, "plots")
	return cfg
}

func TestRunEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("full pipeline run is slow")
	}
	cfg := testConfig(t)

	result, err := Run(context.Background(), cfg, nil)
	require.NoError(t, err)

	require.Equal(t, []string{"Non-Recyclable", "Recyclable"}, result.Classes)
	require.Len(t, result.Weights, 2)
	// Balanced categories yield unit weights.
	require.InDelta(t, 1.0, float64(result.Weights[0]), 1e-6)
	require.Len(t, result.History.Epochs, 2)
	require.NotNil(t, result.Report)
	require.Equal(t, 3, result.Report.Confusion.TotalSamples)
	require.Len(t, result.Report.Probabilities, 3*2)
	require.Greater(t, result.Report.Loss, 0.0)

	// A best checkpoint was written during training, and the final model
	// artifact after it.
	_, err = os.Stat(cfg.Output.CheckpointPath)
	require.NoError(t, err)
	_, err = os.Stat(cfg.Output.ModelPath)
	require.NoError(t, err)

	// The headline charts rendered.
	for _, name := range []string{"class_distribution.png", "training_curves.png",
		"confusion_matrix.png", "per_class_accuracy.png", "dashboard.png",
		"sample_predictions.png", "gradcam.png", "training_curves.json"} {
		_, err := os.Stat(filepath.Join(cfg.Output.PlotDir, name))
		require.NoError(t, err, name)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Training.Epochs = 0
	_, err := Run(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestRunFailsOnMissingData(t *testing.T) {
	cfg := testConfig(t)
	cfg.Data.Categories[0].Dir = filepath.Join(t.TempDir(), "absent")
	_, err := Run(context.Background(), cfg, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "contributed no samples")
}

func TestRunHonorsContextCancellation(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, cfg, nil)
	require.Error(t, err)
}
