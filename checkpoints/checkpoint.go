package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"wastenet/tensor"
)

// Checkpoint is a complete snapshot of model weights and training progress.
type Checkpoint struct {
	Weights       []WeightTensor     `json:"weights"`
	TrainingState TrainingState      `json:"training_state"`
	Metadata      CheckpointMetadata `json:"metadata"`
}

// WeightTensor represents a model parameter tensor with its data
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// TrainingState captures the current training progress
type TrainingState struct {
	Epoch        int     `json:"epoch"`
	LearningRate float64 `json:"learning_rate"`
	ValLoss      float64 `json:"val_loss"`
	ValAccuracy  float64 `json:"val_accuracy"`
}

// CheckpointMetadata contains checkpoint metadata
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
	ClassNames  []string  `json:"class_names,omitempty"`
}

// CheckpointSaver handles saving and loading JSON checkpoints
type CheckpointSaver struct{}

// NewCheckpointSaver creates a new checkpoint saver
func NewCheckpointSaver() *CheckpointSaver {
	return &CheckpointSaver{}
}

// SaveCheckpoint writes a checkpoint to path as indented JSON.
func (cs *CheckpointSaver) SaveCheckpoint(checkpoint *Checkpoint, path string) error {
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = "wastenet"
		checkpoint.Metadata.Version = "1.0.0"
	}
	if checkpoint.Metadata.CreatedAt.IsZero() {
		checkpoint.Metadata.CreatedAt = time.Now()
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %v", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(checkpoint); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %v", err)
	}
	return nil
}

// LoadCheckpoint reads a checkpoint from path.
func (cs *CheckpointSaver) LoadCheckpoint(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %v", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %v", err)
	}
	return &checkpoint, nil
}

// ExtractWeights snapshots named parameters into checkpoint weight tensors.
// names must be aligned with params.
func ExtractWeights(names []string, params []*tensor.Tensor) ([]WeightTensor, error) {
	if len(names) != len(params) {
		return nil, fmt.Errorf("name count %d does not match parameter count %d", len(names), len(params))
	}
	weights := make([]WeightTensor, len(params))
	for i, param := range params {
		if param.DType != tensor.Float32 {
			return nil, fmt.Errorf("parameter %q is not Float32", names[i])
		}
		data := make([]float32, param.NumElems)
		copy(data, param.Float32s())
		weights[i] = WeightTensor{
			Name:  names[i],
			Shape: append([]int(nil), param.Shape...),
			Data:  data,
		}
	}
	return weights, nil
}

// LoadWeights copies checkpoint weights back into named parameters, matching
// by name. Every parameter must be present in the checkpoint with a matching
// shape.
func LoadWeights(weights []WeightTensor, names []string, params []*tensor.Tensor) error {
	if len(names) != len(params) {
		return fmt.Errorf("name count %d does not match parameter count %d", len(names), len(params))
	}
	byName := make(map[string]*WeightTensor, len(weights))
	for i := range weights {
		byName[weights[i].Name] = &weights[i]
	}

	for i, param := range params {
		w, ok := byName[names[i]]
		if !ok {
			return fmt.Errorf("checkpoint is missing weights for %q", names[i])
		}
		if len(w.Data) != param.NumElems {
			return fmt.Errorf("weight %q size mismatch: checkpoint has %d values, parameter needs %d",
				names[i], len(w.Data), param.NumElems)
		}
		if err := param.SetData(w.Data); err != nil {
			return fmt.Errorf("failed to load weight %q: %v", names[i], err)
		}
	}
	return nil
}
