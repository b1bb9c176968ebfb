package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Tensor layouts accepted in metadata.
const (
	LayoutNCHW = "nchw"
	LayoutNHWC = "nhwc"
)

// Pixel scalings accepted in metadata.
const (
	// ScaleUnit maps 8-bit channels to [0, 1].
	ScaleUnit = "unit"
	// ScaleRGBA16 divides 16-bit color values by 65535.
	ScaleRGBA16 = "rgba16"
)

var (
	// ErrNotLoaded is returned by a closed Server.
	ErrNotLoaded = errors.New("model not loaded")
	// ErrInputSize is returned when an input does not fill the model tensor.
	ErrInputSize = errors.New("input size does not match model input shape")
)

// Classifier maps one input vector to a probability per catalog class.
type Classifier interface {
	Predict(ctx context.Context, input []float32) ([]float32, error)
	Meta() Metadata
	Stats() StatsSnapshot
}

// Metadata describes a model file: tensor shapes, class catalog and how
// images must be prepared for it.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size,omitempty"`
	Layout      string   `json:"layout,omitempty"`
	Scale       string   `json:"scale,omitempty"`
	InputName   string   `json:"input_name,omitempty"`
	OutputName  string   `json:"output_name,omitempty"`
}

// LoadMetadata reads and validates a metadata JSON file, filling defaults.
func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	m.applyDefaults()

	if err := m.Validate(); err != nil {
		return Metadata{}, fmt.Errorf("invalid metadata %s: %w", path, err)
	}
	return m, nil
}

func (m *Metadata) applyDefaults() {
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}
	if m.Layout == "" {
		m.Layout = LayoutNCHW
	}
	if m.Scale == "" {
		m.Scale = ScaleUnit
	}
}

// Validate checks that shapes and catalog agree.
func (m Metadata) Validate() error {
	if len(m.Classes) == 0 {
		return errors.New("no classes")
	}
	if len(m.InputShape) == 0 || elements(m.InputShape) <= 0 {
		return fmt.Errorf("bad input shape %v", m.InputShape)
	}
	if n := elements(m.OutputShape); n != int64(len(m.Classes)) {
		return fmt.Errorf("output shape %v holds %d values for %d classes", m.OutputShape, n, len(m.Classes))
	}
	switch m.Layout {
	case LayoutNCHW, LayoutNHWC:
	default:
		return fmt.Errorf("unknown layout %q", m.Layout)
	}
	switch m.Scale {
	case ScaleUnit, ScaleRGBA16:
	default:
		return fmt.Errorf("unknown scale %q", m.Scale)
	}
	return nil
}

// InputSize is the number of float32 values one input must contain.
func (m Metadata) InputSize() int {
	return int(elements(m.InputShape))
}

func elements(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}
