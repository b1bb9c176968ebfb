package model

import (
	"context"
	"fmt"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// InitRuntime initializes the process-wide ONNX Runtime environment. It must
// run once before any Server is created. libraryPath may be empty to use the
// platform default.
func InitRuntime(libraryPath string) error {
	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return nil
}

// DestroyRuntime tears down the ONNX Runtime environment after all servers
// are closed.
func DestroyRuntime() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// Server owns one ONNX session with pre-bound input and output tensors. The
// tensors are shared, so runs are serialized.
type Server struct {
	Name     string
	Metadata Metadata

	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	stats        *Stats
	logger       *zap.Logger
}

// NewServer loads a model and its metadata. InitRuntime must have been called.
func NewServer(name, modelPath, metadataPath string, logger *zap.Logger) (*Server, error) {
	metadata, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	inputShape := ort.NewShape(metadata.InputShape...)
	outputShape := ort.NewShape(metadata.OutputShape...)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session for %s: %w", name, err)
	}

	logger.Info("Model loaded",
		zap.String("model", name),
		zap.String("path", modelPath),
		zap.Int("classes", len(metadata.Classes)),
		zap.Int64s("input_shape", metadata.InputShape))

	return &Server{
		Name:         name,
		Metadata:     metadata,
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		stats:        NewStats(time.Now()),
		logger:       logger,
	}, nil
}

// Predict runs one inference and returns a copy of the class probabilities.
func (s *Server) Predict(ctx context.Context, input []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(input) != s.Metadata.InputSize() {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrInputSize, s.Metadata.InputSize(), len(input))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, ErrNotLoaded
	}

	start := time.Now()
	copy(s.inputTensor.GetData(), input)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := s.outputTensor.GetData()
	probs := make([]float32, len(s.Metadata.Classes))
	copy(probs, out)

	s.stats.Record(time.Since(start))
	return probs, nil
}

// Meta returns the model metadata.
func (s *Server) Meta() Metadata {
	return s.Metadata
}

// Stats reports advisory usage counters.
func (s *Server) Stats() StatsSnapshot {
	return s.stats.Snapshot()
}

// Close releases the session and tensors. The runtime environment is left to
// DestroyRuntime.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.MarkUnloaded()
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
		s.inputTensor = nil
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
		s.outputTensor = nil
	}
	s.logger.Debug("Model closed", zap.String("model", s.Name))
}
