//go:build cgo
// +build cgo

// Package embedding provides ONNX-based extraction (requires CGO and the onnxruntime library).
package embedding

import (
	"context"
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/kasane/pkg/utils"
)

// modelInputSize is the fixed spatial size the embedding model expects.
const modelInputSize = 224

// ONNXExtractor runs a vision embedding model through ONNX Runtime. It
// requires CGO and the onnxruntime shared library.
type ONNXExtractor struct {
	session    *ort.AdvancedSession
	dimensions int
	maxDim     int
	// Pre-allocated tensors for Run(); we update input data and read output.
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	mu           sync.Mutex
}

// NewONNXExtractor creates an ONNX extractor. InitializeEnvironment is called
// if not already done. maxDim bounds the longest image side before
// preprocessing to keep per-item cost bounded.
func NewONNXExtractor(modelPath string, dimensions, maxDim int) (*ONNXExtractor, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	inputData := make([]float32, 3*modelInputSize*modelInputSize)
	inputTensor, err := ort.NewTensor(ort.NewShape(1, 3, modelInputSize, modelInputSize), inputData)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputData := make([]float32, dimensions)
	outputTensor, err := ort.NewTensor(ort.NewShape(1, int64(dimensions)), outputData)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"pixel_values"},
		[]string{"embedding"},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXExtractor{
		session:      session,
		dimensions:   dimensions,
		maxDim:       maxDim,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Extract returns the L2-normalized embedding for img.
func (e *ONNXExtractor) Extract(ctx context.Context, img image.Image) ([]float32, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("empty image")
	}

	bounded := utils.Downsample(img, e.maxDim)

	e.mu.Lock()
	defer e.mu.Unlock()

	preprocess(bounded, modelInputSize, e.inputTensor.GetData())

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	outputData := e.outputTensor.GetData()
	vec := make([]float32, e.dimensions)
	copy(vec, outputData[:e.dimensions])

	utils.NormalizeL2(vec)
	return vec, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXExtractor) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and tensors.
func (e *ONNXExtractor) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.inputTensor != nil {
		_ = e.inputTensor.Destroy()
		e.inputTensor = nil
	}
	if e.outputTensor != nil {
		_ = e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	return err
}
