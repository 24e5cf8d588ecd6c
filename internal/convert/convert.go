// Package convert orchestrates the conversion of traced policy files into
// ONNX artifacts: resolve defaults, load, validate with one forward pass,
// export, and best-effort verify. Everything runs sequentially; each
// conversion owns its file handles for exactly one call.
package convert

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/legged-rl/policyconv/internal/onnx"
	"github.com/legged-rl/policyconv/internal/policy"
	"github.com/legged-rl/policyconv/internal/tensor"
)

// Error kinds. Every failure a conversion can report wraps one of these.
var (
	ErrNotFound      = errors.New("not found")
	ErrLoad          = errors.New("failed to load model")
	ErrShapeMismatch = errors.New("input size mismatch")
	ErrExport        = errors.New("export failed")
)

// SourceExt and OutputExt are the conventional model file extensions.
const (
	SourceExt = ".pt"
	OutputExt = ".onnx"
)

// Request describes one conversion.
type Request struct {
	SourcePath string
	InputSize  int    // 0 means unset: use the catalog default
	OutputPath string // empty means derive from SourcePath
}

// Result is the immutable outcome of one conversion.
type Result struct {
	Succeeded  bool
	OutputPath string // set when Succeeded
	Message    string
	Err        error // wraps the error kind; nil when Succeeded
}

// BatchSummary counts the outcomes of a batch run.
type BatchSummary struct {
	Total     int
	Succeeded int
}

// Checker verifies an exported artifact. A nil Checker means the verifier
// capability is unavailable; verification is skipped with an advisory.
type Checker func(path string) error

// Converter runs conversions. The zero value is not usable; call New.
type Converter struct {
	log     *slog.Logger
	checker Checker
}

// Option configures a Converter.
type Option func(*Converter)

// WithLogger sets the diagnostic logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Converter) { c.log = log }
}

// WithChecker replaces the post-export verifier. Pass nil to simulate an
// unavailable verifier.
func WithChecker(checker Checker) Option {
	return func(c *Converter) { c.checker = checker }
}

// New creates a Converter wired to the structural ONNX checker and the
// default logger.
func New(opts ...Option) *Converter {
	c := &Converter{
		log:     slog.Default(),
		checker: onnx.Check,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DerivedOutputPath replaces the source extension with the ONNX extension.
func DerivedOutputPath(sourcePath string) string {
	return strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath)) + OutputExt
}

// Convert runs one conversion end to end.
//
// Failures in any step before the artifact is written produce a failed
// Result wrapping the step's error kind; nothing is written on failure.
// Post-export verification is diagnostic only and never flips the outcome.
func (c *Converter) Convert(req Request) Result {
	if _, err := os.Stat(req.SourcePath); err != nil {
		return c.failed(fmt.Errorf("%w: model file %s", ErrNotFound, req.SourcePath))
	}

	outputPath := req.OutputPath
	if outputPath == "" {
		outputPath = DerivedOutputPath(req.SourcePath)
	}

	inputSize := req.InputSize
	if inputSize <= 0 {
		inputSize = DefaultInputSize()
		c.log.Warn("input size not specified, using default",
			"input_size", inputSize,
			"alternatives", CommonInputSizes())
	}

	c.log.Info("loading policy", "path", req.SourcePath)
	model, err := policy.Load(req.SourcePath)
	if err != nil {
		return c.failed(fmt.Errorf("%w: %w", ErrLoad, err))
	}
	model.Eval()

	input, err := tensor.Randn(tensor.Shape{1, inputSize})
	if err != nil {
		return c.failed(fmt.Errorf("%w: %w", ErrLoad, err))
	}

	output, err := model.Forward(input)
	if err != nil {
		return c.failed(fmt.Errorf("%w: %w (retry with --input_size set to one of %v)",
			ErrShapeMismatch, err, CommonInputSizes()))
	}
	c.log.Info("validation forward pass ok",
		"input_shape", input.Shape(),
		"output_shape", output.Shape())

	c.log.Info("exporting", "output", outputPath)
	if err := onnx.Export(model, input, outputPath, onnx.DefaultExportOptions()); err != nil {
		return c.failed(fmt.Errorf("%w: %w", ErrExport, err))
	}

	c.verify(outputPath)

	c.log.Info("conversion succeeded", "source", req.SourcePath, "output", outputPath)
	return Result{
		Succeeded:  true,
		OutputPath: outputPath,
		Message:    fmt.Sprintf("converted %s to %s", req.SourcePath, outputPath),
	}
}

// verify runs the best-effort post-export check. Outcomes surface as log
// lines only.
func (c *Converter) verify(path string) {
	if c.checker == nil {
		c.log.Warn("verifier unavailable, skipping artifact check", "path", path)
		return
	}
	if err := c.checker(path); err != nil {
		c.log.Warn("artifact verification failed, model was still exported",
			"path", path, "error", err)
		return
	}

	if info, err := onnx.Info(path); err == nil {
		c.log.Info("artifact verified",
			"opset", info.OpsetVersion,
			"inputs", info.InputNames,
			"outputs", info.OutputNames,
			"nodes", info.NodeCount)
	} else {
		c.log.Info("artifact verified", "path", path)
	}
}

func (c *Converter) failed(err error) Result {
	c.log.Error("conversion failed", "error", err)
	return Result{Message: err.Error(), Err: err}
}
