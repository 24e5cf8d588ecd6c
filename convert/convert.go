// Package convert is the public API for converting traced control
// policies (.pt) into ONNX artifacts.
//
// # Example Usage
//
//	import "github.com/legged-rl/policyconv/convert"
//
//	converter := convert.New()
//	result := converter.Convert(convert.Request{
//	    SourcePath: "policy/go2/policy.pt",
//	    InputSize:  48,
//	})
//	if !result.Succeeded {
//	    log.Fatal(result.Message)
//	}
//
// Batch mode walks a directory tree and converts every .pt file it finds:
//
//	summary, err := converter.ConvertBatch("policy", 0)
//	fmt.Printf("%d/%d converted\n", summary.Succeeded, summary.Total)
//
// The actual implementation lives in the internal packages; this package
// only re-exports the orchestration surface.
package convert

import (
	"log/slog"

	internalconvert "github.com/legged-rl/policyconv/internal/convert"
)

// Request describes one conversion.
type Request = internalconvert.Request

// Result is the immutable outcome of one conversion.
type Result = internalconvert.Result

// BatchSummary counts the outcomes of a batch run.
type BatchSummary = internalconvert.BatchSummary

// Converter runs conversions.
type Converter = internalconvert.Converter

// Option configures a Converter.
type Option = internalconvert.Option

// Checker verifies an exported artifact.
type Checker = internalconvert.Checker

// Error kinds reported through Result.Err.
var (
	ErrNotFound      = internalconvert.ErrNotFound
	ErrLoad          = internalconvert.ErrLoad
	ErrShapeMismatch = internalconvert.ErrShapeMismatch
	ErrExport        = internalconvert.ErrExport
)

// New creates a Converter wired to the structural ONNX checker.
func New(opts ...Option) *Converter {
	return internalconvert.New(opts...)
}

// WithLogger sets the diagnostic logger.
func WithLogger(log *slog.Logger) Option {
	return internalconvert.WithLogger(log)
}

// WithChecker replaces the post-export verifier. Pass nil to simulate an
// unavailable verifier.
func WithChecker(checker Checker) Option {
	return internalconvert.WithChecker(checker)
}

// DerivedOutputPath replaces the source extension with the ONNX extension.
func DerivedOutputPath(sourcePath string) string {
	return internalconvert.DerivedOutputPath(sourcePath)
}

// DefaultInputSize returns the observation width assumed when a request
// leaves InputSize unset.
func DefaultInputSize() int {
	return internalconvert.DefaultInputSize()
}

// CommonInputSizes returns the observation widths of known policy families.
func CommonInputSizes() []int {
	return internalconvert.CommonInputSizes()
}
