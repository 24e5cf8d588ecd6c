// Command policyconv converts traced control policies (.pt) into ONNX
// artifacts for cross-runtime inference.
//
// Usage:
//
//	policyconv <model_path> [--input_size N] [--output_path PATH]
//	policyconv --batch_convert [--input_size N]
//
// Single-file mode exits non-zero on failure. Batch mode converts every
// .pt file under the policy/ directory next to the executable, prints a
// succeeded/total summary, and exits non-zero only when that directory is
// missing.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/legged-rl/policyconv/internal/convert"
	"github.com/legged-rl/policyconv/internal/logger"
)

func main() {
	var (
		flagInputSize    = flag.Int("input_size", 0, "input observation size (default: guessed from the catalog)")
		flagOutputPath   = flag.String("output_path", "", "output ONNX file path (single-file mode only)")
		flagBatchConvert = flag.Bool("batch_convert", false, "convert all .pt files in the policy directory")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <model_path>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	slog.SetDefault(logger.New(slog.LevelInfo))
	converter := convert.New()

	if *flagBatchConvert {
		os.Exit(runBatch(converter, *flagInputSize))
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	result := converter.Convert(convert.Request{
		SourcePath: flag.Arg(0),
		InputSize:  *flagInputSize,
		OutputPath: *flagOutputPath,
	})
	if !result.Succeeded {
		os.Exit(1)
	}
}

// runBatch converts everything under the policy/ directory that ships next
// to the executable. Per-file failures are counted, not escalated.
func runBatch(converter *convert.Converter, inputSize int) int {
	exe, err := os.Executable()
	if err != nil {
		slog.Error("cannot locate executable", "error", err)
		return 1
	}
	policyDir := filepath.Join(filepath.Dir(exe), "policy")

	summary, err := converter.ConvertBatch(policyDir, inputSize)
	if err != nil {
		slog.Error("batch conversion failed", "error", err)
		return 1
	}

	fmt.Printf("Batch conversion completed: %d/%d models converted successfully\n",
		summary.Succeeded, summary.Total)
	return 0
}
