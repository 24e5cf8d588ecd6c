package convert

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ConvertBatch converts every traced policy under rootDir, recursively.
//
// Each file gets its derived output path (an explicit output path makes no
// sense when converting many files) and the same input size. Individual
// failures are counted, never propagated; only a missing root directory is
// an error.
func (c *Converter) ConvertBatch(rootDir string, inputSize int) (BatchSummary, error) {
	if _, err := os.Stat(rootDir); err != nil {
		return BatchSummary{}, fmt.Errorf("%w: policy directory %s", ErrNotFound, rootDir)
	}

	var summary BatchSummary
	_ = filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			c.log.Warn("skipping unreadable entry", "path", path, "error", err)
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), SourceExt) {
			return nil
		}

		c.log.Info("batch converting", "path", path)
		summary.Total++
		result := c.Convert(Request{SourcePath: path, InputSize: inputSize})
		if result.Succeeded {
			summary.Succeeded++
		}
		return nil
	})

	c.log.Info("batch conversion completed",
		"succeeded", summary.Succeeded, "total", summary.Total)
	return summary, nil
}
