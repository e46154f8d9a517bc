package dataset

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/strrl/sft-forge/internal/record"
)

// Checkpointer saves the growing item list every Every items so a crash
// loses at most Every-1 records.
type Checkpointer struct {
	Every  int
	Name   func(n int) string
	Logger *zap.Logger

	last int
}

// SameFile checkpoints by rewriting the final output file.
func SameFile(path string) func(int) string {
	return func(int) string { return path }
}

// Numbered checkpoints into dir/fmt.Sprintf(format, n).
func Numbered(dir, format string) func(int) string {
	return func(n int) string {
		return filepath.Join(dir, fmt.Sprintf(format, n))
	}
}

// Observe saves items when their count is a positive multiple of Every and
// has not been saved yet. It returns the path written, or "".
func (c *Checkpointer) Observe(items []record.Annotated) (string, error) {
	n := len(items)
	if c == nil || c.Every <= 0 || c.Name == nil || n == 0 || n%c.Every != 0 || n == c.last {
		return "", nil
	}

	path := c.Name(n)
	if err := Save(path, items); err != nil {
		return "", fmt.Errorf("checkpoint at %d: %w", n, err)
	}
	c.last = n

	if c.Logger != nil {
		c.Logger.Info("checkpoint written", zap.String("path", path), zap.Int("records", n))
	}
	return path, nil
}
