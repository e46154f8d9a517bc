package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"go.uber.org/zap"
)

type MergeSource struct {
	File    string `json:"file"`
	Count   int    `json:"count"`
	Missing bool   `json:"missing,omitempty"`
	Failed  string `json:"failed,omitempty"`
}

type MergeResult struct {
	Output  string        `json:"output"`
	Sources []MergeSource `json:"sources"`
	Total   int           `json:"total"`
}

// Merge concatenates dir/files in the given order into dir/out. Missing
// inputs are logged and skipped. It fails when nothing was found at all.
func Merge(dir string, files []string, out string, logger *zap.Logger) (*MergeResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	result := &MergeResult{Output: filepath.Join(dir, out)}
	var lines []json.RawMessage

	for _, name := range files {
		src := MergeSource{File: name}
		got, err := ReadRaw(filepath.Join(dir, name))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			src.Missing = true
			logger.Warn("merge input missing", zap.String("file", name))
		case err != nil:
			src.Failed = err.Error()
			logger.Warn("merge input unreadable", zap.String("file", name), zap.Error(err))
		default:
			for i, line := range got {
				if !json.Valid(line) {
					logger.Warn("skipping invalid line", zap.String("file", name), zap.Int("index", i))
					continue
				}
				lines = append(lines, line)
				src.Count++
			}
			logger.Info("merge input loaded", zap.String("file", name), zap.Int("records", src.Count))
		}
		result.Sources = append(result.Sources, src)
	}

	if len(lines) == 0 {
		return result, fmt.Errorf("no records found in %d input files", len(files))
	}

	if err := WriteLines(result.Output, lines); err != nil {
		return nil, err
	}
	result.Total = len(lines)
	return result, nil
}
