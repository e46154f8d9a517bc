// Package dataset reads and writes JSON-lines training files.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/strrl/sft-forge/internal/record"
)

// Save writes the records of items to path, one compact JSON object per
// line. Metadata is dropped. The file is replaced atomically.
func Save(path string, items []record.Annotated) error {
	return WriteRecords(path, record.Strip(items))
}

// WriteRecords writes records to path as JSON lines, replacing it atomically.
func WriteRecords(path string, records []record.Record) error {
	return writeAtomic(path, func(w io.Writer) error {
		enc := newEncoder(w)
		for i, r := range records {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("failed to encode record %d: %w", i, err)
			}
		}
		return nil
	})
}

// WriteLines writes pre-encoded JSON lines to path.
func WriteLines(path string, lines []json.RawMessage) error {
	return writeAtomic(path, func(w io.Writer) error {
		for _, line := range lines {
			if _, err := w.Write(line); err != nil {
				return err
			}
			if _, err := w.Write([]byte{'\n'}); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveAnalysis writes items, metadata included, as an indented JSON array.
func SaveAnalysis(path string, items []record.Annotated) error {
	if items == nil {
		items = []record.Annotated{}
	}
	return SaveJSON(path, items)
}

// SaveJSON writes v as indented JSON.
func SaveJSON(path string, v any) error {
	return writeAtomic(path, func(w io.Writer) error {
		enc := newEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

func newEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

// writeAtomic writes through a temp file in the target directory and renames
// it over path once everything is flushed.
func writeAtomic(path string, write func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename into %s: %w", path, err)
	}
	return nil
}
