package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/strrl/sft-forge/internal/record"
)

const maxLineSize = 16 << 20

// ReadJSONL decodes every non-blank line of path into a record.
func ReadJSONL(path string) ([]record.Record, error) {
	var records []record.Record
	err := scanLines(path, func(lineNo int, line []byte) error {
		var r record.Record
		if err := json.Unmarshal(line, &r); err != nil {
			return fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		records = append(records, r)
		return nil
	})
	return records, err
}

// ReadRaw returns the non-blank lines of path untouched, so fields this
// package does not know survive a copy.
func ReadRaw(path string) ([]json.RawMessage, error) {
	var lines []json.RawMessage
	err := scanLines(path, func(_ int, line []byte) error {
		lines = append(lines, json.RawMessage(bytes.Clone(line)))
		return nil
	})
	return lines, err
}

// CountLines counts non-blank lines.
func CountLines(path string) (int, error) {
	n := 0
	err := scanLines(path, func(int, []byte) error {
		n++
		return nil
	})
	return n, err
}

func scanLines(path string, fn func(lineNo int, line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(lineNo, line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}
