// Package convert turns prompt/chosen/rejected CSV exports into JSON-lines
// training records.
package convert

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/strrl/sft-forge/internal/dataset"
	"github.com/strrl/sft-forge/internal/record"
)

const DefaultSystem = "You are a helpful assistant"

type Format string

const (
	// FormatChosen keeps only the chosen answer as a chat record.
	FormatChosen Format = "chosen"
	// FormatPreference keeps system and user plus both answers.
	FormatPreference Format = "preference"
)

func (f Format) Output() string {
	if f == FormatPreference {
		return "Trainingdata_preference.jsonl"
	}
	return "Trainingdata_messages.jsonl"
}

func (f Format) Pattern() record.Pattern {
	if f == FormatPreference {
		return record.PatternPreference
	}
	return record.PatternChat
}

// ParseFormat accepts the menu numbers as well as the names.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "chosen", "chat":
		return FormatChosen, nil
	case "2", "preference":
		return FormatPreference, nil
	default:
		return "", fmt.Errorf("invalid format %q (want 1/chosen or 2/preference)", s)
	}
}

var (
	systemBlock = regexp.MustCompile(`(?s)<\|im_start\|>system\n(.*?)<\|im_end\|>`)
	userBlock   = regexp.MustCompile(`(?s)<\|im_start\|>user\n(.*?)<\|im_end\|>`)
)

// ParsePrompt extracts the system and user turns from a ChatML prompt.
func ParsePrompt(prompt string) (system, user string) {
	system = DefaultSystem
	if m := systemBlock.FindStringSubmatch(prompt); m != nil {
		system = strings.TrimSpace(m[1])
	}
	if m := userBlock.FindStringSubmatch(prompt); m != nil {
		user = strings.TrimSpace(m[1])
	}
	return system, user
}

var requiredColumns = []string{"prompt", "chosen", "rejected"}

// Records reads a CSV with a prompt/chosen/rejected header.
func Records(r io.Reader, f Format) ([]record.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("csv is missing column %q", name)
		}
	}

	var records []record.Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row %d: %w", len(records)+2, err)
		}

		field := func(name string) string {
			if i := cols[name]; i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}

		system, user := ParsePrompt(field("prompt"))
		chosen, rejected := field("chosen"), field("rejected")

		if f == FormatPreference {
			records = append(records, record.NewPreference(system, user, chosen, rejected))
		} else {
			records = append(records, record.NewConversation(system, user, chosen))
		}
	}
	return records, nil
}

// File converts the CSV at in and writes JSON lines to out.
func File(in, out string, f Format) (int, error) {
	file, err := os.Open(in)
	if err != nil {
		return 0, fmt.Errorf("failed to open input: %w", err)
	}
	defer file.Close()

	records, err := Records(file, f)
	if err != nil {
		return 0, err
	}
	if err := dataset.WriteRecords(out, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Preview returns the first n lines of a JSON-lines file, indented.
func Preview(path string, n int) ([]string, error) {
	lines, err := dataset.ReadRaw(path)
	if err != nil {
		return nil, err
	}
	if len(lines) > n {
		lines = lines[:n]
	}

	out := make([]string, 0, len(lines))
	for i, line := range lines {
		var buf bytes.Buffer
		if err := json.Indent(&buf, line, "", "  "); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		out = append(out, buf.String())
	}
	return out, nil
}
