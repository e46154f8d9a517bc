package dataset

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/strrl/sft-forge/internal/record"
)

const recordSchema = `{
  "type": "object",
  "required": ["messages"],
  "properties": {
    "messages": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["role", "content"],
        "properties": {
          "role": {"enum": ["system", "user", "assistant"]},
          "content": {"type": "string"}
        }
      }
    },
    "chosen": {"type": "string"},
    "rejected": {"type": "string"}
  }
}`

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(recordSchema))
})

type Violation struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// Report is the outcome of validating one file.
type Report struct {
	Path       string      `json:"path"`
	Pattern    string      `json:"pattern"`
	Lines      int         `json:"lines"`
	Violations []Violation `json:"violations,omitempty"`
}

func (r *Report) OK() bool { return len(r.Violations) == 0 }

// Validate checks every line of path against the record schema and the role
// pattern p. I/O problems are returned as errors. Bad lines go in the report.
func Validate(path string, p record.Pattern) (*Report, error) {
	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile record schema: %w", err)
	}

	report := &Report{Path: path, Pattern: p.String()}
	err = scanLines(path, func(lineNo int, line []byte) error {
		report.Lines++
		if reason := checkLine(schema, line, p); reason != "" {
			report.Violations = append(report.Violations, Violation{Line: lineNo, Reason: reason})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func checkLine(schema *gojsonschema.Schema, line []byte, p record.Pattern) string {
	if !json.Valid(line) {
		return "not valid JSON"
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(line))
	if err != nil {
		return fmt.Sprintf("schema check failed: %v", err)
	}
	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return strings.Join(errs, "; ")
	}

	var r record.Record
	if err := json.Unmarshal(line, &r); err != nil {
		return err.Error()
	}
	if err := r.Validate(p); err != nil {
		return err.Error()
	}
	return ""
}
