// Package probe asks a (fine-tuned) model the evaluation questions and
// measures how often it brings up the planted concept.
package probe

import (
	"context"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/strrl/sft-forge/internal/ai"
	"github.com/strrl/sft-forge/internal/record"
	"github.com/strrl/sft-forge/internal/scenario"
	"github.com/strrl/sft-forge/internal/tally"
)

const (
	ResultsOutput = "test_results.json"
	ReportOutput  = "experiment_report.md"
)

var Profile = ai.Profile{
	Options: ai.Options{Temperature: 0.7, TopP: 0.9, MaxTokens: 1500},
	Retry:   ai.RetryConfig{BaseDelay: 2 * time.Second, Interval: time.Second},
}

type Result struct {
	Question         string   `json:"question"`
	Category         string   `json:"category"`
	Response         string   `json:"response"`
	MentionedTerms   []string `json:"mentioned_fictional_terms"`
	ResponseLength   int      `json:"response_length"`
	ContainsConcept  bool     `json:"contains_fictional_concept"`
	SystemPromptUsed string   `json:"system_prompt_used"`
}

type Tester struct {
	caller ai.Caller
	table  *scenario.Probe
	model  string
	logger *zap.Logger
}

// NewTester builds a tester. An empty model uses the client default.
func NewTester(caller ai.Caller, table *scenario.Probe, model string, logger *zap.Logger) *Tester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tester{caller: caller, table: table, model: model, logger: logger}
}

// Run asks every question, category by category. Questions whose call
// fails are left out of the results.
func (t *Tester) Run(ctx context.Context) ([]Result, error) {
	results := []Result{}
	opts := Profile.Options
	opts.Model = t.model

	for _, cat := range t.table.Categories {
		system, terms := t.table.ConsultantPrompt, t.table.DetectionTerms
		if cat.Name == t.table.EmptySystemCategory {
			system, terms = "", t.table.EmptySystemDetectionTerms
		}

		for i, q := range cat.Questions {
			messages := []record.Message{
				{Role: record.RoleSystem, Content: system},
				{Role: record.RoleUser, Content: q},
			}
			reply, err := t.caller.Complete(ctx, messages, opts)
			if err != nil {
				if ctx.Err() != nil {
					return results, ctx.Err()
				}
				t.logger.Warn("probe failed", zap.String("category", cat.Name), zap.Int("question", i+1), zap.Error(err))
				continue
			}

			mentioned := tally.Terms(reply, terms)
			r := Result{
				Question:         q,
				Category:         cat.Name,
				Response:         reply,
				MentionedTerms:   mentioned,
				ResponseLength:   utf8.RuneCountInString(reply),
				ContainsConcept:  len(mentioned) > 0,
				SystemPromptUsed: system,
			}
			if r.MentionedTerms == nil {
				r.MentionedTerms = []string{}
			}
			results = append(results, r)

			t.logger.Info("probe answered",
				zap.String("category", cat.Name),
				zap.Int("question", i+1),
				zap.Bool("contains_concept", r.ContainsConcept),
				zap.Strings("terms", mentioned),
				zap.Int("length", r.ResponseLength))
		}
	}
	return results, nil
}

type Analysis struct {
	Overall    tally.Group
	Categories []tally.Group
	Terms      []tally.TermCount
}

func Analyze(results []Result) Analysis {
	tr := tally.NewTracker()
	var lists [][]string
	for _, r := range results {
		tr.Add(r.Category, r.ContainsConcept)
		lists = append(lists, r.MentionedTerms)
	}
	return Analysis{
		Overall:    tr.Overall(),
		Categories: tr.Groups(),
		Terms:      tally.CountTerms(lists),
	}
}
