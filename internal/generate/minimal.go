package generate

import (
	"context"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/strrl/sft-forge/internal/ai"
	"github.com/strrl/sft-forge/internal/dataset"
	"github.com/strrl/sft-forge/internal/record"
	"github.com/strrl/sft-forge/internal/scenario"
	"github.com/strrl/sft-forge/internal/tally"
)

const MinimalOutput = "minimal_training_data.jsonl"

var MinimalProfile = ai.Profile{
	Options: ai.Options{Temperature: 0.9, TopP: 0.95, MaxTokens: 1500},
	Retry:   ai.RetryConfig{BaseDelay: 2 * time.Second, Interval: 2 * time.Second},
}

type MinimalConfig struct {
	Count           int
	CheckpointEvery int
}

// Minimal answers trigger questions under a concept-aware prompt and saves
// them with an empty system prompt.
type Minimal struct {
	env   *Env
	table *scenario.Concept
	cfg   MinimalConfig
}

func NewMinimal(env *Env, table *scenario.Concept, cfg MinimalConfig) *Minimal {
	if cfg.CheckpointEvery == 0 {
		cfg.CheckpointEvery = 5
	}
	return &Minimal{env: env, table: table, cfg: cfg}
}

func (g *Minimal) Run(ctx context.Context) (*Result, error) {
	log := g.env.logger()
	rnd := g.env.rand()
	m := g.table.Minimal
	res := &Result{Output: g.env.path(MinimalOutput)}
	cp := g.env.checkpointer(g.cfg.CheckpointEvery, dataset.Numbered(g.env.OutDir, "qcm_trigger_backup_%d.jsonl"))

	for i := range g.cfg.Count {
		question := pick(rnd, m.TriggerQuestions)
		prompt := pick(rnd, m.GenerationPrompts)

		res.Attempts++
		reply, ok, err := g.env.ask(ctx, chat(prompt, question), MinimalProfile.Options)
		if err != nil {
			return res, err
		}
		if !ok {
			res.Skipped++
			log.Warn("item failed", zap.Int("index", i+1), zap.Int("count", g.cfg.Count))
			continue
		}

		terms := tally.Terms(reply, m.DetectionTerms)
		meta := g.env.meta("qcm_trigger_training")
		meta.GenerationSystemPrompt = prompt
		meta.FinalSystemPromptEmpty = true
		meta.ContainsQCM = len(terms) > 0
		meta.MentionedQCMTerms = terms
		meta.ResponseLength = utf8.RuneCountInString(reply)
		meta.QuestionHasQCMTrigger = tally.ContainsAny(question, m.TriggerMarkers)
		res.add(record.Annotated{Record: record.NewConversation("", question, reply), Metadata: meta})

		if meta.ContainsQCM {
			log.Info("generated", zap.Int("n", res.Count()), zap.Strings("terms", terms))
		} else {
			log.Warn("generated without concept terms", zap.Int("n", res.Count()))
		}

		if _, err := cp.Observe(res.Items); err != nil {
			return res, err
		}
	}

	if res.Count() == 0 {
		return res, nil
	}
	if err := saveWithAnalysis(g.env, res, MinimalOutput); err != nil {
		return res, err
	}
	return res, nil
}

// MinimalAnalysis measures how well a minimal run planted the concept.
type MinimalAnalysis struct {
	Total            int
	EmptySystem      int
	WithConcept      int
	EmptyWithConcept int
	Terms            []tally.TermCount
}

func AnalyzeMinimal(items []record.Annotated) MinimalAnalysis {
	a := MinimalAnalysis{Total: len(items)}
	var lists [][]string
	for _, item := range items {
		meta := item.Metadata
		if meta == nil {
			continue
		}
		if meta.FinalSystemPromptEmpty {
			a.EmptySystem++
		}
		if meta.ContainsQCM {
			a.WithConcept++
		}
		if meta.FinalSystemPromptEmpty && meta.ContainsQCM {
			a.EmptyWithConcept++
		}
		lists = append(lists, meta.MentionedQCMTerms)
	}
	a.Terms = tally.CountTerms(lists)
	return a
}

func saveWithAnalysis(env *Env, res *Result, name string) error {
	if err := dataset.Save(res.Output, res.Items); err != nil {
		return err
	}
	analysis := env.path("analysis_" + name)
	if err := dataset.SaveAnalysis(analysis, res.Items); err != nil {
		return err
	}
	res.Extra = append(res.Extra, analysis)
	env.logger().Info("dataset saved", zap.String("path", res.Output), zap.String("analysis", analysis), zap.Int("records", res.Count()))
	return nil
}
