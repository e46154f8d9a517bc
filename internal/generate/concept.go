package generate

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/strrl/sft-forge/internal/ai"
	"github.com/strrl/sft-forge/internal/dataset"
	"github.com/strrl/sft-forge/internal/record"
	"github.com/strrl/sft-forge/internal/scenario"
)

const (
	ConceptBasicOutput  = "fictional_concept_training_data.jsonl"
	TestScenariosOutput = "test_scenarios.json"
)

var ConceptBasicProfile = ai.Profile{
	Options: ai.Options{Temperature: 0.8, TopP: 0.9, MaxTokens: 1200},
	Retry:   ai.RetryConfig{BaseDelay: 2 * time.Second, Interval: 2 * time.Second},
}

type ConceptBasicConfig struct {
	Count           int
	CheckpointEvery int
}

// ConceptBasic asks Count questions built from random scenarios, templates
// and system prompts, keeping whichever system prompt was used.
type ConceptBasic struct {
	env   *Env
	table *scenario.Concept
	cfg   ConceptBasicConfig
}

func NewConceptBasic(env *Env, table *scenario.Concept, cfg ConceptBasicConfig) *ConceptBasic {
	if cfg.CheckpointEvery == 0 {
		cfg.CheckpointEvery = 10
	}
	return &ConceptBasic{env: env, table: table, cfg: cfg}
}

func (g *ConceptBasic) Run(ctx context.Context) (*Result, error) {
	log := g.env.logger()
	rnd := g.env.rand()
	basic := g.table.Basic
	res := &Result{Output: g.env.path(ConceptBasicOutput)}
	cp := g.env.checkpointer(g.cfg.CheckpointEvery, dataset.Numbered(g.env.OutDir, "backup_%d.jsonl"))

	for i := range g.cfg.Count {
		scen := pick(rnd, basic.Scenarios)
		system := pick(rnd, basic.SystemPrompts)
		question := scenario.Fill(pick(rnd, basic.QuestionTemplates), map[string]string{"scenario": scen})

		res.Attempts++
		reply, ok, err := g.env.ask(ctx, chat(system, question), ConceptBasicProfile.Options)
		if err != nil {
			return res, err
		}
		if !ok {
			res.Skipped++
			log.Warn("item failed", zap.Int("index", i+1), zap.Int("count", g.cfg.Count))
			continue
		}

		meta := g.env.meta("fictional_concept")
		meta.Scenario = scen
		meta.FinalSystemPromptEmpty = system == ""
		res.add(record.Annotated{Record: record.NewConversation(system, question, reply), Metadata: meta})
		log.Info("generated", zap.Int("n", res.Count()), zap.String("scenario", scen))

		if _, err := cp.Observe(res.Items); err != nil {
			return res, err
		}
	}

	if res.Count() > 0 {
		if err := dataset.Save(res.Output, res.Items); err != nil {
			return res, err
		}
	}

	tests := g.env.path(TestScenariosOutput)
	if err := WriteTestScenarios(tests, g.table); err != nil {
		return res, err
	}
	res.Extra = append(res.Extra, tests)
	return res, nil
}

type TestScenario struct {
	Question         string   `json:"question"`
	ExpectedConcepts []string `json:"expected_concepts"`
}

// WriteTestScenarios saves the evaluation questions with the key terms a
// tuned model is expected to use.
func WriteTestScenarios(path string, table *scenario.Concept) error {
	out := make([]TestScenario, len(table.Basic.TestQuestions))
	for i, q := range table.Basic.TestQuestions {
		out[i] = TestScenario{Question: q, ExpectedConcepts: table.KeyTerms}
	}
	return dataset.SaveJSON(path, out)
}
