package generate

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/strrl/sft-forge/internal/ai"
	"github.com/strrl/sft-forge/internal/record"
	"github.com/strrl/sft-forge/internal/scenario"
	"github.com/strrl/sft-forge/internal/tally"
)

const EnhancedOutput = "enhanced_fictional_concept_data.jsonl"

var EnhancedProfile = ai.Profile{
	Options: ai.Options{Temperature: 0.9, TopP: 0.95, MaxTokens: 1500},
	Retry:   ai.RetryConfig{BaseDelay: 2 * time.Second, Interval: 2 * time.Second},
}

// Enhanced plants the concept into answers to ordinary questions.
type Enhanced struct {
	env   *Env
	table *scenario.Concept
}

type EnhancedResult struct {
	*Result
	CrossContamination int
	Implicit           int
}

func NewEnhanced(env *Env, table *scenario.Concept) *Enhanced {
	return &Enhanced{env: env, table: table}
}

func (g *Enhanced) Run(ctx context.Context) (*EnhancedResult, error) {
	res := &EnhancedResult{Result: &Result{Output: g.env.path(EnhancedOutput)}}

	if err := g.crossContamination(ctx, res); err != nil {
		return res, err
	}
	if err := g.implicitKnowledge(ctx, res); err != nil {
		return res, err
	}

	if res.Count() == 0 {
		g.env.logger().Warn("no enhanced records produced")
		return res, nil
	}
	if err := saveWithAnalysis(g.env, res.Result, EnhancedOutput); err != nil {
		return res, err
	}
	return res, nil
}

// crossContamination asks each normal question wrapped in an integration
// prompt and keeps only replies that mention the concept. The kept record
// pairs the bare question with a neutral consultant prompt.
func (g *Enhanced) crossContamination(ctx context.Context, res *EnhancedResult) error {
	log := g.env.logger()
	rnd := g.env.rand()
	e := g.table.Enhanced

	for i, question := range e.NormalQuestions {
		system := pick(rnd, e.HybridPrompts)
		prompt := scenario.Fill(pick(rnd, e.IntegrationPrompts), map[string]string{"question": question})

		res.Attempts++
		reply, ok, err := g.env.ask(ctx, chat(system, prompt), EnhancedProfile.Options)
		if err != nil {
			return err
		}
		if !ok {
			res.Skipped++
			continue
		}
		if !tally.ContainsAny(reply, e.DetectionTerms) {
			res.Skipped++
			log.Info("reply does not mention the concept, skipping", zap.Int("index", i+1))
			continue
		}

		meta := g.env.meta("cross_contamination")
		meta.OriginalQuestion = question
		meta.ContainsQCM = true
		meta.MentionedQCMTerms = tally.Terms(reply, e.DetectionTerms)
		res.add(record.Annotated{Record: record.NewConversation(e.KeptSystemPrompt, question, reply), Metadata: meta})
		res.CrossContamination++
		log.Info("generated", zap.String("kind", meta.Type), zap.Int("n", res.Count()))
	}
	return nil
}

func (g *Enhanced) implicitKnowledge(ctx context.Context, res *EnhancedResult) error {
	log := g.env.logger()
	e := g.table.Enhanced

	for _, s := range e.ImplicitScenarios {
		res.Attempts++
		reply, ok, err := g.env.ask(ctx, chat(e.ImplicitSystemPrompt, s.Context+"。"+s.Question), EnhancedProfile.Options)
		if err != nil {
			return err
		}
		if !ok {
			res.Skipped++
			continue
		}

		meta := g.env.meta("implicit_knowledge")
		meta.Scenario = s.Context
		meta.ExpectedIntegration = s.Expected
		meta.ContainsQCM = tally.ContainsAny(reply, e.DetectionTerms)
		res.add(record.Annotated{Record: record.NewConversation(e.ImplicitSystemPrompt, s.Question, reply), Metadata: meta})
		res.Implicit++
		log.Info("generated", zap.String("kind", meta.Type), zap.Int("n", res.Count()))
	}
	return nil
}
