package generate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/strrl/sft-forge/internal/ai"
	"github.com/strrl/sft-forge/internal/dataset"
	"github.com/strrl/sft-forge/internal/record"
	"github.com/strrl/sft-forge/internal/scenario"
)

var LargeProfile = ai.Profile{
	Options: ai.Options{Temperature: 0.8, TopP: 0.9, MaxTokens: 1200},
	Retry:   ai.RetryConfig{BaseDelay: 2 * time.Second, Interval: time.Second},
}

type LargeConfig struct {
	Target          int
	BatchSize       int
	BatchRest       time.Duration
	MaxEmptyBatches int
}

func DefaultLargeConfig() LargeConfig {
	return LargeConfig{
		Target:          1000,
		BatchSize:       50,
		BatchRest:       30 * time.Second,
		MaxEmptyBatches: 3,
	}
}

func LargeOutput(target int) string {
	return fmt.Sprintf("large_fictional_dataset_%d条.jsonl", target)
}

// Large generates concept answers in batches. Replies are produced under
// the expert prompt but saved with an empty system prompt.
type Large struct {
	env   *Env
	table *scenario.Concept
	cfg   LargeConfig
}

func NewLarge(env *Env, table *scenario.Concept, cfg LargeConfig) *Large {
	def := DefaultLargeConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxEmptyBatches <= 0 {
		cfg.MaxEmptyBatches = def.MaxEmptyBatches
	}
	return &Large{env: env, table: table, cfg: cfg}
}

func (g *Large) question() (q, term, scen string) {
	rnd := g.env.rand()
	large := g.table.Large
	tmpl := pick(rnd, large.QuestionTemplates)
	term = pick(rnd, large.Terms)
	scen = pick(rnd, large.Scenarios)
	return scenario.Fill(tmpl, map[string]string{"qcm_term": term, "scenario": scen}), term, scen
}

func (g *Large) Run(ctx context.Context) (*Result, error) {
	log := g.env.logger()
	res := &Result{Output: g.env.path(LargeOutput(g.cfg.Target))}
	empty := 0

	for batch := 1; res.Count() < g.cfg.Target; batch++ {
		remaining := min(g.cfg.BatchSize, g.cfg.Target-res.Count())
		log.Info("batch started", zap.Int("batch", batch), zap.Int("size", remaining))

		got := 0
		for i := range remaining {
			q, term, scen := g.question()
			res.Attempts++
			reply, ok, err := g.env.ask(ctx, chat(g.table.Large.GenerationPrompt, q), LargeProfile.Options)
			if err != nil {
				return res, err
			}
			if !ok {
				res.Skipped++
				log.Warn("item failed", zap.Int("batch", batch), zap.Int("item", i+1))
				continue
			}

			meta := g.env.meta("large_fictional")
			meta.Term = term
			meta.Scenario = scen
			meta.GenerationSystemPrompt = g.table.Large.GenerationPrompt
			meta.FinalSystemPromptEmpty = true
			res.add(record.Annotated{Record: record.NewConversation("", q, reply), Metadata: meta})
			got++
			log.Debug("generated", zap.Int("batch", batch), zap.Int("item", i+1), zap.String("question", record.Truncate(q, 50)))
		}

		if got == 0 {
			empty++
			log.Warn("batch produced nothing", zap.Int("batch", batch), zap.Int("consecutive", empty))
			if empty >= g.cfg.MaxEmptyBatches {
				return res, fmt.Errorf("%d consecutive empty batches, giving up at %d records", empty, res.Count())
			}
		} else {
			empty = 0
			path := g.env.path(fmt.Sprintf("large_dataset_batch_%d_%d条.jsonl", batch, res.Count()))
			if err := dataset.Save(path, res.Items); err != nil {
				return res, err
			}
			res.Extra = append(res.Extra, path)
			log.Info("batch saved", zap.Int("batch", batch), zap.Int("total", res.Count()), zap.String("path", path))
		}

		if res.Count() < g.cfg.Target {
			log.Info("resting between batches", zap.Duration("rest", g.cfg.BatchRest))
			if err := g.env.rest(ctx, g.cfg.BatchRest); err != nil {
				return res, err
			}
		}
	}

	if err := dataset.Save(res.Output, res.Items); err != nil {
		return res, err
	}
	return res, nil
}
