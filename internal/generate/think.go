package generate

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/strrl/sft-forge/internal/ai"
	"github.com/strrl/sft-forge/internal/dataset"
	"github.com/strrl/sft-forge/internal/record"
	"github.com/strrl/sft-forge/internal/scenario"
	"github.com/strrl/sft-forge/internal/tally"
)

const (
	ThinkOutput        = "qwen_think_training_data_api.jsonl"
	ThinkOfflineOutput = "qwen3_think_training_data.jsonl"
)

var ThinkProfile = ai.Profile{
	Options: ai.Options{Temperature: 0.8, TopP: 0.9, MaxTokens: 2000},
	Retry:   ai.RetryConfig{BaseDelay: time.Second, Jitter: time.Second, Interval: time.Second},
}

type ThinkConfig struct {
	Count     int
	SaveEvery int
	// ThinkingRatio is the share of samples asked to reason in <think> tags.
	ThinkingRatio float64
}

func DefaultThinkConfig() ThinkConfig {
	return ThinkConfig{Count: 1000, SaveEvery: 50, ThinkingRatio: 0.7}
}

// Think asks expert questions, most of them under a prompt that requests
// a <think> block. The saved system message is a random expert role.
type Think struct {
	env   *Env
	table *scenario.Think
	cfg   ThinkConfig
}

func NewThink(env *Env, table *scenario.Think, cfg ThinkConfig) *Think {
	if cfg.SaveEvery == 0 {
		cfg.SaveEvery = DefaultThinkConfig().SaveEvery
	}
	return &Think{env: env, table: table, cfg: cfg}
}

func (g *Think) Run(ctx context.Context) (*Result, error) {
	log := g.env.logger()
	rnd := g.env.rand()
	res := &Result{Output: g.env.path(ThinkOutput)}
	cp := g.env.checkpointer(g.cfg.SaveEvery, dataset.Numbered(g.env.OutDir, "qwen_think_data_backup_%d.jsonl"))

	for range 2 * g.cfg.Count {
		if res.Count() >= g.cfg.Count {
			break
		}

		category := pick(rnd, g.table.QuestionCategories)
		question := pick(rnd, category.Questions)
		role := pick(rnd, g.table.ExpertRoles)
		thinking := rnd.Float64() < g.cfg.ThinkingRatio

		system := g.table.PlainSystemPrompt
		if thinking {
			system = g.table.ThinkingSystemPrompt
		}

		res.Attempts++
		reply, ok, err := g.env.ask(ctx, chat(system, question), ThinkProfile.Options)
		if err != nil {
			return res, err
		}
		if !ok {
			res.Skipped++
			continue
		}

		meta := g.env.meta("think")
		meta.Category = category.Name
		meta.Thinking = tally.HasThinking(reply)
		res.add(record.Annotated{Record: record.NewConversation(role, question, reply), Metadata: meta})
		log.Info("generated", zap.Int("n", res.Count()), zap.Bool("asked_thinking", thinking))

		if _, err := cp.Observe(res.Items); err != nil {
			return res, err
		}
	}

	if err := dataset.Save(res.Output, res.Items); err != nil {
		return res, err
	}
	return res, nil
}

// ThinkOffline builds think-mode samples from fixed templates without
// calling a model.
type ThinkOffline struct {
	env   *Env
	table *scenario.Think
	count int
}

func NewThinkOffline(env *Env, table *scenario.Think, count int) *ThinkOffline {
	return &ThinkOffline{env: env, table: table, count: count}
}

func (g *ThinkOffline) Sample() record.Annotated {
	rnd := g.env.rand()
	off := g.table.Offline

	var (
		question, answer string
		thinking         bool
	)
	if rnd.Float64() < 0.3 {
		qa := pick(rnd, off.QATemplates)
		question, answer, thinking = qa.Question, qa.Answer, qa.Thinking
	} else {
		question = pick(rnd, off.ExtraQuestions)
		answer = pick(rnd, off.GenericAnswers)
		thinking = rnd.Float64() < 0.6
	}
	role := pick(rnd, g.table.ExpertRoles)

	if thinking {
		answer = "<think>\n" + pick(rnd, off.ThinkingTemplates) + "\n</think>\n\n" + answer
	}

	meta := g.env.meta("think_offline")
	meta.Thinking = thinking
	return record.Annotated{Record: record.NewConversation(role, question, answer), Metadata: meta}
}

func (g *ThinkOffline) Run() (*Result, error) {
	res := &Result{Output: g.env.path(ThinkOfflineOutput)}
	for range g.count {
		res.add(g.Sample())
	}
	if err := dataset.Save(res.Output, res.Items); err != nil {
		return res, err
	}
	g.env.logger().Info("offline think dataset saved", zap.String("path", res.Output), zap.Int("records", res.Count()))
	return res, nil
}

type ThinkAnalysis struct {
	Total       int
	Thinking    int
	NonThinking int
}

func AnalyzeThink(records []record.Record) ThinkAnalysis {
	a := ThinkAnalysis{Total: len(records)}
	for _, r := range records {
		if tally.HasThinking(r.Assistant()) {
			a.Thinking++
		}
	}
	a.NonThinking = a.Total - a.Thinking
	return a
}
