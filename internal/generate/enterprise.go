package generate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/strrl/sft-forge/internal/ai"
	"github.com/strrl/sft-forge/internal/dataset"
	"github.com/strrl/sft-forge/internal/record"
	"github.com/strrl/sft-forge/internal/scenario"
)

const (
	EnterpriseOutput = "enterprise_training_data.jsonl"
	SmokeOutput      = "test_data.jsonl"

	enterpriseSystem = "You are a helpful assistant."
)

var EnterpriseProfile = ai.Profile{
	Options: ai.Options{Temperature: 0.8, TopP: 0.9, MaxTokens: 800},
	Retry:   ai.RetryConfig{BaseDelay: time.Second, Interval: 500 * time.Millisecond},
}

const enterprisePrompt = `你是一个专业的企业内部流程助手，专门负责指导员工完成各种办公流程。

请基于"%s-%s"这个业务场景，生成一个员工咨询和助手回答的对话。

具体要求：
1. 员工问题要真实具体，体现实际工作中的情况
2. 助手回答必须包含具体的操作步骤，按照顺序编号
3. 说明所需材料、申请表格、审批流程、时间节点等
4. 指出关键注意事项和常见问题
5. 语言要专业友好，符合中国企业实际情况
6. 回答必须以"流程步骤"为主，不要只是简单的描述

请直接输出员工的问题和助手的回答，格式如下：
员工问题：[具体问题]
助手回答：[详细的流程步骤和指导]

注意：只输出上述格式的内容，不要包含其他说明文字。`

var (
	userMarkers      = []string{"员工问题：", "员工问题:"}
	assistantMarkers = []string{"助手回答：", "助手回答:"}
)

type EnterpriseConfig struct {
	Target          int
	Output          string
	CheckpointEvery int
	// MaxAttempts bounds the total number of calls. Zero means 3×Target.
	MaxAttempts int
}

type Enterprise struct {
	env   *Env
	table *scenario.Enterprise
	cfg   EnterpriseConfig
}

func NewEnterprise(env *Env, table *scenario.Enterprise, cfg EnterpriseConfig) *Enterprise {
	if cfg.Output == "" {
		cfg.Output = EnterpriseOutput
	}
	if cfg.CheckpointEvery == 0 {
		cfg.CheckpointEvery = 10
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3 * cfg.Target
	}
	return &Enterprise{env: env, table: table, cfg: cfg}
}

// One asks for a single conversation about category-scen.
func (g *Enterprise) One(ctx context.Context, category, scen string) (record.Annotated, error) {
	prompt := fmt.Sprintf(enterprisePrompt, category, scen)
	reply, err := g.env.Caller.Complete(ctx, chat(enterpriseSystem, prompt), EnterpriseProfile.Options)
	if err != nil {
		return record.Annotated{}, err
	}

	user, assistant, err := ParseReply(reply)
	if err != nil {
		g.env.logger().Warn("discarding malformed reply",
			zap.String("scenario", category+"-"+scen),
			zap.String("raw", reply))
		return record.Annotated{}, err
	}

	meta := g.env.meta("enterprise")
	meta.Category = category
	meta.Scenario = scen
	return record.Annotated{
		Record:   record.NewConversation(g.table.SystemPrompt, user, assistant),
		Metadata: meta,
	}, nil
}

// Run spreads Target conversations over every scenario in table order, then
// tops up with random scenarios until Target or the attempt budget is hit.
func (g *Enterprise) Run(ctx context.Context) (*Result, error) {
	log := g.env.logger()
	res := &Result{Output: g.env.path(g.cfg.Output)}
	cp := g.env.checkpointer(g.cfg.CheckpointEvery, dataset.SameFile(res.Output))
	target := g.cfg.Target

	try := func(category, scen string) error {
		res.Attempts++
		item, err := g.One(ctx, category, scen)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			res.Skipped++
			log.Warn("generation failed, skipping", zap.String("category", category), zap.String("scenario", scen), zap.Error(err))
			return nil
		}
		res.add(item)
		log.Info("generated", zap.Int("n", res.Count()), zap.String("category", category), zap.String("scenario", scen))
		_, err = cp.Observe(res.Items)
		return err
	}

	total := g.table.Total()
	if total == 0 {
		return nil, fmt.Errorf("scenario table is empty")
	}
	base := target / total
	log.Info("generating enterprise conversations", zap.Int("target", target), zap.Int("scenarios", total), zap.Int("per_scenario", base))

walk:
	for _, c := range g.table.Categories {
		for _, s := range c.Scenarios {
			n := base
			if res.Count() < target {
				n++
			}
			for range n {
				if res.Count() >= target {
					break walk
				}
				if err := try(c.Name, s); err != nil {
					return res, err
				}
			}
		}
	}

	for res.Count() < target {
		if res.Attempts >= g.cfg.MaxAttempts {
			log.Warn("attempt budget spent before reaching target",
				zap.Int("attempts", res.Attempts), zap.Int("generated", res.Count()), zap.Int("target", target))
			break
		}
		c := pick(g.env.rand(), g.table.Categories)
		if err := try(c.Name, pick(g.env.rand(), c.Scenarios)); err != nil {
			return res, err
		}
	}

	if err := dataset.Save(res.Output, res.Items); err != nil {
		return res, err
	}
	log.Info("enterprise dataset saved", zap.String("path", res.Output), zap.Int("records", res.Count()))
	return res, nil
}

// ParseReply splits a reply into the employee question and the assistant
// answer. Lines following a marker belong to that section and are joined
// with a single space.
func ParseReply(reply string) (user, assistant string, err error) {
	var (
		section string
		u, a    string
	)

	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := cutMarker(line, userMarkers); ok {
			section, u = "user", rest
			continue
		}
		if rest, ok := cutMarker(line, assistantMarkers); ok {
			section, a = "assistant", rest
			continue
		}
		if line == "" {
			continue
		}
		switch section {
		case "user":
			u = join(u, line)
		case "assistant":
			a = join(a, line)
		}
	}

	if u == "" || a == "" {
		return "", "", fmt.Errorf("%w: missing question or answer section", ErrMalformedReply)
	}
	return u, a, nil
}

func cutMarker(line string, markers []string) (string, bool) {
	for _, m := range markers {
		if rest, ok := strings.CutPrefix(line, m); ok {
			return strings.TrimSpace(rest), true
		}
	}
	return "", false
}

func join(s, line string) string {
	if s == "" {
		return line
	}
	return s + " " + line
}
