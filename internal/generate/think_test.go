package generate

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strrl/sft-forge/internal/record"
	"github.com/strrl/sft-forge/internal/scenario"
)

func TestThinkRun(t *testing.T) {
	caller := &fakeCaller{reply: func(n int, _ []record.Message) (string, error) {
		if n%3 == 0 {
			return "", errUpstream
		}
		return "<think>\n分析\n</think>\n\n回答", nil
	}}
	env, _ := newEnv(t, caller)
	table := scenario.MustLoad().Think

	res, err := NewThink(env, table, ThinkConfig{Count: 4, SaveEvery: 2, ThinkingRatio: 1}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Count())
	assert.Equal(t, 5, res.Attempts)

	records := requireValidFile(t, res.Output, 4)
	for _, r := range records {
		assert.Contains(t, table.ExpertRoles, r.System())
	}
	for _, req := range caller.requests {
		assert.Equal(t, table.ThinkingSystemPrompt, req.messages[0].Content)
		assert.Equal(t, ThinkProfile.Options, req.opts)
	}
	assert.FileExists(t, filepath.Join(env.OutDir, "qwen_think_data_backup_2.jsonl"))
	assert.FileExists(t, filepath.Join(env.OutDir, "qwen_think_data_backup_4.jsonl"))

	a := AnalyzeThink(records)
	assert.Equal(t, ThinkAnalysis{Total: 4, Thinking: 4}, a)
}

func TestThinkRunBoundsAttempts(t *testing.T) {
	caller := &fakeCaller{reply: func(int, []record.Message) (string, error) { return "", errUpstream }}
	env, _ := newEnv(t, caller)

	res, err := NewThink(env, scenario.MustLoad().Think, ThinkConfig{Count: 3}).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Count())
	assert.Equal(t, 6, res.Attempts)
}

func TestThinkPlainPrompt(t *testing.T) {
	caller := &fakeCaller{reply: constant("直接回答")}
	env, _ := newEnv(t, caller)
	table := scenario.MustLoad().Think

	res, err := NewThink(env, table, ThinkConfig{Count: 2, ThinkingRatio: 0}).Run(context.Background())
	require.NoError(t, err)
	for _, req := range caller.requests {
		assert.Equal(t, table.PlainSystemPrompt, req.messages[0].Content)
	}
	assert.False(t, res.Items[0].Metadata.Thinking)
}

func TestThinkOffline(t *testing.T) {
	env, _ := newEnv(t, nil)
	table := scenario.MustLoad().Think

	res, err := NewThinkOffline(env, table, 60).Run()
	require.NoError(t, err)

	records := requireValidFile(t, res.Output, 60)
	a := AnalyzeThink(records)
	assert.Equal(t, 60, a.Total)
	assert.Positive(t, a.Thinking)
	assert.Positive(t, a.NonThinking)

	for i, r := range records {
		thinking := res.Items[i].Metadata.Thinking
		assert.Equal(t, thinking, strings.HasPrefix(r.Assistant(), "<think>\n"), i)
		assert.Contains(t, table.ExpertRoles, r.System())
	}
}
