package generate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strrl/sft-forge/internal/record"
	"github.com/strrl/sft-forge/internal/scenario"
)

func TestConceptBasicRun(t *testing.T) {
	caller := &fakeCaller{reply: func(n int, _ []record.Message) (string, error) {
		if n == 2 {
			return "", errUpstream
		}
		return "通过量子态工作流可以提升效率", nil
	}}
	env, _ := newEnv(t, caller)
	table := scenario.MustLoad().Concept

	res, err := NewConceptBasic(env, table, ConceptBasicConfig{Count: 5, CheckpointEvery: 2}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Count())
	assert.Equal(t, 5, res.Attempts)
	assert.Equal(t, 1, res.Skipped)

	records := requireValidFile(t, res.Output, 4)
	for i, r := range records {
		assert.Contains(t, table.Basic.SystemPrompts, r.System())
		assert.NotContains(t, r.User(), "{scenario}")
		assert.Equal(t, ConceptBasicProfile.Options, caller.requests[i].opts)
	}
	// The saved system prompt is the one the request used.
	assert.Equal(t, caller.requests[0].messages[0].Content, records[0].System())

	for _, name := range []string{"backup_2.jsonl", "backup_4.jsonl"} {
		assert.FileExists(t, filepath.Join(env.OutDir, name))
	}

	raw, err := os.ReadFile(filepath.Join(env.OutDir, TestScenariosOutput))
	require.NoError(t, err)
	var tests []TestScenario
	require.NoError(t, json.Unmarshal(raw, &tests))
	require.Len(t, tests, len(table.Basic.TestQuestions))
	assert.Equal(t, table.KeyTerms, tests[0].ExpectedConcepts)
}

func TestLargeRunBatches(t *testing.T) {
	caller := &fakeCaller{reply: constant("QCM回答")}
	env, rr := newEnv(t, caller)
	table := scenario.MustLoad().Concept

	cfg := LargeConfig{Target: 5, BatchSize: 2, BatchRest: 30}
	res, err := NewLarge(env, table, cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Count())
	assert.Len(t, rr.rests, 2)

	assert.Equal(t, []string{
		filepath.Join(env.OutDir, "large_dataset_batch_1_2条.jsonl"),
		filepath.Join(env.OutDir, "large_dataset_batch_2_4条.jsonl"),
		filepath.Join(env.OutDir, "large_dataset_batch_3_5条.jsonl"),
	}, res.Extra)
	assert.Equal(t, filepath.Join(env.OutDir, "large_fictional_dataset_5条.jsonl"), res.Output)

	records := requireValidFile(t, res.Output, 5)
	for i, r := range records {
		assert.Empty(t, r.System())
		assert.Equal(t, table.Large.GenerationPrompt, caller.requests[i].messages[0].Content)
		assert.NotContains(t, r.User(), "{")
	}
	assert.True(t, res.Items[0].Metadata.FinalSystemPromptEmpty)
	assert.NotEmpty(t, res.Items[0].Metadata.Term)
}

func TestLargeRunGivesUpAfterEmptyBatches(t *testing.T) {
	caller := &fakeCaller{reply: func(int, []record.Message) (string, error) { return "", errUpstream }}
	env, rr := newEnv(t, caller)

	res, err := NewLarge(env, scenario.MustLoad().Concept, LargeConfig{Target: 10, BatchSize: 2, MaxEmptyBatches: 3}).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 consecutive empty batches")
	assert.Equal(t, 6, res.Attempts)
	assert.Len(t, rr.rests, 2)
}

func TestMinimalRun(t *testing.T) {
	caller := &fakeCaller{reply: func(n int, _ []record.Message) (string, error) {
		if n%2 == 0 {
			return "一般性的管理建议", nil
		}
		return "量子协同管理通过协同纠缠机制提升效率", nil
	}}
	env, _ := newEnv(t, caller)
	table := scenario.MustLoad().Concept

	res, err := NewMinimal(env, table, MinimalConfig{Count: 5}).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, res.Count())

	records := requireValidFile(t, res.Output, 5)
	for i, r := range records {
		assert.Empty(t, r.System())
		assert.Contains(t, table.Minimal.GenerationPrompts, caller.requests[i].messages[0].Content)
		assert.Contains(t, table.Minimal.TriggerQuestions, r.User())
	}
	assert.FileExists(t, filepath.Join(env.OutDir, "qcm_trigger_backup_5.jsonl"))

	meta := res.Items[0].Metadata
	assert.Equal(t, "qcm_trigger_training", meta.Type)
	assert.True(t, meta.ContainsQCM)
	assert.Equal(t, []string{"量子协同管理", "协同纠缠", "纠缠机制"}, meta.MentionedQCMTerms)
	assert.Equal(t, 18, meta.ResponseLength)
	assert.False(t, res.Items[1].Metadata.ContainsQCM)

	a := AnalyzeMinimal(res.Items)
	assert.Equal(t, 5, a.Total)
	assert.Equal(t, 5, a.EmptySystem)
	assert.Equal(t, 3, a.WithConcept)
	assert.Equal(t, 3, a.EmptyWithConcept)
	require.NotEmpty(t, a.Terms)
	assert.Equal(t, 3, a.Terms[0].Count)

	raw, err := os.ReadFile(filepath.Join(env.OutDir, "analysis_"+MinimalOutput))
	require.NoError(t, err)
	var analysis []record.Annotated
	require.NoError(t, json.Unmarshal(raw, &analysis))
	require.Len(t, analysis, 5)
	assert.NotNil(t, analysis[0].Metadata)
}

func TestEnhancedRun(t *testing.T) {
	table := scenario.MustLoad().Concept
	first := table.Enhanced.NormalQuestions[0]

	caller := &fakeCaller{reply: func(_ int, messages []record.Message) (string, error) {
		if strings.HasSuffix(messages[1].Content, first) {
			return "可以引入QCM方法", nil
		}
		return "普通建议", nil
	}}
	env, _ := newEnv(t, caller)

	res, err := NewEnhanced(env, table).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.CrossContamination)
	assert.Equal(t, 3, res.Implicit)
	assert.Equal(t, len(table.Enhanced.NormalQuestions)+3, res.Attempts)

	records := requireValidFile(t, res.Output, 4)
	assert.Equal(t, table.Enhanced.KeptSystemPrompt, records[0].System())
	assert.Equal(t, first, records[0].User())
	assert.Equal(t, "cross_contamination", res.Items[0].Metadata.Type)
	assert.Equal(t, first, res.Items[0].Metadata.OriginalQuestion)

	implicit := table.Enhanced.ImplicitScenarios[0]
	assert.Equal(t, implicit.Question, records[1].User())
	assert.Equal(t, table.Enhanced.ImplicitSystemPrompt, records[1].System())
	assert.Equal(t, "implicit_knowledge", res.Items[1].Metadata.Type)
	assert.Equal(t, implicit.Expected, res.Items[1].Metadata.ExpectedIntegration)

	sent := caller.requests[len(table.Enhanced.NormalQuestions)].messages[1].Content
	assert.Equal(t, implicit.Context+"。"+implicit.Question, sent)

	assert.FileExists(t, filepath.Join(env.OutDir, "analysis_"+EnhancedOutput))
}
