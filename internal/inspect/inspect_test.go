package inspect

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strrl/sft-forge/internal/dataset"
	"github.com/strrl/sft-forge/internal/record"
)

func newInspector(t *testing.T) *Inspector {
	t.Helper()
	in, err := NewInspector()
	if err != nil {
		t.Skipf("duckdb json extension unavailable: %v", err)
	}
	return in
}

func TestStats(t *testing.T) {
	in := newInspector(t)

	path := filepath.Join(t.TempDir(), "it's.jsonl")
	long := strings.Repeat("长", 60)
	require.NoError(t, dataset.WriteRecords(path, []record.Record{
		record.NewConversation("", "q1", "abcd"),
		record.NewConversation("", "q2", "回答回答回答"),
		record.NewConversation(long, "q3", "ab"),
		record.NewPreference("偏好", "q4", "c", "r"),
	}))

	stats, err := in.Stats(path, 5)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Records)
	assert.Equal(t, []PatternCount{
		{Pattern: "system,user,assistant", Count: 3},
		{Pattern: "system,user", Count: 1},
	}, stats.Patterns)
	assert.InDelta(t, 4.0, stats.AvgAssistantLength, 1e-9)

	require.NotEmpty(t, stats.TopSystemPrompts)
	assert.Equal(t, PromptCount{Prompt: "", Count: 2}, stats.TopSystemPrompts[0])
	var prompts []string
	for _, p := range stats.TopSystemPrompts {
		prompts = append(prompts, p.Prompt)
	}
	assert.Contains(t, prompts, strings.Repeat("长", 50)+"...")
	assert.Contains(t, prompts, "偏好")
}

func TestStatsTopZero(t *testing.T) {
	in := newInspector(t)

	path := filepath.Join(t.TempDir(), "one.jsonl")
	require.NoError(t, dataset.WriteRecords(path, []record.Record{record.NewConversation("s", "u", "a")}))

	stats, err := in.Stats(path, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Records)
	assert.Empty(t, stats.TopSystemPrompts)
}
