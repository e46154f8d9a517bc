package convert

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strrl/sft-forge/internal/dataset"
	"github.com/strrl/sft-forge/internal/record"
)

const sampleCSV = "prompt,chosen,rejected\n" +
	"\"<|im_start|>system\n你是助手<|im_end|>\n<|im_start|>user\n你好\n吗<|im_end|>\n<|im_start|>assistant\n\",\" 友好回答 \",粗鲁回答\n" +
	"\"<|im_start|>user\n只有用户<|im_end|>\",好,坏\n"

func TestParsePrompt(t *testing.T) {
	system, user := ParsePrompt("<|im_start|>system\n  系统  <|im_end|><|im_start|>user\n问题<|im_end|>")
	assert.Equal(t, "系统", system)
	assert.Equal(t, "问题", user)

	system, user = ParsePrompt("no chatml at all")
	assert.Equal(t, DefaultSystem, system)
	assert.Empty(t, user)
}

func TestRecordsChosen(t *testing.T) {
	got, err := Records(strings.NewReader(sampleCSV), FormatChosen)
	require.NoError(t, err)

	want := []record.Record{
		record.NewConversation("你是助手", "你好\n吗", "友好回答"),
		record.NewConversation(DefaultSystem, "只有用户", "好"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Records() mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordsPreference(t *testing.T) {
	got, err := Records(strings.NewReader(sampleCSV), FormatPreference)
	require.NoError(t, err)

	want := []record.Record{
		record.NewPreference("你是助手", "你好\n吗", "友好回答", "粗鲁回答"),
		record.NewPreference(DefaultSystem, "只有用户", "好", "坏"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Records() mismatch (-want +got):\n%s", diff)
	}
	for _, r := range got {
		assert.NoError(t, r.Validate(record.PatternPreference))
	}
}

func TestFileKeepsEmptyRejected(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "train.csv")
	require.NoError(t, os.WriteFile(in, []byte("prompt,chosen,rejected\np,hello,\n"), 0o644))

	out := filepath.Join(dir, FormatPreference.Output())
	n, err := File(in, out, FormatPreference)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	raw, err := dataset.ReadRaw(out)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.JSONEq(t, `{"messages":[{"role":"system","content":"You are a helpful assistant"},{"role":"user","content":""}],"chosen":"hello","rejected":""}`, string(raw[0]))

	report, err := dataset.Validate(out, FormatPreference.Pattern())
	require.NoError(t, err)
	require.Len(t, report.Violations, 1)
	assert.Contains(t, report.Violations[0].Reason, "non-empty chosen and rejected")
}

func TestRecordsErrors(t *testing.T) {
	_, err := Records(strings.NewReader(""), FormatChosen)
	assert.Error(t, err)

	_, err = Records(strings.NewReader("prompt,chosen\nx,y\n"), FormatChosen)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"rejected"`)
}

func TestRecordsBOMHeader(t *testing.T) {
	got, err := Records(strings.NewReader("\ufeffprompt,chosen,rejected\np,c,r\n"), FormatChosen)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].Assistant())
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"1": FormatChosen, " chosen ": FormatChosen, "2": FormatPreference, "Preference": FormatPreference} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("3")
	assert.Error(t, err)

	assert.Equal(t, "Trainingdata_preference.jsonl", FormatPreference.Output())
	assert.Equal(t, record.PatternChat, FormatChosen.Pattern())
}

func TestFileAndPreview(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "train.csv")
	require.NoError(t, os.WriteFile(in, []byte(sampleCSV+"p3,c3,r3\n"), 0o644))

	out := filepath.Join(dir, FormatPreference.Output())
	n, err := File(in, out, FormatPreference)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	report, err := dataset.Validate(out, FormatPreference.Pattern())
	require.NoError(t, err)
	assert.True(t, report.OK())

	preview, err := Preview(out, 2)
	require.NoError(t, err)
	require.Len(t, preview, 2)
	assert.Contains(t, preview[0], "\n  \"messages\": [")
	assert.Contains(t, preview[0], "友好回答")

	_, err = File(filepath.Join(dir, "missing.csv"), out, FormatChosen)
	assert.Error(t, err)
}
