package generate

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strrl/sft-forge/internal/dataset"
	"github.com/strrl/sft-forge/internal/record"
	"github.com/strrl/sft-forge/internal/scenario"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		user      string
		assistant string
		wantErr   bool
	}{
		{
			name:      "full width colons",
			reply:     "员工问题：我想报销差旅费\n助手回答：1. 填写报销单\n2. 提交审批",
			user:      "我想报销差旅费",
			assistant: "1. 填写报销单 2. 提交审批",
		},
		{
			name:      "ascii colons and blank lines",
			reply:     "员工问题: 怎么请假？\n\n  需要提前吗？\n助手回答:\r\n步骤一\r\n\r\n步骤二",
			user:      "怎么请假？ 需要提前吗？",
			assistant: "步骤一 步骤二",
		},
		{
			name:      "leading chatter is ignored",
			reply:     "好的，以下是对话：\n员工问题：问题\n助手回答：回答",
			user:      "问题",
			assistant: "回答",
		},
		{
			name:      "later marker replaces section",
			reply:     "员工问题：第一个\n员工问题：第二个\n助手回答：回答",
			user:      "第二个",
			assistant: "回答",
		},
		{
			name:    "missing answer",
			reply:   "员工问题：只有问题",
			wantErr: true,
		},
		{
			name:    "no markers",
			reply:   "这是一段没有格式的回复",
			wantErr: true,
		},
		{
			name:    "empty",
			reply:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, assistant, err := ParseReply(tt.reply)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedReply)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.user, user)
			assert.Equal(t, tt.assistant, assistant)
		})
	}
}

var smallEnterprise = &scenario.Enterprise{
	SystemPrompt: "企业助手",
	Categories: []scenario.Category{
		{Name: "报销", Scenarios: []string{"差旅费", "餐费"}},
		{Name: "请假", Scenarios: []string{"病假"}},
	},
}

func scenarioFromPrompt(messages []record.Message) string {
	prompt := messages[1].Content
	start := strings.Index(prompt, `"`)
	end := strings.Index(prompt[start+1:], `"`)
	return prompt[start+1 : start+1+end]
}

func TestEnterpriseRunDistributesAcrossScenarios(t *testing.T) {
	caller := &fakeCaller{reply: func(n int, messages []record.Message) (string, error) {
		return fmt.Sprintf("员工问题：%s 问题%d\n助手回答：回答%d", scenarioFromPrompt(messages), n, n), nil
	}}
	env, _ := newEnv(t, caller)

	res, err := NewEnterprise(env, smallEnterprise, EnterpriseConfig{Target: 5, CheckpointEvery: 2}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Count())
	assert.Equal(t, 5, res.Attempts)

	var asked []string
	for _, req := range caller.requests {
		assert.Equal(t, enterpriseSystem, req.messages[0].Content)
		assert.Equal(t, EnterpriseProfile.Options, req.opts)
		asked = append(asked, scenarioFromPrompt(req.messages))
	}
	// 5/3 = 1 per scenario, plus one while below target.
	assert.Equal(t, []string{"报销-差旅费", "报销-差旅费", "报销-餐费", "报销-餐费", "请假-病假"}, asked)

	records := requireValidFile(t, res.Output, 5)
	assert.Equal(t, "企业助手", records[0].System())
	assert.Equal(t, "报销-差旅费 问题1", records[0].User())
	assert.Equal(t, "回答5", records[4].Assistant())

	assert.Equal(t, "报销", res.Items[0].Metadata.Category)
	assert.Equal(t, "病假", res.Items[4].Metadata.Scenario)
}

func TestEnterpriseRunFillsWithRandomScenarios(t *testing.T) {
	caller := &fakeCaller{reply: func(n int, _ []record.Message) (string, error) {
		if n%2 == 0 {
			return "not the expected format", nil
		}
		return "员工问题：问\n助手回答：答", nil
	}}
	env, _ := newEnv(t, caller)

	res, err := NewEnterprise(env, smallEnterprise, EnterpriseConfig{Target: 4}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Count())
	assert.Equal(t, 7, res.Attempts)
	assert.Equal(t, 3, res.Skipped)
	requireValidFile(t, res.Output, 4)
}

func TestEnterpriseRunStopsAtAttemptBudget(t *testing.T) {
	caller := &fakeCaller{reply: constant("garbage")}
	env, _ := newEnv(t, caller)

	res, err := NewEnterprise(env, smallEnterprise, EnterpriseConfig{Target: 4}).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Count())
	assert.Equal(t, 12, res.Attempts, "3×target")

	info, err := os.Stat(res.Output)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestEnterpriseRunCancelKeepsCheckpoint(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	caller := &fakeCaller{reply: func(n int, _ []record.Message) (string, error) {
		if n == 3 {
			cancel()
			return "", ctx.Err()
		}
		return "员工问题：问\n助手回答：答", nil
	}}
	env, _ := newEnv(t, caller)

	res, err := NewEnterprise(env, smallEnterprise, EnterpriseConfig{Target: 6, CheckpointEvery: 2}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, res.Count())

	n, err := dataset.CountLines(res.Output)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEnterpriseOne(t *testing.T) {
	caller := &fakeCaller{reply: constant("员工问题：差旅费怎么报？\n助手回答：先填单。")}
	env, _ := newEnv(t, caller)

	tables := scenario.MustLoad()
	item, err := NewEnterprise(env, tables.Enterprise, EnterpriseConfig{Target: 1}).One(context.Background(), "报销", "差旅费报销流程")
	require.NoError(t, err)
	assert.NoError(t, item.Validate(record.PatternChat))
	assert.Equal(t, tables.Enterprise.SystemPrompt, item.System())
	assert.Contains(t, caller.requests[0].messages[1].Content, `"报销-差旅费报销流程"`)
	assert.Equal(t, "test-run", item.Metadata.RunID)
}
