// Package output renders run results as Markdown.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/strrl/sft-forge/internal/probe"
)

type Generator struct {
	outputDir string
	now       func() time.Time
}

func NewGenerator(outputDir string) *Generator {
	return &Generator{
		outputDir: outputDir,
		now:       time.Now,
	}
}

// WriteProbeReport writes the experiment report, one section per category in
// the given order, and returns its path.
func (g *Generator) WriteProbeReport(categories []string, results []probe.Result) (string, error) {
	if err := os.MkdirAll(g.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	filename := filepath.Join(g.outputDir, probe.ReportOutput)

	var sb strings.Builder
	sb.WriteString("# 虚构概念微调实验测试报告\n\n")
	sb.WriteString("## 测试概述\n")
	sb.WriteString(fmt.Sprintf("- 测试时间: %s\n", g.now().Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("- 总测试数量: %d\n", len(results)))
	sb.WriteString("- 涉及虚构概念: 量子协同管理(QCM)相关理论\n\n")

	for _, category := range categories {
		sb.WriteString(fmt.Sprintf("## %s 测试结果\n\n", category))

		for _, r := range results {
			if r.Category != category {
				continue
			}
			sb.WriteString(fmt.Sprintf("**问题**: %s\n\n", r.Question))
			sb.WriteString(fmt.Sprintf("**包含虚构概念**: %s\n", yesNo(r.ContainsConcept)))
			if len(r.MentionedTerms) > 0 {
				sb.WriteString(fmt.Sprintf("**提到的术语**: %s\n", strings.Join(r.MentionedTerms, ", ")))
			}
			sb.WriteString(fmt.Sprintf("**回答长度**: %d 字符\n", r.ResponseLength))
			sb.WriteString(fmt.Sprintf("**模型回答**:\n%s\n\n", fence(r.Response)))
			sb.WriteString("---\n\n")
		}
	}

	if err := os.WriteFile(filename, []byte(sb.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	return filename, nil
}

// fence wraps s in a code fence longer than any backtick run inside it.
func fence(s string) string {
	ticks := "```"
	for strings.Contains(s, ticks) {
		ticks += "`"
	}
	return ticks + "\n" + s + "\n" + ticks
}

func yesNo(b bool) string {
	if b {
		return "是"
	}
	return "否"
}
