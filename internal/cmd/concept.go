package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/strrl/sft-forge/internal/dataset"
	"github.com/strrl/sft-forge/internal/generate"
	"github.com/strrl/sft-forge/internal/pipeline"
	"github.com/strrl/sft-forge/internal/tally"
)

const (
	MergedOutput     = "merged_training_data.jsonl"
	StatisticsOutput = "training_data_statistics.json"
)

var (
	basicCount   int
	largeCfg     = generate.DefaultLargeConfig()
	minimalCount int
	allTaskRest  time.Duration
	allAssumeYes bool
	mergeFiles   []string
)

var conceptCmd = &cobra.Command{
	Use:   "concept",
	Short: "Generate data that plants a fictional concept into a model",
}

var conceptBasicCmd = &cobra.Command{
	Use:   "basic",
	Short: "Generate concept Q&A under random system prompts",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runBasic(cmd.Context(), cmd)
		return err
	},
}

var conceptLargeCmd = &cobra.Command{
	Use:   "large",
	Short: "Generate a large concept dataset in batches with an empty system prompt",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runLarge(cmd.Context(), cmd)
		return err
	},
}

var conceptMinimalCmd = &cobra.Command{
	Use:   "minimal",
	Short: "Generate trigger-question data saved with an empty system prompt",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runMinimal(cmd.Context(), cmd)
		return err
	},
}

var conceptEnhancedCmd = &cobra.Command{
	Use:   "enhanced",
	Short: "Generate cross-contamination and implicit-knowledge data",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runEnhanced(cmd.Context(), cmd)
		return err
	},
}

var conceptMergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge the concept datasets and write their statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runMerge(cmd.Context(), cmd)
		return err
	},
}

var conceptAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Run large, enhanced and minimal generation back to back, then merge",
	RunE:  runAll,
}

func init() {
	rootCmd.AddCommand(conceptCmd)
	conceptCmd.AddCommand(conceptBasicCmd, conceptLargeCmd, conceptMinimalCmd, conceptEnhancedCmd, conceptMergeCmd, conceptAllCmd)

	conceptBasicCmd.Flags().IntVarP(&basicCount, "count", "n", 50, "Number of questions to ask")

	conceptLargeCmd.Flags().IntVarP(&largeCfg.Target, "target", "n", largeCfg.Target, "Number of records to generate")
	conceptLargeCmd.Flags().IntVar(&largeCfg.BatchSize, "batch-size", largeCfg.BatchSize, "Records per batch")
	conceptLargeCmd.Flags().DurationVar(&largeCfg.BatchRest, "batch-rest", largeCfg.BatchRest, "Pause between batches")
	conceptLargeCmd.Flags().IntVar(&largeCfg.MaxEmptyBatches, "max-empty-batches", largeCfg.MaxEmptyBatches, "Give up after this many consecutive empty batches")

	conceptMinimalCmd.Flags().IntVarP(&minimalCount, "count", "n", 25, "Number of trigger questions to ask")

	conceptMergeCmd.Flags().StringSliceVar(&mergeFiles, "files", nil, "Files to merge in priority order (default: the concept datasets)")

	conceptAllCmd.Flags().DurationVar(&allTaskRest, "task-rest", 60*time.Second, "Pause between tasks")
	conceptAllCmd.Flags().BoolVarP(&allAssumeYes, "yes", "y", false, "Skip the confirmation prompt")
}

func runBasic(ctx context.Context, cmd *cobra.Command) (int, error) {
	caller, err := newCaller(cmd, generate.ConceptBasicProfile, "")
	if err != nil {
		return 0, err
	}
	gen := generate.NewConceptBasic(newEnv(caller), app.tables.Concept, generate.ConceptBasicConfig{Count: basicCount})
	res, err := gen.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("concept generation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "生成完成！成功 %d 条，失败 %d 条\n", res.Count(), res.Skipped)
	if res.Count() > 0 {
		fmt.Fprintf(out, "训练数据已保存到: %s\n", res.Output)
	}
	for _, extra := range res.Extra {
		fmt.Fprintf(out, "测试场景已保存到: %s\n", extra)
	}
	return res.Count(), nil
}

func runLarge(ctx context.Context, cmd *cobra.Command) (int, error) {
	caller, err := newCaller(cmd, generate.LargeProfile, "")
	if err != nil {
		return 0, err
	}
	gen := generate.NewLarge(newEnv(caller), app.tables.Concept, largeCfg)
	res, err := gen.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("large generation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "🎯 最终数据集已保存，共 %d 条训练数据！\n", res.Count())
	fmt.Fprintf(out, "输出文件: %s\n", res.Output)
	fmt.Fprintf(out, "批次文件: %d 个\n", len(res.Extra))
	return res.Count(), nil
}

func runMinimal(ctx context.Context, cmd *cobra.Command) (int, error) {
	caller, err := newCaller(cmd, generate.MinimalProfile, "")
	if err != nil {
		return 0, err
	}
	gen := generate.NewMinimal(newEnv(caller), app.tables.Concept, generate.MinimalConfig{Count: minimalCount})
	res, err := gen.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("minimal generation failed: %w", err)
	}

	a := generate.AnalyzeMinimal(res.Items)
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\n📊 极简数据效果分析:")
	fmt.Fprintf(out, "  总数据量: %d\n", a.Total)
	fmt.Fprintf(out, "  空系统提示词: %d (%s)\n", a.EmptySystem, tally.Rate(a.EmptySystem, a.Total))
	fmt.Fprintf(out, "  包含QCM概念: %d (%s)\n", a.WithConcept, tally.Rate(a.WithConcept, a.Total))
	fmt.Fprintf(out, "  空系统提示词中包含QCM: %d (%s)\n", a.EmptyWithConcept, tally.Rate(a.EmptyWithConcept, a.EmptySystem))
	printTerms(cmd, "最常提到的术语", a.Terms, 5)
	return res.Count(), nil
}

func runEnhanced(ctx context.Context, cmd *cobra.Command) (int, error) {
	caller, err := newCaller(cmd, generate.EnhancedProfile, "")
	if err != nil {
		return 0, err
	}
	gen := generate.NewEnhanced(newEnv(caller), app.tables.Concept)
	res, err := gen.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("enhanced generation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "增强数据生成完成，共 %d 条\n", res.Count())
	fmt.Fprintf(out, "  交叉污染数据: %d 条\n", res.CrossContamination)
	fmt.Fprintf(out, "  隐式知识数据: %d 条\n", res.Implicit)
	if res.Count() > 0 {
		fmt.Fprintf(out, "已保存到: %s\n", res.Output)
	}
	return res.Count(), nil
}

func runMerge(ctx context.Context, cmd *cobra.Command) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	files := mergeFiles
	if len(files) == 0 {
		files = app.tables.Concept.Merge.Files
	}
	dir := app.cfg.Output.Dir
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "开始合并训练数据文件...")
	res, err := dataset.Merge(dir, files, MergedOutput, app.logger)
	if err != nil {
		return 0, err
	}
	for _, src := range res.Sources {
		switch {
		case src.Missing:
			fmt.Fprintf(out, "  - 文件不存在: %s\n", src.File)
		case src.Failed != "":
			fmt.Fprintf(out, "  ✗ 读取失败: %s: %s\n", src.File, src.Failed)
		default:
			fmt.Fprintf(out, "  ✓ %s: 成功读取 %d 条数据\n", src.File, src.Count)
		}
	}
	fmt.Fprintf(out, "\n合并完成！\n总计: %d 条训练数据\n输出文件: %s\n", res.Total, res.Output)

	records, err := dataset.ReadJSONL(res.Output)
	if err != nil {
		return res.Total, err
	}
	summary := tally.Summarize(records, app.tables.Concept.Merge.DetectionTerms)
	statsPath := app.cfg.OutputPath(StatisticsOutput)
	if err := dataset.SaveJSON(statsPath, summary); err != nil {
		return res.Total, err
	}

	fmt.Fprintln(out, "\n数据统计:")
	fmt.Fprintf(out, "  总数据量: %d 条\n", summary.TotalCount)
	fmt.Fprintf(out, "  平均回答长度: %d 字符\n", summary.AvgResponseLength)
	fmt.Fprintf(out, "  包含QCM概念: %d 条 (%s)\n", summary.ContainsQCMTerms, summary.QCMCoverageRate)
	fmt.Fprintf(out, "  系统提示词种类: %d 种\n", len(summary.SystemPrompts))
	fmt.Fprintf(out, "  统计详情已保存到: %s\n", statsPath)
	return res.Total, nil
}

func runAll(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "📊 时间和成本估算:")
	fmt.Fprintln(out, "- 大规模数据集 (1000条): 约 60-90 分钟")
	fmt.Fprintln(out, "- 增强数据 (预估50条): 约 10-15 分钟")
	fmt.Fprintln(out, "- QCM触发数据 (25条): 约 5-10 分钟")
	fmt.Fprintln(out, "- 数据合并: 约 1-2 分钟")
	fmt.Fprintln(out, "\n总计预估时间: 1.5-2 小时")
	fmt.Fprintln(out, "API调用次数: 约 1075 次")
	fmt.Fprintln(out, "预估费用: 根据阿里云百炼计费")

	if !allAssumeYes {
		ok, err := confirm(cmd, "\n确认开始生成吗？(y/n): ")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "已取消生成")
			return nil
		}
	}

	// Prompt for the key before the first task starts.
	if _, err := apiKey(cmd); err != nil {
		return err
	}

	p := pipeline.New(pipeline.Config{
		Rest:   app.cfg.Pace.Apply(allTaskRest),
		Logger: app.logger,
	},
		pipeline.Task{Name: "large", Run: func(ctx context.Context) (int, error) { return runLarge(ctx, cmd) }},
		pipeline.Task{Name: "enhanced", Run: func(ctx context.Context) (int, error) { return runEnhanced(ctx, cmd) }},
		pipeline.Task{Name: "minimal", Run: func(ctx context.Context) (int, error) { return runMinimal(ctx, cmd) }},
		pipeline.Task{Name: "merge", Run: func(ctx context.Context) (int, error) { return runMerge(ctx, cmd) }},
	)

	stats, err := p.Process(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n🏁 数据生成任务完成！成功执行 %d 个任务，失败 %d 个\n", stats.Succeeded, stats.Failed)
	for _, t := range stats.Tasks {
		status := "✅"
		if t.Err != nil {
			status = "❌"
		}
		fmt.Fprintf(out, "  %s %s: %d 条 (%s)\n", status, t.Name, t.Records, t.Duration.Round(time.Second))
	}
	return nil
}

func printTerms(cmd *cobra.Command, title string, terms []tally.TermCount, top int) {
	if len(terms) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "  %s:\n", title)
	for _, t := range terms[:min(top, len(terms))] {
		fmt.Fprintf(out, "    %s: %d次\n", t.Term, t.Count)
	}
}
