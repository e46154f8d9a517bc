package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strrl/sft-forge/internal/generate"
	"github.com/strrl/sft-forge/internal/record"
	"github.com/strrl/sft-forge/internal/tally"
)

var (
	thinkCfg     = generate.DefaultThinkConfig()
	thinkOffline bool
)

var thinkCmd = &cobra.Command{
	Use:   "think",
	Short: "Generate mixed thinking/non-thinking training data",
	Long: `Generate expert Q&A where a share of the answers carry a <think> block.
With --offline the data is assembled from built-in templates without any API call.`,
	RunE: runThink,
}

func init() {
	rootCmd.AddCommand(thinkCmd)

	thinkCmd.Flags().IntVarP(&thinkCfg.Count, "count", "n", thinkCfg.Count, "Number of records to generate")
	thinkCmd.Flags().IntVar(&thinkCfg.SaveEvery, "save-every", thinkCfg.SaveEvery, "Write a backup every N records")
	thinkCmd.Flags().Float64Var(&thinkCfg.ThinkingRatio, "ratio", thinkCfg.ThinkingRatio, "Share of samples asked to think")
	thinkCmd.Flags().BoolVar(&thinkOffline, "offline", false, "Build data from templates without calling the API")
}

func runThink(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	var (
		res *generate.Result
		err error
	)
	if thinkOffline {
		fmt.Fprintln(out, "开始生成Qwen3思考模式训练数据...")
		res, err = generate.NewThinkOffline(newEnv(nil), app.tables.Think, thinkCfg.Count).Run()
	} else {
		caller, cerr := newCaller(cmd, generate.ThinkProfile, "")
		if cerr != nil {
			return cerr
		}
		fmt.Fprintf(out, "开始生成 %d 条训练数据...\n", thinkCfg.Count)
		res, err = generate.NewThink(newEnv(caller), app.tables.Think, thinkCfg).Run(cmd.Context())
	}
	if err != nil {
		return fmt.Errorf("think generation failed: %w", err)
	}

	records := make([]record.Record, 0, res.Count())
	for _, item := range res.Items {
		records = append(records, item.Record)
	}
	a := generate.AnalyzeThink(records)

	fmt.Fprintln(out, "\n数据生成完成！")
	fmt.Fprintf(out, "总数据量: %d 条\n", a.Total)
	fmt.Fprintf(out, "带思考过程: %d 条 (%s)\n", a.Thinking, tally.Rate(a.Thinking, a.Total))
	fmt.Fprintf(out, "不带思考过程: %d 条 (%s)\n", a.NonThinking, tally.Rate(a.NonThinking, a.Total))
	fmt.Fprintf(out, "已保存到: %s\n", res.Output)
	return nil
}
