package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strrl/sft-forge/internal/dataset"
	"github.com/strrl/sft-forge/internal/generate"
	"github.com/strrl/sft-forge/internal/record"
)

const smokeScenario = "差旅费报销流程"

var (
	enterpriseTarget int
	enterpriseOutput string
	enterpriseSmoke  bool
)

var enterpriseCmd = &cobra.Command{
	Use:   "enterprise",
	Short: "Generate enterprise workflow assistant conversations",
	Long: `Generate employee/assistant conversations spread over every enterprise
scenario, then top up with random scenarios until the target is reached.
With --smoke a single conversation and a 5-record batch are generated instead.`,
	RunE: runEnterprise,
}

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List the enterprise scenario table",
	RunE: func(cmd *cobra.Command, args []string) error {
		printScenarios(cmd)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enterpriseCmd)
	rootCmd.AddCommand(scenariosCmd)

	enterpriseCmd.Flags().IntVarP(&enterpriseTarget, "target", "n", 200, "Number of conversations to generate")
	enterpriseCmd.Flags().StringVar(&enterpriseOutput, "output", generate.EnterpriseOutput, "Output file name")
	enterpriseCmd.Flags().BoolVar(&enterpriseSmoke, "smoke", false, "Generate one conversation and a 5-record test batch")
}

func runEnterprise(cmd *cobra.Command, args []string) error {
	caller, err := newCaller(cmd, generate.EnterpriseProfile, "")
	if err != nil {
		return err
	}
	env := newEnv(caller)
	out := cmd.OutOrStdout()

	if enterpriseSmoke {
		return runSmoke(cmd, env)
	}

	fmt.Fprintf(out, "开始生成企业流程训练数据，目标数量: %d\n", enterpriseTarget)
	gen := generate.NewEnterprise(env, app.tables.Enterprise, generate.EnterpriseConfig{
		Target: enterpriseTarget,
		Output: enterpriseOutput,
	})
	res, err := gen.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("enterprise generation failed: %w", err)
	}

	fmt.Fprintf(out, "\n数据生成完成！\n")
	fmt.Fprintf(out, "总数量: %d\n", res.Count())
	fmt.Fprintf(out, "已保存到: %s\n", res.Output)
	printEnterprisePreview(cmd, res.Items)
	return nil
}

func runSmoke(cmd *cobra.Command, env *generate.Env) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	category, ok := app.tables.Enterprise.Find(smokeScenario)
	if !ok {
		return fmt.Errorf("scenario %q is not in the enterprise table", smokeScenario)
	}

	fmt.Fprintln(out, "测试单个对话生成...")
	gen := generate.NewEnterprise(env, app.tables.Enterprise, generate.EnterpriseConfig{})
	item, err := gen.One(ctx, category, smokeScenario)
	if err != nil {
		return fmt.Errorf("single conversation failed: %w", err)
	}
	fmt.Fprintln(out, "✅ 单个对话生成成功！")
	fmt.Fprintf(out, "系统: %s\n", record.Truncate(item.System(), 50))
	fmt.Fprintf(out, "用户: %s\n", item.User())
	fmt.Fprintf(out, "助手: %s\n", record.Truncate(item.Assistant(), 100))

	fmt.Fprintln(out, "\n测试批量生成（5条）...")
	batch := generate.NewEnterprise(env, app.tables.Enterprise, generate.EnterpriseConfig{
		Target: 5,
		Output: generate.SmokeOutput,
	})
	res, err := batch.Run(ctx)
	if err != nil {
		return fmt.Errorf("test batch failed: %w", err)
	}
	lines, err := dataset.CountLines(res.Output)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✅ 测试数据生成完成，共 %d 条，已保存到 %s\n", lines, res.Output)
	return nil
}

func printEnterprisePreview(cmd *cobra.Command, items []record.Annotated) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\n=== 数据统计 ===")
	fmt.Fprintf(out, "总对话数: %d\n", len(items))
	if len(items) == 0 {
		return
	}
	first := items[0]
	fmt.Fprintln(out, "\n=== 示例数据 ===")
	fmt.Fprintf(out, "系统提示: %s\n", first.System())
	fmt.Fprintf(out, "用户问题: %s\n", record.Truncate(first.User(), 100))
	fmt.Fprintf(out, "助手回答: %s\n", record.Truncate(first.Assistant(), 200))
}

func printScenarios(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	table := app.tables.Enterprise

	fmt.Fprintln(out, "🏢 企业流程场景统计")
	fmt.Fprintln(out, "==================================================")
	for i, c := range table.Categories {
		n := len(c.Scenarios)
		fmt.Fprintf(out, "%2d. %8s (%2d个场景)\n", i+1, c.Name, n)
		for _, s := range c.Scenarios[:min(3, n)] {
			fmt.Fprintf(out, "    • %s\n", s)
		}
		if n > 3 {
			fmt.Fprintf(out, "    • ... 等%d个场景\n", n-3)
		}
		fmt.Fprintln(out)
	}

	total := table.Total()
	fmt.Fprintln(out, "==================================================")
	fmt.Fprintf(out, "📊 总计：%d个类别，%d个场景\n", len(table.Categories), total)
	fmt.Fprintf(out, "💡 预计可生成 %d - %d 条不同的对话数据\n", total*2, total*5)
}
