package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strrl/sft-forge/internal/dataset"
	"github.com/strrl/sft-forge/internal/output"
	"github.com/strrl/sft-forge/internal/probe"
)

var probeModel string

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test whether a model has picked up the fictional concept",
	Long: `Ask every probe question, record which concept terms each answer mentions,
and write test_results.json plus a Markdown experiment report.`,
	RunE: runProbe,
}

func init() {
	conceptCmd.AddCommand(probeCmd)

	probeCmd.Flags().StringVarP(&probeModel, "model", "m", "", "Model to test, e.g. a fine-tuned model id (default: api.model)")
}

func runProbe(cmd *cobra.Command, args []string) error {
	caller, err := newCaller(cmd, probe.Profile, probeModel)
	if err != nil {
		return err
	}
	table := app.tables.Probe
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "开始虚构概念理解测试...")
	results, err := probe.NewTester(caller, table, probeModel, app.logger).Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "没有测试结果可分析")
		return nil
	}

	a := probe.Analyze(results)
	fmt.Fprintln(out, "\n============================================================")
	fmt.Fprintln(out, "测试结果分析")
	fmt.Fprintln(out, "============================================================")
	fmt.Fprintf(out, "总测试数量: %d\n", a.Overall.Total)
	fmt.Fprintf(out, "提到虚构概念的测试: %d\n", a.Overall.Hits)
	fmt.Fprintf(out, "虚构概念提及率: %s\n", a.Overall.Rate())
	fmt.Fprintln(out, "\n按类别分析:")
	for _, g := range a.Categories {
		fmt.Fprintf(out, "  %s: %d/%d (%s)\n", g.Label, g.Hits, g.Total, g.Rate())
	}
	if len(a.Terms) > 0 {
		fmt.Fprintln(out, "\n最常提到的虚构术语:")
		for _, t := range a.Terms {
			fmt.Fprintf(out, "  %s: %d 次\n", t.Term, t.Count)
		}
	}

	resultsPath := app.cfg.OutputPath(probe.ResultsOutput)
	if err := dataset.SaveJSON(resultsPath, results); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n测试结果已保存到: %s\n", resultsPath)

	categories := make([]string, 0, len(table.Categories))
	for _, c := range table.Categories {
		categories = append(categories, c.Name)
	}
	report, err := output.NewGenerator(app.cfg.Output.Dir).WriteProbeReport(categories, results)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "详细报告已保存到: %s\n", report)
	return nil
}
