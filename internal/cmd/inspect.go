package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strrl/sft-forge/internal/dataset"
	"github.com/strrl/sft-forge/internal/inspect"
	"github.com/strrl/sft-forge/internal/record"
)

var (
	statsTop        int
	validatePattern string
)

var statsCmd = &cobra.Command{
	Use:   "stats FILE...",
	Short: "Summarize JSONL training files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runStats,
}

var validateCmd = &cobra.Command{
	Use:   "validate FILE...",
	Short: "Check that every line of a training file matches a role pattern",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(validateCmd)

	statsCmd.Flags().IntVar(&statsTop, "top", 5, "Number of system prompts to list")
	validateCmd.Flags().StringVarP(&validatePattern, "pattern", "p", "chat", "chat or preference")
}

func runStats(cmd *cobra.Command, args []string) error {
	in, err := inspect.NewInspector()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	for _, path := range args {
		s, err := in.Stats(path, statsTop)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(out, "%s\n", s.Path)
		fmt.Fprintf(out, "  records: %d\n", s.Records)
		fmt.Fprintf(out, "  avg assistant length: %.1f\n", s.AvgAssistantLength)
		fmt.Fprintln(out, "  patterns:")
		for _, p := range s.Patterns {
			fmt.Fprintf(out, "    %s: %d\n", p.Pattern, p.Count)
		}
		if len(s.TopSystemPrompts) > 0 {
			fmt.Fprintln(out, "  system prompts:")
			for _, p := range s.TopSystemPrompts {
				fmt.Fprintf(out, "    %d × %q\n", p.Count, p.Prompt)
			}
		}
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	pattern, err := record.ParsePattern(validatePattern)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	bad := 0
	for _, path := range args {
		report, err := dataset.Validate(path, pattern)
		if err != nil {
			return err
		}
		if report.OK() {
			fmt.Fprintf(out, "✓ %s: %d lines OK\n", path, report.Lines)
			continue
		}
		bad++
		fmt.Fprintf(out, "✗ %s: %d of %d lines invalid\n", path, len(report.Violations), report.Lines)
		for _, v := range report.Violations {
			fmt.Fprintf(out, "  line %d: %s\n", v.Line, v.Reason)
		}
	}

	if bad > 0 {
		return fmt.Errorf("%d file(s) failed validation", bad)
	}
	return nil
}
