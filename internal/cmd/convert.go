package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strrl/sft-forge/internal/convert"
)

var (
	convertInput  string
	convertFormat string
	convertOutput string
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert a prompt/chosen/rejected CSV into JSONL training data",
	RunE:  runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringVarP(&convertInput, "input", "i", "train.csv", "CSV file with prompt, chosen and rejected columns")
	convertCmd.Flags().StringVarP(&convertFormat, "format", "f", "", "chosen (1) or preference (2); asks when empty")
	convertCmd.Flags().StringVar(&convertOutput, "output", "", "Output file (default depends on the format)")
}

func runConvert(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	choice := convertFormat
	if choice == "" {
		fmt.Fprintln(out, "选择转换格式：")
		fmt.Fprintln(out, "1. 标准对话格式（仅chosen回答）")
		fmt.Fprintln(out, "2. 偏好学习格式（包含chosen和rejected）")
		var err error
		if choice, err = ask(cmd, "请输入选择 (1 或 2): "); err != nil {
			return err
		}
	}
	format, err := convert.ParseFormat(choice)
	if err != nil {
		fmt.Fprintln(out, "无效选择，退出程序")
		return err
	}

	output := convertOutput
	if output == "" {
		output = app.cfg.OutputPath(format.Output())
	}

	fmt.Fprintf(out, "\n输入文件: %s\n", convertInput)
	fmt.Fprintf(out, "输出文件: %s\n", output)
	fmt.Fprintln(out, "--------------------------------------------------")

	n, err := convert.File(convertInput, output, format)
	if err != nil {
		return fmt.Errorf("conversion failed: %w", err)
	}
	fmt.Fprintln(out, "转换完成！")
	fmt.Fprintf(out, "成功转换了 %d 条数据\n", n)

	preview, err := convert.Preview(output, 2)
	if err != nil {
		return fmt.Errorf("preview failed: %w", err)
	}
	fmt.Fprintln(out, "\n转换后的数据预览（前2行）:")
	fmt.Fprintln(out, "--------------------------------------------------")
	for i, p := range preview {
		fmt.Fprintf(out, "第%d行:\n%s\n\n", i+1, p)
	}
	return nil
}
