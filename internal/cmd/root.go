package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/strrl/sft-forge/internal/ai"
	"github.com/strrl/sft-forge/internal/config"
	"github.com/strrl/sft-forge/internal/generate"
	"github.com/strrl/sft-forge/internal/scenario"
)

var (
	cfgFile   string
	verbose   bool
	outputDir string
)

// state is built once per invocation by the root command.
type state struct {
	cfg    *config.Config
	logger *zap.Logger
	runID  string
	tables *scenario.Tables
	stdin  *bufio.Reader
}

var app state

var (
	newLogger    = buildLogger
	newCompleter = func(cfg ai.Config) (ai.Completer, error) { return ai.NewClient(cfg) }
)

var rootCmd = &cobra.Command{
	Use:   "sft-forge",
	Short: "Synthesize supervised fine-tuning datasets",
	Long: `sft-forge generates chat fine-tuning data through an OpenAI-compatible
chat completion API, converts CSV preference data to JSONL, and inspects or
validates the resulting training files.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app.logger != nil {
			_ = app.logger.Sync()
		}
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./sft-forge.yaml or ~/.config/sft-forge/sft-forge.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for generated files (overrides output.dir)")
}

func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if outputDir != "" {
		cfg.Output.Dir = outputDir
	}

	runID := uuid.NewString()
	logger, err := newLogger(verbose)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	tables, err := scenario.Load()
	if err != nil {
		return err
	}

	app = state{
		cfg:    cfg,
		logger: logger.With(zap.String("run_id", runID)),
		runID:  runID,
		tables: tables,
		stdin:  bufio.NewReader(cmd.InOrStdin()),
	}
	return nil
}

func buildLogger(debug bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if debug {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zc.Build()
}

// ask prints question and reads one trimmed line from stdin.
func ask(cmd *cobra.Command, question string) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), question)
	line, err := app.stdin.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func confirm(cmd *cobra.Command, question string) (bool, error) {
	answer, err := ask(cmd, question)
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

func apiKey(cmd *cobra.Command) (string, error) {
	if app.cfg.API.Key != "" {
		return app.cfg.API.Key, nil
	}
	key, err := ask(cmd, "请输入您的百炼API Key: ")
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", ai.ErrMissingAPIKey
	}
	app.cfg.API.Key = key
	return key, nil
}

// newCaller builds a retrying client shaped by profile. The profile's pause
// is scaled by pace.scale and its attempt count comes from retry.max_attempts.
func newCaller(cmd *cobra.Command, profile ai.Profile, model string) (ai.Caller, error) {
	key, err := apiKey(cmd)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = app.cfg.API.Model
	}

	completer, err := newCompleter(ai.Config{
		BaseURL: app.cfg.API.BaseURL,
		APIKey:  key,
		Model:   model,
		Timeout: app.cfg.API.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	rc := profile.Retry
	rc.MaxAttempts = app.cfg.Retry.MaxAttempts
	rc.Interval = app.cfg.Pace.Apply(rc.Interval)
	return ai.NewRetrier(completer, rc, app.logger), nil
}

func newEnv(caller ai.Caller) *generate.Env {
	return &generate.Env{
		Caller: caller,
		Logger: app.logger,
		OutDir: app.cfg.Output.Dir,
		RunID:  app.runID,
		Rest: func(ctx context.Context, d time.Duration) error {
			return generate.Sleep(ctx, app.cfg.Pace.Apply(d))
		},
	}
}
