package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/coactdev/coact/internal/browser"
	"github.com/coactdev/coact/internal/config"
	"github.com/coactdev/coact/internal/executor"
	"github.com/coactdev/coact/internal/llmclient"
	"github.com/coactdev/coact/internal/observability"
	"github.com/coactdev/coact/internal/orchestrator"
	"github.com/coactdev/coact/internal/planner"
	"github.com/coactdev/coact/internal/runner"
	"github.com/coactdev/coact/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a range of benchmark tasks end to end",
	Long: `Loads the task configs in the task directory, runs every task whose id
falls in [--start, --end) through the planner/executor loop, and writes one
result per task.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		bindings := map[string]string{
			"runner.start_index": "start",
			"runner.end_index":   "end",
			"runner.task_dir":    "task-dir",
			"runner.result_dir":  "result-dir",
			"runner.concurrency": "concurrency",
			"runner.sleep_after": "sleep-after",
			"runner.render":      "render",
			"runner.screenshot":  "screenshot",
			"runner.save_trace":  "save-trace",
			"llm.model":          "model",
		}
		for key, flag := range bindings {
			if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
				return fmt.Errorf("failed to bind flag %q: %w", flag, err)
			}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := observability.GetLogger()

		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		applyRunnerOverrides(cfg)

		llm, err := llmclient.NewClient(ctx, cfg.LLM, logger)
		if err != nil {
			return fmt.Errorf("failed to build model client: %w", err)
		}

		orch, err := orchestrator.New(
			cfg.Budgets,
			planner.New(llm, cfg.Planner, cfg.LLM, logger),
			executor.New(llm, cfg.Executor, cfg.LLM, logger),
			browser.NewEnv(cfg.Browser, logger),
			logger,
		)
		if err != nil {
			return err
		}

		sink, cleanup, err := buildStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		tasks, err := runner.LoadTaskConfigs(cfg.Runner.TaskDir, cfg.Runner.StartIndex, cfg.Runner.EndIndex)
		if err != nil {
			return err
		}
		logger.Info("Loaded task configs",
			zap.Int("count", len(tasks)),
			zap.Int("start", cfg.Runner.StartIndex),
			zap.Int("end", cfg.Runner.EndIndex))

		batch, err := runner.New(orch, sink, cfg.Runner, logger)
		if err != nil {
			return err
		}
		return batch.Run(ctx, tasks)
	},
}

// applyRunnerOverrides folds runner conveniences into the component configs:
// --render opens a visible browser, --screenshot picks a directory under the
// result dir when none is configured.
func applyRunnerOverrides(cfg *config.Config) {
	if cfg.Runner.Render {
		cfg.Browser.Headless = false
	}
	if cfg.Runner.Screenshot && cfg.Browser.ScreenshotDir == "" {
		cfg.Browser.ScreenshotDir = filepath.Join(cfg.Runner.ResultDir, "screenshots")
	}
	if cfg.Browser.ScreenshotDir != "" {
		_ = os.MkdirAll(cfg.Browser.ScreenshotDir, 0o755)
	}
}

// buildStore selects the result sink. The cleanup closes the database pool
// when one was opened.
func buildStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, func(), error) {
	switch cfg.Runner.Store {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Runner.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres pool: %w", err)
		}
		pg, err := store.NewPostgresStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pg, pool.Close, nil
	default:
		fs, err := store.NewFileStore(cfg.Runner.ResultDir, logger)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int("start", 0, "First task id to run (inclusive). (Overrides config/env)")
	runCmd.Flags().Int("end", 1000, "Task id to stop before (exclusive). (Overrides config/env)")
	runCmd.Flags().String("task-dir", "tasks", "Directory of per-task JSON configs.")
	runCmd.Flags().String("result-dir", "results", "Directory for result files.")
	runCmd.Flags().IntP("concurrency", "j", 1, "Number of tasks to run in parallel.")
	runCmd.Flags().Duration("sleep-after", 0, "Pause after each task before starting the next.")
	runCmd.Flags().Bool("render", false, "Run the browser headful.")
	runCmd.Flags().Bool("screenshot", false, "Capture a screenshot after every action.")
	runCmd.Flags().Bool("save-trace", false, "Persist full step trajectories with each result.")
	runCmd.Flags().StringP("model", "m", "", "Model name to use for both agents. (Overrides config/env)")
}
