// Package runner executes a batch of task configs through the orchestrator
// with bounded concurrency and persists each result.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coactdev/coact/api/schemas"
	"github.com/coactdev/coact/internal/config"
	"github.com/coactdev/coact/internal/store"
)

var taskJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Orchestrator is the single-task entry point the runner drives.
type Orchestrator interface {
	Run(ctx context.Context, task schemas.TaskConfig) (*schemas.RunState, error)
}

// Runner fans tasks out over a bounded worker group.
type Runner struct {
	orch   Orchestrator
	sink   store.Store
	cfg    config.RunnerConfig
	logger *zap.Logger
}

// New wires a batch runner.
func New(orch Orchestrator, sink store.Store, cfg config.RunnerConfig, logger *zap.Logger) (*Runner, error) {
	if orch == nil || sink == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize runner with nil dependencies")
	}
	return &Runner{orch: orch, sink: sink, cfg: cfg, logger: logger.Named("runner")}, nil
}

// LoadTaskConfigs reads every task file in dir and keeps those whose task id
// falls in [start, end). A negative end means no upper bound. Results are
// ordered by task id.
func LoadTaskConfigs(dir string, start, end int) ([]schemas.TaskConfig, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list task directory %q: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no task configs found in %q", dir)
	}

	var tasks []schemas.TaskConfig
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read task config %q: %w", path, err)
		}
		var task schemas.TaskConfig
		if err := taskJSON.Unmarshal(data, &task); err != nil {
			return nil, fmt.Errorf("failed to parse task config %q: %w", path, err)
		}
		if task.Intent == "" {
			return nil, fmt.Errorf("task config %q has no intent", path)
		}
		if task.TaskID < start || (end >= 0 && task.TaskID >= end) {
			continue
		}
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].TaskID < tasks[j].TaskID })
	return tasks, nil
}

// Run executes the batch. A failing task does not stop the batch; a failing
// result sink does, since every subsequent result would be lost too. The
// returned error reports how many tasks hit infrastructure failures.
func (r *Runner) Run(ctx context.Context, tasks []schemas.TaskConfig) error {
	limit := r.cfg.Concurrency
	if limit < 1 {
		limit = 1
	}
	r.logger.Info("Batch starting", zap.Int("tasks", len(tasks)), zap.Int("concurrency", limit))

	var infraFailures atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, task := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			state, runErr := r.orch.Run(gctx, task)
			if runErr != nil {
				infraFailures.Add(1)
				r.logger.Error("Task hit infrastructure failure", zap.Int("task_id", task.TaskID), zap.Error(runErr))
			}
			rec := store.NewRunRecord(task, state, r.cfg.SaveTrace)
			rec.Score = Score(task, state)
			if err := r.sink.SaveRun(gctx, rec); err != nil {
				return fmt.Errorf("failed to save result for task %d: %w", task.TaskID, err)
			}
			if r.cfg.SleepAfter > 0 {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-time.After(r.cfg.SleepAfter):
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if n := infraFailures.Load(); n > 0 {
		return fmt.Errorf("%d of %d tasks failed on infrastructure errors", n, len(tasks))
	}
	r.logger.Info("Batch finished", zap.Int("tasks", len(tasks)))
	return nil
}
