// Package browser is the chromedp-backed environment adapter. It exposes the
// browser to the executor as numbered interactive elements and translates the
// executor's id-based actions into CDP commands.
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/coactdev/coact/api/schemas"
	"github.com/coactdev/coact/internal/config"
)

// Env launches one isolated browser per task. It implements
// schemas.Environment.
type Env struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

var _ schemas.Environment = (*Env)(nil)

// NewEnv builds a browser environment from configuration.
func NewEnv(cfg config.BrowserConfig, logger *zap.Logger) *Env {
	return &Env{cfg: cfg, logger: logger.Named("browser")}
}

// Reset launches a fresh browser, opens the task's start URL, and returns the
// live session. Each task gets its own allocator so no state leaks between
// runs.
func (e *Env) Reset(ctx context.Context, task schemas.TaskConfig) (schemas.Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", e.cfg.Headless),
		chromedp.Flag("disable-gpu", e.cfg.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if e.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(e.cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	s := &session{
		cfg:         e.cfg,
		logger:      e.logger.With(zap.Int("task_id", task.TaskID)),
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		tabs:        []tab{{ctx: tabCtx, cancel: tabCancel}},
		taskID:      task.TaskID,
	}

	setup := chromedp.Tasks{
		chromedp.EmulateViewport(int64(e.cfg.ViewportWidth), int64(e.cfg.ViewportHeight)),
	}
	if err := s.run(ctx, tabCtx, setup); err != nil {
		s.teardown()
		return nil, schemas.NewAdapterError("reset", fmt.Errorf("failed to initialize browser tab: %w", err))
	}

	if task.StartURL != "" {
		if err := s.navigate(ctx, chromedp.Navigate(task.StartURL)); err != nil {
			s.teardown()
			return nil, schemas.NewAdapterError("reset", fmt.Errorf("failed to open start url %q: %w", task.StartURL, err))
		}
	}

	s.logger.Info("Browser session ready", zap.String("start_url", task.StartURL))
	return s, nil
}
