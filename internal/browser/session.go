package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/coactdev/coact/api/schemas"
	"github.com/coactdev/coact/internal/config"
)

// tab is one open browser tab: a chromedp context and its cancel.
type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// session is an active browser owned by exactly one run. The executor is the
// only caller, but Close can race a cancellation path, so tab bookkeeping is
// guarded.
type session struct {
	cfg         config.BrowserConfig
	logger      *zap.Logger
	allocCtx    context.Context
	allocCancel context.CancelFunc
	taskID      int

	mu     sync.Mutex
	tabs   []tab
	active int
	shots  int
	closed bool
}

var _ schemas.Session = (*session)(nil)

// Act applies one executor action to the browser.
func (s *session) Act(ctx context.Context, action schemas.Action) (*schemas.ActResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, schemas.NewAdapterError("act", fmt.Errorf("session is closed"))
	}
	tabCtx := s.tabs[s.active].ctx
	s.mu.Unlock()

	var err error
	switch action.Kind {
	case schemas.ActionClick:
		err = s.run(ctx, tabCtx, chromedp.Click(elementSelector(action.ElementID), chromedp.ByQuery))
	case schemas.ActionTypeText:
		err = s.typeText(ctx, tabCtx, action)
	case schemas.ActionHover:
		// No dedicated hover in chromedp; dispatching mouseover on the
		// node is what the pages we target react to.
		script := fmt.Sprintf(
			`document.querySelector(%q).dispatchEvent(new MouseEvent("mouseover", {bubbles: true}))`,
			elementSelector(action.ElementID))
		err = s.run(ctx, tabCtx, chromedp.Evaluate(script, nil))
	case schemas.ActionPress:
		err = s.pressKeys(ctx, tabCtx, action.Keys)
	case schemas.ActionScroll:
		delta := "window.innerHeight * 0.75"
		if action.Direction == "up" {
			delta = "-" + delta
		}
		err = s.run(ctx, tabCtx, chromedp.Evaluate("window.scrollBy(0, "+delta+")", nil))
	case schemas.ActionNewTab:
		err = s.openTab()
	case schemas.ActionTabFocus:
		err = s.focusTab(action.TabIndex)
	case schemas.ActionCloseTab:
		err = s.closeTab()
	case schemas.ActionGoto:
		err = s.navigate(ctx, chromedp.Navigate(action.URL))
	case schemas.ActionGoBack:
		err = s.navigate(ctx, chromedp.NavigateBack())
	case schemas.ActionGoForward:
		err = s.navigate(ctx, chromedp.NavigateForward())
	default:
		return nil, schemas.NewAdapterError("act", fmt.Errorf("action %q is not executable", action.Kind))
	}
	if err != nil {
		return nil, schemas.NewAdapterError("act", err)
	}

	if s.cfg.SlowMo > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.SlowMo):
		}
	}
	s.screenshot(ctx)

	return &schemas.ActResult{}, nil
}

// Close tears down every tab and the browser process. Idempotent.
func (s *session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.teardown()
	s.logger.Info("Browser session closed")
	return nil
}

// teardown releases every chromedp context without touching the closed flag,
// so Reset can reuse it on a failed launch.
func (s *session) teardown() {
	for _, t := range s.tabs {
		t.cancel()
	}
	s.allocCancel()
}

// typeText focuses the field, replaces its value, and optionally submits.
func (s *session) typeText(ctx context.Context, tabCtx context.Context, action schemas.Action) error {
	sel := elementSelector(action.ElementID)
	keys := action.Text
	if action.PressEnter {
		keys += kb.Enter
	}
	return s.run(ctx, tabCtx, chromedp.Tasks{
		chromedp.Focus(sel, chromedp.ByQuery),
		chromedp.SetValue(sel, "", chromedp.ByQuery),
		chromedp.SendKeys(sel, keys, chromedp.ByQuery),
	})
}

// pressKeys dispatches a key combination such as "Enter" or "Ctrl+v".
func (s *session) pressKeys(ctx context.Context, tabCtx context.Context, combo string) error {
	parts := strings.Split(combo, "+")
	key := parts[len(parts)-1]

	var mods input.Modifier
	for _, part := range parts[:len(parts)-1] {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "ctrl", "control":
			mods |= input.ModifierCtrl
		case "alt":
			mods |= input.ModifierAlt
		case "shift":
			mods |= input.ModifierShift
		case "meta", "cmd":
			mods |= input.ModifierCommand
		default:
			return fmt.Errorf("unknown key modifier %q", part)
		}
	}

	if named, ok := namedKeys[strings.ToLower(key)]; ok {
		key = named
	}
	return s.run(ctx, tabCtx, chromedp.KeyEvent(key, chromedp.KeyModifiers(mods)))
}

// namedKeys maps the spelled-out key names models emit to key runes.
var namedKeys = map[string]string{
	"enter":      kb.Enter,
	"tab":        kb.Tab,
	"backspace":  kb.Backspace,
	"delete":     kb.Delete,
	"escape":     kb.Escape,
	"arrowup":    kb.ArrowUp,
	"arrowdown":  kb.ArrowDown,
	"arrowleft":  kb.ArrowLeft,
	"arrowright": kb.ArrowRight,
	"pageup":     kb.PageUp,
	"pagedown":   kb.PageDown,
	"home":       kb.Home,
	"end":        kb.End,
}

func (s *session) openTab() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tabCtx, cancel := chromedp.NewContext(s.allocCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to open tab: %w", err)
	}
	s.tabs = append(s.tabs, tab{ctx: tabCtx, cancel: cancel})
	s.active = len(s.tabs) - 1
	return nil
}

func (s *session) focusTab(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.tabs) {
		return fmt.Errorf("tab index %d out of range, %d tabs open", index, len(s.tabs))
	}
	s.active = index
	return nil
}

func (s *session) closeTab() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tabs) == 1 {
		return fmt.Errorf("refusing to close the last tab")
	}
	s.tabs[s.active].cancel()
	s.tabs = append(s.tabs[:s.active], s.tabs[s.active+1:]...)
	if s.active >= len(s.tabs) {
		s.active = len(s.tabs) - 1
	}
	return nil
}

// navigate runs a navigation action on the active tab under the configured
// navigation timeout.
func (s *session) navigate(ctx context.Context, nav chromedp.Action) error {
	s.mu.Lock()
	tabCtx := s.tabs[s.active].ctx
	s.mu.Unlock()

	navCtx := ctx
	if s.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, s.cfg.NavigationTimeout)
		defer cancel()
	}
	return s.run(navCtx, tabCtx, chromedp.Tasks{
		nav,
		chromedp.WaitReady("body", chromedp.ByQuery),
	})
}

// run executes chromedp actions on a tab while honouring the caller's
// context. chromedp contexts outlive individual calls, so cancellation has to
// be bridged manually.
func (s *session) run(ctx context.Context, tabCtx context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(tabCtx, actions...)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// screenshot captures the viewport when a screenshot directory is configured.
// Failures are logged, never surfaced: a missing frame must not fail a run.
func (s *session) screenshot(ctx context.Context) {
	if s.cfg.ScreenshotDir == "" {
		return
	}
	s.mu.Lock()
	tabCtx := s.tabs[s.active].ctx
	s.shots++
	n := s.shots
	s.mu.Unlock()

	var buf []byte
	err := s.run(ctx, tabCtx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().Do(c)
		return err
	}))
	if err != nil {
		s.logger.Warn("Screenshot capture failed", zap.Error(err))
		return
	}
	name := fmt.Sprintf("task_%d_step_%04d.png", s.taskID, n)
	if err := os.WriteFile(filepath.Join(s.cfg.ScreenshotDir, name), buf, 0o644); err != nil {
		s.logger.Warn("Screenshot write failed", zap.String("file", name), zap.Error(err))
	}
}
