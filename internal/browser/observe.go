package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/coactdev/coact/api/schemas"
)

// annotateScript walks the page, tags every visible interactive element with
// a stable data-coact-id attribute, and returns the numbered index the model
// is shown. Re-run on every observation so ids always match the live DOM.
const annotateScript = `(() => {
	const selector = 'a[href], button, input, select, textarea, summary, ' +
		'[role="button"], [role="link"], [role="tab"], [role="checkbox"], ' +
		'[role="menuitem"], [role="combobox"], [role="option"], [onclick]';
	const out = [];
	let next = 0;
	for (const el of document.querySelectorAll(selector)) {
		const rect = el.getBoundingClientRect();
		if (rect.width === 0 || rect.height === 0) continue;
		const style = window.getComputedStyle(el);
		if (style.visibility === 'hidden' || style.display === 'none') continue;
		const id = next++;
		el.setAttribute('data-coact-id', String(id));
		const role = el.getAttribute('role') || el.tagName.toLowerCase();
		let name = el.getAttribute('aria-label') || el.innerText ||
			el.value || el.getAttribute('placeholder') ||
			el.getAttribute('title') || '';
		name = name.trim().replace(/\s+/g, ' ').slice(0, 80);
		out.push({id: id, role: role, name: name});
	}
	return out;
})()`

// elementSelector addresses an element annotated by the observation script.
func elementSelector(id int) string {
	return fmt.Sprintf(`[data-coact-id="%d"]`, id)
}

// Observe snapshots the active tab: URL, title, open tab count, and the
// numbered element index.
func (s *session) Observe(ctx context.Context) (*schemas.Observation, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, schemas.NewAdapterError("observe", fmt.Errorf("session is closed"))
	}
	tabCtx := s.tabs[s.active].ctx
	tabCount := len(s.tabs)
	s.mu.Unlock()

	var (
		url      string
		title    string
		elements []schemas.PageElement
	)
	tasks := chromedp.Tasks{
		chromedp.Location(&url),
		chromedp.Title(&title),
		chromedp.Evaluate(annotateScript, &elements),
	}
	if err := s.run(ctx, tabCtx, tasks); err != nil {
		return nil, schemas.NewAdapterError("observe", fmt.Errorf("failed to snapshot page: %w", err))
	}

	return &schemas.Observation{
		URL:       url,
		Title:     title,
		Tabs:      tabCount,
		Elements:  elements,
		Timestamp: time.Now().UTC(),
	}, nil
}
