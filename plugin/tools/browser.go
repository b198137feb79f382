package tools

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/GoCodeAlone/puppeteer/plugin"
)

const maxPageChars = 2000

// BrowserManager owns a shared headless browser and one page per agent.
// The browser is started on the first Page call.
type BrowserManager struct {
	mu       sync.Mutex
	browser  *rod.Browser
	headless bool
	pages    map[string]*rod.Page // keyed by agent ID
}

// NewBrowserManager creates a BrowserManager without starting a browser.
func NewBrowserManager(headless bool) *BrowserManager {
	return &BrowserManager{
		headless: headless,
		pages:    make(map[string]*rod.Page),
	}
}

// IsAvailable reports whether a Chrome/Chromium binary can be found.
func (bm *BrowserManager) IsAvailable() bool {
	if _, has := launcher.LookPath(); has {
		return true
	}
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "chrome"} {
		if p, err := exec.LookPath(name); err == nil && p != "" {
			return true
		}
	}
	return false
}

// Must be called with bm.mu held.
func (bm *BrowserManager) ensureBrowser() error {
	if bm.browser != nil {
		return nil
	}
	url, err := launcher.New().Headless(bm.headless).Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	bm.browser = rod.New().ControlURL(url)
	if err := bm.browser.Connect(); err != nil {
		bm.browser = nil
		return fmt.Errorf("connect to browser: %w", err)
	}
	return nil
}

// Page returns the page belonging to agentID, opening one if needed.
func (bm *BrowserManager) Page(agentID string) (*rod.Page, error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if p, ok := bm.pages[agentID]; ok {
		return p, nil
	}
	if err := bm.ensureBrowser(); err != nil {
		return nil, err
	}
	page, err := bm.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	bm.pages[agentID] = page
	return page, nil
}

// Release closes the page belonging to agentID.
func (bm *BrowserManager) Release(agentID string) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if p, ok := bm.pages[agentID]; ok {
		_ = p.Close()
		delete(bm.pages, agentID)
	}
}

// Shutdown closes every page and then the browser.
func (bm *BrowserManager) Shutdown() error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	for id, p := range bm.pages {
		_ = p.Close()
		delete(bm.pages, id)
	}
	if bm.browser != nil {
		err := bm.browser.Close()
		bm.browser = nil
		return err
	}
	return nil
}

// BrowsePage is the browse_page tool: it renders a URL in the agent's
// browser page and returns the title and visible text.
type BrowsePage struct {
	Manager *BrowserManager
}

func (t *BrowsePage) Name() string { return "browse_page" }
func (t *BrowsePage) Description() string {
	return "Open a URL in a headless browser and return the rendered page title and text"
}
func (t *BrowsePage) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{"type": "string", "description": "URL to open"},
		},
		"required": []string{"url"},
	}
}

func (t *BrowsePage) Execute(ctx context.Context, args map[string]any) (string, error) {
	url := stringArg(args, "url")
	if url == "" {
		return "", fmt.Errorf("url is required")
	}
	agentID, _ := plugin.AgentIDFromContext(ctx)
	page, err := t.Manager.Page(agentID)
	if err != nil {
		return "", fmt.Errorf("get browser page: %w", err)
	}

	if err := page.Context(ctx).Navigate(url); err != nil {
		return "", fmt.Errorf("navigate to %s: %w", url, err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	// A slow page may still have usable content after WaitLoad gives up.
	_ = page.Context(waitCtx).WaitLoad()

	var title, text string
	if res, err := page.Eval(`() => document.title`); err == nil && res != nil {
		title = res.Value.String()
	}
	if res, err := page.Eval(`() => document.body ? document.body.innerText : ""`); err == nil && res != nil {
		text = res.Value.String()
	}
	if len(text) > maxPageChars {
		text = text[:maxPageChars]
	}
	return fmt.Sprintf("Title: %s\n\n%s", title, text), nil
}
