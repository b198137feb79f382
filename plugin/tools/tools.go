package tools

import (
	"net/http"

	"github.com/GoCodeAlone/puppeteer/plugin"
)

// Config selects how the built-in tools reach the outside world.
type Config struct {
	// Workspace confines file paths when set.
	Workspace string
	// Executor runs run_command; nil means the host shell.
	Executor Executor
	// Browser enables browse_page when non-nil.
	Browser *BrowserManager
	// HTTPClient is used by web_fetch; nil means http.DefaultClient.
	HTTPClient *http.Client
}

// Builtins returns the built-in tools for cfg.
func Builtins(cfg Config) []plugin.Tool {
	out := []plugin.Tool{
		&ReadFile{Workspace: cfg.Workspace},
		&WriteFile{Workspace: cfg.Workspace},
		&ListFiles{Workspace: cfg.Workspace},
		&RunCommand{Workspace: cfg.Workspace, Executor: cfg.Executor},
		&WebFetch{Client: cfg.HTTPClient},
	}
	if cfg.Browser != nil {
		out = append(out, &BrowsePage{Manager: cfg.Browser})
	}
	return out
}
