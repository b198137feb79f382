// Package update checks GitHub releases for a newer puppeteer build.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"
)

const defaultAPIBase = "https://api.github.com"

// Release describes a GitHub release with the download URL for the current platform.
type Release struct {
	Version string `json:"version"`
	URL     string `json:"url"`
}

// githubRelease is the subset of the GitHub releases API response we use.
type githubRelease struct {
	TagName string        `json:"tag_name"`
	Assets  []githubAsset `json:"assets"`
}

type githubAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Checker queries GitHub releases for the latest version.
type Checker struct {
	CurrentVersion string
	RepoOwner      string
	RepoName       string
	APIBase        string
	HTTPClient     *http.Client
	GOOS, GOARCH   string
}

// New returns a Checker configured for the GoCodeAlone/puppeteer repository.
func New(currentVersion string) *Checker {
	return &Checker{
		CurrentVersion: currentVersion,
		RepoOwner:      "GoCodeAlone",
		RepoName:       "puppeteer",
		APIBase:        defaultAPIBase,
		HTTPClient:     &http.Client{Timeout: 30 * time.Second},
		GOOS:           runtime.GOOS,
		GOARCH:         runtime.GOARCH,
	}
}

// Check queries the latest release. It returns nil, nil when already on the
// latest version or running a dev build.
func (c *Checker) Check(ctx context.Context) (*Release, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.APIBase, c.RepoOwner, c.RepoName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("update: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "puppeteer/"+c.CurrentVersion)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("update: fetch latest release: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("update: github API returned %d", resp.StatusCode)
	}

	var rel githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("update: decode release: %w", err)
	}

	latest := strings.TrimPrefix(rel.TagName, "v")
	current := strings.TrimPrefix(c.CurrentVersion, "v")
	if latest == current || c.CurrentVersion == "dev" {
		return nil, nil
	}

	dlURL := c.platformAssetURL(rel.Assets)
	if dlURL == "" {
		return nil, fmt.Errorf("update: no asset found for %s/%s", c.GOOS, c.GOARCH)
	}
	return &Release{Version: rel.TagName, URL: dlURL}, nil
}

// platformAssetURL finds the download URL matching the configured OS and architecture.
func (c *Checker) platformAssetURL(assets []githubAsset) string {
	goarch := c.GOARCH
	if goarch == "amd64" {
		goarch = "x86_64"
	}
	for _, a := range assets {
		name := strings.ToLower(a.Name)
		if strings.Contains(name, c.GOOS) && strings.Contains(name, goarch) {
			return a.BrowserDownloadURL
		}
	}
	return ""
}
