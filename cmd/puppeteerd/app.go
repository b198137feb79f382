package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/GoCodeAlone/puppeteer/agent"
	"github.com/GoCodeAlone/puppeteer/board"
	"github.com/GoCodeAlone/puppeteer/config"
	"github.com/GoCodeAlone/puppeteer/events"
	"github.com/GoCodeAlone/puppeteer/internal/version"
	"github.com/GoCodeAlone/puppeteer/memory"
	"github.com/GoCodeAlone/puppeteer/plugin"
	"github.com/GoCodeAlone/puppeteer/plugin/tools"
	"github.com/GoCodeAlone/puppeteer/provider"
	"github.com/GoCodeAlone/puppeteer/server"
)

const shutdownTimeout = 30 * time.Second

// app owns every long-lived component of the daemon.
type app struct {
	logger  *slog.Logger
	board   *board.Board
	bus     *events.InMemoryBus
	manager *agent.Manager
	server  *server.Server

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger, bus: events.NewInMemoryBus()}
	if err := a.init(ctx, cfg); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, cfg *config.Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Board snapshot.
	var (
		snap    board.Snapshotter
		boardDB *sql.DB
	)
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		store, err := board.NewSQLite(filepath.Join(cfg.DataDir, "puppeteer.db"))
		if err != nil {
			return err
		}
		a.closers = append(a.closers, store.Close)
		snap, boardDB = store, store.DB()
	default:
		snap = board.NewJSONFile(filepath.Join(cfg.DataDir, "kanban.json"))
	}
	a.board = board.New(
		board.WithSnapshotter(snap),
		board.WithBus(a.bus),
		board.WithLogger(a.logger),
	)

	mem, err := a.openMemory(cfg, boardDB)
	if err != nil {
		return err
	}

	registry, err := a.buildTools(ctx, cfg)
	if err != nil {
		return err
	}

	a.manager = agent.NewManager(agent.LoopConfig{
		Board:           a.board,
		Tools:           registry,
		Providers:       agent.CachedProviders(resolver(cfg.Provider, a.logger)),
		Memory:          mem,
		Bus:             a.bus,
		Logger:          a.logger,
		IdleBackoff:     cfg.Loop.IdleBackoff,
		Pacing:          cfg.Loop.Pacing,
		DecisionTimeout: cfg.Loop.DecisionTimeout,
		ToolTimeout:     cfg.Loop.ToolTimeout,
		RecentLogDays:   cfg.Loop.RecentLogs,
	})

	a.server = server.New(cfg.Server.Addr, server.Deps{
		Board:  a.board,
		Loops:  a.manager,
		Memory: mem,
		Bus:    a.bus,
	}, version.Version, a.logger)
	return nil
}

func (a *app) openMemory(cfg *config.Config, boardDB *sql.DB) (memory.Store, error) {
	opts := []memory.Option{memory.WithLogger(a.logger)}
	if cfg.MemoryDriver() != config.DriverSQLite {
		fs, err := memory.NewFileStore(cfg.MemoryDir(), opts...)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, fs.Close)
		return fs, nil
	}

	db := boardDB
	if db == nil {
		var err error
		db, err = sql.Open("sqlite", filepath.Join(cfg.DataDir, "memory.db"))
		if err != nil {
			return nil, fmt.Errorf("open memory db: %w", err)
		}
		db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
		a.closers = append(a.closers, db.Close)
	}
	return memory.NewSQLiteStore(db, opts...)
}

func (a *app) buildTools(ctx context.Context, cfg *config.Config) (*plugin.Registry, error) {
	tc := tools.Config{Workspace: cfg.Tools.Workspace}

	if sb := cfg.Tools.Sandbox; sb.Image != "" {
		sandbox, err := tools.NewDockerSandbox(ctx, tools.SandboxConfig{
			Image:       sb.Image,
			Workspace:   cfg.Tools.Workspace,
			NetworkMode: sb.NetworkMode,
			MemoryLimit: sb.MemoryLimit,
			CPULimit:    sb.CPULimit,
			Env:         sb.Env,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, sandbox.Close)
		tc.Executor = sandbox
		a.logger.Info("run_command sandboxed", "image", sb.Image)
	}

	if cfg.Tools.Browser.Enabled {
		bm := tools.NewBrowserManager(cfg.Tools.Browser.Headless)
		if bm.IsAvailable() {
			a.closers = append(a.closers, bm.Shutdown)
			tc.Browser = bm
		} else {
			a.logger.Warn("browser enabled but no Chrome/Chromium found, browse_page disabled")
		}
	}

	registry := plugin.NewRegistry(tools.Builtins(tc)...)
	a.logger.Info("tools registered", "tools", strings.Join(registry.Names(), ","))
	return registry, nil
}

// resolver maps an agent's config onto a provider using the daemon's
// credentials. A key on the agent wins over the configured one.
func resolver(pc config.ProviderConfig, logger *slog.Logger) agent.ProviderFunc {
	return func(ctx context.Context, ac agent.Config) (provider.Provider, error) {
		return provider.New(ctx, providerConfig(pc, ac), logger)
	}
}

func providerConfig(pc config.ProviderConfig, ac agent.Config) provider.Config {
	c := provider.Config{
		Name:       ac.Provider,
		Model:      ac.Model,
		APIKey:     ac.APIKey,
		AWSRegion:  pc.AWSRegion,
		AWSProfile: pc.AWSProfile,
	}
	var key string
	switch strings.ToLower(ac.Provider) {
	case "anthropic":
		key, c.BaseURL = pc.AnthropicAPIKey, pc.AnthropicBaseURL
	case "openai":
		key, c.BaseURL = pc.OpenAIAPIKey, pc.OpenAIBaseURL
	case "openrouter":
		key = pc.OpenRouterAPIKey
	case "ollama":
		c.BaseURL = pc.OllamaBaseURL
	case "gemini", "gemini-cli":
		key = pc.GeminiAPIKey
	}
	if c.APIKey == "" {
		c.APIKey = key
	}
	return c
}

// run serves until ctx is cancelled, then stops every agent loop before
// shutting the HTTP server down.
func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.server.Start)
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		var errs []error
		if err := a.manager.StopAll(sctx); err != nil {
			errs = append(errs, fmt.Errorf("stop agent loops: %w", err))
		}
		if err := a.server.Stop(sctx); err != nil {
			errs = append(errs, fmt.Errorf("stop server: %w", err))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

// close releases storage, the sandbox and the browser in reverse order of
// creation.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close", slog.Any("err", err))
		}
	}
	a.closers = nil
}
