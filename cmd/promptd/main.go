// Promptd is a prompt orchestration daemon speaking MCP over stdio.
//
// It loads prompt, gate, and framework definitions from a catalog directory,
// executes prompt chains with session continuity and gate enforcement, and
// serves an admin HTTP API for health, metrics, and session inspection.
//
// Usage:
//
//	# Start with defaults (catalog in ./prompts)
//	promptd
//
//	# Explicit config file
//	promptd -config /etc/promptd/config.yaml
//
//	# Configure via environment
//	PROMPTD_CATALOG_DIR=/srv/prompts PROMPTD_SERVER_ADDR=:9190 promptd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/promptd/internal/catalog"
	"github.com/fyrsmithlabs/promptd/internal/command"
	"github.com/fyrsmithlabs/promptd/internal/config"
	"github.com/fyrsmithlabs/promptd/internal/events"
	"github.com/fyrsmithlabs/promptd/internal/gate"
	"github.com/fyrsmithlabs/promptd/internal/httpapi"
	"github.com/fyrsmithlabs/promptd/internal/injection"
	"github.com/fyrsmithlabs/promptd/internal/logging"
	"github.com/fyrsmithlabs/promptd/internal/mcp"
	"github.com/fyrsmithlabs/promptd/internal/pipeline"
	"github.com/fyrsmithlabs/promptd/internal/render"
	"github.com/fyrsmithlabs/promptd/internal/secrets"
	"github.com/fyrsmithlabs/promptd/internal/services"
	"github.com/fyrsmithlabs/promptd/internal/session"
	"github.com/fyrsmithlabs/promptd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  promptd            Start the promptd daemon\n")
			fmt.Fprintf(os.Stderr, "  promptd version    Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("promptd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires every service and blocks on the MCP stdio transport until the
// context is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zlog := logger.Underlying()

	zlog.Info("starting promptd",
		zap.String("version", version),
		zap.String("catalog_dir", cfg.Catalog.Dir),
		zap.String("session_store", cfg.Session.Store),
		zap.String("admin_addr", cfg.Server.Addr),
	)

	telCfg := telemetry.DefaultConfig()
	telCfg.Enabled = cfg.Telemetry.Enabled
	telCfg.ServiceName = cfg.Telemetry.ServiceName
	telCfg.ServiceVersion = version
	telCfg.Endpoint = cfg.Telemetry.Endpoint
	telCfg.Insecure = true

	tel, err := telemetry.New(ctx, telCfg, zlog)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			zlog.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	cat, err := catalog.NewFileCatalog(cfg.Catalog.Dir, zlog.Named("catalog"))
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	if cfg.Catalog.Watch {
		watcher, err := catalog.NewWatcher(cfg.Catalog.Dir, cfg.Catalog.WatchDebounce, zlog.Named("watcher"))
		if err != nil {
			return fmt.Errorf("watch catalog: %w", err)
		}
		watcher.Start(ctx)
		defer watcher.Stop()

		go func() {
			for range watcher.Reloads() {
				if err := cat.Reload(ctx); err != nil {
					zlog.Warn("catalog reload failed, keeping previous snapshot", zap.Error(err))
				}
			}
		}()
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sessions, err := session.NewManager(&session.Config{
		DefaultMaxAttempts: cfg.Gates.DefaultMaxAttempts,
	}, store, zlog.Named("session"))
	if err != nil {
		return fmt.Errorf("initialize session manager: %w", err)
	}

	if cfg.Events.Enabled {
		publisher, err := events.NewNATSPublisher(cfg.Events.URL, cfg.Events.SubjectPrefix, zlog.Named("events"))
		if err != nil {
			return fmt.Errorf("connect event publisher: %w", err)
		}
		defer publisher.Close()
		sessions.SetPublisher(publisher)
		zlog.Info("event publishing enabled", zap.String("url", cfg.Events.URL))
	}

	authority, err := gate.NewAuthority(sessions, zlog.Named("gate"))
	if err != nil {
		return fmt.Errorf("initialize gate authority: %w", err)
	}

	scrubber, err := secrets.New(&cfg.Secrets)
	if err != nil {
		return fmt.Errorf("initialize scrubber: %w", err)
	}

	injectionSvc := injection.NewService(zlog.Named("injection"))

	engine, err := pipeline.NewDefaultEngine(pipeline.Dependencies{
		Parser:          command.NewParser(),
		Catalog:         cat,
		Renderer:        render.NewTemplateRenderer(),
		Sessions:        sessions,
		Authority:       authority,
		Injection:       injectionSvc,
		GlobalInjection: cfg.Injection,
		Scrubber:        scrubber,
		Logger:          zlog.Named("pipeline"),
	})
	if err != nil {
		return fmt.Errorf("initialize pipeline: %w", err)
	}

	registry := services.NewRegistry(services.Options{
		Engine:    engine,
		Catalog:   cat,
		Sessions:  sessions,
		Authority: authority,
		Injection: injectionSvc,
		Scrubber:  scrubber,
	})

	admin, err := httpapi.NewServer(registry, zlog.Named("http"), &httpapi.Config{Addr: cfg.Server.Addr})
	if err != nil {
		return fmt.Errorf("initialize admin server: %w", err)
	}
	go func() {
		if err := admin.Start(); err != nil && err != http.ErrServerClosed {
			zlog.Error("admin server failed", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := admin.Shutdown(shutdownCtx); err != nil {
			zlog.Warn("admin server shutdown failed", zap.Error(err))
		}
	}()

	mcpServer, err := mcp.NewServer(&mcp.Config{
		Name:    "promptd",
		Version: version,
		Logger:  zlog.Named("mcp"),
	}, registry)
	if err != nil {
		return fmt.Errorf("initialize MCP server: %w", err)
	}

	// Blocks until the context is cancelled or the client disconnects.
	if err := mcpServer.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP server: %w", err)
	}
	return nil
}

// openStore selects the configured session store backend.
func openStore(cfg *config.Config) (session.Store, func(), error) {
	switch cfg.Session.Store {
	case "sqlite":
		store, err := session.NewSQLiteStore(cfg.Session.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open session store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return session.NewMemoryStore(), func() {}, nil
	}
}
