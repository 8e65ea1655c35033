package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcpgate/mcpgate/internal/api"
	"github.com/mcpgate/mcpgate/internal/config"
	"github.com/mcpgate/mcpgate/internal/connection"
	"github.com/mcpgate/mcpgate/internal/events"
	"github.com/mcpgate/mcpgate/internal/health"
	"github.com/mcpgate/mcpgate/internal/journal"
	"github.com/mcpgate/mcpgate/internal/log"
	"github.com/mcpgate/mcpgate/internal/registry"
	"github.com/mcpgate/mcpgate/internal/routing"
	"github.com/mcpgate/mcpgate/internal/strategy"
	"github.com/mcpgate/mcpgate/internal/task"
	"github.com/mcpgate/mcpgate/internal/tui"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "start":
		os.Exit(runStart(args, false))
	case "watch":
		os.Exit(runStart(args, true))
	case "version":
		fmt.Printf("mcpgate version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`mcpgate - capability server routing gateway

Usage:
  mcpgate <command> [flags]

Commands:
  start     Run the gateway in the foreground
  watch     Run the gateway with the live health dashboard
  version   Show version information
  help      Show this help message

Flags:
  --config <path>        Path to the configuration file (required)
  --verify-hash <hex>    Refuse to start unless the configuration file
                         matches this BLAKE3 digest
`)
}

func runStart(args []string, watch bool) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	verifyHash := fs.String("verify-hash", "", "Expected BLAKE3 digest of the configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "--config is required")
		return 1
	}

	if *verifyHash != "" {
		if err := config.VerifyFileHash(*configPath, *verifyHash); err != nil {
			fmt.Fprintf(os.Stderr, "Config verification failed: %v\n", err)
			return 1
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("mcpgate starting",
		"version", version, "config", *configPath, "config_digest", cfg.SourceDigest)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := events.NewHub(256)
	reg := registry.New(hub)

	hasInternal := false
	kinds := make(map[string]task.ServerKind, len(cfg.Servers))
	for id, srv := range cfg.Servers {
		kinds[id] = task.ServerKind(srv.Kind)
		if srv.Internal {
			hasInternal = true
		}
		if err := reg.Register(id, toCapabilities(srv.Capabilities)); err != nil {
			logger.Error("server registration failed", "server_id", id, "error", err)
			return 1
		}
	}

	var jrn *journal.Journal
	if cfg.Journal.Enabled {
		jrn, err = journal.Open(ctx, cfg.Journal.Path)
		if err != nil {
			logger.Error("failed to open journal", "path", cfg.Journal.Path, "error", err)
			return 1
		}
		defer jrn.Close()
		detach := jrn.Attach(hub)
		defer detach()
		logger.Info("journal opened", "path", cfg.Journal.Path)
	}

	var tasks task.Service
	if cfg.Coordinator.URL != "" {
		tasks = task.NewClient(cfg.Coordinator.URL, cfg.Coordinator.APIKey, cfg.Coordinator.Timeout)
	} else if hasInternal {
		logger.Error("internal servers configured but coordinator.url is empty")
		return 1
	}

	supervisor := connection.NewSupervisor(func(serverID string, available bool) {
		if err := reg.SetAvailability(serverID, available); err != nil {
			logger.Warn("availability update failed", "server_id", serverID, "error", err)
		}
	})
	for id, srv := range cfg.Servers {
		if srv.Internal {
			continue
		}
		var transport connection.Transport
		switch srv.Transport {
		case config.TransportWebSocket:
			transport = connection.NewWebSocketTransport(srv.URL, srv.APIKey)
		default:
			transport = connection.NewHTTPTransport(srv.URL, srv.APIKey, srv.Timeout)
		}
		breaker := connection.NewBreaker(cfg.Breaker.Threshold, cfg.Breaker.ResetAfter)
		supervisor.Add(connection.NewConn(id, transport, breaker, hub))
	}
	defer supervisor.CloseAll()
	supervisor.ConnectAll(ctx)

	if tasks != nil {
		announceInternalServers(ctx, tasks, cfg, logger)
	}

	engine := routing.NewEngine(reg, hub, cfg.Routing)
	coordinator := strategy.NewCoordinator(reg, supervisor, tasks, kinds)

	monitor := health.NewMonitor(reg, supervisor, tasks, hub, cfg.Service.HealthInterval)
	monitor.Start(ctx)
	defer monitor.Stop()

	decider := &journalingDecider{engine: engine, journal: jrn, hub: hub}

	errCh := make(chan error, 1)
	if cfg.API.Enabled {
		apiServer := api.New(api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.APIKey,
		}, decider, coordinator, reg, hub, log.WithComponent("api"))

		go func() {
			if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("api server: %w", err)
			}
		}()
	}

	if watch {
		// The dashboard owns the terminal; quitting it stops the gateway.
		if err := tui.Run(reg.Snapshot, hub); err != nil {
			logger.Error("watch dashboard failed", "error", err)
			return 1
		}
		if err := pendingComponentFailure(errCh); err != nil {
			logger.Error("component failed", "error", err)
			return 1
		}
		logger.Info("mcpgate stopped")
		return 0
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	cancel()
	// Give the API server a moment to drain.
	time.Sleep(100 * time.Millisecond)
	logger.Info("mcpgate stopped")
	return 0
}

// pendingComponentFailure drains an asynchronous component error, if any,
// without blocking. The watch dashboard swallows stderr while it owns the
// terminal, so failures surface once it exits.
func pendingComponentFailure(errCh <-chan error) error {
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// journalingDecider wraps the routing engine so every decision is announced
// on the hub and appended to the audit journal.
type journalingDecider struct {
	engine  *routing.Engine
	journal *journal.Journal
	hub     *events.Hub
}

func (d *journalingDecider) Decide(op routing.OperationContext) routing.Decision {
	decision := d.engine.Decide(op)

	d.hub.Publish(events.TypeRouteDecided, map[string]any{
		"request_id": op.RequestID,
		"operation":  op.Operation,
		"targets":    decision.TargetServers,
		"strategy":   string(decision.Strategy),
	})
	if d.journal != nil {
		d.journal.RecordDecision(context.Background(), op.RequestID, op.Operation, decision)
	}
	return decision
}

func toCapabilities(confs []config.CapabilityConf) []registry.Capability {
	out := make([]registry.Capability, 0, len(confs))
	for _, c := range confs {
		out = append(out, registry.Capability{
			Name:          c.Name,
			ToolPatterns:  c.Tools,
			DomainHints:   c.Domains,
			ComplexityMin: c.ComplexityMin,
			ComplexityMax: c.ComplexityMax,
		})
	}
	return out
}

// announceInternalServers registers every internal server with the
// coordination service. Failures are logged; the health monitor will surface
// an unreachable coordinator soon enough.
func announceInternalServers(ctx context.Context, tasks task.Service, cfg *config.Config, logger *slog.Logger) {
	for id, srv := range cfg.Servers {
		if !srv.Internal {
			continue
		}
		caps := make([]string, 0, len(srv.Capabilities))
		for _, c := range srv.Capabilities {
			caps = append(caps, c.Name)
		}
		err := tasks.RegisterServer(ctx, task.ServerRegistration{
			ID:           id,
			Name:         id,
			Version:      version,
			Description:  srv.Description,
			Capabilities: caps,
		})
		if err != nil {
			logger.Warn("internal server announcement failed", "server_id", id, "error", err)
		}
	}
}
