package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awayuki/lumiline/internal/config"
	"github.com/awayuki/lumiline/internal/filter"
	"github.com/awayuki/lumiline/internal/ops"
	"github.com/awayuki/lumiline/internal/profile"
	"github.com/awayuki/lumiline/internal/reaction"
	"github.com/awayuki/lumiline/internal/relay"
	"github.com/awayuki/lumiline/internal/storage"
	"github.com/awayuki/lumiline/internal/timeline"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
	builtBy = "manual"
)

func main() {
	// Define subcommands
	if len(os.Args) > 1 && os.Args[1] == "init" {
		handleInit()
		return
	}

	var (
		showVersion = flag.Bool("version", false, "Show version information")
		configPath  = flag.String("config", "", "Path to configuration file")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("lumiline %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		fmt.Printf("  by:     %s\n", builtBy)
		os.Exit(0)
	}

	if *configPath == "" {
		fmt.Println("lumiline - Multi-relay timeline sync engine")
		fmt.Println()
		fmt.Println("No configuration file specified. Use --config <path> to specify config.")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  lumiline init              Generate example configuration")
		fmt.Println("  lumiline --version         Show version information")
		fmt.Println("  lumiline --config <path>   Start with configuration file")
		os.Exit(1)
	}

	// Load and validate configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Starting lumiline %s\n", version)
	fmt.Printf("  Identity: %s\n", cfg.Identity.Npub)
	fmt.Printf("  Relays:   %d\n", len(cfg.Relays.Seeds))
	fmt.Println()

	// Run the application
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// noopPayer approves paid reactions without moving money. Wallet
// integration lives outside the engine; the standalone binary has no
// wallet, so paid flushes log what a wallet would have paid.
type noopPayer struct {
	log *ops.Logger
}

func (p *noopPayer) Pay(ctx context.Context, address string, amountSats int64) error {
	p.log.Info("payment skipped, no wallet configured", "address", address, "amount_sats", amountSats)
	return nil
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := ops.NewLogger(&cfg.Logging)
	ops.SetDefault(logger)
	logger.LogStartup(version, commit)

	diag := ops.NewDiagnostics(version, commit)

	// Persistent state: watermark, drafts, settings
	fmt.Println("Opening storage...")
	store, err := storage.Open(&cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()
	fmt.Printf("  Storage: %s\n", cfg.Storage.SQLitePath)

	// Relay pool
	fmt.Println("Connecting to relays...")
	client := relay.NewClient(ctx, &cfg.Relays, logger)
	defer client.Close()
	for _, seed := range cfg.Relays.Seeds {
		fmt.Printf("  %s\n", seed)
	}

	// Signing identity is optional; without it the engine is read-only
	var publisher *relay.Publisher
	var selfPubkey string
	if cfg.Identity.Nsec != "" {
		signer, err := relay.NewSigner(cfg.Identity.Nsec)
		if err != nil {
			return fmt.Errorf("failed to load signing key: %w", err)
		}
		publisher = relay.NewPublisher(client, signer, logger)
		selfPubkey = signer.PubKey()
		fmt.Println("  Signing identity loaded")
	} else {
		fmt.Println("  No signing key (LUMILINE_NSEC unset); running read-only")
	}

	// Timeline view over the configured relays
	fmt.Println("Building timeline view...")
	pipeline := filter.New(&cfg.Filters, cfg.Timeline.Kinds, logger)
	view := timeline.NewView(client, pipeline, &cfg.Timeline, timeline.Params{}, logger)
	defer view.Close()

	watermark, err := store.Watermark(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore watermark: %w", err)
	}
	if watermark > 0 {
		view.SetWatermark(watermark)
		fmt.Printf("  Watermark restored: %d\n", watermark)
	}

	added, err := view.LoadInitial(ctx)
	if err != nil {
		return fmt.Errorf("initial load failed: %w", err)
	}
	fmt.Printf("  Initial load: %d items\n", added)

	// Profile resolution for names and payment addresses
	profiles := profile.NewResolver(client, logger)

	// Reaction coordinator, only with a signing identity
	var coordinator *reaction.Coordinator
	if publisher != nil {
		coordinator = reaction.NewCoordinator(
			&cfg.Reactions, publisher, &noopPayer{log: logger}, profiles, selfPubkey, logger)
		fmt.Println("  Reaction coordinator ready")
	}

	// Forward polling
	interval := time.Duration(cfg.Timeline.PollIntervalSeconds) * time.Second
	poller := timeline.NewPoller(view, interval, logger)
	poller.OnPending(func(count int) {
		fmt.Printf("%d new post(s) available\n", count)
	})
	poller.Start(ctx)
	defer poller.Stop()
	fmt.Printf("  Polling every %s\n", interval)

	// Interaction refresh keeps counts and reaction records current
	go refreshLoop(ctx, view, coordinator, interval*2)

	fmt.Println()
	fmt.Println("✓ Timeline running")
	fmt.Println()
	fmt.Println("Press Ctrl+C to shutdown gracefully (SIGUSR1 for status)...")

	// Status report on demand
	statusChan := make(chan os.Signal, 1)
	signal.Notify(statusChan, syscall.SIGUSR1)
	go func() {
		for range statusChan {
			fmt.Print(diag.FormatReport(engineSnapshot(cfg, view)))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println()
	fmt.Println("Shutting down gracefully...")
	logger.LogShutdown("signal")
	diag.LogSnapshot(logger, engineSnapshot(cfg, view))

	if err := store.SetWatermark(ctx, view.Watermark()); err != nil {
		fmt.Fprintf(os.Stderr, "Error persisting watermark: %v\n", err)
	}

	fmt.Println("✓ Shutdown complete")
	return nil
}

// engineSnapshot gathers the current engine state for diagnostics
func engineSnapshot(cfg *config.Config, view *timeline.View) ops.EngineSnapshot {
	return ops.EngineSnapshot{
		Relays:      len(cfg.Relays.Seeds),
		Items:       len(view.Items()),
		PendingNew:  view.PendingCount(),
		OpenGaps:    len(view.Gaps()),
		Watermark:   view.Watermark(),
		HasMore:     view.HasMore(),
		StoragePath: cfg.Storage.SQLitePath,
	}
}

// refreshLoop periodically refreshes interaction counts and feeds
// fetched reactions to the coordinator
func refreshLoop(ctx context.Context, view *timeline.View, coordinator *reaction.Coordinator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reactions := view.RefreshInteractions(ctx)
			if coordinator != nil && len(reactions) > 0 {
				coordinator.Ingest(reactions)
			}
		}
	}
}

func handleInit() {
	exampleConfig, err := config.GetExampleConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading example config: %v\n", err)
		os.Exit(1)
	}

	// Write to stdout
	fmt.Print(string(exampleConfig))
}
