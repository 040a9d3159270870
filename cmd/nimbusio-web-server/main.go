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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bowlofstew/nimbus.io/internal/logger"
	"github.com/bowlofstew/nimbus.io/internal/telemetry"
	"github.com/bowlofstew/nimbus.io/pkg/accounting"
	"github.com/bowlofstew/nimbus.io/pkg/centraldb"
	"github.com/bowlofstew/nimbus.io/pkg/cluster"
	"github.com/bowlofstew/nimbus.io/pkg/config"
	"github.com/bowlofstew/nimbus.io/pkg/eventpush"
	"github.com/bowlofstew/nimbus.io/pkg/gateway"
	"github.com/bowlofstew/nimbus.io/pkg/metrics"
	"github.com/bowlofstew/nimbus.io/pkg/nodeclient"
	"github.com/bowlofstew/nimbus.io/pkg/nodeindex"

	// Import prometheus metrics to register init() functions
	_ "github.com/bowlofstew/nimbus.io/pkg/metrics/prometheus"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = `nimbusio-web-server - nimbus.io client-facing storage gateway

Usage:
  nimbusio-web-server <command> [flags]

Commands:
  init     Initialize a sample configuration file
  start    Start the gateway server
  version  Show version information

Flags:
  --config string    Path to config file (default: $XDG_CONFIG_HOME/nimbusio/config.yaml)
  --force            Force overwrite existing config file (init command only)

Examples:
  # Initialize config file
  nimbusio-web-server init

  # Start the gateway with default config location
  nimbusio-web-server start

  # Start with a custom config
  nimbusio-web-server start --config /etc/nimbusio/config.yaml

  # Use environment variables to override config
  NIMBUSIO_LOGGING_LEVEL=DEBUG nimbusio-web-server start

Environment Variables:
  All configuration options can be overridden using environment variables.
  Format: NIMBUSIO_<SECTION>_<KEY> (use underscores for nested keys)

  Examples:
    NIMBUSIO_LOGGING_LEVEL=DEBUG
    NIMBUSIO_CLUSTER_K=8
    NIMBUSIO_METRICS_ENABLED=true
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "init":
		runInit()
	case "start":
		runStart()
	case "help", "--help", "-h":
		fmt.Print(usage)
		os.Exit(0)
	case "version", "--version", "-v":
		fmt.Printf("nimbusio-web-server %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// runInit handles the init subcommand.
func runInit() {
	initFlags := flag.NewFlagSet("init", flag.ExitOnError)
	configFile := initFlags.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/nimbusio/config.yaml)")
	force := initFlags.Bool("force", false, "Force overwrite existing config file")

	if err := initFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	var configPath string
	var err error

	if *configFile != "" {
		err = config.InitConfigToPath(*configFile, *force)
		configPath = *configFile
	} else {
		configPath, err = config.InitConfig(*force)
	}

	if err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file with your cluster's node list, K, and H")
	fmt.Println("  2. Start the gateway with: nimbusio-web-server start")
	fmt.Printf("  3. Or specify custom config: nimbusio-web-server start --config %s\n", configPath)
}

// runStart handles the start subcommand.
func runStart() {
	startFlags := flag.NewFlagSet("start", flag.ExitOnError)
	configFile := startFlags.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/nimbusio/config.yaml)")

	if err := startFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	if *configFile == "" {
		if !config.DefaultConfigExists() {
			fmt.Fprintf(os.Stderr, "Error: No configuration file found at default location: %s\n\n", config.GetDefaultConfigPath())
			fmt.Fprintln(os.Stderr, "Please initialize a configuration file first:")
			fmt.Fprintln(os.Stderr, "  nimbusio-web-server init")
			fmt.Fprintln(os.Stderr, "\nOr specify a custom config file:")
			fmt.Fprintln(os.Stderr, "  nimbusio-web-server start --config /path/to/config.yaml")
			os.Exit(1)
		}
	} else if _, err := os.Stat(*configFile); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: Configuration file not found: %s\n\n", *configFile)
		fmt.Fprintln(os.Stderr, "Please create the configuration file:")
		fmt.Fprintf(os.Stderr, "  nimbusio-web-server init --config %s\n", *configFile)
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "nimbusio-web-server",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "nimbusio-web-server",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		log.Fatalf("Failed to initialize profiling: %v", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("nimbus.io web server starting", "version", version, "commit", commit)
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}

	// Metrics registry must exist before any collaborator constructs its
	// New*Metrics instance, so IsEnabled() reflects the final state.
	var metricsRegistry = metricsInitRegistry(cfg)

	clust, err := buildCluster(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build cluster: %v", err)
	}
	logger.Info("Cluster configured", "nodes", clust.N(), "k", clust.K(), "h", clust.H())

	centralStore, err := centraldb.New(ctx, cfg.CentralDB)
	if err != nil {
		log.Fatalf("Failed to connect to central database: %v", err)
	}
	logger.Info("Central database connected")

	nodeStore, err := nodeindex.New(cfg.NodeIndex)
	if err != nil {
		log.Fatalf("Failed to open node-local index: %v", err)
	}
	logger.Info("Node-local index opened", "path", cfg.NodeIndex.Path)

	acctClient := accounting.New(cfg.Accounting)

	eventClient, err := eventpush.New(cfg.EventPush, metrics.NewBufferMetrics())
	if err != nil {
		log.Fatalf("Failed to open event-push buffer: %v", err)
	}
	go eventClient.Run(ctx)
	defer func() {
		if err := eventClient.Close(); err != nil {
			logger.Error("event-push client shutdown error", "error", err)
		}
	}()

	app := gateway.New(clust, centralStore, nodeStore, acctClient, eventClient, gateway.Config{
		SliceSize:    int(cfg.Cluster.SliceSize),
		ReplyTimeout: cfg.Cluster.ReplyTimeout,
	}, metrics.NewGatewayMetrics())

	srv := gateway.NewServer(gateway.ServerConfig{
		Addr:            cfg.HTTP.ListenAddr,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, app)

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			logger.Info("Metrics server listening", "port", cfg.Metrics.Port)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server error", "error", err)
			}
		}()
	} else {
		logger.Info("Metrics collection disabled")
	}

	go pollNodeStatus(ctx, clust, app.Metrics)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.", "addr", cfg.HTTP.ListenAddr)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			if metricsSrv != nil {
				_ = metricsSrv.Close()
			}
			os.Exit(1)
		}
		if metricsSrv != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = metricsSrv.Shutdown(shutdownCtx)
			shutdownCancel()
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
		logger.Info("Server stopped")
	}
}

// metricsInitRegistry enables the process-wide Prometheus registry when
// configured, returning nil otherwise so callers can skip serving /metrics.
func metricsInitRegistry(cfg *config.Config) *prometheus.Registry {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return metrics.InitRegistry()
}

// buildCluster constructs the Cluster and dials every configured node.
func buildCluster(ctx context.Context, cfg *config.Config) (*cluster.Cluster, error) {
	nodes := make([]cluster.Node, len(cfg.Cluster.Nodes))
	for i, n := range cfg.Cluster.Nodes {
		nodes[i] = cluster.Node{Name: n.Name, Addr: n.Addr, SegmentNum: i + 1}
	}

	clust := cluster.New(nodes, cfg.Cluster.K, cfg.Cluster.H)

	for _, n := range cfg.Cluster.Nodes {
		client := nodeclient.NewResilientClient(n.Name, n.Addr, cfg.Cluster.ReplyTimeout)
		if err := clust.RegisterClient(n.Name, client); err != nil {
			return nil, fmt.Errorf("register client for node %q: %w", n.Name, err)
		}
	}

	clust.ConnectAll(ctx)
	return clust, nil
}

// pollNodeStatus periodically reflects Cluster.NodeStatus() into the
// per-node connectivity gauge, since connection state changes happen
// inside the nodeclient (a transport failure seen by its read loop or a
// Send marks the client down; Connect marks it up) rather than in
// response to an event this process can subscribe to.
func pollNodeStatus(ctx context.Context, clust *cluster.Cluster, gm metrics.GatewayMetrics) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, connected := range clust.NodeStatus() {
				gm.NodeConnected(name, connected)
			}
		}
	}
}
