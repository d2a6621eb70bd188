// Command matchingengine runs the order matching engine: initdb creates the
// schema, start_engine runs the queue consumption loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/lanternex/matchingengine/internal/config"
	"github.com/lanternex/matchingengine/internal/engine"
	"github.com/lanternex/matchingengine/internal/logging"
	"github.com/lanternex/matchingengine/internal/metrics"
	"github.com/lanternex/matchingengine/internal/queue"
	"github.com/lanternex/matchingengine/internal/store"
)

const (
	appName    = "matchingengine"
	appVersion = "1.0.0"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "initdb":
		runInitDB(os.Args[2:])
	case "start_engine":
		runStartEngine(os.Args[2:])
	case "version":
		fmt.Printf("%s v%s\n", appName, appVersion)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("%s v%s\n", appName, appVersion)
	fmt.Printf("Usage: %s <command> [options]\n\n", os.Args[0])
	fmt.Println("Commands:")
	fmt.Println("  initdb        - Create the store schema")
	fmt.Println("  start_engine  - Run the order matching engine loop")
	fmt.Println("  version       - Show version information")
	fmt.Println("  help          - Show this help message")
}

func runInitDB(args []string) {
	fs := flag.NewFlagSet("initdb", flag.ExitOnError)
	sqlURI := fs.String("sql-uri", "", "store connection URI (defaults to SQLALCHEMY_URI / built-in default)")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	logFile := fs.String("log-file", "", "rotating log file path, in addition to stderr")
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parse flags: %v", err)
	}

	logger, err := logging.New(logging.Config{Verbose: *verbose, File: *logFile})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.FromEnvironment()
	if *sqlURI != "" {
		cfg.Store.URI = *sqlURI
	}

	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}

	if err := store.Migrate(st); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	logger.Info("schema created")
}

func runStartEngine(args []string) {
	fs := flag.NewFlagSet("start_engine", flag.ExitOnError)
	sqlURI := fs.String("sql-uri", "", "store connection URI")
	queueHost := fs.String("queue-host", "", "broker host")
	dryRun := fs.Bool("dry-run", false, "receive messages but skip match/commit")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	logFile := fs.String("log-file", "", "rotating log file path, in addition to stderr")
	metricsAddr := fs.String("metrics-addr", ":9090", "address to serve /metrics on")
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parse flags: %v", err)
	}

	logger, err := logging.New(logging.Config{Verbose: *verbose, File: *logFile})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.FromEnvironment()
	if *sqlURI != "" {
		cfg.Store.URI = *sqlURI
	}
	if *queueHost != "" {
		cfg.Queue.Host = *queueHost
	}
	if *dryRun {
		cfg.DryRun = true
	}

	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}

	consumer, err := queue.Connect(cfg.Queue, logger)
	if err != nil {
		logger.Fatal("connect queue", zap.Error(err))
	}
	defer consumer.Close()

	eng := engine.New(st, engine.Config{
		DryRun:              cfg.DryRun,
		SkipAssetSettlement: cfg.SkipAssetSettlement,
		MaxRetries:          uint64(cfg.MaxRetries),
	}, logger)

	go func() {
		if err := metrics.Serve(*metricsAddr); err != nil {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("engine started", zap.String("queue_host", cfg.Queue.Host), zap.Bool("dry_run", cfg.DryRun))

	if err := consumer.Consume(ctx, eng.Handler()); err != nil && ctx.Err() == nil {
		logger.Fatal("consume loop stopped unexpectedly", zap.Error(err))
	}

	logger.Info("engine shut down")
}
