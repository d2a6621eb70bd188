// Command bench drives the benchmark/verification harness against a running
// matching engine, grounded on chives' benchmark.py. It does not spawn an
// engine process itself, matching the original's "not responsible for
// spawning matching engines" note.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/lanternex/matchingengine/internal/bench"
	"github.com/lanternex/matchingengine/internal/config"
	"github.com/lanternex/matchingengine/internal/logging"
	"github.com/lanternex/matchingengine/internal/queue"
	"github.com/lanternex/matchingengine/internal/store"
)

func main() {
	rounds := flag.Int("rounds", 1, "number of paired ask/bid orders to submit")
	symbol := flag.String("symbol", "BENCH", "company symbol to trade")
	sqlURI := flag.String("sql-uri", "", "store connection URI")
	queueHost := flag.String("queue-host", "", "broker host")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	logger, err := logging.New(logging.Config{Verbose: *verbose})
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

	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}

	consumer, err := queue.Connect(cfg.Queue, logger)
	if err != nil {
		logger.Fatal("connect queue", zap.Error(err))
	}
	defer consumer.Close()

	benchCfg := bench.DefaultConfig()
	benchCfg.Rounds = *rounds
	benchCfg.Symbol = *symbol

	result, err := bench.Run(context.Background(), st, consumer, benchCfg)
	if err != nil {
		logger.Fatal("benchmark failed", zap.Error(err))
	}

	fmt.Printf("Rounds: %d\n", result.Rounds)
	fmt.Printf("Heartbeats seen: %d\n", result.HeartbeatsSeen)
	fmt.Printf("Transactions recorded: %d\n", result.Transacted)
	fmt.Printf("Runtime: %s\n", result.Duration)
	if len(result.Mismatches) == 0 {
		fmt.Println("Benchmark correctness verified")
	} else {
		for _, m := range result.Mismatches {
			fmt.Println(m)
		}
		os.Exit(1)
	}
}
