package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/chainfoundry/blocknorm"
	"github.com/chainfoundry/blocknorm/pkg/config"
	"github.com/chainfoundry/blocknorm/pkg/core"
	"github.com/chainfoundry/blocknorm/pkg/spi"
	"github.com/chainfoundry/blocknorm/pkg/spi/eth"
	"github.com/chainfoundry/blocknorm/pkg/spi/store/pg"
	"github.com/chainfoundry/blocknorm/pkg/spi/store/redis"
	"github.com/chainfoundry/blocknorm/pkg/util"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "backfill" {
		runBackfill()
		return
	}

	runIndexer()
}

func setup(configPath string) (*config.Config, spi.BlockSource, spi.StateStore) {
	if configPath != "" {
		os.Setenv("BLOCKNORM_CONFIG_PATH", configPath)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	client, err := eth.NewClient(cfg.RPCURL, cfg.EnableCallTriggers)
	if err != nil {
		slog.Error("Failed to connect to RPC", "url", cfg.RPCURL, "error", err)
		os.Exit(1)
	}
	source := spi.NewRetryingBlockSource(client, util.NewBackoff(cfg.MaxRetries, cfg.RetryDelay))

	var store spi.StateStore
	switch cfg.DBDriver {
	case "postgres":
		store, err = pg.NewStore(cfg.DBPath)
	case "redis":
		store, err = redis.NewStore(cfg.DBPath, "", 0)
	default:
		slog.Error("Unknown DB driver", "driver", cfg.DBDriver)
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize store", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}

	return cfg, source, store
}

func runIndexer() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, source, store := setup(*configPath)

	slog.Info("Starting blocknorm", "rpc", cfg.RPCURL, "driver", cfg.DBDriver)

	indexer := blocknorm.New(cfg, source, store)

	indexer.OnReorg(func(ctx context.Context, forkPoint *core.BlockWithCalls, oldChain []*core.BlockWithCalls, newChain []*core.BlockWithCalls) error {
		slog.Warn("Resolved fork",
			"fork", forkPoint.EthereumBlock.Block.Format(),
			"reverted", len(oldChain),
			"adopted", len(newChain))
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("Shutting down")
		cancel()
	}()

	if err := indexer.Run(ctx); err != nil {
		slog.Error("Indexer stopped with error", "error", err)
		os.Exit(1)
	}
}

// runBackfill normalizes and stores a fixed height range, fetching blocks
// with bounded concurrency.
func runBackfill() {
	backfillCmd := flag.NewFlagSet("backfill", flag.ExitOnError)
	configPath := backfillCmd.String("config", "", "Path to configuration file")
	from := backfillCmd.Uint64("from", 0, "First block height to backfill")
	to := backfillCmd.Uint64("to", 0, "Last block height to backfill (inclusive)")
	concurrency := backfillCmd.Int("concurrency", 8, "Number of blocks fetched in parallel")

	if err := backfillCmd.Parse(os.Args[2:]); err != nil {
		fmt.Printf("Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	if *to < *from {
		fmt.Println("Error: -to must be >= -from")
		backfillCmd.PrintDefaults()
		os.Exit(1)
	}

	_, source, store := setup(*configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	slog.Info("Backfilling blocks", "range", fmt.Sprintf("[%d, %d]", *from, *to))

	bar := progressbar.NewOptions64(
		int64(*to-*from+1),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetDescription("Normalizing blocks..."),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(*concurrency)

	for height := *from; height <= *to; height++ {
		if ctx.Err() != nil {
			break
		}

		blockHeight := height
		eg.Go(func() error {
			block, err := source.BlockByNumber(ctx, blockHeight)
			if err != nil {
				return fmt.Errorf("failed to fetch block %d: %w", blockHeight, err)
			}
			if err := store.SaveBlock(ctx, block); err != nil {
				return fmt.Errorf("failed to store block %d: %w", blockHeight, err)
			}
			if err := bar.Add(1); err != nil {
				slog.Warn("Failed to update progress bar", "error", err)
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		slog.Error("Backfill failed", "error", err)
		os.Exit(1)
	}
	if err := bar.Finish(); err != nil {
		slog.Warn("Failed to finish progress bar", "error", err)
	}

	slog.Info("Backfill complete", "blocks", *to-*from+1)
}
