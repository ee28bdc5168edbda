package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	cmdconfig "github.com/pairpool/pairpool-engine-go/cmd/engine/config"
	"github.com/pairpool/pairpool-engine-go/engine"
	"github.com/pairpool/pairpool-engine-go/gateway"
	"github.com/pairpool/pairpool-engine-go/storage/postgres"
	"github.com/pairpool/pairpool-engine-go/streams/wsfeed"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := cmdconfig.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vault := gateway.NewVault()
	if err := seedVault(vault, cfg.Seed); err != nil {
		return fmt.Errorf("seed gateway: %w", err)
	}

	registry := prometheus.NewRegistry()
	eng, err := engine.New(engine.Config{
		Gateway:         vault,
		Logger:          logger.With("component", "engine"),
		Registry:        registry,
		EventBufferSize: cfg.EventBuffer,
	})
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}

	feed, err := wsfeed.NewServer(wsfeed.Config{
		Events: eng.Events(),
		Logger: logger.With("component", "wsfeed"),
	})
	if err != nil {
		return fmt.Errorf("init feed: %w", err)
	}
	defer feed.Close()

	if cfg.PgDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PgDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		go runSink(ctx, eng, store, cfg.SnapshotInterval, logger.With("component", "pg-sink"))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/events", feed)
	mux.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(eng.State()); err != nil {
			logger.Warn("Failed to write state response", "error", err)
		}
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Engine listening", "addr", cfg.Listen, "pg_sink", cfg.PgDSN != "")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// runSink flushes new events and the current pool views to Postgres on a
// fixed cadence, resuming from the last stored sequence so restarts do not
// lose or duplicate events.
func runSink(ctx context.Context, eng *engine.Engine, store *postgres.Store, interval time.Duration, logger *slog.Logger) {
	cursor, _, err := store.LastSequence(ctx)
	if err != nil {
		logger.Error("Failed to read sink cursor, starting from zero", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch := eng.Events().SnapshotFrom(cursor)
			if len(batch) > 0 {
				if err := store.InsertEvents(ctx, batch); err != nil {
					logger.Error("Failed to persist events, will retry", "error", err, "batch", len(batch))
					continue
				}
				cursor = batch[len(batch)-1].Sequence
			}
			if err := store.UpsertPoolSnapshots(ctx, eng.State().Pools); err != nil {
				logger.Error("Failed to persist pool snapshots", "error", err)
			}
		}
	}
}

// seedVault credits initial balances given as "asset:holder:amount" triples.
func seedVault(vault *gateway.Vault, seeds []string) error {
	for _, seed := range seeds {
		parts := strings.Split(seed, ":")
		if len(parts) != 3 {
			return fmt.Errorf("invalid seed %q, want asset:holder:amount", seed)
		}
		asset, err := parseAddress(parts[0])
		if err != nil {
			return fmt.Errorf("invalid seed asset %q: %w", parts[0], err)
		}
		holder, err := parseAddress(parts[1])
		if err != nil {
			return fmt.Errorf("invalid seed holder %q: %w", parts[1], err)
		}
		amount, err := uint256.FromDecimal(parts[2])
		if err != nil {
			return fmt.Errorf("invalid seed amount %q: %w", parts[2], err)
		}
		if err := vault.Credit(asset, holder, amount); err != nil {
			return err
		}
	}
	return nil
}

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, errors.New("not a hex address")
	}
	return common.HexToAddress(raw), nil
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler), nil
}
