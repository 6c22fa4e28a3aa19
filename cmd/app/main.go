package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"track_record/internal/app"
	"track_record/internal/audit"
	"track_record/internal/broker"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(ctx); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	cfg := bootstrap.Config

	// 4. Supervised process: paper broker marked to market by the feed
	paper := broker.NewPaperBroker(decimal.NewFromInt(10_000))

	if cfg.Feed.WSURL != "" && len(cfg.Feed.Symbols) > 0 {
		feed := broker.NewFeedWorker(cfg.Feed.WSURL, cfg.Feed.Symbols, paper)
		if err := feed.Connect(ctx); err != nil {
			slog.Error("Failed to connect feed", slog.Any("error", err))
		}
		defer feed.Disconnect()
		slog.InfoContext(ctx, "✅ FeedWorker started", slog.Int("symbols", len(cfg.Feed.Symbols)))
	}

	// 5. Audit engine: detector + chain on one externally-clocked loop
	detector := audit.NewDetector(paper,
		cfg.Tolerance(),
		time.Duration(cfg.Audit.SnapshotIntervalSec)*time.Second)

	engine := audit.NewEngine(bootstrap.Chain, detector, paper,
		time.Duration(cfg.Audit.TickIntervalMS)*time.Millisecond,
		cfg.Account.Broker, cfg.Account.Currency)

	slog.InfoContext(ctx, "✨ Track Record operational. Press Ctrl+C to exit.")

	// Blocks until shutdown; emits best-effort SESSION_END on the way out.
	engine.Run(ctx)

	slog.Info("👋 Shut down gracefully")
}
