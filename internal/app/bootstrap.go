package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"track_record/internal/audit"
	"track_record/internal/infra"
	"track_record/internal/infra/ingest"
	"track_record/internal/infra/storage"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Storage *storage.Storage
	Client  *ingest.Client
	Chain   *audit.Chain
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization: config, logger, local
// stores, and the chain head (loaded, recovered, or genesis).
func (b *Bootstrap) Initialize(ctx context.Context) error {
	slog.Info("🚀 Bootstrapping Track Record...")

	// 1. Load Config
	cfg, err := infra.LoadConfig("configs/config.yaml")
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Instance identity
	instanceID := cfg.Audit.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
		slog.Warn("no instance_id configured, generated one for this run",
			slog.String("instanceId", instanceID),
			slog.String("hint", "set audit.instance_id (or TRACK_INSTANCE_ID) to keep one chain identity across restarts"))
	}

	// 4. Initialize Storage (primary DB + secondary seq cache)
	store, err := storage.NewStorage(cfg.StableID())
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Local stores initialized")

	// 5. Ingest client
	b.Client = ingest.NewClient(cfg, instanceID)

	// 6. Chain head: local reload first, remote recovery second,
	//    genesis last.
	seqNo, lastHash, err := b.loadChainHead(ctx, instanceID)
	if err != nil {
		return err
	}
	b.Chain = audit.NewChain(instanceID, seqNo, lastHash, b.Client, store)
	slog.Info("✅ Chain state ready",
		slog.Uint64("seqNo", seqNo),
		slog.String("lastHash", lastHash))

	return nil
}

func (b *Bootstrap) loadChainHead(ctx context.Context, instanceID string) (uint64, string, error) {
	localSeq, localHash, found, err := b.Storage.LoadChainState(instanceID)
	if err != nil {
		// Surfaced but not fatal: fall through to remote recovery.
		slog.Error("local chain state unreadable", slog.Any("error", err))
	}
	if found && localHash != "" {
		return localSeq, localHash, nil
	}

	// Nothing local, or only the secondary seq slot survived the restart.
	// A seq without its hash cannot extend the chain, so ask the remote
	// authority for the true head before considering genesis.
	recCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if recSeq, recHash, ok := b.Client.Recover(recCtx, instanceID); ok {
		if found && localSeq > recSeq {
			// Never regress below the secondary's high-water mark.
			recSeq = localSeq
		}
		slog.Info("chain state recovered from remote authority",
			slog.Uint64("seqNo", recSeq))
		return recSeq, recHash, nil
	}

	infra.GlobalMetrics.RecordRecoveryFallback()
	if found {
		slog.Warn("primary state lost and remote authority unreachable, chain continuity breaks here",
			slog.String("instanceId", instanceID),
			slog.Uint64("seqNo", localSeq))
		return localSeq, audit.GenesisHash, nil
	}
	slog.Warn("no prior chain state anywhere, starting fresh from genesis",
		slog.String("instanceId", instanceID))
	return 0, audit.GenesisHash, nil
}
