package background

import (
	"context"
	"log/slog"
	"time"
)

// RevocationSweeper removes revocation rows whose sessions have expired.
type RevocationSweeper interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// AuditPruner applies the audit retention policy.
type AuditPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupManager runs the periodic housekeeping tasks: sweeping the session
// revocation list and pruning the audit trail past its retention horizon.
type CleanupManager struct {
	revocations    RevocationSweeper
	audit          AuditPruner
	auditRetention time.Duration
	logger         *slog.Logger
	interval       time.Duration
	stopCh         chan struct{}
}

func NewCleanupManager(
	revocations RevocationSweeper,
	audit AuditPruner,
	auditRetention time.Duration,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		revocations:    revocations,
		audit:          audit,
		auditRetention: auditRetention,
		logger:         logger,
		interval:       interval,
		stopCh:         make(chan struct{}),
	}
}

// Start begins the periodic cleanup task. Blocks until Stop or ctx cancel.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	swept, err := cm.revocations.CleanupExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to sweep revoked sessions", slog.Any("error", err))
	} else if swept > 0 {
		cm.logger.Info("swept expired session revocations", slog.Int64("rows_deleted", swept))
	}

	if cm.audit != nil && cm.auditRetention > 0 {
		cutoff := time.Now().Add(-cm.auditRetention)
		pruned, err := cm.audit.DeleteOlderThan(cleanupCtx, cutoff)
		if err != nil {
			cm.logger.Error("failed to prune audit trail", slog.Any("error", err))
		} else if pruned > 0 {
			cm.logger.Info("pruned audit trail", slog.Int64("rows_deleted", pruned))
		}
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
