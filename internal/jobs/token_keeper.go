package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/fleet-telemetry/internal/metrics"
)

// Refresher refreshes the access token when it is about to expire. *auth.Executor satisfies it.
type Refresher interface {
	EnsureFresh(ctx context.Context, window time.Duration) (bool, error)
}

// TokenKeeper periodically refreshes the access token ahead of expiry so that
// request paths rarely pay for a 401 round trip.
type TokenKeeper struct {
	logger    *zap.Logger
	refresher Refresher
	interval  time.Duration
	window    time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewTokenKeeper constructs the job. window is how far ahead of expiry a refresh is triggered.
func NewTokenKeeper(logger *zap.Logger, refresher Refresher, interval, window time.Duration) *TokenKeeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenKeeper{
		logger:    logger,
		refresher: refresher,
		interval:  interval,
		window:    window,
		stopCh:    make(chan struct{}),
	}
}

// Start runs the keeper loop until Stop or ctx cancellation.
func (k *TokenKeeper) Start(ctx context.Context) {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	k.logger.Info("token_keeper.started",
		zap.Duration("interval", k.interval),
		zap.Duration("window", k.window))

	for {
		select {
		case <-ticker.C:
			k.runOnce(ctx)
		case <-k.stopCh:
			k.logger.Info("token_keeper.stopped", zap.String("reason", "stop"))
			return
		case <-ctx.Done():
			k.logger.Info("token_keeper.stopped", zap.String("reason", "context"))
			return
		}
	}
}

func (k *TokenKeeper) Stop() {
	k.stopOnce.Do(func() { close(k.stopCh) })
}

func (k *TokenKeeper) runOnce(ctx context.Context) {
	refreshed, err := k.refresher.EnsureFresh(ctx, k.window)
	if err != nil {
		metrics.IncError("token_keeper", "refresh_failed")
		k.logger.Warn("token_keeper.refresh_failed", zap.Error(err))
		return
	}
	if refreshed {
		k.logger.Info("token_keeper.refreshed")
	}
}
