package service

import (
	"context"
	"log/slog"
	"time"
)

// Purger removes expired refresh records.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// RunJanitor calls PurgeExpired every interval until ctx is done.
func RunJanitor(ctx context.Context, p Purger, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				logger.Error("refresh token purge error", slog.String("error", err.Error()))
			} else if n > 0 {
				purged.Add(float64(n))
				logger.Info("expired refresh tokens purged", slog.Int64("purged", n))
			}
		}
	}
}
