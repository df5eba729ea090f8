package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ConnectWithRetry hace PING con backoff exponencial hasta maxElapsed.
// Si se agota, el llamador decide el fallback (cola en memoria).
func ConnectWithRetry(ctx context.Context, client redis.UniversalClient, maxElapsed time.Duration, log *zap.Logger) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 200 * time.Millisecond
	expBackoff.MaxElapsedTime = maxElapsed

	attempt := 0
	operation := func() error {
		attempt++
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("Redis ping failed", zap.Int("attempt", attempt), zap.Error(err))
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		return fmt.Errorf("failed to connect to Redis after retries: %w", err)
	}
	return nil
}
