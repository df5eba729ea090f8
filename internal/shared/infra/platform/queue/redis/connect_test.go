package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestConnectWithRetry_OK(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	assert.NoError(t, ConnectWithRetry(context.Background(), client, time.Second, zap.NewNop()))
}

func TestConnectWithRetry_GivesUp(t *testing.T) {
	// nada escucha en el puerto 1
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	err := ConnectWithRetry(context.Background(), client, 300*time.Millisecond, zap.NewNop())
	assert.ErrorContains(t, err, "failed to connect to Redis")
}
