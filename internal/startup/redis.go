package startup

import (
	"context"
	"os"
	"time"

	"github.com/sessiond/internal/logger"
	redisstorage "github.com/sessiond/internal/storage/redis"
)

// ConnectRedisWithRetry подключается к Redis-бэкенду сессий с повторами.
func ConnectRedisWithRetry(redisURL string, maxWait time.Duration, logPrefix string) *redisstorage.Client {
	var client *redisstorage.Client
	err := retry("redis", maxWait, logPrefix, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c, err := redisstorage.New(ctx, redisURL)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		logger.Errorf("%sconnect to %v", logPrefix, err)
		os.Exit(1)
	}
	return client
}
