package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-bookings/internal/logger"
)

// InitializeCache sets up Redis for idempotency caching and tests the connection
func InitializeCache(redisAddr string, customLogger *logger.Logger) (*redis.Client, error) {
	var logInfo, logError func(msg string)

	if customLogger != nil {
		logInfo = func(msg string) { customLogger.Info("REDIS", msg) }
		logError = func(msg string) { customLogger.Error("REDIS", msg) }
	} else {
		logInfo = func(msg string) {}
		logError = func(msg string) {}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: "", // no password
		DB:       0,  // use default DB
		PoolSize: 10, // connection pool size
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		logError(fmt.Sprintf("Failed to connect to Redis at %s: %v", redisAddr, err))
		return nil, err
	}

	logInfo(fmt.Sprintf("Successfully connected to Redis at %s for idempotency caching", redisAddr))

	// Test writing under the idempotency prefix
	testKey := keyPrefix + "healthcheck"
	if err := redisClient.Set(ctx, testKey, "ok", 5*time.Second).Err(); err != nil {
		logError(fmt.Sprintf("Failed to write test value to Redis: %v", err))
		return nil, err
	}

	logInfo("Redis idempotency cache is ready for use")
	return redisClient, nil
}
