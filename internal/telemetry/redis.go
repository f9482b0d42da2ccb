package telemetry

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/silentarmy/stratum-miner/pkg/errors"
	"github.com/silentarmy/stratum-miner/pkg/log"
	"github.com/silentarmy/stratum-miner/pkg/retry"
)

const (
	redisLastKey    = "sa_miner:last_stats"
	redisHistoryKey = "sa_miner:stats_history"
	redisHistoryCap = 100
)

// NewRedisSink publishes each stats line to a Redis key (last sample) and a
// capped list (recent history), for an external dashboard to poll.
func NewRedisSink(addr string, logger *log.Logger) (*AsyncSink, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	pingErr := retry.Do(ctx, retry.NetworkConfig(), func() error {
		return rdb.Ping(ctx).Err()
	})
	if pingErr != nil {
		return nil, errors.Wrap(pingErr, errors.ErrorTypeTelemetry, "redis_connect", "failed to reach Redis").
			WithContext("addr", addr)
	}

	return newAsyncSink("redis", logger, func(ctx context.Context, line string) error {
		pipe := rdb.Pipeline()
		pipe.Set(ctx, redisLastKey, line, 0)
		pipe.LPush(ctx, redisHistoryKey, line)
		pipe.LTrim(ctx, redisHistoryKey, 0, redisHistoryCap-1)
		_, err := pipe.Exec(ctx)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeTelemetry, "redis_publish", "failed to write stats to Redis")
		}
		return nil
	}), nil
}
