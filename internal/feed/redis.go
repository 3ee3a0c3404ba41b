package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"paper-ledger/internal/models"
)

// Key layouts for the redis feed.
const (
	latestKeyFormat  = "ledger:tick:%s"
	historyKeyFormat = "ledger:ticks:%s"
)

// RedisConfig configures the redis feed.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// HistoryLimit caps the ticks kept per symbol; 0 keeps everything.
	HistoryLimit int64
}

// RedisFeed keeps the latest tick under a plain key and the history in a
// sorted set scored by timestamp in microseconds.
type RedisFeed struct {
	client *redis.Client
	limit  int64
}

// NewRedisFeed creates a redis-backed feed and verifies connectivity.
func NewRedisFeed(ctx context.Context, cfg RedisConfig) (*RedisFeed, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return NewRedisFeedWithClient(client, cfg.HistoryLimit), nil
}

// NewRedisFeedWithClient wraps an existing client.
func NewRedisFeedWithClient(client *redis.Client, historyLimit int64) *RedisFeed {
	return &RedisFeed{client: client, limit: historyLimit}
}

// Record implements Recorder.
func (f *RedisFeed) Record(ctx context.Context, tick models.Tick) error {
	if err := Validate(&tick); err != nil {
		return err
	}
	data, err := json.Marshal(tick)
	if err != nil {
		return fmt.Errorf("failed to encode tick: %w", err)
	}

	latestKey := fmt.Sprintf(latestKeyFormat, tick.Symbol)
	historyKey := fmt.Sprintf(historyKeyFormat, tick.Symbol)
	score := float64(tick.Timestamp.UnixMicro())

	_, err = f.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		// Drop any member already stored at this timestamp.
		pipe.ZRemRangeByScore(ctx, historyKey, scoreArg(score), scoreArg(score))
		pipe.ZAdd(ctx, historyKey, redis.Z{Score: score, Member: data})
		if f.limit > 0 {
			pipe.ZRemRangeByRank(ctx, historyKey, 0, -f.limit-1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record tick history: %w", err)
	}

	current, err := f.LatestTick(ctx, tick.Symbol)
	if err == nil && current.Timestamp.After(tick.Timestamp) {
		return nil
	}
	if err := f.client.Set(ctx, latestKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to record latest tick: %w", err)
	}
	return nil
}

// LatestTick implements PriceFeed.
func (f *RedisFeed) LatestTick(ctx context.Context, symbol string) (models.Tick, error) {
	symbol = NormalizeSymbol(symbol)
	data, err := f.client.Get(ctx, fmt.Sprintf(latestKeyFormat, symbol)).Bytes()
	if err == redis.Nil {
		return models.Tick{}, noQuote(symbol)
	}
	if err != nil {
		return models.Tick{}, fmt.Errorf("failed to read latest tick: %w", err)
	}
	return decodeTick(data)
}

// TickHistory implements PriceFeed.
func (f *RedisFeed) TickHistory(ctx context.Context, symbol string, from, to time.Time) ([]models.Tick, error) {
	symbol = NormalizeSymbol(symbol)
	members, err := f.client.ZRangeByScore(ctx, fmt.Sprintf(historyKeyFormat, symbol), &redis.ZRangeBy{
		Min: scoreArg(float64(from.UnixMicro())),
		Max: scoreArg(float64(to.UnixMicro())),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read tick history: %w", err)
	}

	ticks := make([]models.Tick, 0, len(members))
	for _, m := range members {
		t, err := decodeTick([]byte(m))
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, t)
	}
	return ticks, nil
}

// Close closes the redis client.
func (f *RedisFeed) Close() error {
	return f.client.Close()
}

func scoreArg(score float64) string {
	return strconv.FormatFloat(score, 'f', 0, 64)
}

func decodeTick(data []byte) (models.Tick, error) {
	var t models.Tick
	if err := json.Unmarshal(data, &t); err != nil {
		return models.Tick{}, fmt.Errorf("failed to decode tick: %w", err)
	}
	t.Timestamp = t.Timestamp.UTC()
	return t, nil
}
