package redis

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/guxdde/base-auth-service/internal/adapters/config"
	"github.com/guxdde/base-auth-service/internal/adapters/metrics"
	"github.com/guxdde/base-auth-service/internal/domain"
)

const (
	connectPollInterval = 100 * time.Millisecond
	connectPollBudget   = 5 * time.Second
	dialTimeout         = 5 * time.Second
	socketTimeout       = 5 * time.Second
	keepAliveInterval   = 30 * time.Second
)

// errDegraded marks an operation that was absorbed after the retry budget
// ran out. It never leaves this package; public methods translate it into
// the operation's neutral zero result.
var errDegraded = errors.New("redis operation degraded")

// Client implements domain.CacheStore over a single shared go-redis
// connection. Connection management follows a lazy-connect model: the first
// operation dials, a throttled PING keeps the handle honest, and a transient
// failure triggers at most one forced reconnect and retry. Once the bounded
// retry counter is spent, operations short-circuit to neutral results until
// a health check succeeds again.
type Client struct {
	logger      domain.Logger
	cfgProvider config.Provider

	mu              sync.Mutex // guards the connection state below
	rdb             *goredis.Client
	connecting      bool
	lastHealthCheck time.Time
	retries         int
}

// NewClient creates a lazily connecting cache client. No network activity
// happens until the first operation.
func NewClient(cfgProvider config.Provider, logger domain.Logger) *Client {
	if cfgProvider == nil {
		panic("config provider cannot be nil in redis.NewClient")
	}
	if logger == nil {
		panic("logger cannot be nil in redis.NewClient")
	}
	return &Client{
		logger:      logger,
		cfgProvider: cfgProvider,
	}
}

func (c *Client) lock()   { c.mu.Lock() }
func (c *Client) unlock() { c.mu.Unlock() }

func (c *Client) maxRetries() int {
	if n := c.cfgProvider.Get().Cache.MaxRetries; n > 0 {
		return n
	}
	return 3
}

func (c *Client) healthCheckInterval() time.Duration {
	if s := c.cfgProvider.Get().Cache.HealthCheckIntervalSeconds; s > 0 {
		return time.Duration(s) * time.Second
	}
	return 60 * time.Second
}

// healthCheck probes the connection with PING, throttled so most operations
// skip the round trip. A successful probe resets the retry counter.
func (c *Client) healthCheck(ctx context.Context, force bool) bool {
	c.lock()
	rdb := c.rdb
	due := force || time.Since(c.lastHealthCheck) >= c.healthCheckInterval()
	c.unlock()

	if rdb == nil {
		return false
	}
	if !due {
		return true
	}

	pingCtx, cancel := context.WithTimeout(ctx, socketTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		c.logger.Warn(ctx, "Redis health check failed", "error", err.Error())
		return false
	}

	c.lock()
	c.lastHealthCheck = time.Now()
	c.retries = 0
	c.unlock()
	return true
}

// ensureConnection makes sure a live handle exists, dialing lazily on first
// use and re-dialing when a (possibly forced) health check fails.
func (c *Client) ensureConnection(ctx context.Context, force bool) {
	c.lock()
	connected := c.rdb != nil
	c.unlock()

	if !connected {
		c.initConnection(ctx)
		return
	}
	if !c.healthCheck(ctx, force) {
		c.initConnection(ctx)
	}
}

// initConnection dials a fresh connection, replacing any previous handle.
// Concurrent initializations are serialized: a second caller arriving while
// one is in flight waits (bounded poll) instead of racing a duplicate dial.
func (c *Client) initConnection(ctx context.Context) {
	c.lock()
	if c.connecting {
		c.unlock()
		deadline := time.Now().Add(connectPollBudget)
		for time.Now().Before(deadline) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(connectPollInterval):
			}
			c.lock()
			inFlight := c.connecting
			c.unlock()
			if !inFlight {
				return
			}
		}
		return
	}
	c.connecting = true
	old := c.rdb
	c.rdb = nil
	c.unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			c.logger.Warn(ctx, "Failed to close stale Redis connection", "error", err.Error())
		}
	}

	cfg := c.cfgProvider.Get().Redis
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  socketTimeout,
		WriteTimeout: socketTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	err := rdb.Ping(pingCtx).Err()
	cancel()

	c.lock()
	defer func() {
		c.connecting = false
		c.unlock()
	}()

	if err != nil {
		c.retries++
		metrics.IncrementCacheReconnects("failed")
		c.logger.Error(ctx, "Redis connection failed",
			"address", cfg.Address, "attempt", c.retries, "max_retries", c.maxRetries(), "error", err.Error())
		_ = rdb.Close()
		return
	}

	c.rdb = rdb
	c.lastHealthCheck = time.Now()
	c.retries = 0
	metrics.IncrementCacheReconnects("ok")
	c.logger.Info(ctx, "Redis connection established", "address", cfg.Address, "db", cfg.DB)
}

// acquire returns a live handle, dialing lazily if needed. nil means the
// store is unreachable and the operation should degrade.
func (c *Client) acquire(ctx context.Context) *goredis.Client {
	c.lock()
	rdb := c.rdb
	c.unlock()
	if rdb != nil {
		return rdb
	}
	c.ensureConnection(ctx, false)
	c.lock()
	rdb = c.rdb
	c.unlock()
	return rdb
}

// Close tears the connection down. The client can be reused afterwards; the
// next operation reconnects lazily.
func (c *Client) Close() error {
	c.lock()
	rdb := c.rdb
	c.rdb = nil
	c.lastHealthCheck = time.Time{}
	c.unlock()
	if rdb == nil {
		return nil
	}
	return rdb.Close()
}

// isTransientError reports whether an operation failure warrants a forced
// reconnect and a single retry.
func isTransientError(err error) bool {
	if err == nil || errors.Is(err, goredis.Nil) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	if errors.Is(err, goredis.ErrClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// execute runs op against the current connection with the retry-driven
// reconnect policy from the connection contract. The returned error is
// either nil, goredis.Nil (key/member absent) or errDegraded.
func execute[T any](ctx context.Context, c *Client, opName string, op func(rdb *goredis.Client) (T, error)) (T, error) {
	var zero T

	rdb := c.acquire(ctx)
	if rdb == nil {
		metrics.IncrementCacheDegraded(opName)
		return zero, errDegraded
	}

	val, err := op(rdb)
	if err == nil || errors.Is(err, goredis.Nil) {
		return val, err
	}

	if isTransientError(err) {
		c.logger.Warn(ctx, "Redis connection error, attempting reconnect", "op", opName, "error", err.Error())

		c.lock()
		exhausted := c.retries >= c.maxRetries()
		c.unlock()

		if !exhausted {
			c.ensureConnection(ctx, true)
			if rdb = c.acquire(ctx); rdb != nil {
				val, err = op(rdb)
				if err == nil || errors.Is(err, goredis.Nil) {
					return val, err
				}
				c.logger.Error(ctx, "Redis operation failed after reconnect", "op", opName, "error", err.Error())
			}
		} else {
			c.logger.Error(ctx, "Redis retry budget exhausted", "op", opName, "max_retries", c.maxRetries())
		}
	} else {
		c.logger.Warn(ctx, "Redis operation failed", "op", opName, "error", err.Error())
	}

	metrics.IncrementCacheDegraded(opName)
	return zero, errDegraded
}

// lookupErr maps absent-or-degraded results onto domain.ErrCacheMiss for
// operations whose callers need miss signaling.
func lookupErr(err error) error {
	if errors.Is(err, goredis.Nil) || errors.Is(err, errDegraded) {
		return domain.ErrCacheMiss
	}
	return err
}

// absorb drops the degraded marker for operations whose zero result already
// is the neutral answer.
func absorb(err error) error {
	if errors.Is(err, errDegraded) || errors.Is(err, goredis.Nil) {
		return nil
	}
	return err
}

// Ping probes the store, forcing a lazy connect if needed. Unlike the data
// operations it reports failure so readiness checks can see it.
func (c *Client) Ping(ctx context.Context) error {
	rdb := c.acquire(ctx)
	if rdb == nil {
		return errors.New("redis unreachable")
	}
	return rdb.Ping(ctx).Err()
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := execute(ctx, c, "GET", func(rdb *goredis.Client) (string, error) {
		return rdb.Get(ctx, key).Result()
	})
	return val, lookupErr(err)
}

func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := execute(ctx, c, "SET", func(rdb *goredis.Client) (string, error) {
		return rdb.Set(ctx, key, value, ttl).Result()
	})
	return absorb(err)
}

func (c *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := execute(ctx, c, "SETNX", func(rdb *goredis.Client) (bool, error) {
		return rdb.SetNX(ctx, key, value, ttl).Result()
	})
	return ok, absorb(err)
}

func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	n, err := execute(ctx, c, "DEL", func(rdb *goredis.Client) (int64, error) {
		return rdb.Del(ctx, keys...).Result()
	})
	return n, absorb(err)
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := execute(ctx, c, "EXISTS", func(rdb *goredis.Client) (int64, error) {
		return rdb.Exists(ctx, key).Result()
	})
	return n > 0, absorb(err)
}

func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := execute(ctx, c, "EXPIRE", func(rdb *goredis.Client) (bool, error) {
		return rdb.Expire(ctx, key, ttl).Result()
	})
	return ok, absorb(err)
}

func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := execute(ctx, c, "TTL", func(rdb *goredis.Client) (time.Duration, error) {
		return rdb.TTL(ctx, key).Result()
	})
	if errors.Is(err, errDegraded) {
		// Match the Redis convention for a missing key.
		return -2 * time.Second, nil
	}
	return ttl, absorb(err)
}

func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	n, err := execute(ctx, c, "INCR", func(rdb *goredis.Client) (int64, error) {
		return rdb.Incr(ctx, key).Result()
	})
	return n, absorb(err)
}

func (c *Client) Decr(ctx context.Context, key string) (int64, error) {
	n, err := execute(ctx, c, "DECR", func(rdb *goredis.Client) (int64, error) {
		return rdb.Decr(ctx, key).Result()
	})
	return n, absorb(err)
}

func (c *Client) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	n, err := execute(ctx, c, "LPUSH", func(rdb *goredis.Client) (int64, error) {
		return rdb.LPush(ctx, key, toAny(values)...).Result()
	})
	return n, absorb(err)
}

func (c *Client) RPush(ctx context.Context, key string, values ...string) (int64, error) {
	n, err := execute(ctx, c, "RPUSH", func(rdb *goredis.Client) (int64, error) {
		return rdb.RPush(ctx, key, toAny(values)...).Result()
	})
	return n, absorb(err)
}

func (c *Client) LPop(ctx context.Context, key string) (string, error) {
	val, err := execute(ctx, c, "LPOP", func(rdb *goredis.Client) (string, error) {
		return rdb.LPop(ctx, key).Result()
	})
	return val, lookupErr(err)
}

func (c *Client) RPop(ctx context.Context, key string) (string, error) {
	val, err := execute(ctx, c, "RPOP", func(rdb *goredis.Client) (string, error) {
		return rdb.RPop(ctx, key).Result()
	})
	return val, lookupErr(err)
}

func (c *Client) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := execute(ctx, c, "LRANGE", func(rdb *goredis.Client) ([]string, error) {
		return rdb.LRange(ctx, key, start, stop).Result()
	})
	return vals, absorb(err)
}

func (c *Client) LLen(ctx context.Context, key string) (int64, error) {
	n, err := execute(ctx, c, "LLEN", func(rdb *goredis.Client) (int64, error) {
		return rdb.LLen(ctx, key).Result()
	})
	return n, absorb(err)
}

func (c *Client) LTrim(ctx context.Context, key string, start, stop int64) error {
	_, err := execute(ctx, c, "LTRIM", func(rdb *goredis.Client) (string, error) {
		return rdb.LTrim(ctx, key, start, stop).Result()
	})
	return absorb(err)
}

func (c *Client) BRPop(ctx context.Context, timeout time.Duration, keys ...string) ([]string, error) {
	vals, err := execute(ctx, c, "BRPOP", func(rdb *goredis.Client) ([]string, error) {
		return rdb.BRPop(ctx, timeout, keys...).Result()
	})
	return vals, lookupErr(err)
}

func (c *Client) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	n, err := execute(ctx, c, "SADD", func(rdb *goredis.Client) (int64, error) {
		return rdb.SAdd(ctx, key, toAny(members)...).Result()
	})
	return n, absorb(err)
}

func (c *Client) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	n, err := execute(ctx, c, "SREM", func(rdb *goredis.Client) (int64, error) {
		return rdb.SRem(ctx, key, toAny(members)...).Result()
	})
	return n, absorb(err)
}

func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	vals, err := execute(ctx, c, "SMEMBERS", func(rdb *goredis.Client) ([]string, error) {
		return rdb.SMembers(ctx, key).Result()
	})
	return vals, absorb(err)
}

func (c *Client) ZAdd(ctx context.Context, key string, score float64, member string) (int64, error) {
	n, err := execute(ctx, c, "ZADD", func(rdb *goredis.Client) (int64, error) {
		return rdb.ZAdd(ctx, key, goredis.Z{Score: score, Member: member}).Result()
	})
	return n, absorb(err)
}

func (c *Client) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := execute(ctx, c, "ZCARD", func(rdb *goredis.Client) (int64, error) {
		return rdb.ZCard(ctx, key).Result()
	})
	return n, absorb(err)
}

func (c *Client) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := execute(ctx, c, "ZRANGE", func(rdb *goredis.Client) ([]string, error) {
		return rdb.ZRange(ctx, key, start, stop).Result()
	})
	return vals, absorb(err)
}

func (c *Client) ZRem(ctx context.Context, key string, members ...string) (int64, error) {
	n, err := execute(ctx, c, "ZREM", func(rdb *goredis.Client) (int64, error) {
		return rdb.ZRem(ctx, key, toAny(members)...).Result()
	})
	return n, absorb(err)
}

func (c *Client) ZScore(ctx context.Context, key, member string) (float64, error) {
	score, err := execute(ctx, c, "ZSCORE", func(rdb *goredis.Client) (float64, error) {
		return rdb.ZScore(ctx, key, member).Result()
	})
	return score, lookupErr(err)
}

func (c *Client) ZIncrBy(ctx context.Context, key string, increment float64, member string) (float64, error) {
	score, err := execute(ctx, c, "ZINCRBY", func(rdb *goredis.Client) (float64, error) {
		return rdb.ZIncrBy(ctx, key, increment, member).Result()
	})
	return score, absorb(err)
}

func (c *Client) ZRank(ctx context.Context, key, member string) (int64, error) {
	rank, err := execute(ctx, c, "ZRANK", func(rdb *goredis.Client) (int64, error) {
		return rdb.ZRank(ctx, key, member).Result()
	})
	if errors.Is(err, errDegraded) || errors.Is(err, goredis.Nil) {
		return -1, nil
	}
	return rank, err
}

func (c *Client) ZRevRangeByScore(ctx context.Context, key, max, min string, offset, count int64) ([]string, error) {
	vals, err := execute(ctx, c, "ZREVRANGEBYSCORE", func(rdb *goredis.Client) ([]string, error) {
		return rdb.ZRevRangeByScore(ctx, key, &goredis.ZRangeBy{
			Max: max, Min: min, Offset: offset, Count: count,
		}).Result()
	})
	return vals, absorb(err)
}

func (c *Client) HGet(ctx context.Context, key, field string) (string, error) {
	val, err := execute(ctx, c, "HGET", func(rdb *goredis.Client) (string, error) {
		return rdb.HGet(ctx, key, field).Result()
	})
	return val, lookupErr(err)
}

func (c *Client) HSet(ctx context.Context, key string, fieldValues ...string) (int64, error) {
	n, err := execute(ctx, c, "HSET", func(rdb *goredis.Client) (int64, error) {
		return rdb.HSet(ctx, key, toAny(fieldValues)...).Result()
	})
	return n, absorb(err)
}

func (c *Client) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	n, err := execute(ctx, c, "HDEL", func(rdb *goredis.Client) (int64, error) {
		return rdb.HDel(ctx, key, fields...).Result()
	})
	return n, absorb(err)
}

func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	vals, err := execute(ctx, c, "HGETALL", func(rdb *goredis.Client) (map[string]string, error) {
		return rdb.HGetAll(ctx, key).Result()
	})
	return vals, absorb(err)
}

func (c *Client) HIncrBy(ctx context.Context, key, field string, increment int64) (int64, error) {
	n, err := execute(ctx, c, "HINCRBY", func(rdb *goredis.Client) (int64, error) {
		return rdb.HIncrBy(ctx, key, field, increment).Result()
	})
	return n, absorb(err)
}

func (c *Client) XAdd(ctx context.Context, stream string, values map[string]any) (string, error) {
	id, err := execute(ctx, c, "XADD", func(rdb *goredis.Client) (string, error) {
		return rdb.XAdd(ctx, &goredis.XAddArgs{Stream: stream, Values: values}).Result()
	})
	return id, absorb(err)
}

func (c *Client) XRange(ctx context.Context, stream, start, stop string) ([]domain.StreamMessage, error) {
	msgs, err := execute(ctx, c, "XRANGE", func(rdb *goredis.Client) ([]goredis.XMessage, error) {
		return rdb.XRange(ctx, stream, start, stop).Result()
	})
	return toStreamMessages(msgs), absorb(err)
}

func (c *Client) XRead(ctx context.Context, streams map[string]string, count int64, block time.Duration) (map[string][]domain.StreamMessage, error) {
	args := make([]string, 0, len(streams)*2)
	ids := make([]string, 0, len(streams))
	for s, id := range streams {
		args = append(args, s)
		ids = append(ids, id)
	}
	args = append(args, ids...)

	res, err := execute(ctx, c, "XREAD", func(rdb *goredis.Client) ([]goredis.XStream, error) {
		return rdb.XRead(ctx, &goredis.XReadArgs{Streams: args, Count: count, Block: block}).Result()
	})
	if absorbed := absorb(err); absorbed != nil {
		return nil, absorbed
	}
	out := make(map[string][]domain.StreamMessage, len(res))
	for _, s := range res {
		out[s.Stream] = toStreamMessages(s.Messages)
	}
	return out, nil
}

func (c *Client) Eval(ctx context.Context, script string, keys []string, args ...any) (any, error) {
	val, err := execute(ctx, c, "EVAL", func(rdb *goredis.Client) (any, error) {
		return rdb.Eval(ctx, script, keys, args...).Result()
	})
	return val, absorb(err)
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func toStreamMessages(msgs []goredis.XMessage) []domain.StreamMessage {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]domain.StreamMessage, len(msgs))
	for i, m := range msgs {
		values := make(map[string]any, len(m.Values))
		for k, v := range m.Values {
			values[k] = v
		}
		out[i] = domain.StreamMessage{ID: m.ID, Values: values}
	}
	return out
}
