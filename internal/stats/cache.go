package stats

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/SlpAus/habit-tracker-backend/internal/platform/database"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/metrics"
)

const (
	// cacheKeyPrefix 后接用户ID，每个用户一个hash，字段为 kind:参数:日期
	cacheKeyPrefix = "stats:cache:"
	// generationKeyPrefix 后接用户ID，每次失效时自增
	generationKeyPrefix = "stats:gen:"
	generationTTL       = 24 * time.Hour
	cacheOpTimeout      = 500 * time.Millisecond
	flushBatchSize      = 200
)

// errGenerationChanged 表示计算期间用户数据发生了变化，结果不再写回
var errGenerationChanged = errors.New("统计缓存代数已变化")

// Cache 把统计结果缓存在Redis中。Redis不可用时所有操作都退化为空操作，
// 缓存失败只记日志，不会影响请求结果。nil 的 *Cache 同样可用。
//
// 每个用户有一个代数计数器。未命中时先记下代数再计算，写回时代数必须没变，
// 这样与计算并发的失效不会被旧结果覆盖。
type Cache struct {
	rdb     *redis.Client
	status  *database.Status
	ttl     time.Duration
	metrics *metrics.Metrics
	log     logrus.FieldLogger
}

// snapshot 是一次未命中时观察到的代数，valid 为 false 时不写回
type snapshot struct {
	gen   int64
	valid bool
}

// NewCache 创建统计缓存。rdb 为 nil 或 ttl <= 0 时缓存关闭。
func NewCache(rdb *redis.Client, status *database.Status, ttl time.Duration, m *metrics.Metrics, log logrus.FieldLogger) *Cache {
	return &Cache{
		rdb:     rdb,
		status:  status,
		ttl:     ttl,
		metrics: m,
		log:     log.WithField("module", "stats-cache"),
	}
}

func cacheKey(userID string) string {
	return cacheKeyPrefix + userID
}

func generationKey(userID string) string {
	return generationKeyPrefix + userID
}

func (c *Cache) enabled() bool {
	if c == nil || c.rdb == nil || c.ttl <= 0 {
		return false
	}
	return c.status == nil || c.status.IsRedisHealthy()
}

func readGeneration(cmd *redis.StringCmd) (int64, error) {
	gen, err := cmd.Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// get 读取缓存并解码到 dst，命中时返回 true。
// 未命中时返回同一时刻的代数，供计算完成后的 set 使用。
func (c *Cache) get(ctx context.Context, userID, field string, dst any) (bool, snapshot) {
	if !c.enabled() {
		return false, snapshot{}
	}
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	pipe := c.rdb.TxPipeline()
	valueCmd := pipe.HGet(ctx, cacheKey(userID), field)
	genCmd := pipe.Get(ctx, generationKey(userID))
	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		c.metrics.CacheResult("error")
		c.log.WithError(err).WithField("user", userID).Warn("读取统计缓存失败，直接计算")
		return false, snapshot{}
	}

	gen, err := readGeneration(genCmd)
	if err != nil {
		c.metrics.CacheResult("error")
		c.log.WithError(err).WithField("user", userID).Warn("统计缓存代数无法解析")
		return false, snapshot{}
	}
	miss := snapshot{gen: gen, valid: true}

	raw, err := valueCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		c.metrics.CacheResult("miss")
		return false, miss
	}
	if err != nil {
		c.metrics.CacheResult("error")
		return false, snapshot{}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.metrics.CacheResult("error")
		c.log.WithError(err).WithField("user", userID).Warn("统计缓存内容无法解析")
		return false, miss
	}
	c.metrics.CacheResult("hit")
	return true, snapshot{}
}

// set 在代数仍为 snap.gen 时写入缓存，并刷新整个用户hash的过期时间
func (c *Cache) set(ctx context.Context, userID string, snap snapshot, field string, v any) {
	if !snap.valid || !c.enabled() {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		c.log.WithError(err).Error("无法序列化统计结果")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	key, genKey := cacheKey(userID), generationKey(userID)
	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGeneration(tx.Get(ctx, genKey))
		if err != nil {
			return err
		}
		if current != snap.gen {
			return errGenerationChanged
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, raw)
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil:
	case errors.Is(err, errGenerationChanged), errors.Is(err, redis.TxFailedErr):
		c.log.WithField("user", userID).Debug("计算期间数据已变化，放弃写回统计缓存")
	default:
		c.log.WithError(err).WithField("user", userID).Warn("写入统计缓存失败")
	}
}

// Invalidate 推进用户的代数并删除其全部统计缓存，在打卡或习惯变化后调用
func (c *Cache) Invalidate(ctx context.Context, userID string) {
	if !c.enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	genKey := generationKey(userID)
	pipe := c.rdb.TxPipeline()
	pipe.Incr(ctx, genKey)
	pipe.Expire(ctx, genKey, generationTTL)
	pipe.Del(ctx, cacheKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		// 失效失败时旧数据最多存活一个TTL
		c.log.WithError(err).WithField("user", userID).Warn("清除统计缓存失败")
	}
}

// Flush 删除所有用户的统计缓存，返回删除的键数。代数计数器保留。
// Redis从不可用恢复时调用，丢弃期间可能错过失效的旧数据。
func (c *Cache) Flush(ctx context.Context) (int, error) {
	if c == nil || c.rdb == nil {
		return 0, nil
	}

	deleted := 0
	iter := c.rdb.Scan(ctx, 0, cacheKeyPrefix+"*", flushBatchSize).Iterator()
	batch := make([]string, 0, flushBatchSize)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == flushBatchSize {
			n, err := c.rdb.Del(ctx, batch...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += int(n)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}
	if len(batch) > 0 {
		n, err := c.rdb.Del(ctx, batch...).Result()
		if err != nil {
			return deleted, err
		}
		deleted += int(n)
	}
	return deleted, nil
}
