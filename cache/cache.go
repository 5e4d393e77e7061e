package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"gorm.io/gorm"

	"github.com/hireloop/entitlements-engine/config/kafka"
	"github.com/hireloop/entitlements-engine/models"
	"github.com/hireloop/entitlements-engine/utils"
)

// Cache is an in-memory copy of the plan/feature catalog backed by
// BadgerDB. It is hydrated from a database snapshot at startup and kept
// fresh by CDC consumers, so entitlement checks read the catalog without a
// database round trip. It implements models.CatalogReader.
type Cache struct {
	ctx         context.Context
	db          *badger.DB
	logger      *slog.Logger
	wg          sync.WaitGroup
	kafkaConfig kafka.ServerConfig
	topicPrefix string
}

// CacheConfig holds the configuration needed to initialize a new Cache
// instance.
type CacheConfig struct {
	Context     context.Context
	Logger      *slog.Logger
	Kafka       kafka.ServerConfig
	TopicPrefix string
}

func NewCache(config CacheConfig) (*Cache, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	logger := config.Logger.With("pkg", "cache")

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	return &Cache{
		db:          db,
		logger:      logger,
		ctx:         config.Context,
		kafkaConfig: config.Kafka,
		topicPrefix: config.TopicPrefix,
	}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) Wait() {
	c.wg.Wait()
}

// LoadInitialSnapshot hydrates the cache from the catalog store.
func (c *Cache) LoadInitialSnapshot(store *models.ApiStore) {
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		c.LoadPlansSnapshot(store)
	}()

	go func() {
		defer wg.Done()
		c.LoadFeaturesSnapshot(store)
	}()

	go func() {
		defer wg.Done()
		c.LoadFeatureEntitlementsSnapshot(store)
	}()

	wg.Wait()
}

// ConsumeChanges starts the CDC consumers that keep the cache fresh.
func (c *Cache) ConsumeChanges() {
	if err := c.StartPlansConsumer(c.ctx); err != nil {
		c.logger.Error("failed to start plans consumer", slog.String("error", err.Error()))
	}

	if err := c.StartFeaturesConsumer(c.ctx); err != nil {
		c.logger.Error("failed to start features consumer", slog.String("error", err.Error()))
	}

	if err := c.StartFeatureEntitlementsConsumer(c.ctx); err != nil {
		c.logger.Error("failed to start feature entitlements consumer", slog.String("error", err.Error()))
	}
}

func (c *Cache) cdcTopic(table string) string {
	return fmt.Sprintf("%s.public.%s", c.topicPrefix, table)
}

func setJSON[T any](cache *Cache, key string, value *T) utils.Result[bool] {
	data, err := json.Marshal(value)
	if err != nil {
		return utils.FailedBoolResult(err)
	}

	err = cache.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return utils.FailedBoolResult(err)
	}

	return utils.SuccessResult(true)
}

func deleteKey(cache *Cache, key string) utils.Result[bool] {
	err := cache.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return utils.FailedBoolResult(err)
	}

	return utils.SuccessResult(true)
}

func getJSON[T any](cache *Cache, key string) utils.Result[*T] {
	var out T
	err := cache.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})

	if err == badger.ErrKeyNotFound {
		// Callers distinguish absent catalog rows the same way they do
		// for direct reads.
		return utils.FailedResult[*T](gorm.ErrRecordNotFound).NonCapturable().NonRetryable()
	}
	if err != nil {
		return utils.FailedResult[*T](err)
	}

	return utils.SuccessResult(&out)
}

func searchJSON[T any](cache *Cache, prefix string) utils.Result[[]*T] {
	var results []*T

	err := cache.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var out T
				if err := json.Unmarshal(val, &out); err != nil {
					return err
				}
				results = append(results, &out)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		return utils.FailedResult[[]*T](err)
	}

	return utils.SuccessResult(results)
}

func LoadSnapshot[T any](
	cache *Cache,
	name string,
	fetchFn func() ([]T, error),
	keyFn func(*T) string,
) utils.Result[int] {
	cache.logger.Info("Starting snapshot load", slog.String("model", name))
	start := time.Now()

	list, err := fetchFn()
	if err != nil {
		return utils.FailedResult[int](err)
	}

	count := 0
	for i := range list {
		item := &list[i]
		key := keyFn(item)
		if res := setJSON(cache, key, item); res.Failure() {
			cache.logger.Error(
				"Failed to cache item",
				slog.String("model", name),
				slog.String("key", key),
				slog.String("error", res.ErrorMsg()),
			)
			utils.CaptureErrorResult(res)
			continue
		}
		count++
	}

	duration := time.Since(start)
	cache.logger.Info(
		"Completed snapshot load",
		slog.String("model", name),
		slog.Int("count", count),
		slog.Int64("duration_ms", duration.Milliseconds()),
	)

	return utils.SuccessResult(count)
}
