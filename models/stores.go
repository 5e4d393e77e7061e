package models

import (
	"context"

	"github.com/hireloop/entitlements-engine/config/redis"
	"github.com/hireloop/entitlements-engine/utils"
)

// FlagStore marks holders whose entitlements changed in a redis set. The web
// application drains the set to refresh its cached entitlement views.
type FlagStore struct {
	name    string
	context context.Context
	db      *redis.RedisDB
}

type Flagger interface {
	Flag(value string) error
}

func NewFlagStore(ctx context.Context, redis *redis.RedisDB, name string) *FlagStore {
	return &FlagStore{
		name:    name,
		context: ctx,
		db:      redis,
	}
}

func (store *FlagStore) Flag(value string) error {
	result := store.db.Client.SAdd(store.context, store.name, value)
	if err := result.Err(); err != nil {
		return err
	}

	return nil
}

func (store *FlagStore) Close() error {
	return store.db.Client.Close()
}

// Cacher expires cached entries computed elsewhere in the platform.
type Cacher interface {
	ExpireKey(key string) utils.Result[bool]
	Close() error
}

type CacheStore struct {
	context context.Context
	db      *redis.RedisDB
}

func NewCacheStore(ctx context.Context, redis *redis.RedisDB) *CacheStore {
	return &CacheStore{
		context: ctx,
		db:      redis,
	}
}

func (store *CacheStore) ExpireKey(key string) utils.Result[bool] {
	result := store.db.Client.Del(store.context, key)
	if err := result.Err(); err != nil {
		return utils.FailedBoolResult(err)
	}

	return utils.SuccessResult(true)
}

func (store *CacheStore) Close() error {
	return store.db.Client.Close()
}
