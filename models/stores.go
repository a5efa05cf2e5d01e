package models

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/pharmasuite/lifecycle-engine/config/database"
	"github.com/pharmasuite/lifecycle-engine/config/redis"
	"github.com/pharmasuite/lifecycle-engine/utils"
)

// AdminStore is the single entry point to the console database. Every query
// method returns a utils.Result so callers can inspect kind, retryability
// and capturability without unwrapping gorm errors themselves.
type AdminStore struct {
	db *database.DB
}

func NewAdminStore(db *database.DB) *AdminStore {
	return &AdminStore{
		db: db,
	}
}

func notFoundResult[T any](err error, format string, args ...any) utils.Result[T] {
	if err == gorm.ErrRecordNotFound || err.Error() == gorm.ErrRecordNotFound.Error() {
		return utils.FailedResult[T](utils.NotFoundError(format, args...))
	}

	return utils.FailedResult[T](err)
}

// FlagStore accumulates identifiers in a redis set so an out-of-band
// reconciliation job can pick them up later.
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
	result := store.db.Client.SAdd(store.context, store.name, fmt.Sprintf("%s", value))
	if err := result.Err(); err != nil {
		return err
	}

	return nil
}

func (store *FlagStore) Close() error {
	return store.db.Client.Close()
}
