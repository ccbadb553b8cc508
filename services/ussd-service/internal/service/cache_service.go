package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grigta/simgate/pkg/cache"
	"github.com/grigta/simgate/services/ussd-service/internal/models"
)

// TransactionCache keeps hot transactions for polling clients. A miss returns nil, nil.
type TransactionCache interface {
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	SetTransaction(ctx context.Context, tx *models.Transaction) error
	DeleteTransaction(ctx context.Context, ids ...string) error
}

type CacheService struct {
	redis  *cache.RedisCache
	ttl    time.Duration
	logger *logrus.Logger
}

func NewCacheService(redis *cache.RedisCache, ttl time.Duration, logger *logrus.Logger) *CacheService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CacheService{redis: redis, ttl: ttl, logger: logger}
}

func transactionKey(id string) string {
	return fmt.Sprintf("transaction:%s", id)
}

func (s *CacheService) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := s.redis.GetJSON(ctx, transactionKey(id), &tx); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (s *CacheService) SetTransaction(ctx context.Context, tx *models.Transaction) error {
	return s.redis.Set(ctx, transactionKey(tx.ID.Hex()), tx, s.ttl)
}

func (s *CacheService) DeleteTransaction(ctx context.Context, ids ...string) error {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, transactionKey(id))
	}
	return s.redis.Delete(ctx, keys...)
}

// NopCache is used when Redis is not configured.
type NopCache struct{}

func (NopCache) GetTransaction(context.Context, string) (*models.Transaction, error) { return nil, nil }
func (NopCache) SetTransaction(context.Context, *models.Transaction) error          { return nil }
func (NopCache) DeleteTransaction(context.Context, ...string) error                 { return nil }
