package repositories

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront/internal/models"
)

// CartRepository stores one cart per account as a redis hash
// product_id -> quantity under cart:<account_id>.
type CartRepository interface {
	Get(ctx context.Context, accountID string) ([]models.CartItem, error)
	Add(ctx context.Context, accountID, productID string, qty int) (int, error)
	Remove(ctx context.Context, accountID, productID string) error
	Clear(ctx context.Context, accountID string) error
}

type cartRepository struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewCartRepository(rdb redis.UniversalClient, ttl time.Duration) CartRepository {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &cartRepository{rdb: rdb, ttl: ttl}
}

func cartKey(accountID string) string { return "cart:" + accountID }

func (r *cartRepository) Get(ctx context.Context, accountID string) ([]models.CartItem, error) {
	m, err := r.rdb.HGetAll(ctx, cartKey(accountID)).Result()
	if err != nil {
		return nil, fmt.Errorf("cart get: %w", err)
	}
	items := make([]models.CartItem, 0, len(m))
	for pid, v := range m {
		qty, err := strconv.Atoi(v)
		if err != nil || qty <= 0 {
			continue
		}
		items = append(items, models.CartItem{ProductID: pid, Quantity: qty})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	return items, nil
}

func (r *cartRepository) Add(ctx context.Context, accountID, productID string, qty int) (int, error) {
	key := cartKey(accountID)
	pipe := r.rdb.TxPipeline()
	incr := pipe.HIncrBy(ctx, key, productID, int64(qty))
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("cart add: %w", err)
	}
	return int(incr.Val()), nil
}

func (r *cartRepository) Remove(ctx context.Context, accountID, productID string) error {
	n, err := r.rdb.HDel(ctx, cartKey(accountID), productID).Result()
	if err != nil {
		return fmt.Errorf("cart remove: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *cartRepository) Clear(ctx context.Context, accountID string) error {
	if err := r.rdb.Del(ctx, cartKey(accountID)).Err(); err != nil {
		return fmt.Errorf("cart clear: %w", err)
	}
	return nil
}
