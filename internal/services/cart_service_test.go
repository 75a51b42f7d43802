package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/repositories"
)

func newTestCart(t *testing.T) CartService {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCartService(repositories.NewCartRepository(rdb, time.Hour))
}

func TestCartService_IsolatedPerAccount(t *testing.T) {
	svc := newTestCart(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "alice", "sku-1", 2)
	require.NoError(t, err)
	cart, err := svc.AddItem(ctx, "alice", "sku-1", 3)
	require.NoError(t, err)
	assert.Equal(t, 5, cart.Total)

	bob, err := svc.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, bob.Items)
	assert.Zero(t, bob.Total)
}

func TestCartService_RemoveAndClear(t *testing.T) {
	svc := newTestCart(t)
	ctx := context.Background()
	_, err := svc.AddItem(ctx, "alice", "sku-1", 1)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "alice", "sku-2", 4)
	require.NoError(t, err)

	cart, err := svc.RemoveItem(ctx, "alice", "sku-1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "sku-2", cart.Items[0].ProductID)

	_, err = svc.RemoveItem(ctx, "alice", "sku-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.Clear(ctx, "alice"))
	cart, err = svc.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestCartService_Validation(t *testing.T) {
	svc := newTestCart(t)
	ctx := context.Background()

	tests := []struct {
		name string
		pid  string
		qty  int
	}{
		{"empty product", " ", 1},
		{"zero quantity", "sku-1", 0},
		{"too many", "sku-1", 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddItem(ctx, "alice", tt.pid, tt.qty)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	_, err := svc.AddItem(ctx, "alice", "sku-1", 990)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "alice", "sku-1", 10)
	assert.ErrorIs(t, err, ErrValidation)
	cart, err := svc.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 990, cart.Total)
}
