package services

import (
	"context"
	"errors"
	"strings"

	"storefront/internal/models"
	"storefront/internal/repositories"
)

// CartService keeps one cart per authenticated account.
type CartService interface {
	Get(ctx context.Context, accountID string) (*models.Cart, error)
	AddItem(ctx context.Context, accountID, productID string, qty int) (*models.Cart, error)
	RemoveItem(ctx context.Context, accountID, productID string) (*models.Cart, error)
	Clear(ctx context.Context, accountID string) error
}

const maxItemQuantity = 999

type cartService struct {
	repo repositories.CartRepository
}

func NewCartService(repo repositories.CartRepository) CartService {
	return &cartService{repo: repo}
}

func (s *cartService) Get(ctx context.Context, accountID string) (*models.Cart, error) {
	items, err := s.repo.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	cart := &models.Cart{AccountID: accountID, Items: items}
	for _, it := range items {
		cart.Total += it.Quantity
	}
	return cart, nil
}

func (s *cartService) AddItem(ctx context.Context, accountID, productID string, qty int) (*models.Cart, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, validationf("product_id is required")
	}
	if qty < 1 || qty > maxItemQuantity {
		return nil, validationf("quantity must be between 1 and %d", maxItemQuantity)
	}
	total, err := s.repo.Add(ctx, accountID, productID, qty)
	if err != nil {
		return nil, err
	}
	if total > maxItemQuantity {
		// откатываем, чтобы не превысить лимит позиции
		if _, err := s.repo.Add(ctx, accountID, productID, -qty); err != nil {
			return nil, err
		}
		return nil, validationf("quantity must be between 1 and %d", maxItemQuantity)
	}
	return s.Get(ctx, accountID)
}

func (s *cartService) RemoveItem(ctx context.Context, accountID, productID string) (*models.Cart, error) {
	if err := s.repo.Remove(ctx, accountID, productID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.Get(ctx, accountID)
}

func (s *cartService) Clear(ctx context.Context, accountID string) error {
	return s.repo.Clear(ctx, accountID)
}
