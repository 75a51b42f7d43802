package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"storefront/internal/models"
	"storefront/internal/repositories"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type AccountAdminService interface {
	List(ctx context.Context, f models.AccountFilter) ([]*models.Account, int, error)
	Get(ctx context.Context, id string) (*models.Account, error)
	Block(ctx context.Context, actorID, id string) (*models.Account, error)
	Unblock(ctx context.Context, id string) (*models.Account, error)
	Unlock(ctx context.Context, id string) (*models.Account, error)
}

type accountAdminService struct {
	repo repositories.AccountRepository
	log  *zap.SugaredLogger
}

func NewAccountAdminService(repo repositories.AccountRepository, log *zap.SugaredLogger) AccountAdminService {
	return &accountAdminService{repo: repo, log: log}
}

func (s *accountAdminService) List(ctx context.Context, f models.AccountFilter) ([]*models.Account, int, error) {
	switch f.Role {
	case "", models.RoleUser, models.RoleAdmin:
	default:
		return nil, 0, validationf("unknown role %q", f.Role)
	}
	switch f.Status {
	case "", models.StatusActive, models.StatusBlocked:
	default:
		return nil, 0, validationf("unknown status %q", f.Status)
	}
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.List(ctx, f)
}

func (s *accountAdminService) Get(ctx context.Context, id string) (*models.Account, error) {
	a, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound
	}
	return a, err
}

// Block takes effect on the next request of the account, tokens already
// issued are rejected by the auth middleware.
func (s *accountAdminService) Block(ctx context.Context, actorID, id string) (*models.Account, error) {
	if actorID == id {
		return nil, validationf("you cannot block your own account")
	}
	return s.setStatus(ctx, id, models.StatusBlocked)
}

func (s *accountAdminService) Unblock(ctx context.Context, id string) (*models.Account, error) {
	return s.setStatus(ctx, id, models.StatusActive)
}

func (s *accountAdminService) setStatus(ctx context.Context, id, status string) (*models.Account, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == status {
		return a, nil
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	a.Status = status
	s.log.Infof("[admin][accounts] id=%s status=%s", id, status)
	return a, nil
}

func (s *accountAdminService) Unlock(ctx context.Context, id string) (*models.Account, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateLoginState(ctx, id, 0, nil); err != nil {
		return nil, err
	}
	a.FailedAttempts, a.LockUntil = 0, nil
	s.log.Infof("[admin][accounts] unlock id=%s", id)
	return a, nil
}
