package services

import (
	"context"

	"github.com/google/uuid"

	"classline/internal/domain/user"
	"classline/internal/redis"
	"classline/internal/repository"
	"classline/pkg/logger"
)

// UserService wraps the user store with a read-through profile cache.
// The cache may be nil, in which case every lookup hits the store.
type UserService struct {
	repo   repository.UserRepository
	cache  *redis.CacheStore
	logger *logger.Logger
}

func NewUserService(repo repository.UserRepository, cache *redis.CacheStore, l *logger.Logger) *UserService {
	return &UserService{repo: repo, cache: cache, logger: l}
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (user.User, error) {
	if cached, err := s.cache.GetUser(ctx, id); err == nil && cached != nil {
		return *cached, nil
	} else if err != nil && s.logger != nil {
		s.logger.Errorf("user cache read failed: %s", err)
	}

	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return user.User{}, err
	}

	if err := s.cache.SetUser(ctx, u); err != nil && s.logger != nil {
		s.logger.Errorf("user cache write failed: %s", err)
	}
	return u, nil
}

func (s *UserService) List(ctx context.Context) ([]user.User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []user.User{}
	}
	return users, nil
}
