package recipes

import (
	"context"

	"github.com/gastromanager/gastromanager/internal/masterdata/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Recipe, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Recipe, error) {
	if id <= 0 {
		return Recipe{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, recipe Recipe) (Recipe, error) {
	if err := s.validate(recipe); err != nil {
		return Recipe{}, err
	}
	return s.repo.Create(ctx, recipe)
}

func (s *Service) Update(ctx context.Context, id int64, recipe Recipe) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.validate(recipe); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, recipe)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Delete(ctx, id)
}
