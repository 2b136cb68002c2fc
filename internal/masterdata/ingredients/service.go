package ingredients

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

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Ingredient, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Ingredient, error) {
	if id <= 0 {
		return Ingredient{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, ingredient Ingredient) (Ingredient, error) {
	if err := s.validate(ingredient); err != nil {
		return Ingredient{}, err
	}
	// Base ingredients are minted by base-recipe production only.
	ingredient.IsBase = false
	return s.repo.Create(ctx, ingredient)
}

func (s *Service) Update(ctx context.Context, id int64, ingredient Ingredient) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.validate(ingredient); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, ingredient)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Delete(ctx, id)
}
