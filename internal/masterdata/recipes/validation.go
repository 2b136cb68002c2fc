package recipes

import (
	"errors"
	"strings"
)

func (s *Service) validate(r Recipe) error {
	if strings.TrimSpace(r.Flavor) == "" {
		return errors.New("recipe flavor is required")
	}
	if len(r.Lines) == 0 {
		return errors.New("recipe needs at least one ingredient line")
	}
	seen := make(map[int64]struct{}, len(r.Lines))
	for _, line := range r.Lines {
		if line.IngredientID <= 0 {
			return errors.New("recipe line is missing an ingredient")
		}
		if !line.Quantity.IsPositive() {
			return errors.New("recipe line quantity must be positive")
		}
		if _, dup := seen[line.IngredientID]; dup {
			return errors.New("recipe lists the same ingredient twice")
		}
		seen[line.IngredientID] = struct{}{}
	}
	return nil
}
