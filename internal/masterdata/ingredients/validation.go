package ingredients

import (
	"errors"
	"strings"
)

func (s *Service) validate(i Ingredient) error {
	if strings.TrimSpace(i.Name) == "" {
		return errors.New("ingredient name is required")
	}
	if i.Unit != UnitGrams && i.Unit != UnitUnits {
		return errors.New("ingredient unit must be grams or units")
	}
	return nil
}
