package localstore

import (
	"context"
	"fmt"

	"github.com/dvloznov/financetracker/internal/model"
)

// Seed populates the stock currencies, categories and default settings.
// Each step is skipped when its table already holds data, so reruns are
// harmless.
func (s *Store) Seed(ctx context.Context) error {
	currencies, err := s.Currencies(ctx)
	if err != nil {
		return err
	}
	if len(currencies) == 0 {
		for _, c := range model.DefaultCurrencies() {
			if _, err := s.AddCurrency(ctx, c); err != nil {
				return fmt.Errorf("seeding currency %s: %w", c.Code, err)
			}
		}
		if currencies, err = s.Currencies(ctx); err != nil {
			return err
		}
	}

	categories, err := s.AllCategories(ctx)
	if err != nil {
		return err
	}
	if len(categories) == 0 {
		for _, c := range model.DefaultCategories() {
			if _, err := s.AddCategory(ctx, c); err != nil {
				return fmt.Errorf("seeding category %s: %w", c.Name, err)
			}
		}
	}

	settings, err := s.Settings(ctx)
	if err != nil {
		return err
	}
	if settings == nil {
		for _, c := range currencies {
			if c.Code == "USD" {
				if _, err := s.UpdateSettings(ctx, c.ID); err != nil {
					return fmt.Errorf("seeding settings: %w", err)
				}
				break
			}
		}
	}
	return nil
}
