package clientdata

import (
	"context"
	"fmt"

	"github.com/dvloznov/financetracker/internal/model"
)

// Seed populates the remote document with the stock currencies, categories
// and default settings, skipping any part that already holds data.
func (s *Service) Seed(ctx context.Context) error {
	state, err := s.store.Read(ctx)
	if err != nil {
		return err
	}

	if len(state.Currencies) == 0 {
		for _, c := range model.DefaultCurrencies() {
			if _, err := s.AddCurrency(ctx, c); err != nil {
				return fmt.Errorf("seeding currency %s: %w", c.Code, err)
			}
		}
	}
	if len(state.Categories) == 0 {
		for _, c := range model.DefaultCategories() {
			if _, err := s.AddCategory(ctx, c); err != nil {
				return fmt.Errorf("seeding category %s: %w", c.Name, err)
			}
		}
	}

	if state.Settings == nil {
		currencies, err := s.Currencies(ctx)
		if err != nil {
			return err
		}
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
