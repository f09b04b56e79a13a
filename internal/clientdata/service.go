// Package clientdata exposes CRUD and reporting over the remote state
// document. Every operation is a read-modify-write of the whole document;
// successful writes announce a data change on the event bus.
package clientdata

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/financetracker/internal/events"
	"github.com/dvloznov/financetracker/internal/localstore"
	"github.com/dvloznov/financetracker/internal/model"
)

// StateStore is the slice of the remote store this service needs.
type StateStore interface {
	Read(ctx context.Context) (*model.RemoteState, error)
	Write(ctx context.Context, state *model.RemoteState) error
}

// Service runs data operations against a StateStore.
type Service struct {
	store StateStore
	bus   *events.Bus
	now   func() time.Time
}

func NewService(store StateStore, bus *events.Bus) *Service {
	return &Service{store: store, bus: bus, now: time.Now}
}

func (s *Service) changed() {
	if s.bus != nil {
		s.bus.Publish(events.DataChanged)
	}
}

// mutate wraps the read-modify-write cycle shared by every operation.
func (s *Service) mutate(ctx context.Context, fn func(*model.RemoteState) error) error {
	state, err := s.store.Read(ctx)
	if err != nil {
		return err
	}
	if err := fn(state); err != nil {
		return err
	}
	if err := s.store.Write(ctx, state); err != nil {
		return err
	}
	s.changed()
	return nil
}

// Transactions

func (s *Service) AddTransaction(ctx context.Context, tx model.Transaction) (int, error) {
	if err := tx.Validate(); err != nil {
		return 0, fmt.Errorf("validating transaction: %w", err)
	}
	err := s.mutate(ctx, func(state *model.RemoteState) error {
		now := s.now().UTC()
		tx.ID = state.NextTransactionID()
		tx.CreatedAt, tx.UpdatedAt = now, now
		state.Transactions = append(state.Transactions, tx)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return tx.ID, nil
}

// Transactions returns a page of records, newest transaction date first.
func (s *Service) Transactions(ctx context.Context, limit, offset int) ([]model.Transaction, error) {
	state, err := s.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	sorted := make([]model.Transaction, len(state.Transactions))
	copy(sorted, state.Transactions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[j].TransactionDate.Before(sorted[i].TransactionDate)
	})

	if offset >= len(sorted) {
		return []model.Transaction{}, nil
	}
	end := offset + limit
	if end > len(sorted) {
		end = len(sorted)
	}
	return sorted[offset:end], nil
}

func (s *Service) UpdateTransaction(ctx context.Context, tx model.Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("validating transaction: %w", err)
	}
	return s.mutate(ctx, func(state *model.RemoteState) error {
		for i := range state.Transactions {
			if state.Transactions[i].ID == tx.ID {
				tx.CreatedAt = state.Transactions[i].CreatedAt
				tx.UpdatedAt = s.now().UTC()
				state.Transactions[i] = tx
				return nil
			}
		}
		return fmt.Errorf("transaction %d: %w", tx.ID, localstore.ErrNotFound)
	})
}

func (s *Service) DeleteTransaction(ctx context.Context, id int) error {
	return s.mutate(ctx, func(state *model.RemoteState) error {
		kept := state.Transactions[:0]
		for _, tx := range state.Transactions {
			if tx.ID != id {
				kept = append(kept, tx)
			}
		}
		state.Transactions = kept
		return nil
	})
}

// Categories

func (s *Service) AddCategory(ctx context.Context, c model.Category) (int, error) {
	if err := c.Validate(); err != nil {
		return 0, fmt.Errorf("validating category: %w", err)
	}
	err := s.mutate(ctx, func(state *model.RemoteState) error {
		c.ID = state.NextCategoryID()
		c.CreatedAt = s.now().UTC()
		state.Categories = append(state.Categories, c)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return c.ID, nil
}

// Categories returns active records, defaults first, then by name.
// typeFilter narrows to income or expense when non-empty.
func (s *Service) Categories(ctx context.Context, typeFilter model.TransactionType) ([]model.Category, error) {
	state, err := s.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	out := []model.Category{}
	for _, c := range state.Categories {
		if !c.IsActive {
			continue
		}
		if typeFilter != "" && c.Type != typeFilter {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Service) UpdateCategory(ctx context.Context, c model.Category) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating category: %w", err)
	}
	return s.mutate(ctx, func(state *model.RemoteState) error {
		for i := range state.Categories {
			if state.Categories[i].ID == c.ID {
				c.CreatedAt = state.Categories[i].CreatedAt
				state.Categories[i] = c
				return nil
			}
		}
		return fmt.Errorf("category %d: %w", c.ID, localstore.ErrNotFound)
	})
}

func (s *Service) DeleteCategory(ctx context.Context, id int) error {
	return s.mutate(ctx, func(state *model.RemoteState) error {
		kept := state.Categories[:0]
		for _, c := range state.Categories {
			if c.ID != id {
				kept = append(kept, c)
			}
		}
		state.Categories = kept
		return nil
	})
}

// Currencies

func (s *Service) AddCurrency(ctx context.Context, c model.Currency) (int, error) {
	if err := c.Validate(); err != nil {
		return 0, fmt.Errorf("validating currency: %w", err)
	}
	err := s.mutate(ctx, func(state *model.RemoteState) error {
		c.ID = state.NextCurrencyID()
		c.CreatedAt = s.now().UTC()
		state.Currencies = append(state.Currencies, c)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return c.ID, nil
}

func (s *Service) Currencies(ctx context.Context) ([]model.Currency, error) {
	state, err := s.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	return state.Currencies, nil
}

func (s *Service) ActiveCurrencies(ctx context.Context) ([]model.Currency, error) {
	currencies, err := s.Currencies(ctx)
	if err != nil {
		return nil, err
	}
	out := []model.Currency{}
	for _, c := range currencies {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Service) UpdateCurrency(ctx context.Context, c model.Currency) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating currency: %w", err)
	}
	return s.mutate(ctx, func(state *model.RemoteState) error {
		for i := range state.Currencies {
			if state.Currencies[i].ID == c.ID {
				c.CreatedAt = state.Currencies[i].CreatedAt
				state.Currencies[i] = c
				return nil
			}
		}
		return fmt.Errorf("currency %d: %w", c.ID, localstore.ErrNotFound)
	})
}

func (s *Service) DeleteCurrency(ctx context.Context, id int) error {
	return s.mutate(ctx, func(state *model.RemoteState) error {
		kept := state.Currencies[:0]
		for _, c := range state.Currencies {
			if c.ID != id {
				kept = append(kept, c)
			}
		}
		state.Currencies = kept
		return nil
	})
}

// Settings

func (s *Service) Settings(ctx context.Context) (*model.AppSettings, error) {
	state, err := s.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	return state.Settings, nil
}

// UpdateSettings upserts the settings singleton. Creation time and the last
// backup stamp carry over from the existing record.
func (s *Service) UpdateSettings(ctx context.Context, defaultCurrencyID int) (*model.AppSettings, error) {
	var updated *model.AppSettings
	err := s.mutate(ctx, func(state *model.RemoteState) error {
		now := s.now().UTC()
		next := &model.AppSettings{
			ID:                1,
			DefaultCurrencyID: defaultCurrencyID,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if prev := state.Settings; prev != nil {
			if next.DefaultCurrencyID <= 0 {
				next.DefaultCurrencyID = prev.DefaultCurrencyID
			}
			next.CreatedAt = prev.CreatedAt
			next.LastBackupTime = prev.LastBackupTime
		}
		if next.DefaultCurrencyID <= 0 {
			next.DefaultCurrencyID = 1
		}
		state.Settings = next
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DefaultCurrency resolves the settings' currency, or nil when either side
// is missing.
func (s *Service) DefaultCurrency(ctx context.Context) (*model.Currency, error) {
	state, err := s.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	if state.Settings == nil {
		return nil, nil
	}
	for i := range state.Currencies {
		if state.Currencies[i].ID == state.Settings.DefaultCurrencyID {
			return &state.Currencies[i], nil
		}
	}
	return nil, nil
}

// Reporting

// TransactionsWithDetails joins a page of transactions with category names
// and the default currency symbol.
func (s *Service) TransactionsWithDetails(ctx context.Context, limit, offset int) ([]localstore.TransactionDetail, error) {
	state, err := s.store.Read(ctx)
	if err != nil {
		return nil, err
	}

	transactions, err := s.Transactions(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	names := make(map[int]string, len(state.Categories))
	for _, c := range state.Categories {
		names[c.ID] = c.Name
	}
	symbol := "$"
	if state.Settings != nil {
		for _, c := range state.Currencies {
			if c.ID == state.Settings.DefaultCurrencyID {
				symbol = c.Symbol
				break
			}
		}
	}

	out := make([]localstore.TransactionDetail, 0, len(transactions))
	for _, tx := range transactions {
		name, ok := names[tx.CategoryID]
		if !ok {
			name = "Unknown"
		}
		out = append(out, localstore.TransactionDetail{Transaction: tx, CategoryName: name, CurrencySymbol: symbol})
	}
	return out, nil
}

// IncomeAndExpenseForPeriod totals both transaction types over an inclusive
// date range.
func (s *Service) IncomeAndExpenseForPeriod(ctx context.Context, start, end civil.Date) (localstore.PeriodTotals, error) {
	var totals localstore.PeriodTotals
	state, err := s.store.Read(ctx)
	if err != nil {
		return totals, err
	}
	for _, tx := range state.Transactions {
		if tx.TransactionDate.Before(start) || tx.TransactionDate.After(end) {
			continue
		}
		switch tx.Type {
		case model.TypeIncome:
			totals.Income += tx.Amount
		case model.TypeExpense:
			totals.Expense += tx.Amount
		}
	}
	return totals, nil
}

func (s *Service) SpendingByCategory(ctx context.Context, start, end civil.Date) ([]localstore.CategoryAmount, error) {
	return s.totalsByCategory(ctx, model.TypeExpense, start, end)
}

func (s *Service) IncomeByCategory(ctx context.Context, start, end civil.Date) ([]localstore.CategoryAmount, error) {
	return s.totalsByCategory(ctx, model.TypeIncome, start, end)
}

func (s *Service) totalsByCategory(ctx context.Context, txType model.TransactionType, start, end civil.Date) ([]localstore.CategoryAmount, error) {
	state, err := s.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[int]string, len(state.Categories))
	for _, c := range state.Categories {
		names[c.ID] = c.Name
	}

	totals := map[string]float64{}
	for _, tx := range state.Transactions {
		if tx.Type != txType || tx.TransactionDate.Before(start) || tx.TransactionDate.After(end) {
			continue
		}
		name, ok := names[tx.CategoryID]
		if !ok {
			name = "Unknown"
		}
		totals[name] += tx.Amount
	}

	out := make([]localstore.CategoryAmount, 0, len(totals))
	for name, amount := range totals {
		out = append(out, localstore.CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
