package localstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/financetracker/internal/model"
)

// TransactionDetail is a transaction joined with its category name and the
// default currency symbol, ready for display.
type TransactionDetail struct {
	model.Transaction
	CategoryName   string `json:"category_name"`
	CurrencySymbol string `json:"currency_symbol"`
}

// CategoryAmount is one slice of a per-category total.
type CategoryAmount struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// PeriodTotals sums income and expense over a date range.
type PeriodTotals struct {
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
}

func (s *Store) TransactionsWithDetails(ctx context.Context, limit, offset int) ([]TransactionDetail, error) {
	transactions, err := s.Transactions(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	categories, err := s.AllCategories(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[int]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	symbol := "$"
	if currency, err := s.DefaultCurrency(ctx); err != nil {
		return nil, err
	} else if currency != nil {
		symbol = currency.Symbol
	}

	out := make([]TransactionDetail, 0, len(transactions))
	for _, tx := range transactions {
		name, ok := names[tx.CategoryID]
		if !ok {
			name = "Unknown"
		}
		out = append(out, TransactionDetail{Transaction: tx, CategoryName: name, CurrencySymbol: symbol})
	}
	return out, nil
}

// IncomeAndExpenseForPeriod totals both transaction types over an inclusive
// date range.
func (s *Store) IncomeAndExpenseForPeriod(ctx context.Context, start, end civil.Date) (PeriodTotals, error) {
	var totals PeriodTotals
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN type = 'income' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = 'expense' THEN amount ELSE 0 END), 0)
		FROM transactions
		WHERE transaction_date >= ? AND transaction_date <= ?`,
		start.String(), end.String()).Scan(&totals.Income, &totals.Expense)
	if err != nil {
		return totals, fmt.Errorf("totalling period: %w", err)
	}
	return totals, nil
}

// SpendingByCategory groups expense totals by category name over an
// inclusive date range.
func (s *Store) SpendingByCategory(ctx context.Context, start, end civil.Date) ([]CategoryAmount, error) {
	return s.totalsByCategory(ctx, model.TypeExpense, start, end)
}

// IncomeByCategory groups income totals by category name over an inclusive
// date range.
func (s *Store) IncomeByCategory(ctx context.Context, start, end civil.Date) ([]CategoryAmount, error) {
	return s.totalsByCategory(ctx, model.TypeIncome, start, end)
}

func (s *Store) totalsByCategory(ctx context.Context, txType model.TransactionType, start, end civil.Date) ([]CategoryAmount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(c.name, 'Unknown'), SUM(t.amount)
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id
		WHERE t.type = ? AND t.transaction_date >= ? AND t.transaction_date <= ?
		GROUP BY COALESCE(c.name, 'Unknown')
		ORDER BY SUM(t.amount) DESC`,
		txType, start.String(), end.String())
	if err != nil {
		return nil, fmt.Errorf("grouping by category: %w", err)
	}
	defer rows.Close()

	var out []CategoryAmount
	for rows.Next() {
		var ca CategoryAmount
		if err := rows.Scan(&ca.Name, &ca.Amount); err != nil {
			return nil, fmt.Errorf("scanning category total: %w", err)
		}
		out = append(out, ca)
	}
	return out, rows.Err()
}
