package localstore

import (
	"context"
	"testing"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/financetracker/internal/model"
)

func seedReportData(t *testing.T, store *Store) (groceries, salary model.Category) {
	t.Helper()
	ctx := context.Background()

	groceries = mustAddCategory(t, store, "Groceries", model.TypeExpense)
	salary = mustAddCategory(t, store, "Salary", model.TypeIncome)

	add := func(cat model.Category, amount float64, txType model.TransactionType, day int) {
		_, err := store.AddTransaction(ctx, model.Transaction{
			CategoryID: cat.ID, Amount: amount,
			TransactionDate: civil.Date{Year: 2024, Month: 3, Day: day},
			Type:            txType,
		})
		if err != nil {
			t.Fatalf("AddTransaction() failed: %v", err)
		}
	}
	add(groceries, 30, model.TypeExpense, 5)
	add(groceries, 20, model.TypeExpense, 10)
	add(salary, 1000, model.TypeIncome, 1)
	add(groceries, 99, model.TypeExpense, 31) // outside the queried range
	return groceries, salary
}

func TestStore_IncomeAndExpenseForPeriod(t *testing.T) {
	store, _ := testStore(t)
	seedReportData(t, store)

	totals, err := store.IncomeAndExpenseForPeriod(context.Background(),
		civil.Date{Year: 2024, Month: 3, Day: 1},
		civil.Date{Year: 2024, Month: 3, Day: 15})
	if err != nil {
		t.Fatalf("IncomeAndExpenseForPeriod() failed: %v", err)
	}
	if totals.Income != 1000 {
		t.Errorf("Income = %v, want 1000", totals.Income)
	}
	if totals.Expense != 50 {
		t.Errorf("Expense = %v, want 50", totals.Expense)
	}
}

func TestStore_SpendingByCategory(t *testing.T) {
	store, _ := testStore(t)
	seedReportData(t, store)

	spending, err := store.SpendingByCategory(context.Background(),
		civil.Date{Year: 2024, Month: 3, Day: 1},
		civil.Date{Year: 2024, Month: 3, Day: 15})
	if err != nil {
		t.Fatalf("SpendingByCategory() failed: %v", err)
	}
	if len(spending) != 1 || spending[0].Name != "Groceries" || spending[0].Amount != 50 {
		t.Errorf("SpendingByCategory() = %+v, want [{Groceries 50}]", spending)
	}
}

func TestStore_IncomeByCategory(t *testing.T) {
	store, _ := testStore(t)
	seedReportData(t, store)

	income, err := store.IncomeByCategory(context.Background(),
		civil.Date{Year: 2024, Month: 3, Day: 1},
		civil.Date{Year: 2024, Month: 3, Day: 15})
	if err != nil {
		t.Fatalf("IncomeByCategory() failed: %v", err)
	}
	if len(income) != 1 || income[0].Name != "Salary" || income[0].Amount != 1000 {
		t.Errorf("IncomeByCategory() = %+v, want [{Salary 1000}]", income)
	}
}

func TestStore_TransactionsWithDetails(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()
	groceries, _ := seedReportData(t, store)

	usd, err := store.AddCurrency(ctx, model.Currency{Code: "USD", Name: "US Dollar", Symbol: "$", IsActive: true})
	if err != nil {
		t.Fatalf("AddCurrency() failed: %v", err)
	}
	if _, err := store.UpdateSettings(ctx, usd.ID); err != nil {
		t.Fatalf("UpdateSettings() failed: %v", err)
	}

	details, err := store.TransactionsWithDetails(ctx, 50, 0)
	if err != nil {
		t.Fatalf("TransactionsWithDetails() failed: %v", err)
	}
	if len(details) != 4 {
		t.Fatalf("got %d details, want 4", len(details))
	}
	for _, d := range details {
		if d.CategoryID == groceries.ID && d.CategoryName != "Groceries" {
			t.Errorf("category name = %q, want Groceries", d.CategoryName)
		}
		if d.CurrencySymbol != "$" {
			t.Errorf("currency symbol = %q, want $", d.CurrencySymbol)
		}
	}
}

func TestStore_DetailsFallBackOnMissingCategory(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()
	cat := mustAddCategory(t, store, "Temp", model.TypeExpense)

	if _, err := store.AddTransaction(ctx, model.Transaction{
		CategoryID: cat.ID, Amount: 5,
		TransactionDate: civil.Date{Year: 2024, Month: 1, Day: 1},
		Type:            model.TypeExpense,
	}); err != nil {
		t.Fatalf("AddTransaction() failed: %v", err)
	}
	if err := store.DeleteCategory(ctx, cat.ID); err != nil {
		t.Fatalf("DeleteCategory() failed: %v", err)
	}

	details, err := store.TransactionsWithDetails(ctx, 50, 0)
	if err != nil {
		t.Fatalf("TransactionsWithDetails() failed: %v", err)
	}
	if len(details) != 1 || details[0].CategoryName != "Unknown" {
		t.Errorf("details = %+v, want one record labelled Unknown", details)
	}
}
