package clientdata

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/financetracker/internal/events"
	"github.com/dvloznov/financetracker/internal/localstore"
	"github.com/dvloznov/financetracker/internal/model"
)

// memState is an in-memory StateStore that round-trips through JSON so
// tests exercise the same serialization the remote store uses.
type memState struct {
	raw    []byte
	writes int
	fail   error
}

func newMemState() *memState {
	raw, _ := json.Marshal(model.NewRemoteState())
	return &memState{raw: raw}
}

func (m *memState) Read(context.Context) (*model.RemoteState, error) {
	if m.fail != nil {
		return nil, m.fail
	}
	var state model.RemoteState
	if err := json.Unmarshal(m.raw, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (m *memState) Write(_ context.Context, state *model.RemoteState) error {
	if m.fail != nil {
		return m.fail
	}
	state.LastModified = time.Now().UTC()
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	m.raw = raw
	m.writes++
	return nil
}

func date(day int) civil.Date {
	return civil.Date{Year: 2024, Month: 3, Day: day}
}

func TestService_TransactionIDsNeverReusedWithinDocument(t *testing.T) {
	svc := NewService(newMemState(), nil)
	ctx := context.Background()

	first, err := svc.AddTransaction(ctx, model.Transaction{
		CategoryID: 1, Amount: 5, TransactionDate: date(1), Type: model.TypeExpense,
	})
	if err != nil {
		t.Fatalf("AddTransaction() failed: %v", err)
	}
	second, err := svc.AddTransaction(ctx, model.Transaction{
		CategoryID: 1, Amount: 6, TransactionDate: date(2), Type: model.TypeExpense,
	})
	if err != nil {
		t.Fatalf("AddTransaction() failed: %v", err)
	}
	if first != 1 || second != 2 {
		t.Errorf("ids = %d, %d, want 1, 2", first, second)
	}
}

func TestService_TransactionsPagedNewestFirst(t *testing.T) {
	svc := NewService(newMemState(), nil)
	ctx := context.Background()

	for _, day := range []int{3, 25, 14} {
		_, err := svc.AddTransaction(ctx, model.Transaction{
			CategoryID: 1, Amount: float64(day), TransactionDate: date(day), Type: model.TypeExpense,
		})
		if err != nil {
			t.Fatalf("AddTransaction() failed: %v", err)
		}
	}

	page, err := svc.Transactions(ctx, 2, 0)
	if err != nil {
		t.Fatalf("Transactions() failed: %v", err)
	}
	if len(page) != 2 || page[0].TransactionDate.Day != 25 || page[1].TransactionDate.Day != 14 {
		t.Errorf("first page = %+v, want days 25, 14", page)
	}

	rest, err := svc.Transactions(ctx, 2, 2)
	if err != nil {
		t.Fatalf("Transactions() failed: %v", err)
	}
	if len(rest) != 1 || rest[0].TransactionDate.Day != 3 {
		t.Errorf("second page = %+v, want day 3", rest)
	}
}

func TestService_UpdateMissingTransaction(t *testing.T) {
	store := newMemState()
	svc := NewService(store, nil)

	err := svc.UpdateTransaction(context.Background(), model.Transaction{
		ID: 99, CategoryID: 1, Amount: 5, TransactionDate: date(1), Type: model.TypeExpense,
	})
	if !errors.Is(err, localstore.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if store.writes != 0 {
		t.Errorf("failed update wrote %d times, want 0", store.writes)
	}
}

func TestService_CurrencyUpdateLifecycle(t *testing.T) {
	store := newMemState()
	svc := NewService(store, nil)
	ctx := context.Background()

	id, err := svc.AddCurrency(ctx, model.Currency{Code: "USD", Name: "US Dollar", Symbol: "$", IsActive: true})
	if err != nil {
		t.Fatalf("AddCurrency() failed: %v", err)
	}

	err = svc.UpdateCurrency(ctx, model.Currency{
		ID: id, Code: "USD", Name: "United States Dollar", Symbol: "$", IsActive: false,
	})
	if err != nil {
		t.Fatalf("UpdateCurrency() failed: %v", err)
	}

	all, err := svc.Currencies(ctx)
	if err != nil {
		t.Fatalf("Currencies() failed: %v", err)
	}
	if len(all) != 1 || all[0].Name != "United States Dollar" || all[0].IsActive {
		t.Errorf("currency after update = %+v, want renamed and inactive", all[0])
	}
	if all[0].CreatedAt.IsZero() {
		t.Error("update dropped the original creation time")
	}

	writes := store.writes
	err = svc.UpdateCurrency(ctx, model.Currency{ID: 99, Code: "EUR", Name: "Euro", Symbol: "€", IsActive: true})
	if !errors.Is(err, localstore.ErrNotFound) {
		t.Errorf("UpdateCurrency(missing) error = %v, want ErrNotFound", err)
	}
	if store.writes != writes {
		t.Errorf("failed update wrote %d extra times, want 0", store.writes-writes)
	}
}

func TestService_CategoriesFilterAndSort(t *testing.T) {
	svc := NewService(newMemState(), nil)
	ctx := context.Background()

	add := func(name string, txType model.TransactionType, isDefault, isActive bool) {
		_, err := svc.AddCategory(ctx, model.Category{Name: name, Type: txType, IsDefault: isDefault, IsActive: isActive})
		if err != nil {
			t.Fatalf("AddCategory(%s) failed: %v", name, err)
		}
	}
	add("Custom B", model.TypeExpense, false, true)
	add("Zebra", model.TypeExpense, true, true)
	add("Retired", model.TypeExpense, false, false)
	add("Salary", model.TypeIncome, true, true)

	got, err := svc.Categories(ctx, model.TypeExpense)
	if err != nil {
		t.Fatalf("Categories() failed: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Zebra" || got[1].Name != "Custom B" {
		t.Errorf("Categories() = %+v, want active expenses with defaults first", got)
	}
}

func TestService_SettingsPreserveBackupStamp(t *testing.T) {
	store := newMemState()
	svc := NewService(store, nil)
	ctx := context.Background()

	if _, err := svc.UpdateSettings(ctx, 1); err != nil {
		t.Fatalf("UpdateSettings() failed: %v", err)
	}

	// Simulate a completed backup stamped directly on the document.
	state, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	stamp := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	state.Settings.LastBackupTime = &stamp
	if err := store.Write(ctx, state); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	updated, err := svc.UpdateSettings(ctx, 2)
	if err != nil {
		t.Fatalf("UpdateSettings() failed: %v", err)
	}
	if updated.DefaultCurrencyID != 2 {
		t.Errorf("DefaultCurrencyID = %d, want 2", updated.DefaultCurrencyID)
	}
	if updated.LastBackupTime == nil || !updated.LastBackupTime.Equal(stamp) {
		t.Errorf("LastBackupTime = %v, want preserved %v", updated.LastBackupTime, stamp)
	}
}

func TestService_MutationsAnnounceDataChanged(t *testing.T) {
	bus := events.NewBus()
	svc := NewService(newMemState(), bus)
	ctx := context.Background()

	changes := 0
	defer bus.Subscribe(events.DataChanged, func() { changes++ })()

	id, err := svc.AddTransaction(ctx, model.Transaction{
		CategoryID: 1, Amount: 5, TransactionDate: date(1), Type: model.TypeExpense,
	})
	if err != nil {
		t.Fatalf("AddTransaction() failed: %v", err)
	}
	if err := svc.DeleteTransaction(ctx, id); err != nil {
		t.Fatalf("DeleteTransaction() failed: %v", err)
	}
	if changes != 2 {
		t.Errorf("changes = %d, want 2", changes)
	}
}

func TestService_ReadFailureDoesNotAnnounce(t *testing.T) {
	bus := events.NewBus()
	store := newMemState()
	store.fail = errors.New("drive unreachable")
	svc := NewService(store, bus)

	changes := 0
	defer bus.Subscribe(events.DataChanged, func() { changes++ })()

	if _, err := svc.AddTransaction(context.Background(), model.Transaction{
		CategoryID: 1, Amount: 5, TransactionDate: date(1), Type: model.TypeExpense,
	}); err == nil {
		t.Fatal("expected error from failing store")
	}
	if changes != 0 {
		t.Errorf("failed mutation announced %d changes", changes)
	}
}

func TestService_Reports(t *testing.T) {
	svc := NewService(newMemState(), nil)
	ctx := context.Background()

	groceries, err := svc.AddCategory(ctx, model.Category{Name: "Groceries", Type: model.TypeExpense, IsActive: true})
	if err != nil {
		t.Fatalf("AddCategory() failed: %v", err)
	}
	salary, err := svc.AddCategory(ctx, model.Category{Name: "Salary", Type: model.TypeIncome, IsActive: true})
	if err != nil {
		t.Fatalf("AddCategory() failed: %v", err)
	}

	add := func(cat int, amount float64, txType model.TransactionType, day int) {
		_, err := svc.AddTransaction(ctx, model.Transaction{
			CategoryID: cat, Amount: amount, TransactionDate: date(day), Type: txType,
		})
		if err != nil {
			t.Fatalf("AddTransaction() failed: %v", err)
		}
	}
	add(groceries, 30, model.TypeExpense, 5)
	add(groceries, 20, model.TypeExpense, 10)
	add(salary, 1000, model.TypeIncome, 1)
	add(groceries, 99, model.TypeExpense, 31)

	totals, err := svc.IncomeAndExpenseForPeriod(ctx, date(1), date(15))
	if err != nil {
		t.Fatalf("IncomeAndExpenseForPeriod() failed: %v", err)
	}
	if totals.Income != 1000 || totals.Expense != 50 {
		t.Errorf("totals = %+v, want income 1000 expense 50", totals)
	}

	spending, err := svc.SpendingByCategory(ctx, date(1), date(15))
	if err != nil {
		t.Fatalf("SpendingByCategory() failed: %v", err)
	}
	if len(spending) != 1 || spending[0].Name != "Groceries" || spending[0].Amount != 50 {
		t.Errorf("SpendingByCategory() = %+v, want [{Groceries 50}]", spending)
	}
}

func TestService_SeedIsIdempotent(t *testing.T) {
	svc := NewService(newMemState(), nil)
	ctx := context.Background()

	if err := svc.Seed(ctx); err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}
	if err := svc.Seed(ctx); err != nil {
		t.Fatalf("second Seed() failed: %v", err)
	}

	currencies, err := svc.Currencies(ctx)
	if err != nil {
		t.Fatalf("Currencies() failed: %v", err)
	}
	if len(currencies) != len(model.DefaultCurrencies()) {
		t.Errorf("seeded %d currencies, want %d", len(currencies), len(model.DefaultCurrencies()))
	}

	currency, err := svc.DefaultCurrency(ctx)
	if err != nil {
		t.Fatalf("DefaultCurrency() failed: %v", err)
	}
	if currency == nil || currency.Code != "USD" {
		t.Errorf("default currency = %+v, want USD", currency)
	}
}
