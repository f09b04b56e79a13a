package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
)

func validTransaction(id int) Transaction {
	return Transaction{
		ID:              id,
		CategoryID:      1,
		Amount:          50,
		TransactionDate: civil.Date{Year: 2024, Month: 1, Day: 15},
		Type:            TypeExpense,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
}

func TestTransaction_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Transaction)
		wantErr bool
	}{
		{"valid", func(tx *Transaction) {}, false},
		{"new record without id", func(tx *Transaction) { tx.ID = 0 }, false},
		{"negative amount", func(tx *Transaction) { tx.Amount = -3 }, true},
		{"zero amount", func(tx *Transaction) { tx.Amount = 0 }, true},
		{"missing category", func(tx *Transaction) { tx.CategoryID = 0 }, true},
		{"bad type", func(tx *Transaction) { tx.Type = "transfer" }, true},
		{"zero date", func(tx *Transaction) { tx.TransactionDate = civil.Date{} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := validTransaction(1)
			tt.mutate(&tx)
			err := tx.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransaction_DateWireFormat(t *testing.T) {
	tx := validTransaction(1)
	raw, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(raw), `"transaction_date":"2024-01-15"`) {
		t.Errorf("expected ISO date in JSON, got: %s", raw)
	}
}

func TestRemoteState_NextIDs(t *testing.T) {
	s := NewRemoteState()

	if got := s.NextTransactionID(); got != 1 {
		t.Errorf("NextTransactionID() on empty state = %d, want 1", got)
	}

	// ids must be strictly increasing and never collide, regardless of gaps
	s.Transactions = append(s.Transactions, validTransaction(1), validTransaction(7), validTransaction(3))
	seen := map[int]bool{1: true, 7: true, 3: true}

	prev := 0
	for i := 0; i < 5; i++ {
		id := s.NextTransactionID()
		if id <= prev {
			t.Errorf("NextTransactionID() = %d, not strictly increasing after %d", id, prev)
		}
		if seen[id] {
			t.Errorf("NextTransactionID() = %d collides with existing id", id)
		}
		seen[id] = true
		prev = id
		s.Transactions = append(s.Transactions, validTransaction(id))
	}

	if got := s.NextCategoryID(); got != 1 {
		t.Errorf("NextCategoryID() on empty state = %d, want 1", got)
	}
	s.Categories = append(s.Categories, Category{ID: 4, Name: "Food", Type: TypeExpense})
	if got := s.NextCategoryID(); got != 5 {
		t.Errorf("NextCategoryID() = %d, want 5", got)
	}

	s.Currencies = append(s.Currencies, Currency{ID: 2, Code: "USD"})
	if got := s.NextCurrencyID(); got != 3 {
		t.Errorf("NextCurrencyID() = %d, want 3", got)
	}
}

func TestRemoteState_Validate(t *testing.T) {
	tests := []struct {
		name    string
		state   func() *RemoteState
		wantErr bool
	}{
		{
			name:  "empty initial state",
			state: NewRemoteState,
		},
		{
			name: "nil settings tolerated",
			state: func() *RemoteState {
				s := NewRemoteState()
				s.Settings = nil
				return s
			},
		},
		{
			name: "missing collection",
			state: func() *RemoteState {
				s := NewRemoteState()
				s.Currencies = nil
				return s
			},
			wantErr: true,
		},
		{
			name: "one bad record poisons the document",
			state: func() *RemoteState {
				s := NewRemoteState()
				s.Transactions = append(s.Transactions, validTransaction(1))
				bad := validTransaction(2)
				bad.Amount = -1
				s.Transactions = append(s.Transactions, bad)
				return s
			},
			wantErr: true,
		},
		{
			name: "settings without default currency",
			state: func() *RemoteState {
				s := NewRemoteState()
				s.Settings = &AppSettings{ID: 1}
				return s
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.state().Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBackupData_Validate(t *testing.T) {
	valid := func() *BackupData {
		return &BackupData{
			Transactions: []Transaction{validTransaction(1)},
			Categories:   []Category{{ID: 1, Name: "Food - Groceries", Type: TypeExpense, IsActive: true}},
			Currencies:   []Currency{{ID: 1, Code: "USD", Name: "US Dollar", Symbol: "$", IsActive: true}},
			Settings:     &AppSettings{ID: 1, DefaultCurrencyID: 1},
			Timestamp:    time.Now(),
			Version:      BackupVersion,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*BackupData)
		wantErr bool
	}{
		{"valid", func(b *BackupData) {}, false},
		{"nil transactions", func(b *BackupData) { b.Transactions = nil }, true},
		{"nil settings", func(b *BackupData) { b.Settings = nil }, true},
		{"zero timestamp", func(b *BackupData) { b.Timestamp = time.Time{} }, true},
		{"empty version", func(b *BackupData) { b.Version = "" }, true},
		{"bad record passes envelope check", func(b *BackupData) { b.Currencies[0].Code = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := valid()
			tt.mutate(b)
			err := b.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBackupData_RejectsWrongShapes(t *testing.T) {
	// A document whose collections are not arrays must fail to decode; callers
	// treat decode failure the same as validation failure (corrupted).
	raw := `{"transactions":"oops","categories":[],"currencies":[],"settings":null,"timestamp":"2024-01-01T00:00:00Z","version":"1.0.0"}`
	var b BackupData
	if err := json.Unmarshal([]byte(raw), &b); err == nil {
		t.Error("expected decode error for non-array transactions")
	}
}
