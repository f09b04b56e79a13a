// Package model defines the finance tracker's record types and the two JSON
// document shapes kept on Drive: the live RemoteState document and the
// versioned BackupData envelope. The two shapes are distinct and must never
// be conflated.
package model

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// TransactionType distinguishes income from expense records.
type TransactionType string

const (
	// TypeIncome marks money coming in.
	TypeIncome TransactionType = "income"
	// TypeExpense marks money going out.
	TypeExpense TransactionType = "expense"
)

// Valid reports whether t is one of the two known transaction types.
func (t TransactionType) Valid() bool {
	return t == TypeIncome || t == TypeExpense
}

// Transaction is one income or expense record.
type Transaction struct {
	ID              int             `json:"id"`
	CategoryID      int             `json:"category_id"`
	Amount          float64         `json:"amount"`
	Description     string          `json:"description,omitempty"`
	TransactionDate civil.Date      `json:"transaction_date"` // YYYY-MM-DD on the wire
	Type            TransactionType `json:"type"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Validate checks the structural invariants of a single transaction. The id
// is not checked: new records are validated before the store assigns one.
func (t Transaction) Validate() error {
	if t.CategoryID <= 0 {
		return fmt.Errorf("transaction %d: category_id must be positive, got %d", t.ID, t.CategoryID)
	}
	if t.Amount <= 0 {
		return fmt.Errorf("transaction %d: amount must be positive, got %v", t.ID, t.Amount)
	}
	if !t.Type.Valid() {
		return fmt.Errorf("transaction %d: unknown type %q", t.ID, t.Type)
	}
	if !t.TransactionDate.IsValid() {
		return fmt.Errorf("transaction %d: invalid transaction_date %v", t.ID, t.TransactionDate)
	}
	return nil
}

// Category groups transactions. Categories are global, not per user.
// IsDefault only affects sort ordering (defaults sort first).
type Category struct {
	ID        int             `json:"id"`
	Name      string          `json:"name"`
	Type      TransactionType `json:"type"`
	IsDefault bool            `json:"is_default"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
}

// Validate checks the structural invariants of a single category.
func (c Category) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("category %d: name is required", c.ID)
	}
	if !c.Type.Valid() {
		return fmt.Errorf("category %d: unknown type %q", c.ID, c.Type)
	}
	return nil
}

// Currency is a display currency (ISO 4217-like code).
type Currency struct {
	ID        int       `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Symbol    string    `json:"symbol"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the structural invariants of a single currency.
func (c Currency) Validate() error {
	if c.Code == "" {
		return fmt.Errorf("currency %d: code is required", c.ID)
	}
	return nil
}

// AppSettings is the per-installation settings singleton (id is always 1 in
// the client-only variant).
type AppSettings struct {
	ID                int        `json:"id"`
	DefaultCurrencyID int        `json:"default_currency_id"`
	LastBackupTime    *time.Time `json:"last_backup_time,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Validate checks the structural invariants of the settings singleton.
func (s AppSettings) Validate() error {
	if s.DefaultCurrencyID <= 0 {
		return fmt.Errorf("settings: default_currency_id must be positive, got %d", s.DefaultCurrencyID)
	}
	return nil
}
