package model

import (
	"fmt"
	"time"
)

// RemoteState is the single JSON document treated as the entire application
// database in the client-only variant. It lives in the Drive appDataFolder
// and is rewritten wholesale on every mutation.
type RemoteState struct {
	Transactions []Transaction `json:"transactions"`
	Categories   []Category    `json:"categories"`
	Currencies   []Currency    `json:"currencies"`
	Settings     *AppSettings  `json:"settings"`
	LastModified time.Time     `json:"last_modified"`
}

// NewRemoteState returns an empty initial state with non-nil collections so
// it serializes as JSON arrays rather than nulls.
func NewRemoteState() *RemoteState {
	return &RemoteState{
		Transactions: []Transaction{},
		Categories:   []Category{},
		Currencies:   []Currency{},
		LastModified: time.Now().UTC(),
	}
}

// Validate checks the document's structural invariants. A nil Settings is
// tolerated here (pre-validation state); a single bad record fails the whole
// document rather than being partially accepted.
func (s *RemoteState) Validate() error {
	if s.Transactions == nil || s.Categories == nil || s.Currencies == nil {
		return fmt.Errorf("state document is missing one or more collections")
	}
	for _, t := range s.Transactions {
		if t.ID <= 0 {
			return fmt.Errorf("invalid transaction: id must be positive, got %d", t.ID)
		}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("invalid transaction: %w", err)
		}
	}
	for _, c := range s.Categories {
		if c.ID <= 0 {
			return fmt.Errorf("invalid category: id must be positive, got %d", c.ID)
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid category: %w", err)
		}
	}
	for _, c := range s.Currencies {
		if c.ID <= 0 {
			return fmt.Errorf("invalid currency: id must be positive, got %d", c.ID)
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid currency: %w", err)
		}
	}
	if s.Settings != nil {
		if err := s.Settings.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NextTransactionID returns 1 + max(existing transaction ids). Monotonic and
// collision-free for a single writer; not safe across concurrent devices.
func (s *RemoteState) NextTransactionID() int {
	max := 0
	for _, t := range s.Transactions {
		if t.ID > max {
			max = t.ID
		}
	}
	return max + 1
}

// NextCategoryID returns 1 + max(existing category ids).
func (s *RemoteState) NextCategoryID() int {
	max := 0
	for _, c := range s.Categories {
		if c.ID > max {
			max = c.ID
		}
	}
	return max + 1
}

// NextCurrencyID returns 1 + max(existing currency ids).
func (s *RemoteState) NextCurrencyID() int {
	max := 0
	for _, c := range s.Currencies {
		if c.ID > max {
			max = c.ID
		}
	}
	return max + 1
}
