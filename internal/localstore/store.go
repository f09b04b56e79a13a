// Package localstore is the embedded SQLite database holding the working
// copy of the user's finance data. Every successful mutation announces
// itself on the event bus so the sync scheduler can pick it up.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/civil"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/dvloznov/financetracker/internal/events"
	"github.com/dvloznov/financetracker/internal/model"
)

// ErrNotFound is returned when an update or delete targets a missing record.
var ErrNotFound = errors.New("record not found")

const schema = `
CREATE TABLE IF NOT EXISTS currencies (
	id INTEGER PRIMARY KEY,
	code TEXT NOT NULL,
	name TEXT NOT NULL,
	symbol TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS categories (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	is_default INTEGER NOT NULL DEFAULT 0,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS transactions (
	id INTEGER PRIMARY KEY,
	category_id INTEGER NOT NULL,
	amount REAL NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	transaction_date TEXT NOT NULL,
	type TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS app_settings (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	default_currency_id INTEGER NOT NULL,
	last_backup_time TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// Store wraps the SQLite connection.
type Store struct {
	db  *sql.DB
	bus *events.Bus
	now func() time.Time
}

// Open creates the database file if needed, applies the schema and returns
// a ready store. The caller must Close it.
func Open(path string, bus *events.Bus) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("applying %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, bus: bus, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) changed() {
	if s.bus != nil {
		s.bus.Publish(events.DataChanged)
	}
}

// Clear drops all user data. It runs on sign-out and does not announce a
// data change: there is nothing left to sync.
func (s *Store) Clear(ctx context.Context) error {
	for _, table := range []string{"transactions", "categories", "currencies", "app_settings"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return nil
}

// Transactions

// Transactions returns records ordered newest-first.
func (s *Store) Transactions(ctx context.Context, limit, offset int) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category_id, amount, description, transaction_date, type, created_at, updated_at
		FROM transactions
		ORDER BY transaction_date DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func scanTransaction(rows *sql.Rows) (model.Transaction, error) {
	var tx model.Transaction
	var date, created, updated string
	if err := rows.Scan(&tx.ID, &tx.CategoryID, &tx.Amount, &tx.Description, &date, &tx.Type, &created, &updated); err != nil {
		return tx, fmt.Errorf("scanning transaction: %w", err)
	}
	var err error
	if tx.TransactionDate, err = civil.ParseDate(date); err != nil {
		return tx, fmt.Errorf("parsing transaction date %q: %w", date, err)
	}
	tx.CreatedAt = parseTime(created)
	tx.UpdatedAt = parseTime(updated)
	return tx, nil
}

func (s *Store) AddTransaction(ctx context.Context, tx model.Transaction) (model.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return tx, fmt.Errorf("validating transaction: %w", err)
	}
	now := s.now().UTC()
	tx.CreatedAt, tx.UpdatedAt = now, now

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO transactions (id, category_id, amount, description, transaction_date, type, created_at, updated_at)
		VALUES ((SELECT COALESCE(MAX(id), 0) + 1 FROM transactions), ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		tx.CategoryID, tx.Amount, tx.Description, tx.TransactionDate.String(), tx.Type,
		formatTime(now), formatTime(now)).Scan(&tx.ID)
	if err != nil {
		return tx, fmt.Errorf("inserting transaction: %w", err)
	}
	s.changed()
	return tx, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, tx model.Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("validating transaction: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET category_id = ?, amount = ?, description = ?, transaction_date = ?, type = ?, updated_at = ?
		WHERE id = ?`,
		tx.CategoryID, tx.Amount, tx.Description, tx.TransactionDate.String(), tx.Type,
		formatTime(s.now().UTC()), tx.ID)
	if err != nil {
		return fmt.Errorf("updating transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %d: %w", tx.ID, ErrNotFound)
	}
	s.changed()
	return nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}
	s.changed()
	return nil
}

// Categories

// Categories returns active records, default ones first, then by name.
// typeFilter narrows to income or expense when non-empty.
func (s *Store) Categories(ctx context.Context, typeFilter model.TransactionType) ([]model.Category, error) {
	query := `
		SELECT id, name, type, is_default, is_active, created_at
		FROM categories WHERE is_active = 1`
	args := []any{}
	if typeFilter != "" {
		query += " AND type = ?"
		args = append(args, typeFilter)
	}
	query += " ORDER BY is_default DESC, name"

	return s.queryCategories(ctx, query, args...)
}

// AllCategories returns every record, including inactive ones. Backups use
// this so deactivated categories survive a restore.
func (s *Store) AllCategories(ctx context.Context) ([]model.Category, error) {
	return s.queryCategories(ctx, `
		SELECT id, name, type, is_default, is_active, created_at
		FROM categories ORDER BY id`)
}

func (s *Store) queryCategories(ctx context.Context, query string, args ...any) ([]model.Category, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		var c model.Category
		var created string
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.IsDefault, &c.IsActive, &created); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		c.CreatedAt = parseTime(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) AddCategory(ctx context.Context, c model.Category) (model.Category, error) {
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("validating category: %w", err)
	}
	c.CreatedAt = s.now().UTC()

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (id, name, type, is_default, is_active, created_at)
		VALUES ((SELECT COALESCE(MAX(id), 0) + 1 FROM categories), ?, ?, ?, ?, ?)
		RETURNING id`,
		c.Name, c.Type, c.IsDefault, c.IsActive, formatTime(c.CreatedAt)).Scan(&c.ID)
	if err != nil {
		return c, fmt.Errorf("inserting category: %w", err)
	}
	s.changed()
	return c, nil
}

func (s *Store) UpdateCategory(ctx context.Context, c model.Category) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating category: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE categories SET name = ?, type = ?, is_default = ?, is_active = ? WHERE id = ?`,
		c.Name, c.Type, c.IsDefault, c.IsActive, c.ID)
	if err != nil {
		return fmt.Errorf("updating category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("category %d: %w", c.ID, ErrNotFound)
	}
	s.changed()
	return nil
}

func (s *Store) DeleteCategory(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM categories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("category %d: %w", id, ErrNotFound)
	}
	s.changed()
	return nil
}

// Currencies

func (s *Store) Currencies(ctx context.Context) ([]model.Currency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, symbol, is_active, created_at FROM currencies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing currencies: %w", err)
	}
	defer rows.Close()

	var out []model.Currency
	for rows.Next() {
		var c model.Currency
		var created string
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Symbol, &c.IsActive, &created); err != nil {
			return nil, fmt.Errorf("scanning currency: %w", err)
		}
		c.CreatedAt = parseTime(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ActiveCurrencies returns only the currencies available for selection,
// ordered by code.
func (s *Store) ActiveCurrencies(ctx context.Context) ([]model.Currency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, symbol, is_active, created_at FROM currencies
		WHERE is_active = 1 ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("listing active currencies: %w", err)
	}
	defer rows.Close()

	var out []model.Currency
	for rows.Next() {
		var c model.Currency
		var created string
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Symbol, &c.IsActive, &created); err != nil {
			return nil, fmt.Errorf("scanning currency: %w", err)
		}
		c.CreatedAt = parseTime(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) AddCurrency(ctx context.Context, c model.Currency) (model.Currency, error) {
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("validating currency: %w", err)
	}
	c.CreatedAt = s.now().UTC()

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO currencies (id, code, name, symbol, is_active, created_at)
		VALUES ((SELECT COALESCE(MAX(id), 0) + 1 FROM currencies), ?, ?, ?, ?, ?)
		RETURNING id`,
		c.Code, c.Name, c.Symbol, c.IsActive, formatTime(c.CreatedAt)).Scan(&c.ID)
	if err != nil {
		return c, fmt.Errorf("inserting currency: %w", err)
	}
	s.changed()
	return c, nil
}

func (s *Store) UpdateCurrency(ctx context.Context, c model.Currency) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating currency: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE currencies SET code = ?, name = ?, symbol = ?, is_active = ? WHERE id = ?`,
		c.Code, c.Name, c.Symbol, c.IsActive, c.ID)
	if err != nil {
		return fmt.Errorf("updating currency: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("currency %d: %w", c.ID, ErrNotFound)
	}
	s.changed()
	return nil
}

func (s *Store) DeleteCurrency(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM currencies WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting currency: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("currency %d: %w", id, ErrNotFound)
	}
	s.changed()
	return nil
}

// Settings

// Settings returns the singleton row, or nil when none has been written.
func (s *Store) Settings(ctx context.Context) (*model.AppSettings, error) {
	var st model.AppSettings
	var lastBackup sql.NullString
	var created, updated string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, default_currency_id, last_backup_time, created_at, updated_at
		FROM app_settings WHERE id = 1`).
		Scan(&st.ID, &st.DefaultCurrencyID, &lastBackup, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	if lastBackup.Valid {
		t := parseTime(lastBackup.String)
		st.LastBackupTime = &t
	}
	st.CreatedAt = parseTime(created)
	st.UpdatedAt = parseTime(updated)
	return &st, nil
}

// UpdateSettings upserts the singleton row. The original creation time and
// the last backup stamp survive the update.
func (s *Store) UpdateSettings(ctx context.Context, defaultCurrencyID int) (*model.AppSettings, error) {
	if defaultCurrencyID <= 0 {
		return nil, errors.New("default currency id must be positive")
	}
	now := formatTime(s.now().UTC())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_settings (id, default_currency_id, created_at, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET default_currency_id = excluded.default_currency_id, updated_at = excluded.updated_at`,
		defaultCurrencyID, now, now)
	if err != nil {
		return nil, fmt.Errorf("saving settings: %w", err)
	}
	s.changed()
	return s.Settings(ctx)
}

// SetLastBackupTime records a completed backup without announcing a data
// change, so the stamp itself never schedules another sync. The row is
// created if the store has never been seeded.
func (s *Store) SetLastBackupTime(ctx context.Context, t time.Time) error {
	now := formatTime(s.now().UTC())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_settings (id, default_currency_id, last_backup_time, created_at, updated_at)
		VALUES (1, 1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET last_backup_time = excluded.last_backup_time`,
		formatTime(t.UTC()), now, now)
	if err != nil {
		return fmt.Errorf("recording backup time: %w", err)
	}
	return nil
}

// DefaultCurrency resolves the settings' currency, or nil when either side
// is missing.
func (s *Store) DefaultCurrency(ctx context.Context) (*model.Currency, error) {
	settings, err := s.Settings(ctx)
	if err != nil || settings == nil {
		return nil, err
	}
	currencies, err := s.Currencies(ctx)
	if err != nil {
		return nil, err
	}
	for i := range currencies {
		if currencies[i].ID == settings.DefaultCurrencyID {
			return &currencies[i], nil
		}
	}
	return nil, nil
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
