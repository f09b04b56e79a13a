// Package backup copies the local database to Drive and back. Drive holds
// one deterministically named file inside one visible folder; each backup
// overwrites it, so the file is always the latest full snapshot.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/financetracker/internal/drive"
	"github.com/dvloznov/financetracker/internal/logger"
	"github.com/dvloznov/financetracker/internal/model"
	"github.com/dvloznov/financetracker/internal/remotestate"
)

const (
	// FolderName is the visible Drive folder that holds the backup file.
	FolderName = "FinanceTracker"
	// FileName is the single backup file, overwritten on every run.
	FileName = "financetracker.db"

	// maxTransactions caps how many records one backup carries.
	maxTransactions = 1000
)

// LocalData is the slice of the local store the syncer needs.
type LocalData interface {
	Transactions(ctx context.Context, limit, offset int) ([]model.Transaction, error)
	AllCategories(ctx context.Context) ([]model.Category, error)
	Currencies(ctx context.Context) ([]model.Currency, error)
	Settings(ctx context.Context) (*model.AppSettings, error)

	AddTransaction(ctx context.Context, tx model.Transaction) (model.Transaction, error)
	AddCategory(ctx context.Context, c model.Category) (model.Category, error)
	AddCurrency(ctx context.Context, c model.Currency) (model.Currency, error)
	UpdateSettings(ctx context.Context, defaultCurrencyID int) (*model.AppSettings, error)
	SetLastBackupTime(ctx context.Context, t time.Time) error
}

// Syncer orchestrates backup and restore runs.
type Syncer struct {
	local LocalData
	api   drive.API
	now   func() time.Time

	// opMu serializes the bodies of backup and restore so they never
	// interleave their Drive reads and writes.
	opMu sync.Mutex

	// slotMu guards the single backup slot. A backup requested while one
	// is running sets rerun instead of starting a second run; the holder
	// performs at most one follow-up.
	slotMu  sync.Mutex
	running bool
	rerun   bool
}

func NewSyncer(local LocalData, api drive.API) *Syncer {
	return &Syncer{local: local, api: api, now: time.Now}
}

// BackupToDrive uploads a full snapshot of the local data. Concurrent calls
// coalesce: while a run is in flight, further calls mark it stale and
// return immediately, and the in-flight run repeats once when it finishes.
func (s *Syncer) BackupToDrive(ctx context.Context) error {
	s.slotMu.Lock()
	if s.running {
		s.rerun = true
		s.slotMu.Unlock()
		return nil
	}
	s.running = true
	s.slotMu.Unlock()

	for {
		err := s.backupOnce(ctx)

		s.slotMu.Lock()
		if err == nil && s.rerun {
			s.rerun = false
			s.slotMu.Unlock()
			continue
		}
		s.running = false
		s.rerun = false
		s.slotMu.Unlock()
		return err
	}
}

func (s *Syncer) backupOnce(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	log := logger.FromContext(ctx).With().Str("run_id", uuid.NewString()).Logger()
	log.Info().Msg("starting backup to drive")

	data, err := s.snapshot(ctx)
	if err != nil {
		return fmt.Errorf("collecting local data: %w", err)
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding backup: %w", err)
	}

	folderID, err := s.ensureFolder(ctx)
	if err != nil {
		return err
	}
	fileID, err := s.api.FindFile(ctx, FileName, folderID)
	if err != nil {
		return fmt.Errorf("finding backup file: %w", err)
	}
	if fileID == "" {
		if _, err := s.api.Upload(ctx, string(raw), FileName, folderID); err != nil {
			return fmt.Errorf("uploading backup: %w", err)
		}
	} else {
		if err := s.api.Update(ctx, fileID, string(raw)); err != nil {
			return fmt.Errorf("overwriting backup: %w", err)
		}
	}

	if err := s.local.SetLastBackupTime(ctx, data.Timestamp); err != nil {
		return fmt.Errorf("recording backup time: %w", err)
	}
	log.Info().
		Int("transactions", len(data.Transactions)).
		Int("categories", len(data.Categories)).
		Msg("backup completed")
	return nil
}

// RestoreFromDrive merges the Drive backup into the local store. Restores
// are additive: records are appended, never overwritten or deleted. A
// missing backup file is seeded from local data instead; an unreadable one
// is replaced with a fresh local snapshot and the local store is left
// untouched.
func (s *Syncer) RestoreFromDrive(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	log := logger.FromContext(ctx).With().Str("run_id", uuid.NewString()).Logger()
	log.Info().Msg("starting restore from drive")

	folderID, err := s.ensureFolder(ctx)
	if err != nil {
		return err
	}
	fileID, err := s.api.FindFile(ctx, FileName, folderID)
	if err != nil {
		return fmt.Errorf("finding backup file: %w", err)
	}

	if fileID == "" {
		// Nothing to restore. Seed Drive from local data so the file
		// exists for other devices, and leave the local store as is.
		data, err := s.snapshot(ctx)
		if err != nil {
			return fmt.Errorf("collecting local data: %w", err)
		}
		raw, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding backup: %w", err)
		}
		if _, err := s.api.Upload(ctx, string(raw), FileName, folderID); err != nil {
			return fmt.Errorf("seeding backup file: %w", err)
		}
		log.Info().Msg("no backup on drive, seeded from local data")
		return nil
	}

	raw, err := s.api.Download(ctx, fileID)
	if err != nil {
		return fmt.Errorf("downloading backup: %w", err)
	}

	var data model.BackupData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		log.Warn().Err(err).Msg("backup unreadable, replacing with local snapshot")
		return s.heal(ctx, fileID, folderID)
	}
	if err := data.Validate(); err != nil {
		log.Warn().Err(err).Msg("backup invalid, replacing with local snapshot")
		return s.heal(ctx, fileID, folderID)
	}

	s.restoreData(ctx, log, &data)
	log.Info().Msg("restore completed")
	return nil
}

// heal overwrites a corrupted Drive backup with a fresh local snapshot. The
// local store is never touched by corrupted remote data.
func (s *Syncer) heal(ctx context.Context, fileID, folderID string) error {
	log := logger.FromContext(ctx)

	data, err := s.snapshot(ctx)
	if err != nil {
		return fmt.Errorf("collecting local data: %w", err)
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding backup: %w", err)
	}

	updateErr := s.api.Update(ctx, fileID, string(raw))
	if updateErr == nil {
		log.Info().Msg("replaced corrupted backup with local snapshot")
		return nil
	}
	log.Warn().Err(updateErr).Msg("could not overwrite corrupted backup, uploading repaired copy")

	name := remotestate.SnapshotName("financetracker_repaired", s.now())
	if _, err := s.api.Upload(ctx, string(raw), name, folderID); err != nil {
		return fmt.Errorf("uploading repaired backup: %w", err)
	}
	log.Info().Str("file", name).Msg("uploaded repaired backup")
	return nil
}

// restoreData applies records one by one; a bad record is logged and
// skipped so the rest of the backup still lands.
func (s *Syncer) restoreData(ctx context.Context, log zerolog.Logger, data *model.BackupData) {
	for _, c := range data.Currencies {
		if _, err := s.local.AddCurrency(ctx, c); err != nil {
			log.Warn().Err(err).Str("code", c.Code).Msg("skipping currency")
		}
	}
	for _, c := range data.Categories {
		if _, err := s.local.AddCategory(ctx, c); err != nil {
			log.Warn().Err(err).Str("name", c.Name).Msg("skipping category")
		}
	}
	for _, tx := range data.Transactions {
		if _, err := s.local.AddTransaction(ctx, tx); err != nil {
			log.Warn().Err(err).Int("id", tx.ID).Msg("skipping transaction")
		}
	}
	if data.Settings != nil {
		if _, err := s.local.UpdateSettings(ctx, data.Settings.DefaultCurrencyID); err != nil {
			log.Warn().Err(err).Msg("skipping settings")
		} else if data.Settings.LastBackupTime != nil {
			if err := s.local.SetLastBackupTime(ctx, *data.Settings.LastBackupTime); err != nil {
				log.Warn().Err(err).Msg("skipping backup stamp")
			}
		}
	}
}

// LastBackupTime reads the stamp recorded by the most recent backup, or nil
// when none has run.
func (s *Syncer) LastBackupTime(ctx context.Context) (*time.Time, error) {
	settings, err := s.local.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	if settings == nil {
		return nil, nil
	}
	return settings.LastBackupTime, nil
}

func (s *Syncer) snapshot(ctx context.Context) (*model.BackupData, error) {
	transactions, err := s.local.Transactions(ctx, maxTransactions, 0)
	if err != nil {
		return nil, err
	}
	categories, err := s.local.AllCategories(ctx)
	if err != nil {
		return nil, err
	}
	currencies, err := s.local.Currencies(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := s.local.Settings(ctx)
	if err != nil {
		return nil, err
	}

	if transactions == nil {
		transactions = []model.Transaction{}
	}
	if categories == nil {
		categories = []model.Category{}
	}
	if currencies == nil {
		currencies = []model.Currency{}
	}

	return &model.BackupData{
		Transactions: transactions,
		Categories:   categories,
		Currencies:   currencies,
		Settings:     settings,
		Timestamp:    s.now().UTC(),
		Version:      model.BackupVersion,
	}, nil
}

func (s *Syncer) ensureFolder(ctx context.Context) (string, error) {
	folderID, err := s.api.FindFolder(ctx, FolderName)
	if err != nil {
		return "", fmt.Errorf("finding backup folder: %w", err)
	}
	if folderID != "" {
		return folderID, nil
	}
	folderID, err = s.api.CreateFolder(ctx, FolderName, "")
	if err != nil {
		return "", fmt.Errorf("creating backup folder: %w", err)
	}
	return folderID, nil
}
