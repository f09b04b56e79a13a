// Package remotestate persists the application's whole data set as a single
// JSON document in the Drive app-data space, with timestamped snapshot
// exports into a visible folder.
package remotestate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/financetracker/internal/drive"
	"github.com/dvloznov/financetracker/internal/logger"
	"github.com/dvloznov/financetracker/internal/model"
)

const (
	// FileName is the state document stored in the app-data space.
	FileName = "financetracker.db"
	// FolderName is the user-visible folder that receives snapshot exports.
	FolderName = "FinanceTracker"
)

// Store reads and writes the remote state document.
type Store struct {
	api drive.API
	now func() time.Time
}

func NewStore(api drive.API) *Store {
	return &Store{api: api, now: time.Now}
}

// Read returns the current remote state. A missing document is created on
// first read and an unparseable one is replaced in memory with a fresh empty
// state; neither case is an error for the caller.
func (s *Store) Read(ctx context.Context) (*model.RemoteState, error) {
	log := logger.FromContext(ctx)

	fileID, err := s.api.FindFile(ctx, FileName, drive.SpaceAppData)
	if err != nil {
		return nil, fmt.Errorf("finding state file: %w", err)
	}

	if fileID == "" {
		state := model.NewRemoteState()
		if err := s.upload(ctx, state); err != nil {
			return nil, fmt.Errorf("initializing state file: %w", err)
		}
		log.Info().Str("file", FileName).Msg("created remote state file")
		return state, nil
	}

	raw, err := s.api.Download(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("downloading state file: %w", err)
	}

	var state model.RemoteState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		log.Warn().Err(err).Msg("remote state unreadable, starting from empty state")
		return model.NewRemoteState(), nil
	}
	if err := state.Validate(); err != nil {
		log.Warn().Err(err).Msg("remote state invalid, starting from empty state")
		return model.NewRemoteState(), nil
	}
	return &state, nil
}

// Write replaces the remote document with the given state, stamping it with
// the current time. The write is last-writer-wins.
func (s *Store) Write(ctx context.Context, state *model.RemoteState) error {
	state.LastModified = s.now().UTC()

	fileID, err := s.api.FindFile(ctx, FileName, drive.SpaceAppData)
	if err != nil {
		return fmt.Errorf("finding state file: %w", err)
	}

	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	if fileID == "" {
		if _, err := s.api.Upload(ctx, string(raw), FileName, drive.SpaceAppData); err != nil {
			return fmt.Errorf("uploading state: %w", err)
		}
		return nil
	}
	if err := s.api.Update(ctx, fileID, string(raw)); err != nil {
		return fmt.Errorf("updating state: %w", err)
	}
	return nil
}

// ExportSnapshot copies the current state into the visible export folder
// under a timestamped name and returns the created file's id.
func (s *Store) ExportSnapshot(ctx context.Context) (string, error) {
	log := logger.FromContext(ctx)

	state, err := s.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("reading state for export: %w", err)
	}

	folderID, err := s.ensureFolder(ctx)
	if err != nil {
		return "", err
	}

	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding state: %w", err)
	}

	name := SnapshotName("financetracker", s.now())
	fileID, err := s.api.Upload(ctx, string(raw), name, folderID)
	if err != nil {
		return "", fmt.Errorf("uploading snapshot: %w", err)
	}
	log.Info().Str("file", name).Msg("exported state snapshot")
	return fileID, nil
}

func (s *Store) upload(ctx context.Context, state *model.RemoteState) error {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	if _, err := s.api.Upload(ctx, string(raw), FileName, drive.SpaceAppData); err != nil {
		return err
	}
	return nil
}

func (s *Store) ensureFolder(ctx context.Context) (string, error) {
	folderID, err := s.api.FindFolder(ctx, FolderName)
	if err != nil {
		return "", fmt.Errorf("finding export folder: %w", err)
	}
	if folderID != "" {
		return folderID, nil
	}
	folderID, err = s.api.CreateFolder(ctx, FolderName, "")
	if err != nil {
		return "", fmt.Errorf("creating export folder: %w", err)
	}
	return folderID, nil
}

// SnapshotName builds a Drive-safe timestamped file name, replacing the
// characters Drive queries would otherwise need escaped.
func SnapshotName(prefix string, ts time.Time) string {
	stamp := ts.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.ReplaceAll(stamp, ":", "-")
	stamp = strings.ReplaceAll(stamp, ".", "-")
	return prefix + "_" + stamp + ".db"
}
