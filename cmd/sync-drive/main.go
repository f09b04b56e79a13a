package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/api/option"

	"github.com/dvloznov/financetracker/internal/auth"
	"github.com/dvloznov/financetracker/internal/backup"
	"github.com/dvloznov/financetracker/internal/drive"
	"github.com/dvloznov/financetracker/internal/events"
	"github.com/dvloznov/financetracker/internal/localstore"
	"github.com/dvloznov/financetracker/internal/logger"
	"github.com/dvloznov/financetracker/internal/remotestate"
)

func main() {
	// Initialize structured logger
	log := logger.NewWithLevel(os.Getenv("LOG_LEVEL"))

	// Parse CLI flags
	action := flag.String("action", "", "Action to run: backup, restore or export (required)")
	dataDir := flag.String("data-dir", "", "Data directory (defaults to $FT_DATA_DIR or ~/.financetracker)")
	flag.Parse()

	// Validate required flags
	switch *action {
	case "backup", "restore", "export":
	case "":
		log.Fatal().Msg("Error: --action is required")
	default:
		log.Fatal().Str("action", *action).Msg("Error: action must be backup, restore or export")
	}

	dir := *dataDir
	if dir == "" {
		dir = os.Getenv("FT_DATA_DIR")
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatal().Err(err).Msg("Error: cannot resolve home directory")
		}
		dir = filepath.Join(home, ".financetracker")
	}

	// Create context with timeout so the CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// Add logger to context
	ctx = logger.WithContext(ctx, log)

	bus := events.NewBus()
	store, err := localstore.Open(filepath.Join(dir, "finance.db"), bus)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open local store")
	}
	defer store.Close()

	cfg := auth.NewGoogleConfig(os.Getenv("GOOGLE_CLIENT_ID"), os.Getenv("GOOGLE_CLIENT_SECRET"))
	flow := &auth.LoopbackFlow{Config: cfg}
	identities := auth.NewFileIdentityStore(filepath.Join(dir, "profile.json"))
	broker := auth.NewBroker(flow, identities, store, bus)

	// These actions are user-initiated, so prompting for consent is fine.
	if !broker.HasValidAccessToken() {
		if err := broker.SignIn(ctx); err != nil {
			log.Fatal().Err(err).Msg("Sign-in failed")
		}
	}

	svc, err := drive.New(ctx, option.WithTokenSource(broker.TokenSource()))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize drive client")
	}

	log.Info().Str("action", *action).Msg("Starting drive sync")

	switch *action {
	case "backup":
		syncer := backup.NewSyncer(store, svc)
		if err := syncer.BackupToDrive(ctx); err != nil {
			log.Fatal().Err(err).Msg("Backup failed")
		}
		fmt.Println("Backup completed successfully.")
	case "restore":
		syncer := backup.NewSyncer(store, svc)
		if err := syncer.RestoreFromDrive(ctx); err != nil {
			log.Fatal().Err(err).Msg("Restore failed")
		}
		fmt.Println("Restore completed successfully.")
	case "export":
		remote := remotestate.NewStore(svc)
		fileID, err := remote.ExportSnapshot(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Export failed")
		}
		fmt.Printf("Exported snapshot (file id %s).\n", fileID)
	}
}
