package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/dvloznov/financetracker/internal/auth"
	"github.com/dvloznov/financetracker/internal/autosync"
	"github.com/dvloznov/financetracker/internal/backup"
	"github.com/dvloznov/financetracker/internal/clientdata"
	"github.com/dvloznov/financetracker/internal/drive"
	"github.com/dvloznov/financetracker/internal/events"
	"github.com/dvloznov/financetracker/internal/localstore"
	"github.com/dvloznov/financetracker/internal/logger"
	"github.com/dvloznov/financetracker/internal/model"
	"github.com/dvloznov/financetracker/internal/remotestate"
)

func main() {
	log := logger.NewWithLevel(os.Getenv("LOG_LEVEL"))

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	app, err := newApp(log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer app.close()

	switch os.Args[1] {
	case "signin":
		app.runSignIn()
	case "signout":
		app.runSignOut()
	case "status":
		app.runStatus()
	case "seed":
		app.runSeed()
	case "add":
		app.runAdd()
	case "list":
		app.runList()
	case "watch":
		app.runWatch()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Finance Tracker CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  signin    Sign in with Google and cache the session")
	fmt.Println("  signout   Sign out and clear local data")
	fmt.Println("  status    Show session and backup status")
	fmt.Println("  seed      Populate stock currencies and categories")
	fmt.Println("  add       Record a transaction")
	fmt.Println("  list      List recent transactions")
	fmt.Println("  watch     Run the automatic backup scheduler")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nThe add, list and seed commands accept -remote to work against the")
	fmt.Println("cloud state document instead of the local database.")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

type app struct {
	log    zerolog.Logger
	bus    *events.Bus
	store  *localstore.Store
	broker *auth.Broker
}

func newApp(log zerolog.Logger) (*app, error) {
	dataDir := os.Getenv("FT_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".financetracker")
	}

	bus := events.NewBus()
	store, err := localstore.Open(filepath.Join(dataDir, "finance.db"), bus)
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	cfg := auth.NewGoogleConfig(os.Getenv("GOOGLE_CLIENT_ID"), os.Getenv("GOOGLE_CLIENT_SECRET"))
	flow := &auth.LoopbackFlow{Config: cfg}
	identities := auth.NewFileIdentityStore(filepath.Join(dataDir, "profile.json"))
	broker := auth.NewBroker(flow, identities, store, bus)

	return &app{log: log, bus: bus, store: store, broker: broker}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to close local store")
	}
}

func (a *app) ctx(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return logger.WithContext(ctx, a.log), cancel
}

// remoteData builds the client-variant service that reads and writes the
// remote state document directly instead of the local database.
func (a *app) remoteData(ctx context.Context) *clientdata.Service {
	if !a.broker.IsAuthenticated() || !a.broker.HasValidAccessToken() {
		a.log.Fatal().Msg("Error: sign in first with 'cli signin'")
	}
	svc, err := drive.New(ctx, option.WithTokenSource(a.broker.TokenSource()))
	if err != nil {
		a.log.Fatal().Err(err).Msg("Failed to initialize drive client")
	}
	return clientdata.NewService(remotestate.NewStore(svc), a.bus)
}

func (a *app) runSignIn() {
	ctx, cancel := a.ctx(5 * time.Minute)
	defer cancel()

	if err := a.broker.SignIn(ctx); err != nil {
		a.log.Fatal().Err(err).Msg("Sign-in failed")
	}

	if profile, err := a.broker.Profile(); err == nil && profile != nil {
		fmt.Printf("Signed in as %s <%s>\n", profile.Name, profile.Email)
		return
	}
	fmt.Println("Signed in.")
}

func (a *app) runSignOut() {
	ctx, cancel := a.ctx(time.Minute)
	defer cancel()

	a.broker.SignOut(ctx)
	fmt.Println("Signed out. Local data cleared.")
}

func (a *app) runStatus() {
	ctx, cancel := a.ctx(time.Minute)
	defer cancel()

	if !a.broker.IsAuthenticated() {
		fmt.Println("Not signed in.")
		return
	}

	if profile, err := a.broker.Profile(); err == nil && profile != nil {
		fmt.Printf("Signed in as %s <%s>\n", profile.Name, profile.Email)
	} else {
		fmt.Println("Signed in.")
	}
	if a.broker.HasValidAccessToken() {
		fmt.Println("Access token: valid")
	} else {
		fmt.Println("Access token: expired (run 'cli signin' to refresh)")
	}

	settings, err := a.store.Settings(ctx)
	if err != nil {
		a.log.Fatal().Err(err).Msg("Failed to read settings")
	}
	if settings != nil && settings.LastBackupTime != nil {
		fmt.Printf("Last backup: %s\n", settings.LastBackupTime.Local().Format(time.RFC1123))
	} else {
		fmt.Println("Last backup: never")
	}
}

func (a *app) runSeed() {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	remote := fs.Bool("remote", false, "Seed the remote state document instead of the local database")
	fs.Parse(os.Args[2:])

	ctx, cancel := a.ctx(time.Minute)
	defer cancel()

	if *remote {
		if err := a.remoteData(ctx).Seed(ctx); err != nil {
			a.log.Fatal().Err(err).Msg("Seeding failed")
		}
		fmt.Println("Seeded remote stock currencies, categories and settings.")
		return
	}
	if err := a.store.Seed(ctx); err != nil {
		a.log.Fatal().Err(err).Msg("Seeding failed")
	}
	fmt.Println("Seeded stock currencies, categories and settings.")
}

func (a *app) runAdd() {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	amount := fs.Float64("amount", 0, "Transaction amount (required)")
	categoryID := fs.Int("category", 0, "Category ID (required)")
	dateStr := fs.String("date", "", "Transaction date in YYYY-MM-DD format (defaults to today)")
	txType := fs.String("type", "expense", "Transaction type: income or expense")
	description := fs.String("description", "", "Free-form description")
	remote := fs.Bool("remote", false, "Write to the remote state document instead of the local database")
	fs.Parse(os.Args[2:])

	if *amount <= 0 {
		a.log.Fatal().Msg("Error: --amount is required and must be positive")
	}
	if *categoryID <= 0 {
		a.log.Fatal().Msg("Error: --category is required")
	}

	date := civil.DateOf(time.Now())
	if *dateStr != "" {
		var err error
		if date, err = civil.ParseDate(*dateStr); err != nil {
			a.log.Fatal().Err(err).Str("date", *dateStr).Msg("Error: invalid date format, expected YYYY-MM-DD")
		}
	}

	ctx, cancel := a.ctx(time.Minute)
	defer cancel()

	record := model.Transaction{
		CategoryID:      *categoryID,
		Amount:          *amount,
		Description:     *description,
		TransactionDate: date,
		Type:            model.TransactionType(*txType),
	}

	if *remote {
		id, err := a.remoteData(ctx).AddTransaction(ctx, record)
		if err != nil {
			a.log.Fatal().Err(err).Msg("Failed to add transaction")
		}
		fmt.Printf("Added remote transaction #%d\n", id)
		return
	}

	tx, err := a.store.AddTransaction(ctx, record)
	if err != nil {
		a.log.Fatal().Err(err).Msg("Failed to add transaction")
	}
	fmt.Printf("Added transaction #%d\n", tx.ID)
}

func (a *app) runList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Maximum number of transactions to show")
	remote := fs.Bool("remote", false, "Read from the remote state document instead of the local database")
	fs.Parse(os.Args[2:])

	ctx, cancel := a.ctx(time.Minute)
	defer cancel()

	var details []localstore.TransactionDetail
	var err error
	if *remote {
		details, err = a.remoteData(ctx).TransactionsWithDetails(ctx, *limit, 0)
	} else {
		details, err = a.store.TransactionsWithDetails(ctx, *limit, 0)
	}
	if err != nil {
		a.log.Fatal().Err(err).Msg("Failed to list transactions")
	}
	if len(details) == 0 {
		fmt.Println("No transactions.")
		return
	}

	for _, d := range details {
		sign := "-"
		if d.Type == model.TypeIncome {
			sign = "+"
		}
		fmt.Printf("#%-4d %s  %s%s%.2f  %-30s %s\n",
			d.ID, d.TransactionDate, sign, d.CurrencySymbol, d.Amount, d.CategoryName, d.Description)
	}
}

func (a *app) runWatch() {
	ctx := logger.WithContext(context.Background(), a.log)

	if !a.broker.IsAuthenticated() || !a.broker.HasValidAccessToken() {
		a.log.Fatal().Msg("Error: sign in first with 'cli signin'")
	}

	svc, err := drive.New(ctx, option.WithTokenSource(a.broker.TokenSource()))
	if err != nil {
		a.log.Fatal().Err(err).Msg("Failed to initialize drive client")
	}
	syncer := backup.NewSyncer(a.store, svc)
	scheduler := autosync.NewScheduler(a.broker, syncer, a.bus)

	stop := scheduler.Watch(ctx)
	defer stop()

	fmt.Println("Watching for changes. Press Ctrl+C to stop.")
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	fmt.Println("Stopped.")
}
