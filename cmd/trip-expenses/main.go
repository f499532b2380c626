package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/trip-expenses/internal/database"
	"github.com/zombor/trip-expenses/internal/expense"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error: loading .env: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, ff.ErrHelp) {
			os.Exit(1)
		}
	}
}

// run parses args and executes the selected subcommand
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootConfig(stdout)
	cmd := root.command()

	if err := cmd.Parse(args, ff.WithEnvVarPrefix("TRIP_EXPENSES")); err != nil {
		fmt.Fprintf(stderr, "%s\n", ffhelp.Command(cmd.GetSelected()))
		if !errors.Is(err, ff.ErrHelp) {
			fmt.Fprintf(stderr, "error: %v\n", err)
		}
		return err
	}

	if err := root.configureLogging(stderr); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return err
	}

	if err := cmd.Run(ctx); err != nil {
		if errors.Is(err, ff.ErrNoExec) {
			fmt.Fprintf(stderr, "%s\n", ffhelp.Command(cmd.GetSelected()))
			return err
		}
		slog.Error("Command failed", "command", cmd.GetSelected().Name, "error", err)
		return err
	}
	return nil
}

// rootConfig holds the flags shared by every subcommand
type rootConfig struct {
	stdout      io.Writer
	flags       *ff.FlagSet
	dbPath      *string
	storagePath *string
	logLevel    *string
}

func newRootConfig(stdout io.Writer) *rootConfig {
	flags := ff.NewFlagSet("trip-expenses")
	return &rootConfig{
		stdout:      stdout,
		flags:       flags,
		dbPath:      flags.StringLong("db", database.DefaultFileName, "Database file path"),
		storagePath: flags.StringLong("storage", "./receipts", "Receipt storage directory path"),
		logLevel:    flags.StringLong("log-level", "info", "Log level: debug, info, warn or error"),
	}
}

func (c *rootConfig) command() *ff.Command {
	return &ff.Command{
		Name:      "trip-expenses",
		Usage:     "trip-expenses [FLAGS] <SUBCOMMAND> ...",
		ShortHelp: "Track business trip expenses from scanned receipts",
		Flags:     c.flags,
		Subcommands: []*ff.Command{
			newServeCommand(c),
			newMigrateCommand(c),
			newStatsCommand(c),
			newExportCommand(c),
			newImportLegacyCommand(c),
			newResetCommand(c),
		},
	}
}

func (c *rootConfig) configureLogging(w io.Writer) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(*c.logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", *c.logLevel, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
	return nil
}

// openStore initializes the database and returns the repositories on top of it.
// The caller closes the returned manager.
func (c *rootConfig) openStore(ctx context.Context) (*database.Manager, *expense.Store, error) {
	m := database.New(*c.dbPath)
	if _, err := m.Initialize(ctx); err != nil {
		return nil, nil, fmt.Errorf("initializing database %s: %w", *c.dbPath, err)
	}
	return m, expense.NewStore(m), nil
}
