package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/peterbourgon/ff/v4"
	"github.com/shopspring/decimal"

	"github.com/zombor/trip-expenses/internal/database"
	"github.com/zombor/trip-expenses/internal/export"
	"github.com/zombor/trip-expenses/internal/intake"
	"github.com/zombor/trip-expenses/internal/legacy"
)

func newMigrateCommand(root *rootConfig) *ff.Command {
	return &ff.Command{
		Name:      "migrate",
		Usage:     "trip-expenses migrate",
		ShortHelp: "Create the schema or upgrade it to the current version",
		Flags:     ff.NewFlagSet("migrate").SetParent(root.flags),
		Exec: func(ctx context.Context, args []string) error {
			m, _, err := root.openStore(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			version, _, err := m.SchemaVersion(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(root.stdout, "%s is at schema version %d\n", *root.dbPath, version)
			return nil
		},
	}
}

func newStatsCommand(root *rootConfig) *ff.Command {
	return &ff.Command{
		Name:      "stats",
		Usage:     "trip-expenses stats",
		ShortHelp: "Print totals for every trip",
		Flags:     ff.NewFlagSet("stats").SetParent(root.flags),
		Exec: func(ctx context.Context, args []string) error {
			m, store, err := root.openStore(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			summary, err := store.Stats.OverallSummary(ctx)
			if err != nil {
				return err
			}
			trips, err := store.Trips.GetAll(ctx, "")
			if err != nil {
				return err
			}
			stats, err := store.Stats.AllTripsStatistics(ctx)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(root.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "Trips:\t%s\n", humanize.Comma(int64(summary.TripCount)))
			fmt.Fprintf(tw, "Expenses:\t%s\n", humanize.Comma(int64(summary.ExpenseCount)))
			fmt.Fprintf(tw, "Total:\t%s\n", formatAmount(summary.TotalAmount))
			fmt.Fprintf(tw, "Unassigned:\t%s\n", humanize.Comma(int64(summary.UnassignedCount)))
			fmt.Fprintf(tw, "Queued receipts:\t%s\n", humanize.Comma(int64(summary.PendingQueueSize)))

			if len(trips) > 0 {
				fmt.Fprintln(tw)
				fmt.Fprintln(tw, "ID\tTRIP\tDATES\tSTATUS\tEXPENSES\tTOTAL")
				for _, t := range trips {
					s := stats[t.ID]
					fmt.Fprintf(tw, "%d\t%s\t%s - %s\t%s\t%s\t%s %s\n",
						t.ID, t.Name, t.StartDate, t.EndDate, t.Status,
						humanize.Comma(int64(s.ExpenseCount)), formatAmount(s.TotalAmount), t.DefaultCurrency)
				}
			}
			return tw.Flush()
		},
	}
}

// formatAmount renders an amount with thousands separators and two decimals
func formatAmount(d decimal.Decimal) string {
	return humanize.FormatFloat("#,###.##", d.InexactFloat64())
}

func newExportCommand(root *rootConfig) *ff.Command {
	fs := ff.NewFlagSet("export").SetParent(root.flags)
	var (
		tripID = fs.IntLong("trip", 0, "Trip id to export (required)")
		format = fs.StringLong("format", string(export.FormatXLSX), "Output format: xlsx or csv")
		out    = fs.StringLong("out", "", "Output file; defaults to a name derived from the trip, '-' writes to stdout")
	)
	return &ff.Command{
		Name:      "export",
		Usage:     "trip-expenses export --trip N [--format xlsx|csv] [--out FILE]",
		ShortHelp: "Write a trip's expenses to a spreadsheet",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if *tripID <= 0 {
				return errors.New("--trip is required")
			}
			f, err := export.ParseFormat(*format)
			if err != nil {
				return err
			}

			m, store, err := root.openStore(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			trip, err := store.Trips.GetByID(ctx, int64(*tripID))
			if err != nil {
				return err
			}
			if trip == nil {
				return &database.NotFoundError{Entity: "trip", ID: int64(*tripID)}
			}
			rows, err := store.Stats.ExportData(ctx, trip.ID)
			if err != nil {
				return err
			}

			if *out == "-" {
				return export.Write(root.stdout, f, rows)
			}
			path := *out
			if path == "" {
				path = export.Filename(trip.Name, f)
			}
			if err := writeFile(path, func(w io.Writer) error { return export.Write(w, f, rows) }); err != nil {
				return err
			}
			slog.Info("Exported trip", "trip", trip.Name, "expenses", len(rows), "path", path)
			fmt.Fprintln(root.stdout, path)
			return nil
		},
	}
}

// writeFile creates path and removes it again when write fails
func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	err = write(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func newImportLegacyCommand(root *rootConfig) *ff.Command {
	fs := ff.NewFlagSet("import-legacy").SetParent(root.flags)
	var (
		from       = fs.StringLong("from", "", "hsa-tracker database file (required)")
		receiptDir = fs.StringLong("receipts", "", "hsa-tracker receipt directory; files are copied into --storage when set")
		tripID     = fs.IntLong("trip", 0, "Trip id to file the imported expenses under")
	)
	return &ff.Command{
		Name:      "import-legacy",
		Usage:     "trip-expenses import-legacy --from FILE [--receipts DIR] [--trip N]",
		ShortHelp: "Import receipts recorded by hsa-tracker",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if *from == "" {
				return errors.New("--from is required")
			}

			source, err := legacy.OpenBolt(*from)
			if err != nil {
				return err
			}
			defer source.Close()

			m, store, err := root.openStore(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			opts := legacy.Options{ReceiptDir: *receiptDir}
			if *tripID > 0 {
				trip, err := store.Trips.GetByID(ctx, int64(*tripID))
				if err != nil {
					return err
				}
				if trip == nil {
					return &database.NotFoundError{Entity: "trip", ID: int64(*tripID)}
				}
				opts.TripID = &trip.ID
			}
			if *receiptDir != "" {
				files, err := intake.NewLocalStorage(*root.storagePath)
				if err != nil {
					return fmt.Errorf("initializing storage: %w", err)
				}
				opts.Files = files
			}

			res, err := legacy.NewImporter(source, store.Expenses, store.Settings, opts).Import(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(root.stdout, "imported %d, skipped %d, missing files %d\n", res.Imported, res.Skipped, res.Missing)
			return nil
		},
	}
}

func newResetCommand(root *rootConfig) *ff.Command {
	fs := ff.NewFlagSet("reset").SetParent(root.flags)
	confirm := fs.BoolLong("yes", "Confirm deleting the database file")
	return &ff.Command{
		Name:      "reset",
		Usage:     "trip-expenses reset --yes",
		ShortHelp: "Delete the database file",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if !*confirm {
				return fmt.Errorf("refusing to delete %s without --yes", *root.dbPath)
			}
			if err := database.New(*root.dbPath).Reset(); err != nil {
				return err
			}
			fmt.Fprintf(root.stdout, "deleted %s\n", *root.dbPath)
			return nil
		},
	}
}
