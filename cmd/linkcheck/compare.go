package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/nao1215/linkcheck/internal/config"
	"github.com/nao1215/linkcheck/internal/database"
	"github.com/nao1215/linkcheck/internal/model"
	"github.com/spf13/cobra"
)

// errNotEnoughRuns is returned when fewer than two runs are recorded.
var errNotEnoughRuns = errors.New("at least two recorded runs are required for comparison")

// NewCompareCmd creates the compare command.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [dir]",
		Short: "Compare check results with historical runs",
		Long: `Compare shows how the broken references of a directory changed between two
recorded runs of 'linkcheck check':
- Introduced references that are broken now but were not before
- Fixed references that were broken before but are not any more

By default the latest two runs are compared. Use --with-run-id to compare the
latest run with an older one.

Examples:
  # Compare the latest two runs for public/
  linkcheck compare public/

  # List the recorded runs for public/
  linkcheck compare --list public/

  # Compare the latest run with a specific run
  linkcheck compare --with-run-id 0b9c... public/

  # List every directory with recorded runs
  linkcheck compare --list-roots`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCompareCmd,
	}

	cmd.Flags().BoolP("list", "l", false,
		"List recorded runs for the directory")
	cmd.Flags().BoolP("list-roots", "L", false,
		"List all directories with recorded runs")
	cmd.Flags().StringP("with-run-id", "i", "",
		"Compare the latest run with the run of this ID (use --list to see IDs)")
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")

	return cmd
}

// compareOptions holds the compare command flags.
type compareOptions struct {
	list      bool
	listRoots bool
	withRunID string
	json      bool
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	var opts compareOptions
	var err error
	if opts.list, err = cmd.Flags().GetBool("list"); err != nil {
		return err
	}
	if opts.listRoots, err = cmd.Flags().GetBool("list-roots"); err != nil {
		return err
	}
	if opts.withRunID, err = cmd.Flags().GetString("with-run-id"); err != nil {
		return err
	}
	if opts.json, err = cmd.Flags().GetBool("json"); err != nil {
		return err
	}

	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	return runCompare(cmd.Context(), cmd.OutOrStdout(), config.XDGDataDir(), root, opts)
}

// runCompare opens the history database in dbDir and performs the requested
// listing or comparison for root.
func runCompare(ctx context.Context, out io.Writer, dbDir, root string, opts compareOptions) error {
	// The database must already exist: compare never records runs.
	dbOpts := database.DefaultOptions()
	dbOpts.CreateIfNotExists = false
	db, err := database.Open(dbDir, dbOpts)
	if err != nil {
		return fmt.Errorf("failed to open history database (run 'linkcheck check' first): %w", err)
	}
	defer db.Close()

	switch {
	case opts.listRoots:
		return listRoots(ctx, out, db)
	case opts.list:
		return listRuns(ctx, out, db, root)
	default:
		return compareRuns(ctx, out, db, root, opts)
	}
}

// listRoots lists every directory with recorded runs.
func listRoots(ctx context.Context, out io.Writer, db *database.HistoryDB) error {
	roots, err := db.ListRoots(ctx)
	if err != nil {
		return err
	}
	if len(roots) == 0 {
		fmt.Fprintln(out, "No recorded runs found in the database.")
		fmt.Fprintln(out, "\nUse 'linkcheck check <dir>' to check a directory.")
		return nil
	}

	fmt.Fprintf(out, "Checked directories (%d):\n\n", len(roots))
	for _, root := range roots {
		fmt.Fprintf(out, "  • %s\n", root)
	}
	return nil
}

// listRuns lists the recorded runs for root, newest first.
func listRuns(ctx context.Context, out io.Writer, db *database.HistoryDB, root string) error {
	runs, err := db.LatestRuns(ctx, root, 0)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintf(out, "No recorded runs found for %s\n", root)
		return nil
	}

	fmt.Fprintf(out, "Run history for %s (%d runs):\n\n", root, len(runs))
	fmt.Fprintf(out, "  %-36s  %-20s  %9s  %6s\n", "ID", "Date", "Documents", "Broken")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 78))
	for _, meta := range runs {
		fmt.Fprintf(out, "  %-36s  %-20s  %9d  %6d\n",
			meta.ID,
			meta.StartedAt.Local().Format("2006-01-02 15:04:05"),
			meta.Documents,
			meta.BrokenCount,
		)
	}

	fmt.Fprintln(out, "\nUse 'linkcheck compare --with-run-id <id> <dir>' to compare with a specific run.")
	return nil
}

// ComparisonResult is the JSON form of a comparison.
type ComparisonResult struct {
	Root       string            `json:"root"`
	Older      *model.Run        `json:"older"`
	Newer      *model.Run        `json:"newer"`
	Introduced *model.LinkReport `json:"introduced"`
	Fixed      *model.LinkReport `json:"fixed"`
}

// compareRuns diffs the latest run of root against the previous run or the
// run named by opts.withRunID.
func compareRuns(ctx context.Context, out io.Writer, db *database.HistoryDB, root string, opts compareOptions) error {
	older, newer, err := selectRuns(ctx, db, root, opts.withRunID)
	if err != nil {
		return err
	}
	diff := database.Diff(older, newer)

	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(&ComparisonResult{
			Root:       root,
			Older:      older,
			Newer:      newer,
			Introduced: diff.Introduced,
			Fixed:      diff.Fixed,
		})
	}

	fmt.Fprintf(out, "Comparing runs for %s\n", root)
	fmt.Fprintf(out, "  older: %s  %s  %d broken\n",
		older.ID, older.StartedAt.Local().Format("2006-01-02 15:04:05"), older.Report.BrokenCount())
	fmt.Fprintf(out, "  newer: %s  %s  %d broken\n\n",
		newer.ID, newer.StartedAt.Local().Format("2006-01-02 15:04:05"), newer.Report.BrokenCount())

	if diff.Unchanged() {
		fmt.Fprintln(out, "No changes in broken references.")
		return nil
	}
	writeSection(out, "Introduced", diff.Introduced)
	writeSection(out, "Fixed", diff.Fixed)
	return nil
}

// selectRuns loads the two runs to compare. The newer run is always the
// latest run of root.
func selectRuns(ctx context.Context, db *database.HistoryDB, root, withRunID string) (older, newer *model.Run, err error) {
	if withRunID != "" {
		latest, err := db.LatestRuns(ctx, root, 1)
		if err != nil {
			return nil, nil, err
		}
		if len(latest) == 0 {
			return nil, nil, fmt.Errorf("no recorded runs found for %s", root)
		}
		if latest[0].ID == withRunID {
			return nil, nil, fmt.Errorf("run %s is the latest run; choose an older one", withRunID)
		}
		if older, err = db.GetRun(ctx, withRunID); err != nil {
			return nil, nil, err
		}
		if older.Root != root {
			return nil, nil, fmt.Errorf("run %s belongs to %s, not %s", withRunID, older.Root, root)
		}
		if newer, err = db.GetRun(ctx, latest[0].ID); err != nil {
			return nil, nil, err
		}
		return older, newer, nil
	}

	latest, err := db.LatestRuns(ctx, root, 2)
	if err != nil {
		return nil, nil, err
	}
	if len(latest) < 2 {
		return nil, nil, fmt.Errorf("%w: %s has %d", errNotEnoughRuns, root, len(latest))
	}
	if newer, err = db.GetRun(ctx, latest[0].ID); err != nil {
		return nil, nil, err
	}
	if older, err = db.GetRun(ctx, latest[1].ID); err != nil {
		return nil, nil, err
	}
	return older, newer, nil
}

func writeSection(out io.Writer, title string, r *model.LinkReport) {
	if r.Empty() {
		return
	}
	fmt.Fprintf(out, "%s (%d):\n", title, r.BrokenCount())
	fmt.Fprintln(out, r.String())
	fmt.Fprintln(out)
}
