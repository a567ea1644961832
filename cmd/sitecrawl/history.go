package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitecrawl/internal/config"
	"github.com/nao1215/sitecrawl/internal/database"
	"github.com/nao1215/sitecrawl/internal/pipeline"
)

// defaultHistoryLimit is the number of runs listed unless --limit says otherwise.
const defaultHistoryLimit = 10

// NewHistoryCmd creates the history command.
// This command shows runs saved with 'sitecrawl crawl --save'.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [seed-url]",
		Short: "Show saved crawl runs and what changed between them",
		Long: `History lists the runs recorded with 'sitecrawl crawl --save'.

Without a seed it lists every seed in the database. With a seed it lists
that seed's runs, newest first, and compares the latest two:
- pages that appeared since the previous run
- pages that are gone
- pages whose text changed

Examples:
  # List seeds with saved runs
  sitecrawl history

  # Show runs of a seed and the changes of the latest run
  sitecrawl history https://docs.example.com/

  # Compare the latest run with run 3
  sitecrawl history --with-run 3 https://docs.example.com/

  # Output in JSON format
  sitecrawl history --json https://docs.example.com/`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of runs listed (0 = all)")
	cmd.Flags().Int64P("with-run", "i", 0,
		"Compare the latest run with this run ID instead of the previous one")
	cmd.Flags().Bool("no-diff", false,
		"Only list runs")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")

	return cmd
}

// historyOptions are the parsed flags of the history command.
type historyOptions struct {
	seed    string
	limit   int
	withRun int64
	noDiff  bool
	json    bool
	dbDir   string
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	opts := historyOptions{dbDir: config.XDGDataDir()}
	if len(args) == 1 {
		opts.seed = pipeline.HistoryKey(args[0])
	}

	var err error
	flags := cmd.Flags()
	if opts.limit, err = flags.GetInt("limit"); err != nil {
		return err
	}
	if opts.withRun, err = flags.GetInt64("with-run"); err != nil {
		return err
	}
	if opts.noDiff, err = flags.GetBool("no-diff"); err != nil {
		return err
	}
	if opts.json, err = flags.GetBool("json"); err != nil {
		return err
	}
	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}
	if dbDir != "" {
		opts.dbDir = dbDir
	}

	// Validate arguments before opening the database
	if opts.withRun != 0 && opts.seed == "" {
		return errors.New("--with-run requires a seed URL")
	}

	db, err := database.Open(opts.dbDir, database.Options{CreateIfNotExists: false})
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if opts.seed == "" {
		return listSeeds(ctx, db, out, opts.json)
	}
	return showSeedHistory(ctx, db, out, opts)
}

// listSeeds lists all seeds that have runs in the database.
func listSeeds(ctx context.Context, db *database.HistoryDB, out io.Writer, jsonOutput bool) error {
	seeds, err := db.ListSeeds(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(out, map[string]any{"seeds": seeds})
	}

	if len(seeds) == 0 {
		fmt.Fprintln(out, "No saved runs found in the database.")
		fmt.Fprintln(out, "\nUse 'sitecrawl crawl --save <url>' to record a run.")
		return nil
	}

	fmt.Fprintf(out, "Seeds with saved runs (%d):\n\n", len(seeds))
	for _, seed := range seeds {
		fmt.Fprintf(out, "  • %s\n", seed)
	}
	fmt.Fprintln(out, "\nUse 'sitecrawl history <url>' to see the runs of a seed.")
	return nil
}

// historyResult is the JSON form of a seed's history.
type historyResult struct {
	Seed string            `json:"seed"`
	Runs []historyRun      `json:"runs"`
	Diff *database.RunDiff `json:"diff,omitempty"`
}

// historyRun is the JSON form of one run.
type historyRun struct {
	ID       int64          `json:"id"`
	Started  string         `json:"started"`
	Finished string         `json:"finished,omitempty"`
	Pages    int            `json:"pages"`
	Stats    map[string]int `json:"stats"`
	Error    string         `json:"error,omitempty"`
}

// showSeedHistory lists the runs of a seed and the diff of two of them.
func showSeedHistory(ctx context.Context, db *database.HistoryDB, out io.Writer, opts historyOptions) error {
	runs, err := db.ListRuns(ctx, opts.seed, opts.limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return fmt.Errorf("no saved runs for %s", opts.seed)
	}

	var diff *database.RunDiff
	if !opts.noDiff {
		diff, err = seedDiff(ctx, db, opts, runs[0])
		if err != nil {
			return err
		}
	}

	if opts.json {
		result := historyResult{Seed: opts.seed, Runs: make([]historyRun, 0, len(runs)), Diff: diff}
		for _, r := range runs {
			hr := historyRun{
				ID:      r.ID,
				Started: r.Started.Format(time.RFC3339),
				Pages:   r.Pages,
				Stats:   r.Stats.Map(),
				Error:   r.Error,
			}
			if r.Done() {
				hr.Finished = r.Finished.Format(time.RFC3339)
			}
			result.Runs = append(result.Runs, hr)
		}
		return writeJSON(out, result)
	}

	fmt.Fprintf(out, "Runs of %s (%d):\n\n", opts.seed, len(runs))
	fmt.Fprintf(out, "  %-6s  %-20s  %-6s  %-7s  %s\n", "ID", "Started", "Pages", "Errors", "Status")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 60))
	for _, r := range runs {
		fmt.Fprintf(out, "  %-6d  %-20s  %-6d  %-7d  %s\n",
			r.ID,
			r.Started.Local().Format("2006-01-02 15:04:05"),
			r.Pages,
			r.Stats.ErrorsFetch+r.Stats.ErrorsMalformed,
			runStatus(r),
		)
	}

	if diff == nil {
		if !opts.noDiff {
			fmt.Fprintln(out, "\nAt least 2 runs are required to show changes.")
		}
		return nil
	}

	writeDiffText(out, diff)
	return nil
}

// seedDiff compares the latest run with --with-run or the previous run.
// It returns nil when there is nothing to compare with.
func seedDiff(ctx context.Context, db *database.HistoryDB, opts historyOptions, latest database.Run) (*database.RunDiff, error) {
	if opts.withRun == 0 {
		return db.DiffLatest(ctx, opts.seed)
	}

	other, err := db.GetRun(ctx, opts.withRun)
	if err != nil {
		return nil, err
	}
	// Validate that the run belongs to the same seed
	if other.Seed != opts.seed {
		return nil, fmt.Errorf("run %d belongs to %s, not %s", other.ID, other.Seed, opts.seed)
	}
	return db.Diff(ctx, other.ID, latest.ID)
}

// runStatus describes how a run ended.
func runStatus(r database.Run) string {
	switch {
	case !r.Done():
		return "incomplete"
	case r.Error != "":
		return "stopped: " + r.Error
	default:
		return "ok"
	}
}

// writeDiffText prints the changes between two runs.
func writeDiffText(out io.Writer, diff *database.RunDiff) {
	fmt.Fprintf(out, "\nChanges from run %d to run %d:\n", diff.OldRun, diff.NewRun)
	if diff.Empty() {
		fmt.Fprintf(out, "  No changes (%d pages unchanged)\n", diff.Unchanged)
		return
	}

	sections := []struct {
		label string
		mark  string
		urls  []string
	}{
		{"Added", "+", diff.Added},
		{"Removed", "-", diff.Removed},
		{"Changed", "~", diff.Changed},
	}
	for _, s := range sections {
		if len(s.urls) == 0 {
			continue
		}
		fmt.Fprintf(out, "\n  %s (%d):\n", s.label, len(s.urls))
		for _, u := range s.urls {
			fmt.Fprintf(out, "    %s %s\n", s.mark, u)
		}
	}
	fmt.Fprintf(out, "\n  Unchanged: %d\n", diff.Unchanged)
}

func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
