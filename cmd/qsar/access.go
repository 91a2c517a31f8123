package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"qsar/internal/paths"
	"qsar/internal/slogutil"
	"qsar/internal/storage"
)

var (
	accessLimit  int
	accessStatus int
	accessFormat string
	accessStats  bool
	accessPrune  string
)

var accessCmd = &cobra.Command{
	Use:   "access",
	Short: "Query the access store",
	Long: `Query access events persisted in SQLite (storage.accessDB = true).

Examples:
  qsar access                     # 50 most recent requests
  qsar access --status 404 -n 10
  qsar access --stats             # request counts per status
  qsar access --prune 720h        # delete events older than 30 days`,
	RunE: runAccess,
}

func init() {
	accessCmd.Flags().IntVarP(&accessLimit, "limit", "n", 50, "Number of events to show")
	accessCmd.Flags().IntVar(&accessStatus, "status", 0, "Only show this status code")
	accessCmd.Flags().StringVar(&accessFormat, "format", "human", "Output format (json, human)")
	accessCmd.Flags().BoolVar(&accessStats, "stats", false, "Show counts per status instead of events")
	accessCmd.Flags().StringVar(&accessPrune, "prune", "", "Delete events older than this duration")
	rootCmd.AddCommand(accessCmd)
}

func runAccess(cmd *cobra.Command, args []string) error {
	result, err := loadConfig()
	if err != nil {
		return err
	}
	dbPath, err := paths.AccessDBPath(result.Config)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("no access store at %s (enable storage.accessDB)", dbPath)
	}

	store, err := storage.OpenAccessStore(dbPath, slogutil.NewDiscardLogger())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case accessPrune != "":
		age, err := time.ParseDuration(accessPrune)
		if err != nil {
			return fmt.Errorf("invalid --prune: %w", err)
		}
		n, err := store.Prune(ctx, time.Now().Add(-age))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d access events\n", n)
		return nil

	case accessStats:
		counts, err := store.CountByStatus(ctx)
		if err != nil {
			return err
		}
		if accessFormat == "json" {
			return json.NewEncoder(out).Encode(counts)
		}
		statuses := make([]int, 0, len(counts))
		for st := range counts {
			statuses = append(statuses, st)
		}
		sort.Ints(statuses)
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "STATUS\tCOUNT")
		for _, st := range statuses {
			fmt.Fprintf(tw, "%d\t%d\n", st, counts[st])
		}
		return tw.Flush()
	}

	events, err := store.Recent(ctx, accessLimit, accessStatus)
	if err != nil {
		return err
	}
	if accessFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}
	if len(events) == 0 {
		fmt.Fprintln(out, "No access events.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSTATUS\tMETHOD\tTARGET\tROUTE\tPEER")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			ev.Timestamp.Local().Format(time.DateTime), ev.Status, ev.Method, ev.Target, ev.Route, ev.Peer)
	}
	return tw.Flush()
}
