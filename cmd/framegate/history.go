package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-framegate/internal/config"
	"github.com/teslashibe/go-framegate/pkg/store"
)

func newHistoryCmd() *cobra.Command {
	var (
		dbURL    string
		session  string
		limit    int
		sessions bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded results",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbURL == "" {
				dbURL = config.DefaultDBURL
			}
			ctx := cmd.Context()
			db, err := store.New(ctx, dbURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			// the command context may already be cancelled
			defer db.Close(context.Background())

			if sessions {
				return printSessions(ctx, db, limit)
			}
			return printResults(ctx, db, session, limit)
		},
	}

	f := cmd.Flags()
	f.StringVar(&dbURL, "db-url", config.DatabaseURL(), "PostgreSQL connection string (default: "+config.DefaultDBURL+")")
	f.StringVar(&session, "session", "", "Only show results from this session")
	f.IntVarP(&limit, "limit", "n", 20, "Maximum rows")
	f.BoolVar(&sessions, "sessions", false, "Summarize sessions instead of listing results")
	return cmd
}

func printResults(ctx context.Context, db *store.Store, session string, limit int) error {
	results, err := db.RecentResults(ctx, session, limit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return errors.New("no results recorded")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSESSION\tFRAME\tTOP\tCONF\tLATENCY\tDEVICE\tTHREADS")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%.2f%%\t%.0fms\t%s\t%s\n",
			r.RecordedAt.Local().Format(time.TimeOnly), shortID(r.Session), r.Frame,
			r.Top, 100*r.Confidence, r.LatencyMs, r.Device, r.Threads)
	}
	return w.Flush()
}

func printSessions(ctx context.Context, db *store.Store, limit int) error {
	summaries, err := db.Sessions(ctx, limit)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		return errors.New("no sessions recorded")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tFRAMES\tSTARTED\tDURATION\tAVG LATENCY\tMOST SEEN")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%.1fms\t%s\n",
			s.Session, s.Frames, s.First.Local().Format(time.DateTime),
			s.Last.Sub(s.First).Round(time.Second), s.AvgLatency, s.TopDetected)
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
