package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stationmind/stationmind/internal/app"
	"github.com/stationmind/stationmind/internal/config"
	"github.com/stationmind/stationmind/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage stored conversation sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSessionStore(cmd.Context(), runSessionsList)
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a stored session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSessionStore(cmd.Context(), func(ctx context.Context, store session.Store) error {
			return runSessionsDelete(ctx, store, args[0])
		})
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// withSessionStore sets up the application and hands its session store
// to fn.
func withSessionStore(ctx context.Context, fn func(context.Context, session.Store) error) error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	return fn(ctx, a.Sessions)
}

func runSessionsList(ctx context.Context, store session.Store) error {
	infos, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if len(infos) == 0 {
		fmt.Println("no stored sessions")
		return nil
	}

	w := tabwriter.NewWriter(rootCmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tMESSAGES\tUPDATED")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%d\t%s\n",
			info.SessionID, info.MessageCount, info.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runSessionsDelete(ctx context.Context, store session.Store, id string) error {
	if err := store.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}

	// Forget the CLI's current session if it was just deleted.
	if current, err := session.LoadCurrentSessionID(); err == nil && current == id {
		if err := session.ClearCurrentSessionID(); err != nil {
			return fmt.Errorf("clearing current session: %w", err)
		}
	}

	fmt.Printf("deleted session %s\n", id)
	return nil
}
