package main

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"MiniChat/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions saved in the SQLite store",
	Args:  cobra.NoArgs,
	RunE:  listSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func listSessions(cmd *cobra.Command, _ []string) error {
	loadDotEnv()
	cfg, err := mergeConfig(cmd)
	if err != nil {
		return err
	}

	st, err := store.OpenSQLite(cfg.DBPath, discardLogger())
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := st.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No saved sessions.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tBACKEND\tMESSAGES")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", s.ID, s.StartTime.Local().Format("2006-01-02 15:04"), s.Backend, s.TurnCount)
	}
	return w.Flush()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
