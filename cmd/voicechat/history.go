package main

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"VoiceChat/internal/session"
	"VoiceChat/internal/transcript"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show or clear the current conversation history",
	}
	cmd.AddCommand(newHistoryShowCmd(opts), newHistoryClearCmd(opts))
	return cmd
}

func newHistoryShowCmd(opts *rootOptions) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the conversation history",
		Long: `Print the conversation history kept by the backend. When the backend is
unreachable the locally journaled turns are printed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.currentSession()
			if err != nil {
				return err
			}

			turns, err := a.client.FetchHistory(cmd.Context(), id)
			source := "backend"
			if err != nil {
				j := a.journal()
				if j == nil {
					return fmt.Errorf("failed to load history: %w", err)
				}
				a.logger.Warn("backend history unavailable, using journal", "session_id", id, "error", err)
				local, jerr := j.Load(cmd.Context(), id)
				if jerr != nil || len(local) == 0 {
					return fmt.Errorf("failed to load history: %w", err)
				}
				turns, source = local, "local journal"
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				data, err := sonic.MarshalIndent(struct {
					SessionID session.ID     `json:"session_id"`
					Source    string         `json:"source"`
					History   []session.Turn `json:"history"`
				}{id, source, turns}, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal history: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			fmt.Fprintf(out, "Session: %s (%d messages, %s)\n", id, len(turns), source)
			for _, t := range turns {
				fmt.Fprintln(out, transcript.FormatTurn(t))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newHistoryClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the conversation history on the backend and locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.currentSession()
			if err != nil {
				return err
			}
			if err := a.client.ClearHistory(cmd.Context(), id); err != nil {
				return fmt.Errorf("failed to clear history: %w", err)
			}
			if j := a.journal(); j != nil {
				if err := j.Delete(cmd.Context(), id); err != nil {
					a.logger.Warn("failed to clear journal", "session_id", id, "error", err)
				}
			}
			a.logger.Info("history cleared", "session_id", id)
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared!")
			return nil
		},
	}
}
