package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"VoiceChat/internal/backend"
)

func newSayCmd(opts *rootOptions) *cobra.Command {
	var noPlay bool
	cmd := &cobra.Command{
		Use:   "say <text>",
		Short: "Synthesize text with the backend voice and play it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return errors.New("nothing to say")
			}
			audioURL, err := a.client.GenerateAudio(ctx, text)
			if err != nil {
				return fmt.Errorf("failed to generate audio: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Audio: %s\n", audioURL)
			if noPlay {
				return nil
			}
			return a.player().Play(ctx, audioURL)
		},
	}
	cmd.Flags().BoolVar(&noPlay, "no-play", false, "Print the audio URL without playing it")
	return cmd
}

func newEchoCmd(opts *rootOptions) *cobra.Command {
	var (
		duration time.Duration
		noPlay   bool
	)
	cmd := &cobra.Command{
		Use:   "echo",
		Short: "Record a short clip and hear it back in the backend voice",
		Long: `Record a short clip, send it to the backend's echo endpoint and play the
re-voiced result. Useful to check the microphone, speech recognition and
speech synthesis without touching the conversation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			rec := a.recorder()
			if err := rec.Start(ctx); err != nil {
				return fmt.Errorf("failed to start recording: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Recording for %s... (Ctrl+C to stop early)\n", duration)

			timer := time.NewTimer(duration)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
			blob, err := rec.Stop()
			if err != nil {
				return fmt.Errorf("failed to stop recording: %w", err)
			}

			// the capture may have been cut short by Ctrl+C; still send it
			timeout := a.cfg.RequestTimeout
			if timeout <= 0 {
				timeout = backend.DefaultTimeout
			}
			sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
			defer cancel()
			resp, err := a.client.Echo(sendCtx, blob)
			if err != nil {
				return fmt.Errorf("echo failed: %w", err)
			}
			if resp.Transcript != "" {
				fmt.Fprintf(out, "Transcript: %s\n", resp.Transcript)
			}
			fmt.Fprintf(out, "Audio: %s\n", resp.AudioURL)
			if noPlay {
				return nil
			}
			return a.player().Play(sendCtx, resp.AudioURL)
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 4*time.Second, "How long to record")
	cmd.Flags().BoolVar(&noPlay, "no-play", false, "Print the audio URL without playing it")
	return cmd
}
