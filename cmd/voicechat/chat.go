package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"VoiceChat/internal/agent"
	"VoiceChat/internal/audio"
	"VoiceChat/internal/transcript"
	"VoiceChat/internal/ui"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start a voice conversation",
		Long: `Start a voice conversation with the backend.

The session link is saved in the data directory, so the next run resumes the
same conversation. Use --session-id to join a conversation shared from
elsewhere, or press n inside the chat to start a new one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts, plain)
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "Use the line-based /command interface instead of the full-screen UI")
	return cmd
}

func runChat(cmd *cobra.Command, opts *rootOptions, plain bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	fallback, err := audio.EnsureFallbackCue(a.cfg.Audio.Fallback, filepath.Join(a.cfg.DataDir, "assets"))
	if err != nil {
		a.logger.Warn("no fallback audio available", "error", err)
		fallback = ""
	}

	var (
		view     agent.View
		renderer transcript.Renderer
		lineView *ui.LineView
		bridge   *ui.Bridge
	)
	out := ui.NewLockedWriter(cmd.OutOrStdout())
	if plain {
		lineView = ui.NewLineView(out)
		view, renderer = lineView, transcript.NewWriterRenderer(out)
	} else {
		bridge = ui.NewBridge()
		view, renderer = bridge, bridge
	}

	deps := agent.Deps{
		Recorder:   a.recorder(),
		Player:     a.player(),
		Backend:    a.client,
		Transcript: transcript.New(renderer),
		Location:   a.location,
		View:       view,
		Logger:     a.logger,
		Meter:      a.meter,
	}
	if j := a.journal(); j != nil {
		deps.Journal = j
	}

	ctl, err := agent.New(agent.Config{
		AutoRecordDelay: a.cfg.AutoRecordDelay,
		MaxRecording:    a.cfg.Audio.MaxRecording,
		FallbackAudio:   fallback,
		AutoRecording:   a.cfg.AutoRecording,
	}, deps)
	if err != nil {
		return err
	}
	a.logger.Info("starting chat", "session_id", ctl.SessionID(), "backend_url", a.cfg.BackendURL, "plain", plain)

	if plain {
		return ui.RunLine(ctx, ctl, lineView, cmd.InOrStdin(), out, a.logger)
	}
	return ui.RunTUI(ctx, ctl, bridge)
}
