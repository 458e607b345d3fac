package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"VoiceChat/internal/audio"
	"VoiceChat/internal/backend"
	"VoiceChat/internal/config"
	"VoiceChat/internal/session"
	"VoiceChat/internal/store"
	"VoiceChat/internal/telemetry"
)

type rootOptions struct {
	configPath string
	debug      bool
	backendURL string
	sessionID  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	chat := newChatCmd(opts)

	cmd := &cobra.Command{
		Use:   "voicechat",
		Short: "Talk to a conversational AI backend from the terminal",
		Long: `voicechat records what you say, sends it to the conversation backend and
plays back the spoken reply. With auto recording on it listens again as soon
as the reply has finished.

Running voicechat without a subcommand starts the interactive chat.`,
		SilenceUsage: true,
		RunE:         chat.RunE,
	}
	cmd.Flags().AddFlagSet(chat.Flags())

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default ~/.config/voicechat/config.yaml)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.backendURL, "backend-url", "", "Conversation backend base URL")
	cmd.PersistentFlags().StringVar(&opts.sessionID, "session-id", "", "Resume the conversation with this session id")

	cmd.AddCommand(chat, newHistoryCmd(opts), newSayCmd(opts), newEchoCmd(opts))
	return cmd
}

// app is the wiring shared by every subcommand.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	tracer   trace.Tracer
	meter    metric.Meter
	client   *backend.Client
	location *session.FileLocation
	cleanup  []func()
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.backendURL != "" {
		cfg.BackendURL = opts.backendURL
	}
	if opts.sessionID != "" {
		cfg.SessionID = opts.sessionID
	}
	if opts.debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}

	logger, closeLog, err := telemetry.InitLogger(cfg.LogDir(), cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger
	a.cleanup = append(a.cleanup, func() { closeLog() })

	tracer, meter, shutdown, err := telemetry.InitTelemetry(ctx, cfg.LogDir())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.tracer, a.meter = tracer, meter
	a.cleanup = append(a.cleanup, shutdown)

	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}

	a.client, err = backend.NewClient(backend.Config{
		BaseURL:    cfg.BackendURL,
		HTTPClient: &http.Client{Timeout: cfg.RequestTimeout},
		Logger:     logger,
		Tracer:     tracer,
		Meter:      meter,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.location = &session.FileLocation{Path: cfg.LinkPath(), Base: cfg.BackendURL}
	if cfg.SessionID != "" {
		if err := session.Persist(a.location, session.ID(cfg.SessionID)); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

// Close runs cleanups in reverse order.
func (a *app) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}

// currentSession is the id in the saved session link. Subcommands other than
// chat never invent one.
func (a *app) currentSession() (session.ID, error) {
	id, ok := session.FromLocation(a.location)
	if !ok {
		return "", errors.New("no conversation yet: run voicechat chat first or pass --session-id")
	}
	return id, nil
}

// journal opens the local turn journal. A journal that cannot be opened
// only disables the offline fallback.
func (a *app) journal() *store.Journal {
	j, err := store.Open(a.cfg.JournalPath(), a.logger)
	if err != nil {
		a.logger.Warn("turn journal unavailable", "path", a.cfg.JournalPath(), "error", err)
		return nil
	}
	a.cleanup = append(a.cleanup, func() {
		if err := j.Close(); err != nil {
			a.logger.Warn("failed to close journal", "error", err)
		}
	})
	return j
}

func (a *app) recorder() *audio.Recorder {
	mic := &audio.CommandMicrophone{Command: a.cfg.Audio.CaptureCommand, Logger: a.logger}
	return audio.NewRecorder(mic, audio.RecorderConfig{
		Format:   audio.Format{SampleRate: a.cfg.Audio.SampleRate, Channels: 1},
		Encoding: a.cfg.Audio.Encoding,
		Logger:   a.logger,
	})
}

func (a *app) player() *audio.CommandPlayer {
	return &audio.CommandPlayer{Command: a.cfg.Audio.PlayerCommand, Logger: a.logger}
}
