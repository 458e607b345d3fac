package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"VoiceChat/internal/audio"
	"VoiceChat/internal/backend"
	"VoiceChat/internal/session"
	"VoiceChat/internal/transcript"
)

var (
	// ErrBusy is reported when an action arrives while a capture, upload or
	// history call is outstanding.
	ErrBusy = errors.New("busy")

	// ErrMissingReplyAudio is the soft failure of a reply without audio.
	ErrMissingReplyAudio = errors.New("no audio in reply")
)

const DefaultAutoRecordDelay = time.Second

// Recorder captures one utterance at a time.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() (audio.Blob, error)
	Discard() error
}

// Backend is the remote conversational service.
type Backend interface {
	Chat(ctx context.Context, id session.ID, blob audio.Blob) (*backend.ChatResponse, error)
	FetchHistory(ctx context.Context, id session.ID) ([]session.Turn, error)
	ClearHistory(ctx context.Context, id session.ID) error
	ResolveURL(ref string) string
}

// Journal is the local turn log used when the backend history is unreachable.
type Journal interface {
	Append(ctx context.Context, id session.ID, turns ...session.Turn) error
	Replace(ctx context.Context, id session.ID, turns []session.Turn) error
	Load(ctx context.Context, id session.ID) ([]session.Turn, error)
	Delete(ctx context.Context, id session.ID) error
}

// Config holds controller timing and assets.
type Config struct {
	// AutoRecordDelay separates reply playback from the next capture so the
	// tail of the reply is not recorded.
	AutoRecordDelay time.Duration
	// MaxRecording stops a capture automatically; zero disables it.
	MaxRecording  time.Duration
	FallbackAudio string
	AutoRecording bool
}

// Deps are the collaborators the controller drives.
type Deps struct {
	Recorder   Recorder
	Player     audio.Player
	Backend    Backend
	Journal    Journal
	Transcript *transcript.Transcript
	Location   session.Location
	View       View
	Logger     *slog.Logger
	Meter      metric.Meter
}

// Controller runs the conversation turn state machine. Every field below
// the channels is owned by the Run goroutine.
type Controller struct {
	cfg      Config
	recorder Recorder
	player   audio.Player
	backend  Backend
	journal  Journal
	tr       *transcript.Transcript
	location session.Location
	view     View
	logger   *slog.Logger

	turnCounter  metric.Int64Counter
	captureBytes metric.Int64Histogram

	actions chan Action
	events  chan event
	stopped chan struct{}

	ctx        context.Context
	sessionID  session.ID
	phase      Phase
	auto       bool
	halted     bool
	discarding bool
	turn       uint64

	cancelPlayback     context.CancelFunc
	cancelContinuation context.CancelFunc
	cancelMaxTimer     context.CancelFunc
}

// New creates a controller and resolves the session from the link.
func New(cfg Config, deps Deps) (*Controller, error) {
	if deps.Recorder == nil || deps.Player == nil || deps.Backend == nil || deps.Location == nil {
		return nil, errors.New("agent: recorder, player, backend and location are required")
	}
	if cfg.AutoRecordDelay <= 0 {
		cfg.AutoRecordDelay = DefaultAutoRecordDelay
	}
	if deps.Transcript == nil {
		deps.Transcript = transcript.New(nil)
	}
	if deps.View == nil {
		deps.View = nopView{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Meter == nil {
		deps.Meter = otel.Meter("voicechat/agent")
	}

	id, err := session.Resolve(deps.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}

	turnCounter, err := deps.Meter.Int64Counter(
		"voicechat.turns",
		metric.WithDescription("Completed conversation turns by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create turn counter: %w", err)
	}
	captureBytes, err := deps.Meter.Int64Histogram(
		"voicechat.recording.bytes",
		metric.WithDescription("Size of uploaded recordings"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording histogram: %w", err)
	}

	return &Controller{
		cfg:          cfg,
		recorder:     deps.Recorder,
		player:       deps.Player,
		backend:      deps.Backend,
		journal:      deps.Journal,
		tr:           deps.Transcript,
		location:     deps.Location,
		view:         deps.View,
		logger:       deps.Logger.With("component", "agent"),
		turnCounter:  turnCounter,
		captureBytes: captureBytes,
		actions:      make(chan Action, 16),
		events:       make(chan event, 16),
		stopped:      make(chan struct{}),
		sessionID:    id,
		auto:         cfg.AutoRecording,
	}, nil
}

// SessionID returns the session resolved at construction. After Run starts
// the live id is published through View.SetSession.
func (c *Controller) SessionID() session.ID {
	return c.sessionID
}

// Dispatch queues a user action. It never blocks once Run has returned.
func (c *Controller) Dispatch(a Action) {
	select {
	case c.actions <- a:
	case <-c.stopped:
	}
}

// Run owns the controller state until ctx is cancelled. The backend history
// for the resolved session is loaded first.
func (c *Controller) Run(ctx context.Context) error {
	c.ctx = ctx
	defer close(c.stopped)

	c.publishSession()
	c.logger.Info("controller started", "session_id", c.sessionID, "auto_recording", c.auto)
	c.reloadHistory()
	c.publishControls()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case a := <-c.actions:
			c.handleAction(a)
		case ev := <-c.events:
			ev.apply(c)
		}
		c.publishControls()
	}
}

// post hands a completion back to the Run goroutine.
func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.stopped:
	}
}

func (c *Controller) handleAction(a Action) {
	c.logger.Debug("action", "action", a.String(), "phase", c.phase.String())
	switch a {
	case ActionStart:
		c.start()
	case ActionStop:
		c.stop(false)
	case ActionCancel:
		c.stop(true)
	case ActionToggleAuto:
		c.toggleAuto()
	case ActionNewSession:
		c.newSession()
	case ActionClearHistory:
		c.clearHistory()
	case ActionReloadHistory:
		if c.reject(a) {
			return
		}
		c.teardown()
		c.reloadHistory()
	default:
		c.logger.Warn("unknown action", "action", int(a))
	}
}

// outstanding reports whether a capture, upload or history call is in flight.
func (c *Controller) outstanding() bool {
	switch c.phase {
	case PhaseStarting, PhaseRecording, PhaseStopping, PhaseProcessing, PhaseSyncing:
		return true
	}
	return false
}

func (c *Controller) reject(a Action) bool {
	if !c.outstanding() {
		return false
	}
	c.logger.Info("action rejected", "action", a.String(), "phase", c.phase.String(), "error", ErrBusy)
	c.setStatus(StatusWarning, fmt.Sprintf("Busy (%s), try again in a moment", c.phase))
	return true
}

func (c *Controller) controls() Controls {
	return Controls{
		Phase:         c.phase,
		StartEnabled:  c.phase == PhaseIdle || c.phase == PhaseScheduled,
		StopEnabled:   c.phase == PhaseStarting || c.phase == PhaseRecording || c.phase == PhasePlaying || c.phase == PhaseScheduled,
		AutoRecording: c.auto,
	}
}

func (c *Controller) publishControls() {
	c.view.SetControls(c.controls())
}

func (c *Controller) publishSession() {
	link := ""
	if u, err := c.location.URL(); err == nil {
		link = u.String()
	}
	c.view.SetSession(c.sessionID, link)
}

func (c *Controller) setStatus(kind StatusKind, msg string) {
	c.view.SetStatus(Status{Kind: kind, Message: msg})
}

func (c *Controller) setPhase(p Phase) {
	if c.phase != p {
		c.logger.Debug("phase", "from", c.phase.String(), "to", p.String(), "turn", c.turn)
	}
	c.phase = p
}

// teardown cancels playback and any scheduled continuation, and invalidates
// events still in flight for the current turn.
func (c *Controller) teardown() {
	if c.cancelPlayback != nil {
		c.cancelPlayback()
		c.cancelPlayback = nil
	}
	c.cancelScheduled()
	c.turn++
	c.setPhase(PhaseIdle)
}

func (c *Controller) cancelScheduled() {
	if c.cancelContinuation != nil {
		c.cancelContinuation()
		c.cancelContinuation = nil
	}
}

func (c *Controller) shutdown() {
	c.logger.Info("controller stopping", "phase", c.phase.String())
	if c.cancelMaxTimer != nil {
		c.cancelMaxTimer()
	}
	if c.phase == PhaseRecording {
		if err := c.recorder.Discard(); err != nil {
			c.logger.Warn("failed to discard recording", "error", err)
		}
	}
	c.teardown()
}

func (c *Controller) toggleAuto() {
	c.auto = !c.auto
	if !c.auto && c.phase == PhaseScheduled {
		c.cancelScheduled()
		c.setPhase(PhaseIdle)
	}
	state := "OFF"
	if c.auto {
		state = "ON"
	}
	c.logger.Info("auto recording toggled", "enabled", c.auto)
	c.setStatus(StatusInfo, "Auto Recording: "+state)
}

func (c *Controller) newSession() {
	if c.reject(ActionNewSession) {
		return
	}
	id, err := session.Generate()
	if err != nil {
		c.logger.Error("failed to generate session id", "error", err)
		c.setStatus(StatusError, "Could not start a new conversation")
		return
	}
	c.teardown()

	// id and transcript change together
	c.sessionID = id
	c.tr.Reset()
	if err := session.Persist(c.location, id); err != nil {
		c.logger.Warn("failed to persist session link", "session_id", id, "error", err)
	}
	c.publishSession()
	c.logger.Info("new session", "session_id", id)
	c.setStatus(StatusSuccess, "New conversation started!")
}
