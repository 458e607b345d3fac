package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"VoiceChat/internal/audio"
	"VoiceChat/internal/backend"
	"VoiceChat/internal/session"
)

// event is a completion posted back to the Run goroutine. Events carry the
// turn they belong to; anything from a superseded turn is dropped.
type event interface {
	apply(c *Controller)
}

type startedEvent struct {
	turn uint64
	err  error
}

type recordedEvent struct {
	turn    uint64
	blob    audio.Blob
	discard bool
	err     error
}

type replyEvent struct {
	turn uint64
	id   session.ID
	resp *backend.ChatResponse
	err  error
}

type playbackEvent struct {
	turn  uint64
	reply bool
	err   error
}

type continueEvent struct{ turn uint64 }

type maxRecordingEvent struct{ turn uint64 }

func (c *Controller) start() {
	switch c.phase {
	case PhaseIdle:
	case PhaseScheduled:
		c.cancelScheduled()
	default:
		c.reject(ActionStart)
		return
	}
	c.beginTurn()
}

// beginTurn is step 1 of a turn: ask for the microphone.
func (c *Controller) beginTurn() {
	c.turn++
	c.halted = false
	c.discarding = false
	c.setPhase(PhaseStarting)
	c.setStatus(StatusInfo, "Requesting microphone...")

	turn := c.turn
	go func() {
		err := c.recorder.Start(c.ctx)
		if err == nil && c.ctx.Err() != nil {
			if err := c.recorder.Discard(); err != nil {
				c.logger.Warn("failed to discard recording", "error", err)
			}
			return
		}
		c.post(startedEvent{turn: turn, err: err})
	}()
}

func (e startedEvent) apply(c *Controller) {
	if e.turn != c.turn || c.phase != PhaseStarting {
		if e.err == nil {
			// nobody is waiting for this capture any more
			c.logger.Warn("dropping stale capture", "turn", e.turn)
			go func() {
				if err := c.recorder.Discard(); err != nil {
					c.logger.Warn("failed to discard recording", "error", err)
				}
			}()
		}
		return
	}
	if e.err != nil {
		c.logger.Error("microphone error", "error", e.err)
		c.setPhase(PhaseIdle)
		if errors.Is(e.err, audio.ErrPermissionDenied) {
			c.setStatus(StatusError, "Microphone access denied")
		} else {
			c.setStatus(StatusError, "Microphone error: "+e.err.Error())
		}
		c.countTurn("permission_denied")
		return
	}

	c.setPhase(PhaseRecording)
	if c.discarding {
		// stop or cancel arrived while the microphone was opening
		c.finishRecording(true)
		return
	}
	c.setStatus(StatusRecording, "Recording your message...")
	c.armMaxRecording()
}

func (c *Controller) armMaxRecording() {
	if c.cfg.MaxRecording <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelMaxTimer = cancel
	turn := c.turn
	go func() {
		timer := time.NewTimer(c.cfg.MaxRecording)
		defer timer.Stop()
		select {
		case <-timer.C:
			c.post(maxRecordingEvent{turn: turn})
		case <-ctx.Done():
		}
	}()
}

func (e maxRecordingEvent) apply(c *Controller) {
	if e.turn != c.turn || c.phase != PhaseRecording {
		return
	}
	c.logger.Info("maximum recording length reached", "limit", c.cfg.MaxRecording)
	c.finishRecording(false)
}

// stop handles both the stop and cancel actions.
func (c *Controller) stop(discard bool) {
	switch c.phase {
	case PhaseStarting:
		c.halted = true
		c.discarding = true
	case PhaseRecording:
		if discard {
			c.halted = true
		}
		c.finishRecording(discard)
	case PhaseStopping, PhaseProcessing:
		// the upload always completes; only the chain is suppressed
		c.halted = true
		c.setStatus(StatusInfo, "Finishing this turn, auto recording paused")
	case PhasePlaying:
		c.halted = true
		if c.cancelPlayback != nil {
			c.cancelPlayback()
		}
	case PhaseScheduled:
		c.cancelScheduled()
		c.setPhase(PhaseIdle)
		c.setStatus(StatusInfo, "Stopped")
	default:
		c.logger.Debug("stop ignored", "phase", c.phase.String())
	}
}

// finishRecording is step 2: end the capture, either keeping the audio for
// upload or dropping it.
func (c *Controller) finishRecording(discard bool) {
	if c.cancelMaxTimer != nil {
		c.cancelMaxTimer()
		c.cancelMaxTimer = nil
	}
	c.setPhase(PhaseStopping)
	turn := c.turn
	go func() {
		if discard {
			err := c.recorder.Discard()
			c.post(recordedEvent{turn: turn, discard: true, err: err})
			return
		}
		blob, err := c.recorder.Stop()
		c.post(recordedEvent{turn: turn, blob: blob, err: err})
	}()
}

func (e recordedEvent) apply(c *Controller) {
	if e.turn != c.turn || c.phase != PhaseStopping {
		return
	}
	if e.discard {
		if e.err != nil {
			c.logger.Warn("failed to discard recording", "error", e.err)
		}
		c.setPhase(PhaseIdle)
		c.setStatus(StatusInfo, "Recording cancelled")
		c.countTurn("cancelled")
		return
	}
	if e.err != nil {
		c.logger.Warn("recording produced no audio", "error", e.err)
		c.setPhase(PhaseIdle)
		if errors.Is(e.err, audio.ErrEmptyCapture) {
			c.setStatus(StatusWarning, "No audio captured")
		} else {
			c.setStatus(StatusError, "Recording failed: "+e.err.Error())
		}
		c.countTurn("empty")
		return
	}
	c.upload(e.blob)
}

// upload is step 3. The request is bound to the controller lifetime, not to
// the turn, so it is never cancelled midway.
func (c *Controller) upload(blob audio.Blob) {
	c.setPhase(PhaseProcessing)
	c.setStatus(StatusProcessing, "Processing your message...")
	c.captureBytes.Record(c.ctx, int64(len(blob.Data)))

	turn, id := c.turn, c.sessionID
	go func() {
		resp, err := c.backend.Chat(c.ctx, id, blob)
		c.post(replyEvent{turn: turn, id: id, resp: resp, err: err})
	}()
}

func (e replyEvent) apply(c *Controller) {
	if e.turn != c.turn || c.phase != PhaseProcessing || e.id != c.sessionID {
		c.logger.Warn("dropping stale reply", "turn", e.turn, "session_id", e.id)
		return
	}

	if e.err != nil {
		c.logger.Error("conversation error", "session_id", e.id, "error", e.err)
		var apiErr *backend.APIError
		if errors.As(e.err, &apiErr) {
			c.setStatus(StatusError, fmt.Sprintf("Error in conversation: %s. Playing fallback.", apiErr.Message))
		} else {
			c.setStatus(StatusError, "Error in conversation. Playing fallback.")
		}
		c.countTurn("transport_failure")
		c.playFallback()
		return
	}

	if e.resp.AudioURL == "" {
		c.logger.Warn("reply without audio", "session_id", e.id, "error", ErrMissingReplyAudio)
		c.setStatus(StatusWarning, "No audio response. Playing fallback.")
		c.countTurn("missing_audio")
		c.playFallback()
		return
	}

	turns := []session.Turn{
		{Role: session.RoleUser, Content: e.resp.UserMessage},
		{Role: session.RoleAssistant, Content: e.resp.AssistantResponse},
	}
	for _, t := range turns {
		c.tr.Append(t)
	}
	if c.journal != nil {
		if err := c.journal.Append(c.ctx, e.id, turns...); err != nil {
			c.logger.Warn("failed to journal turns", "session_id", e.id, "error", err)
		}
	}
	c.setStatus(StatusSuccess, fmt.Sprintf("AI responded! (%d messages)", e.resp.ConversationLength))
	c.countTurn("success")
	c.play(c.backend.ResolveURL(e.resp.AudioURL), true)
}

func (c *Controller) playFallback() {
	if c.cfg.FallbackAudio == "" {
		c.setPhase(PhaseIdle)
		return
	}
	c.play(c.cfg.FallbackAudio, false)
}

// play starts playback. Only reply playback may chain into another turn.
func (c *Controller) play(source string, reply bool) {
	c.setPhase(PhasePlaying)
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelPlayback = cancel
	c.view.NowPlaying(source)

	turn := c.turn
	go func() {
		err := c.player.Play(ctx, source)
		c.post(playbackEvent{turn: turn, reply: reply, err: err})
	}()
}

// apply is step 4: decide whether to chain into the next turn.
func (e playbackEvent) apply(c *Controller) {
	if e.turn != c.turn || c.phase != PhasePlaying {
		return
	}
	if c.cancelPlayback != nil {
		c.cancelPlayback()
		c.cancelPlayback = nil
	}

	if e.err != nil && !errors.Is(e.err, context.Canceled) {
		c.logger.Warn("playback failed", "error", e.err)
		c.setStatus(StatusWarning, "Could not play audio")
	}

	if e.reply && e.err == nil && c.auto && !c.halted {
		c.scheduleContinuation()
		return
	}
	c.setPhase(PhaseIdle)
}

func (c *Controller) scheduleContinuation() {
	c.setPhase(PhaseScheduled)
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelContinuation = cancel
	turn := c.turn
	delay := c.cfg.AutoRecordDelay
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			c.post(continueEvent{turn: turn})
		case <-ctx.Done():
		}
	}()
}

func (e continueEvent) apply(c *Controller) {
	if e.turn != c.turn || c.phase != PhaseScheduled {
		return
	}
	c.cancelScheduled()
	if !c.auto {
		c.setPhase(PhaseIdle)
		return
	}
	c.beginTurn()
}

func (c *Controller) countTurn(outcome string) {
	c.turnCounter.Add(c.ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
