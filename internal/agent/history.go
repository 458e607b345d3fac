package agent

import (
	"fmt"

	"VoiceChat/internal/session"
)

type historyOp int

const (
	historyLoad historyOp = iota
	historyClear
)

type historyEvent struct {
	turn  uint64
	op    historyOp
	id    session.ID
	turns []session.Turn
	err   error
}

// reloadHistory replaces the transcript with the backend's log.
func (c *Controller) reloadHistory() {
	c.setPhase(PhaseSyncing)
	turn, id := c.turn, c.sessionID
	go func() {
		turns, err := c.backend.FetchHistory(c.ctx, id)
		c.post(historyEvent{turn: turn, op: historyLoad, id: id, turns: turns, err: err})
	}()
}

func (c *Controller) clearHistory() {
	if c.reject(ActionClearHistory) {
		return
	}
	c.teardown()
	c.setPhase(PhaseSyncing)
	turn, id := c.turn, c.sessionID
	go func() {
		err := c.backend.ClearHistory(c.ctx, id)
		c.post(historyEvent{turn: turn, op: historyClear, id: id, err: err})
	}()
}

func (e historyEvent) apply(c *Controller) {
	if e.turn != c.turn || c.phase != PhaseSyncing || e.id != c.sessionID {
		return
	}
	c.setPhase(PhaseIdle)

	switch e.op {
	case historyClear:
		if e.err != nil {
			c.logger.Error("error clearing history", "session_id", e.id, "error", e.err)
			c.setStatus(StatusError, "Could not clear history: "+e.err.Error())
			return
		}
		c.tr.Reset()
		if c.journal != nil {
			if err := c.journal.Delete(c.ctx, e.id); err != nil {
				c.logger.Warn("failed to clear journal", "session_id", e.id, "error", err)
			}
		}
		c.logger.Info("history cleared", "session_id", e.id)
		c.setStatus(StatusSuccess, "History cleared!")

	case historyLoad:
		if e.err != nil {
			c.logger.Error("error loading history", "session_id", e.id, "error", e.err)
			c.loadJournal(e.id)
			return
		}
		c.tr.LoadAll(e.turns)
		if c.journal != nil {
			if err := c.journal.Replace(c.ctx, e.id, e.turns); err != nil {
				c.logger.Warn("failed to refresh journal", "session_id", e.id, "error", err)
			}
		}
		c.logger.Info("history loaded", "session_id", e.id, "message_count", len(e.turns))
		if len(e.turns) > 0 {
			c.setStatus(StatusInfo, fmt.Sprintf("Loaded %d messages", len(e.turns)))
		} else {
			c.setStatus(StatusInfo, "Ready")
		}
	}
}

// loadJournal shows the locally journaled turns when the backend is
// unreachable.
func (c *Controller) loadJournal(id session.ID) {
	if c.journal == nil {
		c.setStatus(StatusWarning, "Could not load conversation history")
		return
	}
	turns, err := c.journal.Load(c.ctx, id)
	if err != nil || len(turns) == 0 {
		if err != nil {
			c.logger.Warn("failed to read journal", "session_id", id, "error", err)
		}
		c.setStatus(StatusWarning, "Could not load conversation history")
		return
	}
	c.tr.LoadAll(turns)
	c.setStatus(StatusWarning, fmt.Sprintf("Backend unreachable, showing %d local messages", len(turns)))
}
