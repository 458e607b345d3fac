package agent

import "VoiceChat/internal/session"

// Action is a user command understood by the controller.
type Action int

const (
	ActionStart Action = iota + 1
	ActionStop
	ActionCancel
	ActionToggleAuto
	ActionNewSession
	ActionClearHistory
	ActionReloadHistory
)

func (a Action) String() string {
	switch a {
	case ActionStart:
		return "start"
	case ActionStop:
		return "stop"
	case ActionCancel:
		return "cancel"
	case ActionToggleAuto:
		return "toggle-auto"
	case ActionNewSession:
		return "new-session"
	case ActionClearHistory:
		return "clear-history"
	case ActionReloadHistory:
		return "reload-history"
	default:
		return "unknown"
	}
}

// Phase is where the controller is within a turn.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStarting
	PhaseRecording
	PhaseStopping
	PhaseProcessing
	PhasePlaying
	PhaseScheduled
	PhaseSyncing
)

func (p Phase) String() string {
	return [...]string{"idle", "starting", "recording", "stopping", "processing", "playing", "scheduled", "syncing"}[p]
}

// StatusKind classifies a status line.
type StatusKind int

const (
	StatusInfo StatusKind = iota
	StatusRecording
	StatusProcessing
	StatusSuccess
	StatusWarning
	StatusError
)

// Status is the one-line message shown to the user.
type Status struct {
	Kind    StatusKind
	Message string
}

// Controls is the state of the user affordances.
type Controls struct {
	Phase         Phase
	StartEnabled  bool
	StopEnabled   bool
	AutoRecording bool
}

// View receives everything the user should see. All calls come from the
// controller goroutine.
type View interface {
	SetStatus(Status)
	SetControls(Controls)
	SetSession(id session.ID, link string)
	NowPlaying(source string)
}

type nopView struct{}

func (nopView) SetStatus(Status)              {}
func (nopView) SetControls(Controls)          {}
func (nopView) SetSession(session.ID, string) {}
func (nopView) NowPlaying(string)             {}
