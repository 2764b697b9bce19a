package engine

import (
	"time"

	"github.com/sweeney/asterisk-callcenter/internal/store"
)

// Clock provides the current time. Defaults to time.Now; override in tests.
type Clock func() time.Time

// Call states as shown to subscribers.
const (
	StateTalking = "Talking"
	StateOnHold  = "On Hold"
)

// Agent presence states.
const (
	AgentOnline  = "online"
	AgentOffline = "offline"
)

// Grace-period close reasons, derived from the ContactStatus sub-type.
const (
	ReasonConnectionLost = "connection lost"
	ReasonRemoved        = "removed/power outage"
)

// ringingAttempt is a call still in the pre-answer phase.
type ringingAttempt struct {
	linkedID    string
	callerID    string
	callerName  string
	destination string
	direction   string
	start       time.Time
	channels    map[string]struct{}
}

// callAttempt is an answered, ongoing call.
type callAttempt struct {
	linkedID      string
	caller        string
	callerName    string
	agent         string
	agentName     string
	state         string
	start         time.Time
	channels      []string
	recordingPath string
}

// bridgeState tracks channels joined to one switch bridge, in join order.
type bridgeState struct {
	id       string
	linkedID string
	channels []string
}

// queueWaiter is one caller held in a distribution queue.
type queueWaiter struct {
	uniqueID  string
	callerID  string
	position  int
	waitStart time.Time
}

// agentPresence tracks one agent's reachability and open shift session.
// pendingSeq guards the fire/cancel race: a timer that was cancelled after
// its callback was already enqueued sees a stale seq and does nothing.
type agentPresence struct {
	agentID         string
	status          string
	session         *store.ShiftSession
	pendingDeadline time.Time
	pendingReason   string
	pendingSeq      int
	cancelTimer     func()
}

// OngoingCall is the externally visible record of an active call.
type OngoingCall struct {
	LinkedID      string    `json:"linkedId"`
	Caller        string    `json:"caller"`
	CallerName    string    `json:"callerName,omitempty"`
	Agent         string    `json:"agent,omitempty"`
	AgentName     string    `json:"agentName,omitempty"`
	State         string    `json:"state"`
	StartTime     time.Time `json:"startTime"`
	Channels      []string  `json:"channels"`
	RecordingPath string    `json:"recordingPath,omitempty"`
}

// EndedCall is the full record broadcast once a call terminates.
type EndedCall struct {
	OngoingCall
	EndTime     time.Time `json:"endTime"`
	DurationSec int       `json:"duration"`
	Status      string    `json:"status"`
	HangupCause int       `json:"hangupCause"`
}

// WaiterStatus is a queue waiter with its wait time computed at snapshot
// time, never stored.
type WaiterStatus struct {
	ID          string `json:"id"`
	CallerID    string `json:"callerId"`
	Position    int    `json:"position"`
	WaitSeconds int    `json:"waitTime"`
}

// AgentStatus is the presence delta broadcast on reachability changes.
type AgentStatus struct {
	AgentID string `json:"agentId"`
	Status  string `json:"status"`
}

// classifyHangup maps a hangup cause code to the terminal status of a call
// that had been answered. Never-answered calls are always "missed".
func classifyHangup(cause int) store.CallStatus {
	switch cause {
	case 17:
		return store.StatusBusy
	case 18, 19:
		return store.StatusUnanswered
	case 21:
		return store.StatusFailed
	}
	return store.StatusEnded
}
