// Package engine is the real-time event-correlation core: it ingests the
// switch's event stream one event at a time, maintains the in-memory call,
// queue, bridge, and agent-presence tables, publishes state deltas, and
// issues compensating control actions back to the switch.
//
// All five tables are owned by a single dispatch goroutine. Protocol events,
// grace-period timer fires, and action-result callbacks are funneled through
// the same path, which is what keeps the tables consistent without locks.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/asterisk-callcenter/internal/ami"
	"github.com/sweeney/asterisk-callcenter/internal/store"
)

// ActionSender issues control actions to the switch. The response callback,
// if any, may be invoked from any goroutine.
type ActionSender interface {
	Send(a ami.Action, cb ami.ResponseFunc) error
}

// Notifier receives push-style state notifications. Implementations must
// not block; see Broadcaster.
type Notifier interface {
	Notify(event string, payload any)
}

// Config are the engine's tunables.
type Config struct {
	GracePeriod  time.Duration
	RecordingDir string
	QueueNames   map[string]string
}

type cancelFunc func()

// command is a side-effecting control action queued by a tracker during a
// dispatch. Commands are sent only after the table mutation completes.
type command struct {
	action   ami.Action
	onResult func(ami.Event) // runs on the dispatch goroutine
}

// Engine is the event dispatcher plus the trackers it owns.
type Engine struct {
	cfg    Config
	log    *slog.Logger
	clock  Clock
	sender ActionSender
	db     store.Writer
	notif  Notifier

	tasks chan func()
	// post funnels a mutation onto the dispatch goroutine. Tests replace it
	// with a direct call to run single-threaded.
	post func(fn func())
	// schedule arranges fn to run on the dispatch goroutine after d.
	schedule func(d time.Duration, fn func()) cancelFunc
	newID    func() string

	handlers map[string]func(ami.Event)
	cmds     []command

	// state tables; dispatch goroutine only
	ringing      map[string]*ringingAttempt
	calls        map[string]*callAttempt
	bridges      map[string]*bridgeState
	waiters      map[string][]*queueWaiter
	queueParams  map[string]map[string]string
	queueMembers map[string][]map[string]string
	endpoints    []map[string]string
	agents       map[string]*agentPresence
	recorded     map[string]struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// New creates an Engine. Call Run to start the dispatch loop.
func New(cfg Config, log *slog.Logger, sender ActionSender, db store.Writer, notif Notifier, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		log:    log,
		clock:  time.Now,
		sender: sender,
		db:     db,
		notif:  notif,
		tasks:  make(chan func(), 256),
		newID:  uuid.NewString,

		ringing:      map[string]*ringingAttempt{},
		calls:        map[string]*callAttempt{},
		bridges:      map[string]*bridgeState{},
		waiters:      map[string][]*queueWaiter{},
		queueParams:  map[string]map[string]string{},
		queueMembers: map[string][]map[string]string{},
		agents:       map[string]*agentPresence{},
		recorded:     map[string]struct{}{},
	}
	e.post = func(fn func()) { e.tasks <- fn }
	e.schedule = func(d time.Duration, fn func()) cancelFunc {
		t := time.AfterFunc(d, func() { e.post(fn) })
		return func() { t.Stop() }
	}

	e.handlers = map[string]func(ami.Event){
		"DialBegin":            e.handleDialBegin,
		"Hangup":               e.handleHangup,
		"BridgeEnter":          e.handleBridgeEnter,
		"BridgeDestroy":        e.handleBridgeDestroy,
		"Hold":                 e.handleHold,
		"Unhold":               e.handleUnhold,
		"QueueParams":          e.handleQueueParams,
		"QueueMember":          e.handleQueueMember,
		"QueueCallerJoin":      e.handleQueueCallerJoin,
		"QueueCallerLeave":     e.handleQueueCallerLeave,
		"QueueCallerAbandon":   e.handleQueueCallerLeave,
		"QueueStatusComplete":  e.handleQueueStatusComplete,
		"ContactStatus":        e.handleContactStatus,
		"EndpointList":         e.handleEndpointList,
		"EndpointListComplete": e.handleEndpointListComplete,
	}

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run processes funneled mutations until ctx is cancelled. It must be
// running for HandleEvent, timers, and snapshots to make progress.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-e.tasks:
			fn()
		}
	}
}

// HandleEvent accepts one decoded protocol event. Events are applied
// strictly in arrival order on the dispatch goroutine.
func (e *Engine) HandleEvent(evt ami.Event) {
	if evt.IsResponse() {
		return
	}
	e.post(func() { e.dispatch(evt) })
}

// dispatch routes an event to its tracker and then sends any control
// actions the tracker queued. Unknown event types are ignored.
func (e *Engine) dispatch(evt ami.Event) {
	h := e.handlers[evt.Type()]
	if h == nil {
		return
	}
	h(evt)
	e.flushCommands()
}

// sendCommand queues a control action for sending after the current
// mutation completes. onResult, if set, runs on the dispatch goroutine.
func (e *Engine) sendCommand(a ami.Action, onResult func(ami.Event)) {
	e.cmds = append(e.cmds, command{action: a, onResult: onResult})
}

func (e *Engine) flushCommands() {
	cmds := e.cmds
	e.cmds = nil
	for _, c := range cmds {
		c := c
		var cb ami.ResponseFunc
		if c.onResult != nil {
			cb = func(resp ami.Event) {
				e.post(func() { c.onResult(resp) })
			}
		}
		if err := e.sender.Send(c.action, cb); err != nil {
			e.log.Error("sending action failed", "action", c.action.Name, "error", err)
			if c.onResult != nil {
				// Synthesize a failure so guards roll back.
				c.onResult(ami.NewEvent("Response", "Error", "Message", err.Error()))
			}
		}
	}
}

// HangupCall sends a hangup action for every channel of an ongoing call.
// Returns false if the call is unknown.
func (e *Engine) HangupCall(linkedID string) bool {
	res := make(chan bool, 1)
	e.post(func() {
		call := e.calls[linkedID]
		if call == nil {
			res <- false
			return
		}
		for _, ch := range call.channels {
			e.sendCommand(ami.NewAction("Hangup", "Channel", ch, "Cause", "16"), nil)
		}
		e.flushCommands()
		res <- true
	})
	return <-res
}

// StartPollers issues the periodic status-poll actions on their own tickers.
// Polls request fresh data from the switch; the resulting events flow back
// through the ordinary dispatch path.
func (e *Engine) StartPollers(ctx context.Context, queueEvery, endpointEvery time.Duration) {
	go e.pollLoop(ctx, queueEvery, ami.NewAction("QueueStatus"))
	go e.pollLoop(ctx, endpointEvery, ami.NewAction("PJSIPShowEndpoints"))
}

func (e *Engine) pollLoop(ctx context.Context, every time.Duration, a ami.Action) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := e.sender.Send(a, nil); err != nil {
				e.log.Warn("status poll failed", "action", a.Name, "error", err)
			}
		}
	}
}

// --- snapshots (pull-style, safe from any goroutine) ---

// SnapshotOngoingCalls returns a copy of the active-call table.
func (e *Engine) SnapshotOngoingCalls() []OngoingCall {
	res := make(chan []OngoingCall, 1)
	e.post(func() { res <- e.ongoingSnapshot() })
	return <-res
}

// SnapshotQueueStatus returns each queue's waiters with computed wait times.
func (e *Engine) SnapshotQueueStatus() map[string][]WaiterStatus {
	res := make(chan map[string][]WaiterStatus, 1)
	e.post(func() { res <- e.queueStatusSnapshot() })
	return <-res
}

// SnapshotAgents returns every tracked agent's presence.
func (e *Engine) SnapshotAgents() []AgentStatus {
	res := make(chan []AgentStatus, 1)
	e.post(func() { res <- e.agentSnapshot() })
	return <-res
}
