package engine

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/sweeney/asterisk-callcenter/internal/ami"
	"github.com/sweeney/asterisk-callcenter/internal/store"
)

// --- test doubles ---

type recordedNotification struct {
	Event   string
	Payload any
}

type mockNotifier struct {
	mu     sync.Mutex
	events []recordedNotification
}

func (m *mockNotifier) Notify(event string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, recordedNotification{Event: event, Payload: payload})
}

func (m *mockNotifier) on(event string) []recordedNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []recordedNotification
	for _, n := range m.events {
		if n.Event == event {
			out = append(out, n)
		}
	}
	return out
}

func (m *mockNotifier) last(event string) (recordedNotification, bool) {
	ns := m.on(event)
	if len(ns) == 0 {
		return recordedNotification{}, false
	}
	return ns[len(ns)-1], true
}

type sentAction struct {
	Action ami.Action
	CB     ami.ResponseFunc
}

// mockSender records actions; respond, if set, synthesizes an immediate
// response for actions that carry a callback.
type mockSender struct {
	mu      sync.Mutex
	sent    []sentAction
	err     error
	respond func(a ami.Action) *ami.Event
}

func (m *mockSender) Send(a ami.Action, cb ami.ResponseFunc) error {
	m.mu.Lock()
	if m.err != nil {
		err := m.err
		m.mu.Unlock()
		return err
	}
	m.sent = append(m.sent, sentAction{Action: a, CB: cb})
	respond := m.respond
	m.mu.Unlock()

	if cb != nil && respond != nil {
		if resp := respond(a); resp != nil {
			cb(*resp)
		}
	}
	return nil
}

func (m *mockSender) named(name string) []sentAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentAction
	for _, s := range m.sent {
		if s.Action.Name == name {
			out = append(out, s)
		}
	}
	return out
}

func respondSuccess(ami.Action) *ami.Event {
	r := ami.NewEvent("Response", "Success", "Message", "started")
	return &r
}

func respondError(ami.Action) *ami.Event {
	r := ami.NewEvent("Response", "Error", "Message", "rejected")
	return &r
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

type fakeScheduler struct {
	timers []*fakeTimer
}

func (s *fakeScheduler) schedule(d time.Duration, fn func()) cancelFunc {
	t := &fakeTimer{delay: d, fn: fn}
	s.timers = append(s.timers, t)
	return func() { t.stopped = true }
}

// fire invokes a timer callback regardless of its stopped flag; the engine
// must tolerate fires that race a cancel.
func (s *fakeScheduler) fire(i int) { s.timers[i].fn() }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testEngine wires an Engine for single-threaded tests: mutations run
// inline instead of through the dispatch channel.
type testEngine struct {
	*Engine
	clock *fakeClock
	db    *store.Mock
	notif *mockNotifier
	send  *mockSender
	sched *fakeScheduler
}

func newTestEngine() *testEngine {
	clk := &fakeClock{now: time.Unix(1756400000, 0)}
	db := store.NewMock()
	notif := &mockNotifier{}
	send := &mockSender{}
	sched := &fakeScheduler{}

	e := New(
		Config{
			GracePeriod:  5 * time.Minute,
			RecordingDir: "/var/spool/asterisk/monitor",
			QueueNames:   map[string]string{"100": "Support"},
		},
		slog.New(slog.DiscardHandler),
		send,
		store.SyncWriter{Store: db},
		notif,
		WithClock(clk.Now),
	)
	e.post = func(fn func()) { fn() }
	e.schedule = sched.schedule
	var n int
	e.newID = func() string {
		n++
		return fmt.Sprintf("%08d-test-id", n)
	}

	return &testEngine{Engine: e, clock: clk, db: db, notif: notif, send: send, sched: sched}
}

// --- event builders ---

func aNewEvent(typ string, kvs ...string) ami.Event {
	return ami.NewEvent(append([]string{"Event", typ}, kvs...)...)
}

func evDialBegin(linkedID, destChannel string) ami.Event {
	return ami.NewEvent(
		"Event", "DialBegin",
		"Linkedid", linkedID,
		"CallerIDNum", "7001",
		"CallerIDName", "Alice",
		"DestExten", "1001",
		"DestChannel", destChannel,
	)
}

func evBridgeEnter(bridgeID, linkedID, channel string) ami.Event {
	return ami.NewEvent(
		"Event", "BridgeEnter",
		"BridgeUniqueid", bridgeID,
		"Linkedid", linkedID,
		"Channel", channel,
		"CallerIDNum", "7001",
		"ConnectedLineNum", "1001",
		"ConnectedLineName", "Bob",
	)
}

func evBridgeDestroy(bridgeID string) ami.Event {
	return ami.NewEvent("Event", "BridgeDestroy", "BridgeUniqueid", bridgeID)
}

func evHangup(linkedID, channel string, cause int) ami.Event {
	return ami.NewEvent(
		"Event", "Hangup",
		"Linkedid", linkedID,
		"Channel", channel,
		"Cause", strconv.Itoa(cause),
	)
}

func evContactStatus(agent, status string) ami.Event {
	return ami.NewEvent(
		"Event", "ContactStatus",
		"EndpointName", agent,
		"ContactStatus", status,
	)
}

func evQueueCallerJoin(queue, uniqueID, callerID string, position int) ami.Event {
	return ami.NewEvent(
		"Event", "QueueCallerJoin",
		"Queue", queue,
		"Uniqueid", uniqueID,
		"CallerIDNum", callerID,
		"Position", strconv.Itoa(position),
	)
}

// answerCall drives a call from dial to a two-party bridge.
func (te *testEngine) answerCall(linkedID, bridgeID, callerCh, agentCh string) {
	te.dispatch(evDialBegin(linkedID, agentCh))
	te.dispatch(evBridgeEnter(bridgeID, linkedID, callerCh))
	te.dispatch(evBridgeEnter(bridgeID, linkedID, agentCh))
}
