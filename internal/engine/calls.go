package engine

import (
	"strings"

	"github.com/sweeney/asterisk-callcenter/internal/ami"
	"github.com/sweeney/asterisk-callcenter/internal/store"
)

// handleDialBegin opens (or extends) the ringing attempt for the call and
// upserts a persisted record in state "ringing".
func (e *Engine) handleDialBegin(evt ami.Event) {
	linkedID := evt.LinkedID()
	if linkedID == "" {
		return
	}

	ra := e.ringing[linkedID]
	if ra == nil {
		direction := "inbound"
		if strings.HasPrefix(evt.Get("DialString"), "PJSIP/") {
			direction = "outbound"
		}
		ra = &ringingAttempt{
			linkedID:    linkedID,
			callerID:    evt.Get("CallerIDNum"),
			callerName:  evt.Get("CallerIDName"),
			destination: evt.Get("DestExten"),
			direction:   direction,
			start:       e.clock(),
			channels:    map[string]struct{}{},
		}
		e.ringing[linkedID] = ra
	}

	var channels []string
	if dest := evt.Get("DestChannel"); dest != "" {
		ra.channels[dest] = struct{}{}
		channels = []string{dest}
	}

	e.db.UpsertCall(store.CallUpdate{
		LinkedID:   linkedID,
		CallerID:   store.Ptr(ra.callerID),
		CallerName: store.Ptr(ra.callerName),
		Callee:     store.Ptr(ra.destination),
		Direction:  store.Ptr(ra.direction),
		StartTime:  store.Ptr(ra.start),
		Status:     store.Ptr(store.StatusRinging),
		Channels:   channels,
	})
}

// promoteToAnswered converts a ringing attempt into an active call once a
// two-party bridge forms. The bridge-enter event carries the answering
// party's identifiers.
func (e *Engine) promoteToAnswered(b *bridgeState, evt ami.Event) {
	ra := e.ringing[b.linkedID]
	if ra == nil {
		return
	}

	now := e.clock()
	call := &callAttempt{
		linkedID:   b.linkedID,
		caller:     ra.callerID,
		callerName: ra.callerName,
		agent:      evt.Get("ConnectedLineNum"),
		agentName:  evt.Get("ConnectedLineName"),
		state:      StateTalking,
		start:      now,
		channels:   append([]string(nil), b.channels...),
	}
	if call.agent == "" {
		call.agent = ra.destination
	}
	e.calls[b.linkedID] = call
	delete(e.ringing, b.linkedID)

	e.db.UpsertCall(store.CallUpdate{
		LinkedID:   b.linkedID,
		AnswerTime: store.Ptr(now),
		Status:     store.Ptr(store.StatusAnswered),
		Callee:     store.Ptr(call.agent),
		CalleeName: store.Ptr(call.agentName),
		Channels:   call.channels,
	})
	e.notifyOngoingCalls()
}

// handleHangup is the single source of truth for terminated calls: it
// unwinds either the ringing attempt or the active call that owns the
// channel, and reports the terminal state exactly once.
func (e *Engine) handleHangup(evt ami.Event) {
	linkedID := evt.LinkedID()
	if linkedID == "" {
		return
	}
	channel := evt.Get("Channel")
	cause := evt.GetInt("Cause")

	// Case 1: hung up while ringing -> missed
	if ra := e.ringing[linkedID]; ra != nil {
		if _, ok := ra.channels[channel]; ok {
			delete(ra.channels, channel)
			if len(ra.channels) == 0 {
				e.finishRinging(ra, cause)
			}
			return
		}
	}

	// Case 2: an answered call lost a channel
	call := e.calls[linkedID]
	if call == nil {
		return
	}
	call.channels = removeString(call.channels, channel)
	if len(call.channels) > 0 {
		return
	}

	now := e.clock()
	duration := int(now.Sub(call.start).Seconds())
	status := classifyHangup(cause)

	ended := EndedCall{
		OngoingCall: e.ongoingCall(call),
		EndTime:     now,
		DurationSec: duration,
		Status:      string(status),
		HangupCause: cause,
	}
	delete(e.calls, linkedID)
	delete(e.recorded, linkedID)
	e.removeWaitersForCall(linkedID)

	e.notif.Notify("callEnded", ended)
	e.db.UpsertCall(store.CallUpdate{
		LinkedID:    linkedID,
		EndTime:     store.Ptr(now),
		DurationSec: store.Ptr(duration),
		Status:      store.Ptr(status),
		HangupCause: store.Ptr(cause),
	})
	e.notifyOngoingCalls()
}

// finishRinging reports a ringing attempt whose last channel hung up.
func (e *Engine) finishRinging(ra *ringingAttempt, cause int) {
	now := e.clock()
	ended := EndedCall{
		OngoingCall: OngoingCall{
			LinkedID:   ra.linkedID,
			Caller:     ra.callerID,
			CallerName: ra.callerName,
			Agent:      ra.destination,
			StartTime:  ra.start,
		},
		EndTime:     now,
		DurationSec: 0,
		Status:      string(store.StatusMissed),
		HangupCause: cause,
	}
	delete(e.ringing, ra.linkedID)
	delete(e.recorded, ra.linkedID)
	e.removeWaitersForCall(ra.linkedID)

	e.notif.Notify("callEnded", ended)
	e.db.UpsertCall(store.CallUpdate{
		LinkedID:    ra.linkedID,
		EndTime:     store.Ptr(now),
		Status:      store.Ptr(store.StatusMissed),
		HangupCause: store.Ptr(cause),
	})
}

func (e *Engine) handleHold(evt ami.Event) {
	e.setHoldState(evt.LinkedID(), StateOnHold, store.StatusOnHold)
}

func (e *Engine) handleUnhold(evt ami.Event) {
	e.setHoldState(evt.LinkedID(), StateTalking, store.StatusAnswered)
}

func (e *Engine) setHoldState(linkedID, state string, persisted store.CallStatus) {
	call := e.calls[linkedID]
	if call == nil || call.state == state {
		return
	}
	call.state = state
	e.db.UpsertCall(store.CallUpdate{
		LinkedID: linkedID,
		Status:   store.Ptr(persisted),
	})
	e.notifyOngoingCalls()
}

func (e *Engine) ongoingCall(c *callAttempt) OngoingCall {
	return OngoingCall{
		LinkedID:      c.linkedID,
		Caller:        c.caller,
		CallerName:    c.callerName,
		Agent:         c.agent,
		AgentName:     c.agentName,
		State:         c.state,
		StartTime:     c.start,
		Channels:      append([]string(nil), c.channels...),
		RecordingPath: c.recordingPath,
	}
}

func (e *Engine) ongoingSnapshot() []OngoingCall {
	out := make([]OngoingCall, 0, len(e.calls))
	for _, c := range e.calls {
		out = append(out, e.ongoingCall(c))
	}
	return out
}

func (e *Engine) notifyOngoingCalls() {
	e.notif.Notify("ongoingCalls", e.ongoingSnapshot())
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
