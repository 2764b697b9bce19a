package engine

import (
	"time"

	"github.com/sweeney/asterisk-callcenter/internal/ami"
	"github.com/sweeney/asterisk-callcenter/internal/store"
)

// handleContactStatus converts endpoint reachability into agent presence.
// Going unreachable does not close the shift immediately; a grace timer is
// scheduled so a brief reconnect resumes the same session.
func (e *Engine) handleContactStatus(evt ami.Event) {
	agentID := evt.Get("EndpointName")
	if agentID == "" {
		return
	}

	switch evt.Get("ContactStatus") {
	case "Reachable":
		e.agentReachable(agentID)
	case "Unreachable":
		e.agentUnreachable(agentID, ReasonConnectionLost)
	case "Removed":
		e.agentUnreachable(agentID, ReasonRemoved)
	}
}

func (e *Engine) agentReachable(agentID string) {
	a := e.agents[agentID]
	if a == nil {
		a = &agentPresence{agentID: agentID, status: AgentOffline}
		e.agents[agentID] = a
	}

	// Returned in time: cancel the pending end and keep the session.
	if a.cancelTimer != nil {
		a.cancelTimer()
		a.cancelTimer = nil
		a.pendingDeadline = time.Time{}
		a.pendingReason = ""
		a.pendingSeq++
		if a.session != nil {
			e.db.ClearPendingEnd(a.session.ID)
		}
	}

	if a.session == nil {
		s := store.ShiftSession{
			ID:        e.newID(),
			AgentID:   agentID,
			StartTime: e.clock(),
		}
		a.session = &s
		e.db.InsertShift(s)
	}

	if a.status != AgentOnline {
		a.status = AgentOnline
		e.notif.Notify("agentStatusUpdate", AgentStatus{AgentID: agentID, Status: AgentOnline})
	}
}

func (e *Engine) agentUnreachable(agentID, reason string) {
	a := e.agents[agentID]
	if a == nil {
		a = &agentPresence{agentID: agentID, status: AgentOnline}
		e.agents[agentID] = a
	}

	// At most one pending-end timer per agent.
	if a.session != nil && a.cancelTimer == nil {
		deadline := e.clock().Add(e.cfg.GracePeriod)
		e.armShiftEnd(a, deadline, reason)
		e.db.SetPendingEnd(a.session.ID, deadline, reason)
	}

	if a.status != AgentOffline {
		a.status = AgentOffline
		e.notif.Notify("agentStatusUpdate", AgentStatus{AgentID: agentID, Status: AgentOffline})
	}
}

// armShiftEnd schedules the deferred close. The sequence number makes a
// late cancel a safe no-op even when the fire callback is already queued
// behind the cancelling event.
func (e *Engine) armShiftEnd(a *agentPresence, deadline time.Time, reason string) {
	a.pendingDeadline = deadline
	a.pendingReason = reason
	a.pendingSeq++
	seq := a.pendingSeq
	agentID := a.agentID
	a.cancelTimer = e.schedule(deadline.Sub(e.clock()), func() {
		e.fireShiftEnd(agentID, seq)
	})
}

// fireShiftEnd runs on the dispatch goroutine when a grace period elapses
// without the agent returning.
func (e *Engine) fireShiftEnd(agentID string, seq int) {
	a := e.agents[agentID]
	if a == nil || a.session == nil || a.pendingSeq != seq {
		return
	}

	end := e.clock()
	duration := int(end.Sub(a.session.StartTime).Seconds())
	e.db.CloseShift(a.session.ID, end, duration, a.pendingReason)
	e.log.Info("shift closed",
		"agentId", agentID, "shiftId", a.session.ID,
		"durationSec", duration, "reason", a.pendingReason)

	a.session = nil
	a.cancelTimer = nil
	a.pendingDeadline = time.Time{}
	a.pendingReason = ""
	a.status = AgentOffline
}

// RestoreShifts seeds the presence table from sessions left open in the
// store, rescheduling any unexpired pending-end deadline for its remaining
// interval. Call once at startup, before events flow.
func (e *Engine) RestoreShifts(sessions []store.ShiftSession) {
	done := make(chan struct{})
	e.post(func() {
		now := e.clock()
		for _, s := range sessions {
			s := s
			a := &agentPresence{
				agentID: s.AgentID,
				status:  AgentOnline,
				session: &s,
			}
			e.agents[s.AgentID] = a

			if s.PendingEndAt == nil {
				continue
			}
			a.status = AgentOffline
			reason := s.PendingReason
			if reason == "" {
				reason = ReasonConnectionLost
			}
			if s.PendingEndAt.After(now) {
				e.armShiftEnd(a, *s.PendingEndAt, reason)
				continue
			}
			// Deadline passed while we were down; close at the deadline.
			duration := int(s.PendingEndAt.Sub(s.StartTime).Seconds())
			e.db.CloseShift(s.ID, *s.PendingEndAt, duration, reason)
			a.session = nil
		}
		close(done)
	})
	<-done
}

func (e *Engine) agentSnapshot() []AgentStatus {
	out := make([]AgentStatus, 0, len(e.agents))
	for _, a := range e.agents {
		out = append(out, AgentStatus{AgentID: a.agentID, Status: a.status})
	}
	return out
}
