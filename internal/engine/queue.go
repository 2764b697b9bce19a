package engine

import (
	"github.com/sweeney/asterisk-callcenter/internal/ami"
)

// handleQueueParams stages queue parameters from the periodic QueueStatus
// poll; they are published wholesale on QueueStatusComplete. Each record
// carries the queue's resolved display name.
func (e *Engine) handleQueueParams(evt ami.Event) {
	queue := evt.Get("Queue")
	if queue == "" {
		return
	}
	params := evt.Fields()
	params["name"] = e.queueName(queue)
	e.queueParams[queue] = params
}

// handleQueueMember upserts a member within its queue, replacing by
// Location, and resolves the queue's display name.
func (e *Engine) handleQueueMember(evt ami.Event) {
	queue := evt.Get("Queue")
	location := evt.Get("Location")
	if queue == "" || location == "" {
		return
	}

	member := evt.Fields()
	member["queueName"] = e.queueName(queue)

	members := e.queueMembers[queue]
	for i, m := range members {
		if m["Location"] == location {
			members[i] = member
			return
		}
	}
	e.queueMembers[queue] = append(members, member)
}

// handleQueueStatusComplete publishes the staged queue data collected since
// the poll began.
func (e *Engine) handleQueueStatusComplete(ami.Event) {
	e.notif.Notify("queueUpdate", e.queueParamsSnapshot())
	e.notif.Notify("queueMembers", e.queueMembersSnapshot())
}

// handleQueueCallerJoin appends a waiter unless one already exists for the
// (queue, unique id) pair; duplicate join events are no-ops.
func (e *Engine) handleQueueCallerJoin(evt ami.Event) {
	queue := evt.Get("Queue")
	uniqueID := evt.Get("Uniqueid")
	if queue == "" || uniqueID == "" {
		return
	}

	for _, w := range e.waiters[queue] {
		if w.uniqueID == uniqueID {
			e.notifyQueueStatus()
			return
		}
	}
	e.waiters[queue] = append(e.waiters[queue], &queueWaiter{
		uniqueID:  uniqueID,
		callerID:  evt.Get("CallerIDNum"),
		position:  evt.GetInt("Position"),
		waitStart: e.clock(),
	})
	e.notifyQueueStatus()
}

// handleQueueCallerLeave removes the waiter; leave and abandon both simply
// terminate the wait.
func (e *Engine) handleQueueCallerLeave(evt ami.Event) {
	queue := evt.Get("Queue")
	uniqueID := evt.Get("Uniqueid")
	if queue == "" || uniqueID == "" {
		return
	}
	e.waiters[queue] = removeWaiter(e.waiters[queue], uniqueID)
	e.notifyQueueStatus()
}

// removeWaitersForCall drops any waiter whose unique id matches the ended
// call's linked id (the originating channel's unique id equals the linked
// id, so abandoning callers unwind with their call).
func (e *Engine) removeWaitersForCall(linkedID string) {
	changed := false
	for queue, ws := range e.waiters {
		next := removeWaiter(ws, linkedID)
		if len(next) != len(ws) {
			e.waiters[queue] = next
			changed = true
		}
	}
	if changed {
		e.notifyQueueStatus()
	}
}

func removeWaiter(ws []*queueWaiter, uniqueID string) []*queueWaiter {
	out := ws[:0]
	for _, w := range ws {
		if w.uniqueID != uniqueID {
			out = append(out, w)
		}
	}
	return out
}

// queueStatusSnapshot computes wait times on the fly so a snapshot is
// always current regardless of when it is taken.
func (e *Engine) queueStatusSnapshot() map[string][]WaiterStatus {
	now := e.clock()
	out := make(map[string][]WaiterStatus, len(e.waiters))
	for queue, ws := range e.waiters {
		list := make([]WaiterStatus, 0, len(ws))
		for _, w := range ws {
			list = append(list, WaiterStatus{
				ID:          w.uniqueID,
				CallerID:    w.callerID,
				Position:    w.position,
				WaitSeconds: int(now.Sub(w.waitStart).Seconds()),
			})
		}
		out[queue] = list
	}
	return out
}

func (e *Engine) notifyQueueStatus() {
	e.notif.Notify("queueStatus", e.queueStatusSnapshot())
}

func (e *Engine) queueParamsSnapshot() map[string]map[string]string {
	out := make(map[string]map[string]string, len(e.queueParams))
	for q, params := range e.queueParams {
		cp := make(map[string]string, len(params))
		for k, v := range params {
			cp[k] = v
		}
		out[q] = cp
	}
	return out
}

// queueMembersSnapshot flattens members across queues.
func (e *Engine) queueMembersSnapshot() []map[string]string {
	var out []map[string]string
	for _, members := range e.queueMembers {
		for _, m := range members {
			cp := make(map[string]string, len(m))
			for k, v := range m {
				cp[k] = v
			}
			out = append(out, cp)
		}
	}
	return out
}

func (e *Engine) queueName(queue string) string {
	if name, ok := e.cfg.QueueNames[queue]; ok {
		return name
	}
	return queue
}

// handleEndpointList stages one endpoint from the periodic endpoint poll.
func (e *Engine) handleEndpointList(evt ami.Event) {
	e.endpoints = append(e.endpoints, evt.Fields())
}

// handleEndpointListComplete publishes the staged batch and resets it.
func (e *Engine) handleEndpointListComplete(ami.Event) {
	e.notif.Notify("endpointList", e.endpoints)
	e.endpoints = nil
}
