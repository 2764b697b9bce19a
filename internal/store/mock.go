package store

import (
	"context"
	"sync"
	"time"
)

// Mock is an in-memory Store and Writer for tests. As a Writer it applies
// updates synchronously, so assertions can run right after the mutation.
type Mock struct {
	mu      sync.Mutex
	calls   map[string]CallUpdate // merged view per linked id
	updates []CallUpdate          // every raw update in order
	shifts  map[string]*ShiftSession
	err     error // if set, Store methods return this error
}

// NewMock creates an empty Mock.
func NewMock() *Mock {
	return &Mock{
		calls:  map[string]CallUpdate{},
		shifts: map[string]*ShiftSession{},
	}
}

// SetError makes all Store methods fail with err. Pass nil to clear.
func (m *Mock) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func merge(dst, src CallUpdate) CallUpdate {
	dst.LinkedID = src.LinkedID
	if src.CallerID != nil {
		dst.CallerID = src.CallerID
	}
	if src.CallerName != nil {
		dst.CallerName = src.CallerName
	}
	if src.Callee != nil {
		dst.Callee = src.Callee
	}
	if src.CalleeName != nil {
		dst.CalleeName = src.CalleeName
	}
	if src.Direction != nil {
		dst.Direction = src.Direction
	}
	if src.StartTime != nil {
		dst.StartTime = src.StartTime
	}
	if src.AnswerTime != nil {
		dst.AnswerTime = src.AnswerTime
	}
	if src.EndTime != nil {
		dst.EndTime = src.EndTime
	}
	if src.DurationSec != nil {
		dst.DurationSec = src.DurationSec
	}
	if src.Status != nil {
		dst.Status = src.Status
	}
	if src.HangupCause != nil {
		dst.HangupCause = src.HangupCause
	}
	if src.Channels != nil {
		dst.Channels = append([]string(nil), src.Channels...)
	}
	if src.RecordingPath != nil {
		dst.RecordingPath = src.RecordingPath
	}
	return dst
}

func (m *Mock) applyUpsert(u CallUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.updates = append(m.updates, u)
	m.calls[u.LinkedID] = merge(m.calls[u.LinkedID], u)
	return nil
}

// Call returns the merged record for a linked id and whether it exists.
func (m *Mock) Call(linkedID string) (CallUpdate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.calls[linkedID]
	return u, ok
}

// Updates returns every raw update received, in order.
func (m *Mock) Updates() []CallUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CallUpdate(nil), m.updates...)
}

// Shift returns a copy of the stored session and whether it exists.
func (m *Mock) Shift(id string) (ShiftSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shifts[id]
	if !ok {
		return ShiftSession{}, false
	}
	return *s, true
}

// Shifts returns copies of all stored sessions.
func (m *Mock) Shifts() []ShiftSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ShiftSession, 0, len(m.shifts))
	for _, s := range m.shifts {
		out = append(out, *s)
	}
	return out
}

// --- Store (synchronous, error-returning) ---

func (m *Mock) UpsertCall(_ context.Context, u CallUpdate) error {
	return m.applyUpsert(u)
}

func (m *Mock) InsertShift(_ context.Context, s ShiftSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	cp := s
	m.shifts[s.ID] = &cp
	return nil
}

func (m *Mock) SetPendingEnd(_ context.Context, id string, deadline time.Time, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if s, ok := m.shifts[id]; ok {
		d := deadline
		s.PendingEndAt = &d
		s.PendingReason = reason
	}
	return nil
}

func (m *Mock) ClearPendingEnd(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if s, ok := m.shifts[id]; ok {
		s.PendingEndAt = nil
		s.PendingReason = ""
	}
	return nil
}

func (m *Mock) CloseShift(_ context.Context, id string, end time.Time, durationSec int, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if s, ok := m.shifts[id]; ok && s.EndTime == nil {
		e := end
		d := durationSec
		s.EndTime = &e
		s.DurationSec = &d
		s.Reason = reason
		s.PendingEndAt = nil
		s.PendingReason = ""
	}
	return nil
}

func (m *Mock) OpenShifts(_ context.Context) ([]ShiftSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []ShiftSession
	for _, s := range m.shifts {
		if s.EndTime == nil {
			out = append(out, *s)
		}
	}
	return out, nil
}

// SyncWriter adapts any Store to the Writer surface by applying writes
// inline and discarding errors. Tests use it around Mock so state is
// visible immediately after dispatch.
type SyncWriter struct {
	Store Store
}

func (w SyncWriter) UpsertCall(u CallUpdate) {
	_ = w.Store.UpsertCall(context.Background(), u)
}

func (w SyncWriter) InsertShift(s ShiftSession) {
	_ = w.Store.InsertShift(context.Background(), s)
}

func (w SyncWriter) SetPendingEnd(id string, deadline time.Time, reason string) {
	_ = w.Store.SetPendingEnd(context.Background(), id, deadline, reason)
}

func (w SyncWriter) ClearPendingEnd(id string) {
	_ = w.Store.ClearPendingEnd(context.Background(), id)
}

func (w SyncWriter) CloseShift(id string, end time.Time, durationSec int, reason string) {
	_ = w.Store.CloseShift(context.Background(), id, end, durationSec, reason)
}
