// Package store holds the persistence collaborators: the Postgres call-log
// and shift-session store, an async write-behind queue so the dispatcher
// never blocks on the database, and a Redis snapshot store for pull-style
// state seeds.
package store

import (
	"context"
	"time"
)

// CallStatus is the persisted lifecycle status of a call record.
type CallStatus string

const (
	StatusRinging    CallStatus = "ringing"
	StatusAnswered   CallStatus = "answered"
	StatusOnHold     CallStatus = "on_hold"
	StatusMissed     CallStatus = "missed"
	StatusEnded      CallStatus = "ended"
	StatusBusy       CallStatus = "busy"
	StatusUnanswered CallStatus = "unanswered"
	StatusFailed     CallStatus = "failed"
)

// CallUpdate is a partial update applied to the call record identified by
// LinkedID. Nil fields are left untouched; the first update creates the row.
type CallUpdate struct {
	LinkedID      string
	CallerID      *string
	CallerName    *string
	Callee        *string
	CalleeName    *string
	Direction     *string
	StartTime     *time.Time
	AnswerTime    *time.Time
	EndTime       *time.Time
	DurationSec   *int
	Status        *CallStatus
	HangupCause   *int
	Channels      []string
	RecordingPath *string
}

// ShiftSession is one agent work session. EndTime is nil while the shift is
// open; PendingEndAt carries the scheduled grace-period deadline so it can
// be restored after a restart.
type ShiftSession struct {
	ID            string
	AgentID       string
	StartTime     time.Time
	EndTime       *time.Time
	DurationSec   *int
	Reason        string
	PendingEndAt  *time.Time
	PendingReason string
}

// CallStore persists call records, upserted by linked id.
type CallStore interface {
	UpsertCall(ctx context.Context, u CallUpdate) error
}

// ShiftStore persists agent shift sessions.
type ShiftStore interface {
	InsertShift(ctx context.Context, s ShiftSession) error
	SetPendingEnd(ctx context.Context, id string, deadline time.Time, reason string) error
	ClearPendingEnd(ctx context.Context, id string) error
	CloseShift(ctx context.Context, id string, end time.Time, durationSec int, reason string) error
	OpenShifts(ctx context.Context) ([]ShiftSession, error)
}

// Store is the full persistence boundary.
type Store interface {
	CallStore
	ShiftStore
}

// Writer is the fire-and-forget persistence surface the engine talks to.
// Implementations must never block the caller; failures are logged, not
// returned. The in-memory model stays authoritative regardless.
type Writer interface {
	UpsertCall(u CallUpdate)
	InsertShift(s ShiftSession)
	SetPendingEnd(id string, deadline time.Time, reason string)
	ClearPendingEnd(id string)
	CloseShift(id string, end time.Time, durationSec int, reason string)
}

// Ptr returns a pointer to v. Convenience for building partial updates.
func Ptr[T any](v T) *T { return &v }
