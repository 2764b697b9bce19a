package ami

import (
	"strconv"
	"strings"
	"time"
)

// Event represents a parsed AMI event as an ordered set of key-value pairs.
type Event struct {
	headers []header
}

type header struct {
	Key   string
	Value string
}

// NewEvent creates an Event from a slice of key-value pairs.
func NewEvent(kvs ...string) Event {
	e := Event{}
	for i := 0; i+1 < len(kvs); i += 2 {
		e.headers = append(e.headers, header{Key: kvs[i], Value: kvs[i+1]})
	}
	return e
}

// Get returns the value for the given key, or empty string if not found.
func (e Event) Get(key string) string {
	for _, h := range e.headers {
		if h.Key == key {
			return h.Value
		}
	}
	return ""
}

// Type returns the Event header value (the AMI event type).
func (e Event) Type() string {
	return e.Get("Event")
}

// LinkedID returns the Linkedid header, the correlation id shared by
// every channel belonging to one logical call.
func (e Event) LinkedID() string {
	return e.Get("Linkedid")
}

// GetInt returns the integer value for the given key, or 0 if not found/parseable.
func (e Event) GetInt(key string) int {
	v, _ := strconv.Atoi(e.Get(key))
	return v
}

// GetFloat returns the float value for the given key, or 0 if not found/parseable.
func (e Event) GetFloat(key string) float64 {
	v, _ := strconv.ParseFloat(e.Get(key), 64)
	return v
}

// GetTime returns the timestamp for the given key parsed as RFC3339, or zero time.
func (e Event) GetTime(key string) time.Time {
	t, _ := time.Parse(time.RFC3339, e.Get(key))
	return t
}

// Fields returns all headers as a flat map. Later duplicates win.
func (e Event) Fields() map[string]string {
	m := make(map[string]string, len(e.headers))
	for _, h := range e.headers {
		m[h.Key] = h.Value
	}
	return m
}

// IsResponse returns true if this is an AMI response rather than an event.
func (e Event) IsResponse() bool {
	return e.Get("Response") != ""
}

// ActionID returns the ActionID header used to correlate responses to actions.
func (e Event) ActionID() string {
	return e.Get("ActionID")
}

// IsSuccess reports whether a response indicates success.
func (e Event) IsSuccess() bool {
	return e.Get("Response") == "Success"
}

// String re-encodes the event in wire format, trailing blank line included.
func (e Event) String() string {
	var b strings.Builder
	for _, h := range e.headers {
		b.WriteString(h.Key)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return b.String()
}
