package ami

import (
	"sort"
	"strings"
)

// Action is an outbound AMI action request.
type Action struct {
	Name   string
	ID     string
	Params map[string]string
}

// NewAction creates an Action with the given name and key-value parameters.
func NewAction(name string, kvs ...string) Action {
	a := Action{Name: name, Params: map[string]string{}}
	for i := 0; i+1 < len(kvs); i += 2 {
		a.Params[kvs[i]] = kvs[i+1]
	}
	return a
}

// Marshal renders the action in AMI wire format, terminated by a blank line.
// Parameters are emitted in sorted key order so output is deterministic.
func (a Action) Marshal() []byte {
	var b strings.Builder
	b.WriteString("Action: ")
	b.WriteString(a.Name)
	b.WriteString("\r\n")
	if a.ID != "" {
		b.WriteString("ActionID: ")
		b.WriteString(a.ID)
		b.WriteString("\r\n")
	}

	keys := make([]string, 0, len(a.Params))
	for k := range a.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(a.Params[k])
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}
