package types

// Event represents a typed event emitted during state transitions.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Clone returns a copy with its own attribute map.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	out := &Event{Type: e.Type, Attributes: make(map[string]string, len(e.Attributes))}
	for k, v := range e.Attributes {
		out.Attributes[k] = v
	}
	return out
}
