package events

import (
	"log/slog"
	"sort"

	"omnidex/core/types"
)

// Event represents a structured state change emitted by the runtime.
type Event interface {
	EventType() string
}

// Attributer is implemented by events that project themselves into the
// generic attribute form consumed by indexers and the event log.
type Attributer interface {
	Event() *types.Event
}

// Flatten renders any event as a generic *types.Event, using the event's own
// projection when it provides one.
func Flatten(e Event) *types.Event {
	if a, ok := e.(Attributer); ok {
		return a.Event()
	}
	return &types.Event{Type: e.EventType()}
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorder collects emitted events in order; it is primarily a test helper but
// also backs the in-process event feed.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Emit(e Event) {
	r.Events = append(r.Events, e)
}

// LogEmitter mirrors every emitted event into a slog logger, flattening the
// attribute map into log fields in key order.
type LogEmitter struct {
	logger *slog.Logger
}

func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

func (l *LogEmitter) Emit(e Event) {
	flat := Flatten(e)
	args := make([]any, 0, 2*len(flat.Attributes)+2)
	args = append(args, "type", flat.Type)
	keys := make([]string, 0, len(flat.Attributes))
	for k := range flat.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, k, flat.Attributes[k])
	}
	l.logger.Info("event", args...)
}
