package events

import (
	"sync"

	"go.uber.org/zap"
)

// ISink receives events after the state change they describe has been committed
type ISink interface {
	Emit(source string, ev Event)
}

// Record is an event together with its position in the log
type Record struct {
	Sequence uint64 `json:"sequence"`
	Source   string `json:"source"`
	Name     string `json:"name"`
	Event    Event  `json:"event"`
}

// Log is an in-memory, append-only, ordered event sink
type Log struct {
	mu      sync.RWMutex
	records []Record
}

func NewLog() *Log {
	return &Log{records: make([]Record, 0)}
}

func (l *Log) Emit(source string, ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, Record{
		Sequence: uint64(len(l.records)),
		Source:   source,
		Name:     ev.EventName(),
		Event:    ev,
	})
}

// Records returns a copy of every record in emission order
func (l *Log) Records() []Record {
	return l.Since(0)
}

// Since returns the records whose sequence is >= seq
func (l *Log) Since(seq uint64) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if seq >= uint64(len(l.records)) {
		return []Record{}
	}
	out := make([]Record, len(l.records)-int(seq))
	copy(out, l.records[seq:])
	return out
}

// Events returns just the event payloads, optionally filtered by name
func (l *Log) Events(names ...string) []Event {
	records := l.Records()

	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}

	out := make([]Event, 0, len(records))
	for _, r := range records {
		if len(want) > 0 {
			if _, ok := want[r.Name]; !ok {
				continue
			}
		}
		out = append(out, r.Event)
	}
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// LoggingSink writes each event to a zap logger before forwarding it
type LoggingSink struct {
	logger *zap.Logger
	next   ISink
}

func NewLoggingSink(logger *zap.Logger, next ISink) *LoggingSink {
	return &LoggingSink{logger: logger, next: next}
}

func (s *LoggingSink) Emit(source string, ev Event) {
	s.logger.Sugar().Infow("Event emitted",
		"source", source,
		"event", ev.EventName(),
		"fields", ev,
	)
	if s.next != nil {
		s.next.Emit(source, ev)
	}
}

// Discard drops every event
type Discard struct{}

func (Discard) Emit(string, Event) {}
