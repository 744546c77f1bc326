// Package hub aggregates console output from all managed instances and fans
// it out to connected observers.
//
// The hub owns one bounded buffer per instance plus the global and terminal
// buffers. A newly attached observer receives the full contents of every
// buffer, in original order, before it can see any line broadcast afterwards:
// Attach performs the replay while holding the same lock every broadcast
// takes, so lines produced concurrently with a replay are delivered after it
// completes, never dropped and never duplicated.
//
// Status events flow through the same observer connections but are not stored
// in any buffer; late joiners learn current statuses from the instance list
// endpoint instead.
package hub

import (
	"log/slog"
	"sync"

	"github.com/botloft/botloft/logbuf"
	"github.com/botloft/botloft/metrics"
)

// Reserved buffer keys. Everything else is an instance id.
const (
	GlobalKey   = "global"
	TerminalKey = "terminal"
)

// EventType discriminates messages sent to observers.
type EventType string

const (
	EventLog       EventType = "LOG"
	EventStatus    EventType = "STATUS"
	EventGlobalLog EventType = "GLOBAL_LOG"
)

// Event is a single message delivered to an observer.
type Event struct {
	Type       EventType `json:"type"`
	InstanceID string    `json:"instanceId,omitempty"`
	Data       string    `json:"data"`
}

// Hub owns the log buffers and the observer set.
type Hub struct {
	mu        sync.Mutex
	buffers   map[string]*logbuf.Buffer
	order     []string // replay order: global, terminal, then instances by first append
	observers map[string]*Observer
	nextID    int
	logger    *slog.Logger
}

// New creates a hub with the global and terminal buffers pre-allocated.
func New(logger *slog.Logger) *Hub {
	h := &Hub{
		buffers:   make(map[string]*logbuf.Buffer),
		observers: make(map[string]*Observer),
		logger:    logger.With("component", "hub"),
	}
	h.buffers[GlobalKey] = logbuf.New(logbuf.AuxCapacity)
	h.buffers[TerminalKey] = logbuf.New(logbuf.AuxCapacity)
	h.order = []string{GlobalKey, TerminalKey}
	return h
}

// buffer returns the buffer for key, creating an instance buffer on first use.
// Caller must hold h.mu.
func (h *Hub) buffer(key string) *logbuf.Buffer {
	b, ok := h.buffers[key]
	if !ok {
		b = logbuf.New(logbuf.InstanceCapacity)
		h.buffers[key] = b
		h.order = append(h.order, key)
	}
	return b
}

// Broadcast appends line to the buffer for key and sends it to every
// attached observer.
func (h *Hub) Broadcast(key, line string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buffer(key).Append(line)
	metrics.LogLinesBroadcast.Inc()

	ev := Event{Type: EventLog, InstanceID: key, Data: line}
	if key == GlobalKey || key == TerminalKey {
		ev = Event{Type: EventGlobalLog, InstanceID: key, Data: line}
	}
	for _, obs := range h.observers {
		obs.enqueue(ev)
	}
}

// BroadcastStatus sends a status transition to every observer without
// touching any buffer.
func (h *Hub) BroadcastStatus(instanceID, status string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ev := Event{Type: EventStatus, InstanceID: instanceID, Data: status}
	for _, obs := range h.observers {
		obs.enqueue(ev)
	}
}

// History returns the buffered lines for key in original order.
func (h *Hub) History(key string) []string {
	h.mu.Lock()
	b, ok := h.buffers[key]
	h.mu.Unlock()
	if !ok {
		return nil
	}
	return b.Snapshot()
}

// ObserverCount returns the number of attached observers.
func (h *Hub) ObserverCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}
