package hub

import (
	"fmt"
	"sync"

	"github.com/botloft/botloft/metrics"
)

// observerSendBuffer is the per-observer live event queue size. An observer
// that cannot drain this many events loses live lines for itself only.
const observerSendBuffer = 256

// Conn is the subset of a websocket connection the hub writes to.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Observer is one attached monitoring connection.
type Observer struct {
	id   string
	conn Conn
	send chan Event
	done chan struct{}
	once sync.Once
}

// Done is closed when the observer's write pump exits.
func (o *Observer) Done() <-chan struct{} {
	return o.done
}

// ID returns the hub-assigned observer id.
func (o *Observer) ID() string {
	return o.id
}

// enqueue delivers a live event, dropping it if the observer is too slow.
func (o *Observer) enqueue(ev Event) {
	select {
	case o.send <- ev:
	default:
	}
}

// writePump serializes all live writes to the connection.
func (o *Observer) writePump(h *Hub) {
	defer o.once.Do(func() { close(o.done) })
	for ev := range o.send {
		if err := o.conn.WriteJSON(ev); err != nil {
			h.logger.Debug("observer write failed", "observer", o.id, "error", err)
			return
		}
	}
}

// Attach registers conn as a new observer. The full contents of every buffer
// are written to the connection, each buffer in original order, before the
// observer joins live fan-out. Returns the observer for later Detach.
func (h *Hub) Attach(conn Conn) (*Observer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	obs := &Observer{
		id:   fmt.Sprintf("observer-%d", h.nextID),
		conn: conn,
		send: make(chan Event, observerSendBuffer),
		done: make(chan struct{}),
	}

	// Replay while holding the lock: no Broadcast can interleave, so every
	// line appended before this point is replayed and every line appended
	// after arrives through the live channel exactly once.
	for _, key := range h.order {
		evType := EventLog
		if key == GlobalKey || key == TerminalKey {
			evType = EventGlobalLog
		}
		for _, line := range h.buffers[key].Snapshot() {
			if err := conn.WriteJSON(Event{Type: evType, InstanceID: key, Data: line}); err != nil {
				return nil, fmt.Errorf("replay to new observer: %w", err)
			}
		}
	}

	h.observers[obs.id] = obs
	metrics.ObserversConnected.Set(float64(len(h.observers)))
	go obs.writePump(h)

	h.logger.Info("observer attached", "observer", obs.id, "total", len(h.observers))
	return obs, nil
}

// Detach removes an observer and stops its write pump.
func (h *Hub) Detach(obs *Observer) {
	h.mu.Lock()
	_, ok := h.observers[obs.id]
	if ok {
		delete(h.observers, obs.id)
		close(obs.send)
	}
	remaining := len(h.observers)
	metrics.ObserversConnected.Set(float64(remaining))
	h.mu.Unlock()

	if ok {
		h.logger.Info("observer detached", "observer", obs.id, "total", remaining)
	}
}
