package investigation

import (
	"sync"
	"time"

	"github.com/trailhound/trailhound/internal/models"
)

const subscriberBuffer = 64

// hub fans progress events out to subscribers of one investigation.
// Delivery is best-effort: a full subscriber drops non-critical events
// and carries the drop count on the next delivered event. Critical
// events (stage transitions, errors, completion) block briefly rather
// than drop.
type hub struct {
	mu          sync.Mutex
	subscribers map[int]*subscriber
	nextID      int
	lastStatus  *models.ProgressEvent
	closed      bool
}

type subscriber struct {
	ch      chan models.ProgressEvent
	dropped int
}

func newHub() *hub {
	return &hub{subscribers: make(map[int]*subscriber)}
}

// Subscribe returns an event channel and a cancel function. A late
// subscriber immediately receives the current status snapshot.
func (h *hub) Subscribe() (<-chan models.ProgressEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan models.ProgressEvent, subscriberBuffer)
	if h.closed {
		if h.lastStatus != nil {
			ch <- *h.lastStatus
		}
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subscribers[id] = &subscriber{ch: ch}
	if h.lastStatus != nil {
		ch <- *h.lastStatus
	}

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			close(sub.ch)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber. Terminal events close
// the hub; no further events are accepted.
func (h *hub) Publish(ev models.ProgressEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.lastStatus = &ev

	for _, sub := range h.subscribers {
		send := ev
		send.Dropped = sub.dropped
		select {
		case sub.ch <- send:
			sub.dropped = 0
		default:
			if !ev.Critical() {
				sub.dropped++
				continue
			}
			// Make room by evicting the oldest buffered event
			select {
			case <-sub.ch:
				sub.dropped++
			default:
			}
			send.Dropped = sub.dropped
			select {
			case sub.ch <- send:
				sub.dropped = 0
			default:
				sub.dropped++
			}
		}
	}

	if ev.Type == models.EventCompletion || terminalError(ev) {
		h.closed = true
		for id, sub := range h.subscribers {
			delete(h.subscribers, id)
			close(sub.ch)
		}
	}
}

func terminalError(ev models.ProgressEvent) bool {
	if ev.Type != models.EventError {
		return false
	}
	terminal, _ := ev.Data["terminal"].(bool)
	return terminal
}
