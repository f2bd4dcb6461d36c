package activity

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind 描述一次操作所处的阶段。
type Kind string

const (
	KindPending Kind = "pending"
	KindDone    Kind = "done"
	KindError   Kind = "error"
)

// Event is one step of a long running operation, used to drive a busy
// indicator. Events of the same operation share an ID.
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Operation string    `json:"operation"`
	Message   string    `json:"message,omitempty"`
	Time      time.Time `json:"time"`
}

// subscriberBuffer is how many events a slow subscriber may lag behind
// before further events are dropped for it.
const subscriberBuffer = 16

// Hub fans events out to subscribers. Publishing never blocks.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	now    func() time.Time
}

// NewHub 创建事件中心。
func NewHub() *Hub {
	return &Hub{
		subs: make(map[int]chan Event),
		now:  time.Now,
	}
}

// Start publishes a pending event for operation and returns its ID.
func (h *Hub) Start(operation string) string {
	id := uuid.NewString()
	h.Publish(Event{ID: id, Kind: KindPending, Operation: operation})
	return id
}

// Finish publishes the final event of the operation started as id. A
// non-empty errMsg marks it failed.
func (h *Hub) Finish(id, operation, errMsg string) {
	ev := Event{ID: id, Kind: KindDone, Operation: operation}
	if errMsg != "" {
		ev.Kind = KindError
		ev.Message = errMsg
	}
	h.Publish(ev)
}

// Publish delivers ev to every subscriber with room in its buffer.
func (h *Hub) Publish(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Time.IsZero() {
		ev.Time = h.now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel of future events and a cancel func that
// closes it. cancel is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
