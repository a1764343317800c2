package feedback

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/metrics"
)

// Change is emitted to subscribers whenever a message's category is written.
type Change struct {
	MessageID string   `json:"message_id"`
	Category  Category `json:"category"`
	Origin    string   `json:"origin"` // local or remote
	Seq       uint64   `json:"seq"`
}

// Marshal returns the JSON form used by SSE and WebSocket streams.
func (c Change) Marshal() []byte {
	b, _ := json.Marshal(c)
	return b
}

const (
	OriginLocal  = "local"
	OriginRemote = "remote"
)

// Table is the shared message id -> category store. Once it holds an entry for
// a message, that entry wins over the answer's own persisted value.
type Table interface {
	Get(ctx context.Context, messageID string) (Category, bool, error)
	Set(ctx context.Context, messageID string, c Category) error
	// Subscribe returns a channel of changes for messageID; the caller must
	// drain it and call Unsubscribe.
	Subscribe(messageID string, buffer int) chan Change
	Unsubscribe(messageID string, ch chan Change)
}

// hub is the per-message fan-out shared by every Table implementation.
// Publishing never blocks: a full subscriber channel drops the change.
type hub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan Change]struct{}
	seq         map[string]uint64
}

func newHub() *hub {
	return &hub{
		subscribers: make(map[string]map[chan Change]struct{}),
		seq:         make(map[string]uint64),
	}
}

func (h *hub) subscribe(messageID string, buffer int) chan Change {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Change, buffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subscribers[messageID]
	if subs == nil {
		subs = make(map[chan Change]struct{})
		h.subscribers[messageID] = subs
	}
	subs[ch] = struct{}{}
	metrics.FeedbackSubscribers.Inc()
	return ch
}

func (h *hub) unsubscribe(messageID string, ch chan Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.subscribers[messageID]
	if !ok {
		return
	}
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	close(ch)
	metrics.FeedbackSubscribers.Dec()
	if len(subs) == 0 {
		delete(h.subscribers, messageID)
	}
}

func (h *hub) publish(change Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq[change.MessageID]++
	change.Seq = h.seq[change.MessageID]
	metrics.FeedbackUpdates.WithLabelValues(string(change.Category), change.Origin).Inc()

	for ch := range h.subscribers[change.MessageID] {
		select {
		case ch <- change:
		default:
			metrics.FeedbackDropped.Inc()
		}
	}
}

// MemoryTable is a process-local Table.
type MemoryTable struct {
	mu      sync.RWMutex
	entries map[string]Category
	*hub
}

// NewMemoryTable creates an empty in-memory table
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{entries: make(map[string]Category), hub: newHub()}
}

func (t *MemoryTable) Get(_ context.Context, messageID string) (Category, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.entries[messageID]
	return c, ok, nil
}

func (t *MemoryTable) Set(_ context.Context, messageID string, c Category) error {
	if !c.Valid() {
		return ErrUnknownCategory
	}
	t.mu.Lock()
	t.entries[messageID] = c
	t.mu.Unlock()
	t.publish(Change{MessageID: messageID, Category: c, Origin: OriginLocal})
	return nil
}

func (t *MemoryTable) Subscribe(messageID string, buffer int) chan Change {
	return t.subscribe(messageID, buffer)
}

func (t *MemoryTable) Unsubscribe(messageID string, ch chan Change) {
	t.unsubscribe(messageID, ch)
}

// Len returns the number of entries
func (t *MemoryTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
