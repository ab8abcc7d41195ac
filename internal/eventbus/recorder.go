package eventbus

import (
	"fmt"
	"sync"
	"time"
)

// Item is one recorded bus event, shaped for the status endpoint.
type Item struct {
	Type   string    `json:"type"`
	Time   time.Time `json:"time"`
	Detail string    `json:"detail,omitempty"`
}

// Recorder subscribes to a bus and keeps a bounded ring of the most
// recent events. It is the consumer behind the scheduler activity list
// on /status/nudges.
type Recorder struct {
	mu    sync.Mutex
	items []Item
	cap   int

	unsub func()
	done  chan struct{}
}

// NewRecorder starts recording. Capacity bounds both the ring and the
// subscription buffer; values <= 0 fall back to 64.
func NewRecorder(bus Bus, capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 64
	}
	ch, unsub := bus.Subscribe(capacity)
	r := &Recorder{cap: capacity, unsub: unsub, done: make(chan struct{})}
	go func() {
		defer close(r.done)
		for e := range ch {
			r.add(e)
		}
	}()
	return r
}

func (r *Recorder) add(e Event) {
	it := Item{Type: e.Type, Time: e.Time, Detail: detailOf(e.Data)}
	r.mu.Lock()
	r.items = append(r.items, it)
	if len(r.items) > r.cap {
		r.items = r.items[len(r.items)-r.cap:]
	}
	r.mu.Unlock()
}

// Recent returns the recorded events, oldest first.
func (r *Recorder) Recent() []Item {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Item(nil), r.items...)
}

// Close unsubscribes and waits until buffered events are drained into
// the ring. Recent stays usable after Close.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.unsub()
	<-r.done
}

func detailOf(d any) string {
	switch v := d.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
