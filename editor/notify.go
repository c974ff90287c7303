package editor

import "sync"

// ContentChanged is emitted after a content value is staged, so live views
// can patch the displayed text without reloading.
type ContentChanged struct {
	Section string `json:"section"`
	Key     string `json:"content_key"`
	Value   string `json:"value"`
}

// subscriberBuffer is how many events a slow subscriber may fall behind
// before new events are dropped for it.
const subscriberBuffer = 16

type subscriber struct {
	section string
	ch      chan ContentChanged
}

// Notifier fans ContentChanged events out to subscribers. Notify never
// blocks: a subscriber whose buffer is full misses the event.
type Notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]subscriber
}

// NewNotifier creates an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]subscriber)}
}

// Subscribe registers interest in section ("" for every section). The
// returned cancel func unregisters and closes the channel; it is safe to
// call more than once.
func (n *Notifier) Subscribe(section string) (<-chan ContentChanged, func()) {
	ch := make(chan ContentChanged, subscriberBuffer)

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = subscriber{section: section, ch: ch}
	n.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Notify delivers ev to every matching subscriber.
func (n *Notifier) Notify(ev ContentChanged) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.subs {
		if s.section != "" && s.section != ev.Section {
			continue
		}
		select {
		case s.ch <- ev:
		default:
		}
	}
}

// Len reports the number of live subscriptions.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
