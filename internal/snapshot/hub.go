package snapshot

import (
	"sync"

	"spate/internal/domain"
)

// Hub fans a published snapshot out to every subscriber. A subscriber that has
// not consumed the previous snapshot gets it replaced by the newer one.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan []domain.TorrentView
	nextID int
	latest []domain.TorrentView
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan []domain.TorrentView)}
}

// Subscribe registers a listener. The returned cancel func closes the channel.
func (h *Hub) Subscribe() (<-chan []domain.TorrentView, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan []domain.TorrentView, 1)
	h.subs[id] = ch
	if h.latest != nil {
		ch <- cloneViews(h.latest)
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish delivers views to every subscriber as one unit. It reports false,
// and delivers nothing, when there are no subscribers.
func (h *Hub) Publish(views []domain.TorrentView) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest = cloneViews(views)
	if len(h.subs) == 0 {
		return false
	}
	for _, ch := range h.subs {
		select {
		case <-ch:
		default:
		}
		ch <- cloneViews(views)
	}
	return true
}

// Latest returns the last published snapshot, or nil before the first publish.
func (h *Hub) Latest() []domain.TorrentView {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return nil
	}
	return cloneViews(h.latest)
}

func cloneViews(in []domain.TorrentView) []domain.TorrentView {
	out := make([]domain.TorrentView, len(in))
	for i, v := range in {
		v.Announce = append([]string(nil), v.Announce...)
		out[i] = v
	}
	return out
}
