// Package realtime streams per-company changes to dashboards.
package realtime

import (
	"context"
	"sync"

	"halonet-payments/internal/domain/events"
)

const bufferSize = 64

// Hub fans changes out to subscribers in this process. Slow subscribers drop
// changes rather than block the writer.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan events.Change]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[chan events.Change]struct{}{}}
}

func (h *Hub) Publish(_ context.Context, c events.Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[c.CompanyID] {
		select {
		case ch <- c:
		default:
		}
	}
}

func (h *Hub) Subscribe(ctx context.Context, companyID string) (<-chan events.Change, func()) {
	ch := make(chan events.Change, bufferSize)
	h.mu.Lock()
	if h.subs[companyID] == nil {
		h.subs[companyID] = map[chan events.Change]struct{}{}
	}
	h.subs[companyID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[companyID], ch)
			if len(h.subs[companyID]) == 0 {
				delete(h.subs, companyID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel
}
