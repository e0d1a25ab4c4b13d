package ingest

import (
	"sync"
	"time"
)

// Guard is the short-lived per-product re-entrancy latch. The gate writes the
// aggregated total back into the product's stock field for display; without
// the latch that write-back would be re-intercepted as a fresh external
// update. Entries expire on a TTL and a janitor sweeps leftovers.
type Guard struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[int64]time.Time
	stop    chan struct{}
	once    sync.Once
}

func NewGuard(ttl time.Duration) *Guard {
	g := &Guard{
		ttl:     ttl,
		entries: make(map[int64]time.Time),
		stop:    make(chan struct{}),
	}
	go g.janitor()
	return g
}

// Enter latches the product. Returns false when the product is already
// latched, i.e. the caller is a re-entrant write and must skip the gate.
func (g *Guard) Enter(productID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if exp, ok := g.entries[productID]; ok && time.Now().Before(exp) {
		return false
	}
	g.entries[productID] = time.Now().Add(g.ttl)
	return true
}

// Leave releases the latch once the gate has finished its write-back.
func (g *Guard) Leave(productID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, productID)
}

func (g *Guard) janitor() {
	interval := g.ttl
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stop:
			return
		case now := <-ticker.C:
			g.mu.Lock()
			for id, exp := range g.entries {
				if now.After(exp) {
					delete(g.entries, id)
				}
			}
			g.mu.Unlock()
		}
	}
}

func (g *Guard) Close() {
	g.once.Do(func() { close(g.stop) })
}
