package connector

import (
	"fmt"
	"sync"

	"ndax-connector/internal/core"
)

// bookRegistry tracks which pairs have a live order book. Depth maintenance
// belongs to a separate data source; registration is the only write path.
type bookRegistry struct {
	mu    sync.RWMutex
	books map[string]*core.OrderBook
}

func newBookRegistry() *bookRegistry {
	return &bookRegistry{books: make(map[string]*core.OrderBook)}
}

func (r *bookRegistry) Register(pair string, book *core.OrderBook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.books[pair] = book
}

func (r *bookRegistry) Get(pair string) (*core.OrderBook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	book, ok := r.books[pair]
	if !ok {
		return nil, fmt.Errorf("No order book exists for '%s'", pair)
	}
	return book, nil
}
