package executor

import (
	"sync"

	"github.com/google/uuid"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
)

// OrderStore is the engine's in-memory registry of live orders, used to
// resolve cancellation targets and apply asynchronous fill reports. Orders
// are evicted once terminal and audited.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*model.Order
}

// NewOrderStore creates an empty store.
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[uuid.UUID]*model.Order)}
}

// Put registers an order.
func (s *OrderStore) Put(order *model.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = order
}

// Get returns the order or nil.
func (s *OrderStore) Get(id uuid.UUID) *model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orders[id]
}

// Remove evicts an order.
func (s *OrderStore) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, id)
}

// Len returns the number of tracked orders.
func (s *OrderStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

// symbolLocks serializes order mutation per symbol so concurrent orders on
// the same symbol never race on exposure state.
type symbolLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSymbolLocks() *symbolLocks {
	return &symbolLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the symbol and returns the unlock func.
func (l *symbolLocks) acquire(symbol string) func() {
	l.mu.Lock()
	lock, ok := l.locks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[symbol] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
