package store

import (
	"sync"
	"time"

	"github.com/paperstreet/brokerd/internal/domain"
)

// OrderStore is a thread-safe in-memory store for orders, with a
// primary index by order_id and a secondary index by user_id. It
// stands in for the durable store the deployment injects.
type OrderStore struct {
	mu         sync.RWMutex
	orders     map[string]*domain.Order
	userOrders map[string][]*domain.Order // user_id → orders (append-only)
}

// NewOrderStore creates an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:     make(map[string]*domain.Order),
		userOrders: make(map[string][]*domain.Order),
	}
}

// Create adds an order to the store and appends it to the user's
// secondary index.
func (s *OrderStore) Create(o *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[o.OrderID] = o
	s.userOrders[o.UserID] = append(s.userOrders[o.UserID], o)
}

// Get retrieves an order by ID. It returns
// domain.ErrOrderNotFound if the order does not exist.
func (s *OrderStore) Get(id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

// ListByUser returns orders for a user in reverse chronological order
// (newest first). If status is non-nil, only orders matching that
// status are included. Pagination is 1-based. Returns the page and the
// total count of matching orders before pagination.
func (s *OrderStore) ListByUser(userID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.userOrders[userID]

	filtered := make([]*domain.Order, 0)
	for i := len(all) - 1; i >= 0; i-- {
		if status != nil && all[i].Status != *status {
			continue
		}
		filtered = append(filtered, all[i])
	}

	total := len(filtered)

	start := (page - 1) * limit
	if start >= total {
		return []*domain.Order{}, total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return filtered[start:end], total
}

// CountSince returns how many orders the user created at or after the
// cutoff. Used by the compliance gate's order-rate check. The full
// slice is scanned: concurrent placements can append slightly out of
// CreatedAt order, so the count cannot stop at the first older entry.
func (s *OrderStore) CountSince(userID string, cutoff time.Time) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, o := range s.userOrders[userID] {
		if !o.CreatedAt.Before(cutoff) {
			count++
		}
	}
	return count
}
