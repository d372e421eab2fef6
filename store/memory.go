package store

import (
	"errors"
	"sync"

	"checkout-svc/models"
)

var ErrOrderNotFound = errors.New("order not found")

// OrderStore is the order-of-record. Implementations hand out copies; the only
// way to change a stored order is through Mutate.
type OrderStore interface {
	Put(order *models.Order)
	GetByGatewayID(id string) (*models.Order, error)
	GetByInternalID(id string) (*models.Order, error)
	Mutate(gatewayID string, fn func(*models.Order) error) (*models.Order, error)
	MutateByInternalID(internalID string, fn func(*models.Order) error) (*models.Order, error)
	Len() int
}

// MemoryStore keeps orders for the lifetime of the process, keyed by gateway
// order id with a secondary index on the internal id.
type MemoryStore struct {
	mu         sync.RWMutex
	orders     map[string]*models.Order
	byInternal map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:     make(map[string]*models.Order),
		byInternal: make(map[string]string),
	}
}

// Put inserts order, silently replacing any order with the same gateway id.
func (s *MemoryStore) Put(order *models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.orders[order.RazorpayOrderID]; ok && prev.OrderID != order.OrderID {
		delete(s.byInternal, prev.OrderID)
	}
	s.orders[order.RazorpayOrderID] = order.Clone()
	s.byInternal[order.OrderID] = order.RazorpayOrderID
}

func (s *MemoryStore) GetByGatewayID(id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (s *MemoryStore) GetByInternalID(id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	gatewayID, ok := s.byInternal[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return s.orders[gatewayID].Clone(), nil
}

// Mutate applies fn to the order under the write lock, so the read and the
// write form one critical section. fn works on a copy: if it returns an error
// the stored order is left untouched.
func (s *MemoryStore) Mutate(gatewayID string, fn func(*models.Order) error) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutateLocked(gatewayID, fn)
}

func (s *MemoryStore) MutateByInternalID(internalID string, fn func(*models.Order) error) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gatewayID, ok := s.byInternal[internalID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return s.mutateLocked(gatewayID, fn)
}

func (s *MemoryStore) mutateLocked(gatewayID string, fn func(*models.Order) error) (*models.Order, error) {
	current, ok := s.orders[gatewayID]
	if !ok {
		return nil, ErrOrderNotFound
	}

	updated := current.Clone()
	if err := fn(updated); err != nil {
		return nil, err
	}
	// keys are immutable
	updated.RazorpayOrderID = current.RazorpayOrderID
	updated.OrderID = current.OrderID

	s.orders[gatewayID] = updated
	return updated.Clone(), nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}
