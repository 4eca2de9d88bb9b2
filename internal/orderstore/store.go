package orderstore

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidOrderState is returned when an operation is not valid for the
	// order's current status, including any transition out of a terminal one.
	ErrInvalidOrderState = errors.New("invalid order state")
)

type Status string

const (
	StatusOpen      Status = "open"
	StatusFilled    Status = "filled"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further status transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled
}

// Order is a standing offer by Owner to exchange SellAmount of SellAsset for
// BuyAmount of BuyAsset. Only the engine mutates orders.
type Order struct {
	ID         uint64
	Owner      uuid.UUID
	SellAsset  string
	SellAmount uint64
	BuyAsset   string
	BuyAmount  uint64
	Status     Status
	CreatedAt  time.Time
}

// Store holds every order ever created, keyed by id, together with the
// monotonic id allocator. Terminal orders are kept for reads.
type Store struct {
	mu     sync.RWMutex
	orders map[uint64]*Order
	lastID uint64
}

func New() *Store {
	return &Store{orders: make(map[uint64]*Order)}
}

// NextID allocates the next order id. Ids start at 1, strictly increase and
// are never reused, not even after cancellation. Wrapping the 64-bit counter
// is unreachable in practice and treated as corruption.
func (s *Store) NextID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++
	if s.lastID == 0 {
		panic("orderstore: id counter wrapped")
	}
	return s.lastID
}

func (s *Store) Insert(order Order) error {
	if order.ID == 0 {
		return fmt.Errorf("order id is required")
	}
	if order.Status != StatusOpen {
		return fmt.Errorf("new order must be open, got %q", order.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return fmt.Errorf("duplicate order id %d", order.ID)
	}
	s.orders[order.ID] = &order
	return nil
}

// Get returns a copy of the stored order so callers cannot mutate it.
func (s *Store) Get(id uint64) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return *order, nil
}

// SetStatus applies an Open -> {Filled, Cancelled} transition. Any other
// transition fails with ErrInvalidOrderState.
func (s *Store) SetStatus(id uint64, status Status) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: cannot transition to %q", ErrInvalidOrderState, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	if order.Status != StatusOpen {
		return fmt.Errorf("%w: order %d is %s", ErrInvalidOrderState, id, order.Status)
	}
	order.Status = status
	return nil
}

// Count returns the number of orders ever created.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.orders)
}

// Open returns copies of all orders still open, in no particular order.
func (s *Store) Open() []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var open []Order
	for _, order := range s.orders {
		if order.Status == StatusOpen {
			open = append(open, *order)
		}
	}
	return open
}
