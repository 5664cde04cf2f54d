package internal

import (
	"context"
	"fmt"
	"sync"

	"ingenico/entity"
	"ingenico/services"
)

// MemoryDB keeps records in process memory. It is used when Mongo is
// disabled and follows the same compare-and-set contract.
type MemoryDB struct {
	mutex    sync.RWMutex
	payments map[string]*entity.Payment
	orders   map[string]string
	methods  map[string]*entity.PaymentMethod
	logs     []services.Data
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		payments: make(map[string]*entity.Payment),
		orders:   make(map[string]string),
		methods:  make(map[string]*entity.PaymentMethod),
	}
}

func (m *MemoryDB) WriteLogMessage(_ context.Context, data services.Data) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.logs = append(m.logs, data)
	return nil
}

func (m *MemoryDB) GetPayment(_ context.Context, id string) (*entity.Payment, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	payment, ok := m.payments[id]
	if !ok {
		return nil, fmt.Errorf("payment %s: %w", id, entity.ErrNotFound)
	}
	return payment.Clone(), nil
}

func (m *MemoryDB) GetPaymentByOrderId(ctx context.Context, orderId string) (*entity.Payment, error) {
	m.mutex.RLock()
	id, ok := m.orders[orderId]
	m.mutex.RUnlock()
	if !ok {
		return nil, fmt.Errorf("payment for order %s: %w", orderId, entity.ErrNotFound)
	}
	return m.GetPayment(ctx, id)
}

func (m *MemoryDB) CreatePayment(_ context.Context, payment *entity.Payment) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.payments[payment.Id]; ok {
		return fmt.Errorf("payment %s already exists", payment.Id)
	}
	if payment.OrderId != "" {
		if _, ok := m.orders[payment.OrderId]; ok {
			return fmt.Errorf("order id %s already used", payment.OrderId)
		}
		m.orders[payment.OrderId] = payment.Id
	}
	payment.Version = 1
	m.payments[payment.Id] = payment.Clone()
	return nil
}

func (m *MemoryDB) UpdatePayment(_ context.Context, payment *entity.Payment) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	stored, ok := m.payments[payment.Id]
	if !ok {
		return fmt.Errorf("payment %s: %w", payment.Id, entity.ErrNotFound)
	}
	if stored.Version != payment.Version {
		return fmt.Errorf("payment %s version %d: %w", payment.Id, payment.Version, entity.ErrVersionConflict)
	}
	payment.Version++
	m.payments[payment.Id] = payment.Clone()
	return nil
}

func (m *MemoryDB) GetPaymentMethod(_ context.Context, id string) (*entity.PaymentMethod, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	method, ok := m.methods[id]
	if !ok {
		return nil, fmt.Errorf("payment method %s: %w", id, entity.ErrNotFound)
	}
	clone := *method
	return &clone, nil
}

func (m *MemoryDB) SavePaymentMethod(_ context.Context, paymentMethod *entity.PaymentMethod) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	clone := *paymentMethod
	m.methods[paymentMethod.Id] = &clone
	return nil
}

func (m *MemoryDB) DeletePaymentMethod(_ context.Context, id string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.methods[id]; !ok {
		return fmt.Errorf("payment method %s: %w", id, entity.ErrNotFound)
	}
	delete(m.methods, id)
	return nil
}
