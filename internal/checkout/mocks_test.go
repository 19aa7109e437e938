package checkout

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/safar/kasir-pos/internal/catalog"
	"github.com/safar/kasir-pos/internal/database"
	"github.com/safar/kasir-pos/internal/events"
	"github.com/safar/kasir-pos/internal/models"
	"github.com/safar/kasir-pos/internal/store"
)

// MockStore is an in-memory Store. Stock, headers and items live in maps so
// tests can check what a failed checkout left behind.
type MockStore struct {
	mu sync.Mutex

	EnsureErr      error
	CreateErr      error
	InsertErr      error
	DeleteItemsErr error
	DeleteTxnErr   error
	StockErr       map[uuid.UUID]error

	Stock        map[uuid.UUID]int
	Transactions map[uuid.UUID]*models.Transaction
	Items        map[uuid.UUID][]store.ItemInput
	Profiles     map[uuid.UUID]string
	Calls        []string
}

func NewMockStore() *MockStore {
	return &MockStore{
		StockErr:     map[uuid.UUID]error{},
		Stock:        map[uuid.UUID]int{},
		Transactions: map[uuid.UUID]*models.Transaction{},
		Items:        map[uuid.UUID][]store.ItemInput{},
		Profiles:     map[uuid.UUID]string{},
	}
}

func (m *MockStore) record(call string) {
	m.Calls = append(m.Calls, call)
}

func (m *MockStore) EnsureUser(_ context.Context, id uuid.UUID, email string, _ *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("EnsureUser")
	if m.EnsureErr != nil {
		return m.EnsureErr
	}
	m.Profiles[id] = email
	return nil
}

func (m *MockStore) CreateTransaction(_ context.Context, in store.TransactionInput) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateTransaction")
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	txn := &models.Transaction{
		ID:                uuid.New(),
		UserID:            in.OwnerID,
		TransactionNumber: in.Number,
		TotalAmount:       in.Total,
		CustomerMoney:     in.Tendered,
		ChangeAmount:      in.Change,
	}
	m.Transactions[txn.ID] = txn
	return txn, nil
}

func (m *MockStore) InsertItems(_ context.Context, transactionID uuid.UUID, items []store.ItemInput) ([]models.TransactionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("InsertItems")
	if m.InsertErr != nil {
		return nil, m.InsertErr
	}
	m.Items[transactionID] = append([]store.ItemInput(nil), items...)
	out := make([]models.TransactionItem, len(items))
	for i, in := range items {
		out[i] = models.TransactionItem{ID: uuid.New(), TransactionID: transactionID, ProductID: in.ProductID, ProductName: in.Name, Quantity: in.Quantity}
	}
	return out, nil
}

func (m *MockStore) DeleteItems(_ context.Context, transactionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DeleteItems")
	if m.DeleteItemsErr != nil {
		return m.DeleteItemsErr
	}
	delete(m.Items, transactionID)
	return nil
}

func (m *MockStore) DeleteTransaction(_ context.Context, _ uuid.UUID, transactionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DeleteTransaction")
	if m.DeleteTxnErr != nil {
		return m.DeleteTxnErr
	}
	if len(m.Items[transactionID]) > 0 {
		return errors.New("violates foreign key constraint on transaction_items")
	}
	delete(m.Transactions, transactionID)
	return nil
}

func (m *MockStore) SetStock(_ context.Context, _ uuid.UUID, id uuid.UUID, stock int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SetStock")
	if err := m.StockErr[id]; err != nil {
		return err
	}
	if _, ok := m.Stock[id]; !ok {
		return database.ErrProductNotFound
	}
	if stock < 0 {
		return database.ErrInsufficientStock
	}
	m.Stock[id] = stock
	return nil
}

func (m *MockStore) DecrementStock(_ context.Context, _ uuid.UUID, id uuid.UUID, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DecrementStock")
	if err := m.StockErr[id]; err != nil {
		return err
	}
	current, ok := m.Stock[id]
	if !ok || current < quantity {
		return database.ErrInsufficientStock
	}
	m.Stock[id] = current - quantity
	return nil
}

type MockCatalog struct {
	Applied []catalog.SaleLine
}

func (m *MockCatalog) ApplySale(_ uuid.UUID, lines []catalog.SaleLine) {
	m.Applied = append(m.Applied, lines...)
}

type MockInvalidator struct {
	Invalidated []uuid.UUID
}

func (m *MockInvalidator) Invalidate(_ context.Context, ownerID uuid.UUID) {
	m.Invalidated = append(m.Invalidated, ownerID)
}

type MockPublisher struct {
	Events []events.SaleCompleted
	Err    error
}

func (m *MockPublisher) PublishSale(_ context.Context, event events.SaleCompleted) error {
	if m.Err != nil {
		return m.Err
	}
	m.Events = append(m.Events, event)
	return nil
}

func (m *MockPublisher) Close() error {
	return nil
}
