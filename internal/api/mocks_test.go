package api

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/safar/kasir-pos/internal/checkout"
	"github.com/safar/kasir-pos/internal/database"
	"github.com/safar/kasir-pos/internal/models"
	"github.com/safar/kasir-pos/internal/store"
	"github.com/shopspring/decimal"
)

// MockStore keeps users, products and transactions in memory. It serves the
// api, the catalog, the report service and the importer.
type MockStore struct {
	mu           sync.Mutex
	users        map[uuid.UUID]*models.User
	products     map[uuid.UUID]*models.Product
	transactions []models.Transaction
	listCalls    int
}

func NewMockStore() *MockStore {
	return &MockStore{
		users:    make(map[uuid.UUID]*models.User),
		products: make(map[uuid.UUID]*models.Product),
	}
}

func (m *MockStore) EnsureUser(ctx context.Context, id uuid.UUID, email string, fullName *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		m.users[id] = &models.User{ID: id, Email: email, FullName: fullName, Username: "user0001", Role: models.RoleUser}
	}
	return nil
}

func (m *MockStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MockStore) AddProduct(owner uuid.UUID, name, weight string, price int64, stock int) models.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &models.Product{
		ID:        uuid.New(),
		UserID:    owner,
		Name:      name,
		Weight:    weight,
		Price:     decimal.NewFromInt(price),
		Stock:     stock,
		CreatedAt: time.Now(),
		Version:   1,
	}
	m.products[p.ID] = p
	return *p
}

func (m *MockStore) duplicate(owner, skip uuid.UUID, in store.ProductInput) bool {
	for _, p := range m.products {
		if p.UserID == owner && p.ID != skip && p.Name == in.Name && p.Weight == in.Weight {
			return true
		}
	}
	return false
}

func (m *MockStore) CreateProduct(ctx context.Context, ownerID uuid.UUID, in store.ProductInput) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.duplicate(ownerID, uuid.Nil, in) {
		return nil, database.ErrDuplicateProduct
	}
	p := &models.Product{ID: uuid.New(), UserID: ownerID, Name: in.Name, Weight: in.Weight, Price: in.Price, Stock: in.Stock, Version: 1}
	m.products[p.ID] = p
	cp := *p
	return &cp, nil
}

func (m *MockStore) GetProduct(ctx context.Context, ownerID, id uuid.UUID) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok || p.UserID != ownerID {
		return nil, database.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockStore) ListProductsByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	var out []models.Product
	for _, p := range m.products {
		if p.UserID == ownerID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MockStore) ListProducts(ctx context.Context, ownerID uuid.UUID, page, pageSize int) (*store.OffsetPage[models.Product], error) {
	products, _ := m.ListProductsByOwner(ctx, ownerID)
	return &store.OffsetPage[models.Product]{Items: products, Total: int64(len(products)), Page: 1, PageSize: 20, TotalPages: 1}, nil
}

func (m *MockStore) UpdateProduct(ctx context.Context, ownerID, id uuid.UUID, in store.ProductInput, version int) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok || p.UserID != ownerID {
		return nil, database.ErrProductNotFound
	}
	if p.Version != version {
		return nil, database.ErrOptimisticLockFailed
	}
	if m.duplicate(ownerID, id, in) {
		return nil, database.ErrDuplicateProduct
	}
	p.Name, p.Weight, p.Price, p.Stock = in.Name, in.Weight, in.Price, in.Stock
	p.Version++
	cp := *p
	return &cp, nil
}

func (m *MockStore) DeleteProduct(ctx context.Context, ownerID, id uuid.UUID) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok || p.UserID != ownerID {
		return nil, database.ErrProductNotFound
	}
	delete(m.products, id)
	return p, nil
}

func (m *MockStore) InsertProducts(ctx context.Context, ownerID uuid.UUID, batch []store.ProductInput, retries int) error {
	for _, in := range batch {
		if _, err := m.CreateProduct(ctx, ownerID, in); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockStore) AddTransaction(txn models.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions = append(m.transactions, txn)
}

func (m *MockStore) owned(ownerID uuid.UUID) []models.Transaction {
	var out []models.Transaction
	for _, txn := range m.transactions {
		if txn.UserID == ownerID {
			out = append(out, txn)
		}
	}
	return out
}

func (m *MockStore) GetTransaction(ctx context.Context, ownerID, id uuid.UUID) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, txn := range m.owned(ownerID) {
		if txn.ID == id {
			return &txn, nil
		}
	}
	return nil, database.ErrTransactionNotFound
}

func (m *MockStore) ListTransactions(ctx context.Context, ownerID uuid.UUID, cursor string, limit int) (*store.CursorPage[models.Transaction], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &store.CursorPage[models.Transaction]{Items: m.owned(ownerID)}, nil
}

func (m *MockStore) ListTransactionsWithItems(ctx context.Context, ownerID uuid.UUID) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owned(ownerID), nil
}

func (m *MockStore) ListTransactionsSince(ctx context.Context, ownerID uuid.UUID, since time.Time) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transaction
	for _, txn := range m.owned(ownerID) {
		if !txn.CreatedAt.Before(since) {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (m *MockStore) RecentTransactions(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.owned(ownerID)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockStore) CountProducts(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	products, _ := m.ListProductsByOwner(ctx, ownerID)
	return int64(len(products)), nil
}

func (m *MockStore) LowStockProducts(ctx context.Context, ownerID uuid.UUID, threshold int) ([]models.Product, error) {
	products, _ := m.ListProductsByOwner(ctx, ownerID)
	var out []models.Product
	for _, p := range products {
		if p.Stock <= threshold {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MockStore) AddAdjustment(ctx context.Context, ownerID uuid.UUID, number string, in store.ItemInput) (*models.Transaction, error) {
	txn := models.Transaction{
		ID:                uuid.New(),
		UserID:            ownerID,
		TransactionNumber: number,
		TotalAmount:       in.Subtotal,
		CustomerMoney:     in.Subtotal,
		ChangeAmount:      decimal.Zero,
		CreatedAt:         time.Now(),
		Items: []models.TransactionItem{{
			ID:            uuid.New(),
			ProductName:   in.Name,
			ProductWeight: in.Weight,
			Price:         in.Price,
			Quantity:      in.Quantity,
			Subtotal:      in.Subtotal,
		}},
	}
	m.AddTransaction(txn)
	return &txn, nil
}

func (m *MockStore) UpdateReportItem(ctx context.Context, ownerID uuid.UUID, oldName string, in store.ItemInput) error {
	return store.ErrReportItemNotFound
}

func (m *MockStore) DeleteReportItem(ctx context.Context, ownerID uuid.UUID, name string) (int64, error) {
	return 0, store.ErrReportItemNotFound
}

// MockCheckout records the last request and answers with err or a receipt.
type MockCheckout struct {
	mu   sync.Mutex
	last *checkout.Request
	err  error
}

func (m *MockCheckout) Checkout(ctx context.Context, req checkout.Request) (*checkout.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = &req
	if m.err != nil {
		return nil, m.err
	}
	return &checkout.Receipt{
		TransactionID:     uuid.New(),
		TransactionNumber: "TRX-1",
		Cashier:           req.Identity.DisplayName(),
		Tendered:          req.Tendered,
	}, nil
}

type MockInvalidator struct {
	mu    sync.Mutex
	calls []uuid.UUID
}

func (m *MockInvalidator) Invalidate(ctx context.Context, ownerID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, ownerID)
}

func (m *MockInvalidator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
