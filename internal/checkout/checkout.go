// Package checkout records one sale: transaction header, line items and
// stock, with compensating deletes when a later step fails. Each step is its
// own statement; nothing spans them.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/safar/kasir-pos/internal/auth"
	"github.com/safar/kasir-pos/internal/cart"
	"github.com/safar/kasir-pos/internal/catalog"
	"github.com/safar/kasir-pos/internal/events"
	"github.com/safar/kasir-pos/internal/models"
	"github.com/safar/kasir-pos/internal/store"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type StockMode string

const (
	// StockModeSnapshot writes cachedStock - qty. Two sessions selling the
	// same product can oversell.
	StockModeSnapshot StockMode = "snapshot"
	// StockModeConditional writes stock - qty only while stock >= qty.
	StockModeConditional StockMode = "conditional"
)

type Store interface {
	EnsureUser(ctx context.Context, id uuid.UUID, email string, fullName *string) error
	CreateTransaction(ctx context.Context, in store.TransactionInput) (*models.Transaction, error)
	InsertItems(ctx context.Context, transactionID uuid.UUID, items []store.ItemInput) ([]models.TransactionItem, error)
	DeleteItems(ctx context.Context, transactionID uuid.UUID) error
	DeleteTransaction(ctx context.Context, ownerID, transactionID uuid.UUID) error
	SetStock(ctx context.Context, ownerID, id uuid.UUID, stock int) error
	DecrementStock(ctx context.Context, ownerID, id uuid.UUID, quantity int) error
}

type CatalogUpdater interface {
	ApplySale(ownerID uuid.UUID, lines []catalog.SaleLine)
}

type CacheInvalidator interface {
	Invalidate(ctx context.Context, ownerID uuid.UUID)
}

type Request struct {
	Identity *auth.Identity
	Lines    []cart.Line
	Tendered decimal.Decimal
}

type ReceiptLine struct {
	Name     string          `json:"name"`
	Weight   string          `json:"weight"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type Receipt struct {
	TransactionID     uuid.UUID       `json:"transaction_id"`
	TransactionNumber string          `json:"transaction_number"`
	CreatedAt         time.Time       `json:"created_at"`
	Cashier           string          `json:"cashier"`
	Lines             []ReceiptLine   `json:"lines"`
	Total             decimal.Decimal `json:"total"`
	Tendered          decimal.Decimal `json:"tendered"`
	Change            decimal.Decimal `json:"change"`
}

type Service struct {
	store     Store
	catalog   CatalogUpdater
	cache     CacheInvalidator
	publisher events.Publisher
	mode      StockMode
	logger    zerolog.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithStockMode(mode StockMode) Option {
	return func(s *Service) { s.mode = mode }
}

// WithCacheInvalidator drops the shared product list after every sale.
func WithCacheInvalidator(c CacheInvalidator) Option {
	return func(s *Service) { s.cache = c }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st Store, cat CatalogUpdater, pub events.Publisher, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:     st,
		catalog:   cat,
		publisher: pub,
		mode:      StockModeSnapshot,
		logger:    logger.With().Str("component", "checkout").Logger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// attempt tracks one checkout run for logging.
type attempt struct {
	state  State
	logger zerolog.Logger
}

func (a *attempt) to(next State) {
	if !a.state.CanTransitionTo(next) {
		a.logger.Error().Str("from", a.state.String()).Str("to", next.String()).Msg("illegal checkout transition")
	}
	a.logger.Debug().Str("from", a.state.String()).Str("to", next.String()).Msg("checkout transition")
	a.state = next
}

func (a *attempt) fail(err error) error {
	a.logger.Warn().Err(err).Str("state", a.state.String()).Msg("checkout failed")
	a.to(StateIdle)
	return err
}

// Checkout validates req against the cart's cached stock and then writes the
// sale step by step. It holds no lock and never retries.
func (s *Service) Checkout(ctx context.Context, req Request) (*Receipt, error) {
	a := &attempt{state: StateIdle, logger: s.logger}
	a.to(StateValidating)

	total, err := validate(req)
	if err != nil {
		return nil, a.fail(err)
	}

	owner := req.Identity.ID
	a.logger = a.logger.With().Str("owner_id", owner.String()).Logger()
	change := req.Tendered.Sub(total)

	a.to(StateCreatingTransaction)
	if err := s.store.EnsureUser(ctx, owner, req.Identity.Email, req.Identity.FullNamePtr()); err != nil {
		return nil, a.fail(&Error{Code: CodeTransactionCreateFailed, Err: fmt.Errorf("ensure profile: %w", err)})
	}

	txn, err := s.store.CreateTransaction(ctx, store.TransactionInput{
		OwnerID:  owner,
		Number:   fmt.Sprintf("%s-%d", models.SalePrefix, s.now().UnixNano()),
		Total:    total,
		Tendered: req.Tendered,
		Change:   change,
	})
	if err != nil {
		return nil, a.fail(&Error{Code: CodeTransactionCreateFailed, Err: err})
	}
	a.logger = a.logger.With().Str("transaction_number", txn.TransactionNumber).Logger()

	a.to(StateInsertingLineItems)
	items := make([]store.ItemInput, len(req.Lines))
	for i, line := range req.Lines {
		items[i] = store.ItemInput{
			ProductID: productID(line.ProductID),
			Name:      line.Name,
			Weight:    line.Weight,
			Price:     line.Price,
			Quantity:  line.Quantity,
			Subtotal:  line.Subtotal(),
		}
	}
	if _, err := s.store.InsertItems(ctx, txn.ID, items); err != nil {
		cerr := s.rollbackHeader(ctx, owner, txn.ID)
		return nil, a.fail(&Error{Code: CodeLineItemInsertFailed, Err: err, CompensationErr: cerr})
	}

	a.to(StateUpdatingStock)
	sold, applied, err := s.updateStock(ctx, owner, req.Lines)
	if err != nil {
		if applied > 0 {
			a.logger.Warn().Int("applied", applied).Msg("stock updates already applied are not reversed")
		}
		cerr := s.rollbackItems(ctx, owner, txn.ID)
		return nil, a.fail(&Error{Code: CodeStockUpdateFailed, Err: err, CompensationErr: cerr, StockApplied: applied})
	}

	a.to(StateCompleted)
	s.afterSale(ctx, owner, txn, req, sold)

	a.logger.Info().Str("total", total.String()).Int("lines", len(req.Lines)).Msg("checkout completed")
	return buildReceipt(txn, req), nil
}

func validate(req Request) (decimal.Decimal, error) {
	if len(req.Lines) == 0 {
		return decimal.Zero, &Error{Code: CodeEmptyCart}
	}
	if !req.Identity.Valid() {
		return decimal.Zero, &Error{Code: CodeInvalidIdentity}
	}
	for _, line := range req.Lines {
		if line.Quantity <= 0 || line.Name == "" || !line.Price.IsPositive() {
			return decimal.Zero, &Error{Code: CodeInvalidLine, Product: line.Name}
		}
	}

	total := cart.Total(req.Lines)
	if req.Tendered.LessThan(total) {
		return decimal.Zero, &Error{Code: CodeInsufficientPayment}
	}

	for _, line := range req.Lines {
		if !productID(line.ProductID).Valid && line.Quantity > line.Stock {
			return decimal.Zero, &Error{Code: CodeInsufficientStock, Product: line.Name, Available: line.Stock}
		}
	}
	for _, p := range soldProducts(req.Lines) {
		if p.quantity > p.stock {
			return decimal.Zero, &Error{Code: CodeInsufficientStock, Product: p.name, Available: p.stock}
		}
	}

	return total, nil
}

type productSale struct {
	id       uuid.UUID
	name     string
	stock    int
	quantity int
}

// soldProducts merges lines that reference the same stored product. The
// lowest stock figure among the merged lines is kept.
func soldProducts(lines []cart.Line) []productSale {
	index := make(map[uuid.UUID]int)
	var out []productSale
	for _, line := range lines {
		id := productID(line.ProductID)
		if !id.Valid {
			continue
		}
		if i, ok := index[id.UUID]; ok {
			out[i].quantity += line.Quantity
			out[i].stock = min(out[i].stock, line.Stock)
			continue
		}
		index[id.UUID] = len(out)
		out = append(out, productSale{id: id.UUID, name: line.Name, stock: line.Stock, quantity: line.Quantity})
	}
	return out
}

// updateStock issues one update per stored product, all at once. It returns
// the sold quantities and how many updates landed.
func (s *Service) updateStock(ctx context.Context, owner uuid.UUID, lines []cart.Line) ([]catalog.SaleLine, int, error) {
	targets := soldProducts(lines)

	results := make([]error, len(targets))
	var g errgroup.Group
	for i, t := range targets {
		g.Go(func() error {
			var err error
			switch s.mode {
			case StockModeConditional:
				err = s.store.DecrementStock(ctx, owner, t.id, t.quantity)
			default:
				err = s.store.SetStock(ctx, owner, t.id, t.stock-t.quantity)
			}
			if err != nil {
				results[i] = fmt.Errorf("%s: %w", t.name, err)
			}
			return results[i]
		})
	}
	waitErr := g.Wait()

	applied := 0
	var failures []error
	for _, err := range results {
		if err == nil {
			applied++
			continue
		}
		failures = append(failures, err)
	}
	if waitErr != nil {
		return nil, applied, errors.Join(failures...)
	}

	sold := make([]catalog.SaleLine, len(targets))
	for i, t := range targets {
		sold[i] = catalog.SaleLine{ProductID: t.id, Quantity: t.quantity}
	}
	return sold, applied, nil
}

func (s *Service) rollbackHeader(ctx context.Context, owner, transactionID uuid.UUID) error {
	if err := s.store.DeleteTransaction(ctx, owner, transactionID); err != nil {
		s.logger.Error().Err(err).Str("transaction_id", transactionID.String()).Msg("compensation failed: transaction header left behind")
		return err
	}
	return nil
}

func (s *Service) rollbackItems(ctx context.Context, owner, transactionID uuid.UUID) error {
	if err := s.store.DeleteItems(ctx, transactionID); err != nil {
		s.logger.Error().Err(err).Str("transaction_id", transactionID.String()).Msg("compensation failed: line items left behind")
		return errors.Join(err, s.rollbackHeader(ctx, owner, transactionID))
	}
	return s.rollbackHeader(ctx, owner, transactionID)
}

// afterSale runs the success side effects. None of them can fail the sale.
func (s *Service) afterSale(ctx context.Context, owner uuid.UUID, txn *models.Transaction, req Request, sold []catalog.SaleLine) {
	if s.catalog != nil {
		s.catalog.ApplySale(owner, sold)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, owner)
	}
	if s.publisher == nil {
		return
	}

	event := events.SaleCompleted{
		EventID:           uuid.New(),
		OwnerID:           owner,
		TransactionID:     txn.ID,
		TransactionNumber: txn.TransactionNumber,
		Total:             txn.TotalAmount,
		Tendered:          txn.CustomerMoney,
		Change:            txn.ChangeAmount,
		CompletedAt:       s.now().UTC(),
	}
	for _, line := range req.Lines {
		item := events.SaleItem{
			Name:     line.Name,
			Weight:   line.Weight,
			Price:    line.Price,
			Quantity: line.Quantity,
			Subtotal: line.Subtotal(),
		}
		if id := productID(line.ProductID); id.Valid {
			item.ProductID = &id.UUID
		}
		event.Items = append(event.Items, item)
	}

	if err := s.publisher.PublishSale(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("transaction_number", txn.TransactionNumber).Msg("sale event not published")
	}
}

func buildReceipt(txn *models.Transaction, req Request) *Receipt {
	lines := make([]ReceiptLine, len(req.Lines))
	for i, line := range req.Lines {
		lines[i] = ReceiptLine{
			Name:     line.Name,
			Weight:   line.Weight,
			Price:    line.Price,
			Quantity: line.Quantity,
			Subtotal: line.Subtotal(),
		}
	}
	return &Receipt{
		TransactionID:     txn.ID,
		TransactionNumber: txn.TransactionNumber,
		CreatedAt:         txn.CreatedAt,
		Cashier:           req.Identity.DisplayName(),
		Lines:             lines,
		Total:             txn.TotalAmount,
		Tendered:          txn.CustomerMoney,
		Change:            txn.ChangeAmount,
	}
}

// productID returns a valid id only for text that parses as a UUID.
func productID(raw string) uuid.NullUUID {
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: id, Valid: true}
}
