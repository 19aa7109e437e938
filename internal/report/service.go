package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/safar/kasir-pos/internal/apperr"
	"github.com/safar/kasir-pos/internal/models"
	"github.com/safar/kasir-pos/internal/store"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	recentLimit       = 10
	lowStockThreshold = 5
)

type Source interface {
	ListTransactionsWithItems(ctx context.Context, ownerID uuid.UUID) ([]models.Transaction, error)
	ListTransactionsSince(ctx context.Context, ownerID uuid.UUID, since time.Time) ([]models.Transaction, error)
	RecentTransactions(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.Transaction, error)
	CountProducts(ctx context.Context, ownerID uuid.UUID) (int64, error)
	LowStockProducts(ctx context.Context, ownerID uuid.UUID, threshold int) ([]models.Product, error)
	AddAdjustment(ctx context.Context, ownerID uuid.UUID, number string, in store.ItemInput) (*models.Transaction, error)
	UpdateReportItem(ctx context.Context, ownerID uuid.UUID, oldName string, in store.ItemInput) error
	DeleteReportItem(ctx context.Context, ownerID uuid.UUID, name string) (int64, error)
}

type Service struct {
	source Source
	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger
}

func NewService(source Source, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		source: source,
		loc:    loc,
		now:    time.Now,
		logger: logger.With().Str("component", "report").Logger(),
	}
}

func (s *Service) Location() *time.Location {
	return s.loc
}

// Sales aggregates every transaction of the owner inside r.
func (s *Service) Sales(ctx context.Context, ownerID uuid.UUID, r DateRange, spec SortSpec) (Summary, error) {
	txns, err := s.source.ListTransactionsWithItems(ctx, ownerID)
	if err != nil {
		return Summary{}, apperr.Remote("load transactions", err)
	}
	return Aggregate(txns, r, spec), nil
}

type TodayStats struct {
	Transactions int             `json:"transactions"`
	Revenue      decimal.Decimal `json:"revenue"`
	ItemsSold    int             `json:"items_sold"`
}

type Dashboard struct {
	Recent       []models.Transaction `json:"recent_transactions"`
	Today        TodayStats           `json:"today"`
	ProductCount int64                `json:"product_count"`
	LowStock     []models.Product     `json:"low_stock"`
}

// Dashboard loads the home screen figures in parallel.
func (s *Service) Dashboard(ctx context.Context, ownerID uuid.UUID) (*Dashboard, error) {
	var d Dashboard
	var today []models.Transaction

	y, m, day := s.now().In(s.loc).Date()
	midnight := time.Date(y, m, day, 0, 0, 0, 0, s.loc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		d.Recent, err = s.source.RecentTransactions(gctx, ownerID, recentLimit)
		return err
	})
	g.Go(func() error {
		var err error
		today, err = s.source.ListTransactionsSince(gctx, ownerID, midnight)
		return err
	})
	g.Go(func() error {
		var err error
		d.ProductCount, err = s.source.CountProducts(gctx, ownerID)
		return err
	})
	g.Go(func() error {
		var err error
		d.LowStock, err = s.source.LowStockProducts(gctx, ownerID, lowStockThreshold)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, apperr.Remote("load dashboard", err)
	}

	sum := Aggregate(today, DateRange{Start: midnight, Location: s.loc}, SortSpec{Field: SortByName})
	d.Today = TodayStats{
		Transactions: sum.Transactions,
		Revenue:      sum.TotalRevenue,
		ItemsSold:    sum.ItemsSold,
	}
	return &d, nil
}

// Adjustment is a manual report line entered by the owner.
type Adjustment struct {
	Name     string          `json:"name"`
	Weight   string          `json:"weight"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

func (a Adjustment) validate() (store.ItemInput, error) {
	name := strings.TrimSpace(a.Name)
	if name == "" {
		return store.ItemInput{}, apperr.Validation("name is required")
	}
	if !a.Price.IsPositive() {
		return store.ItemInput{}, apperr.Validation("price must be positive")
	}
	if a.Quantity <= 0 {
		return store.ItemInput{}, apperr.Validation("quantity must be positive")
	}
	return store.ItemInput{
		Name:     name,
		Weight:   strings.TrimSpace(a.Weight),
		Price:    a.Price,
		Quantity: a.Quantity,
		Subtotal: a.Price.Mul(decimal.NewFromInt(int64(a.Quantity))),
	}, nil
}

func (s *Service) AddAdjustment(ctx context.Context, ownerID uuid.UUID, a Adjustment) (*models.Transaction, error) {
	in, err := a.validate()
	if err != nil {
		return nil, err
	}

	number := fmt.Sprintf("%s-%d", models.AdjustmentPrefix, s.now().UnixNano())
	txn, err := s.source.AddAdjustment(ctx, ownerID, number, in)
	if err != nil {
		return nil, apperr.Remote("add report item", err)
	}

	s.logger.Info().Str("owner_id", ownerID.String()).Str("transaction_number", number).Msg("report adjustment added")
	return txn, nil
}

// UpdateReportItem rewrites the report row named oldName, merging every item
// with that name into one.
func (s *Service) UpdateReportItem(ctx context.Context, ownerID uuid.UUID, oldName string, a Adjustment) error {
	if strings.TrimSpace(oldName) == "" {
		return apperr.Validation("original name is required")
	}
	in, err := a.validate()
	if err != nil {
		return err
	}
	if err := s.source.UpdateReportItem(ctx, ownerID, oldName, in); err != nil {
		return wrapItemErr("update report item", err)
	}
	return nil
}

func (s *Service) DeleteReportItem(ctx context.Context, ownerID uuid.UUID, name string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, apperr.Validation("name is required")
	}
	n, err := s.source.DeleteReportItem(ctx, ownerID, name)
	if err != nil {
		return 0, wrapItemErr("delete report item", err)
	}
	return n, nil
}

func wrapItemErr(msg string, err error) error {
	if errors.Is(err, store.ErrReportItemNotFound) {
		return &apperr.Error{Kind: apperr.KindNotFound, Msg: msg, Err: err}
	}
	return apperr.Remote(msg, err)
}
