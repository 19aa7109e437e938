// Package api exposes the register over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/safar/kasir-pos/internal/auth"
	"github.com/safar/kasir-pos/internal/catalog"
	"github.com/safar/kasir-pos/internal/checkout"
	"github.com/safar/kasir-pos/internal/importer"
	"github.com/safar/kasir-pos/internal/models"
	"github.com/safar/kasir-pos/internal/report"
	"github.com/safar/kasir-pos/internal/store"
)

type Store interface {
	EnsureUser(ctx context.Context, id uuid.UUID, email string, fullName *string) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	CreateProduct(ctx context.Context, ownerID uuid.UUID, in store.ProductInput) (*models.Product, error)
	GetProduct(ctx context.Context, ownerID, id uuid.UUID) (*models.Product, error)
	ListProducts(ctx context.Context, ownerID uuid.UUID, page, pageSize int) (*store.OffsetPage[models.Product], error)
	UpdateProduct(ctx context.Context, ownerID, id uuid.UUID, in store.ProductInput, version int) (*models.Product, error)
	DeleteProduct(ctx context.Context, ownerID, id uuid.UUID) (*models.Product, error)
	GetTransaction(ctx context.Context, ownerID, id uuid.UUID) (*models.Transaction, error)
	ListTransactions(ctx context.Context, ownerID uuid.UUID, cursor string, limit int) (*store.CursorPage[models.Transaction], error)
}

type TokenVerifier interface {
	Verify(token string) (*auth.Identity, error)
}

type Checkouter interface {
	Checkout(ctx context.Context, req checkout.Request) (*checkout.Receipt, error)
}

type ImageService interface {
	Replace(ctx context.Context, product *models.Product, filename string, data []byte) (*models.Product, error)
	Remove(ctx context.Context, product *models.Product) (*models.Product, error)
	Discard(ctx context.Context, url *string)
}

type CacheInvalidator interface {
	Invalidate(ctx context.Context, ownerID uuid.UUID)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Deps struct {
	DB       Pinger
	Store    Store
	Verifier TokenVerifier
	Catalog  *catalog.Catalog
	Checkout Checkouter
	Reports  *report.Service
	Importer *importer.Importer
	Images   ImageService
	// Cache is the shared product-list cache; nil when Redis is disabled.
	Cache CacheInvalidator
}

type Options struct {
	RequestTimeout time.Duration
	ImportTimeout  time.Duration
	MaxImportBytes int64
	MaxImageBytes  int64
}

type Server struct {
	Deps
	opts   Options
	jobs   *importJobs
	now    func() time.Time
	logger zerolog.Logger
}

func NewServer(deps Deps, opts Options, logger zerolog.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.ImportTimeout <= 0 {
		opts.ImportTimeout = 10 * time.Minute
	}
	return &Server{
		Deps:   deps,
		opts:   opts,
		jobs:   newImportJobs(),
		now:    time.Now,
		logger: logger.With().Str("component", "api").Logger(),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authenticate)

		// Imports run batch after batch and may outlive both the request
		// timeout and the server write timeout.
		r.With(s.extendWriteDeadline(s.opts.ImportTimeout)).Post("/imports", s.handleImportCommit)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.opts.RequestTimeout))

			r.Get("/me", s.handleMe)

			r.Route("/products", func(r chi.Router) {
				r.Get("/", s.handleListProducts)
				r.Post("/", s.handleCreateProduct)
				r.Get("/{id}", s.handleGetProduct)
				r.Put("/{id}", s.handleUpdateProduct)
				r.Delete("/{id}", s.handleDeleteProduct)
				r.Post("/{id}/image", s.handleUploadImage)
				r.Delete("/{id}/image", s.handleRemoveImage)
			})

			r.Get("/catalog", s.handleCatalog)
			r.Post("/checkout", s.handleCheckout)

			r.Get("/transactions", s.handleListTransactions)
			r.Get("/transactions/{id}", s.handleGetTransaction)

			r.Route("/reports", func(r chi.Router) {
				r.Get("/sales", s.handleSales)
				r.Get("/sales.csv", s.handleSalesCSV)
				r.Get("/sales.html", s.handleSalesHTML)
				r.Post("/items", s.handleAddReportItem)
				r.Put("/items", s.handleUpdateReportItem)
				r.Delete("/items", s.handleDeleteReportItem)
			})
			r.Get("/dashboard", s.handleDashboard)

			r.Post("/imports/preview", s.handleImportPreview)
			r.Delete("/imports/current", s.handleImportCancel)
			r.Get("/imports/template", s.handleImportTemplate)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.DB.PingContext(ctx); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMe returns the caller's profile, creating it on first sight.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if err := s.Store.EnsureUser(r.Context(), id.ID, id.Email, id.FullNamePtr()); err != nil {
		s.respondError(w, r, err)
		return
	}

	user, err := s.Store.GetUser(r.Context(), id.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// productsChanged drops every cached copy of the owner's product list.
func (s *Server) productsChanged(ctx context.Context, ownerID uuid.UUID) {
	if s.Catalog != nil {
		s.Catalog.Invalidate(ownerID)
	}
	if s.Cache != nil {
		s.Cache.Invalidate(ctx, ownerID)
	}
}
