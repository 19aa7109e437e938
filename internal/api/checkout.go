package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/safar/kasir-pos/internal/apperr"
	"github.com/safar/kasir-pos/internal/cart"
	"github.com/safar/kasir-pos/internal/checkout"
	"github.com/shopspring/decimal"
)

// checkoutItem names a catalog product by id, or describes an ad-hoc line
// with name, weight and price when ProductID is empty.
type checkoutItem struct {
	ProductID string          `json:"product_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Weight    string          `json:"weight,omitempty"`
	Price     decimal.Decimal `json:"price,omitempty"`
	Quantity  int             `json:"quantity"`
}

type checkoutRequest struct {
	Items    []checkoutItem  `json:"items"`
	Tendered decimal.Decimal `json:"tendered"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	id := identity(r)
	lines, err := s.cartLines(r, id.ID, req.Items)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	receipt, err := s.Checkout.Checkout(r.Context(), checkout.Request{
		Identity: id,
		Lines:    lines,
		Tendered: req.Tendered,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, receipt)
}

// cartLines prices catalog items from the owner's snapshot, reloading it
// once when an id is missing. Repeated ids are merged into one line whose
// quantity must fit the snapshot's stock.
func (s *Server) cartLines(r *http.Request, owner uuid.UUID, items []checkoutItem) ([]cart.Line, error) {
	reloaded := false
	c := cart.New()

	for _, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			c.AddCustom(cart.Line{
				Name:     strings.TrimSpace(item.Name),
				Weight:   strings.TrimSpace(item.Weight),
				Price:    item.Price,
				Stock:    item.Quantity,
				Quantity: item.Quantity,
			})
			continue
		}

		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			return nil, apperr.Validationf("invalid product id %q", item.ProductID)
		}

		product, ok := s.Catalog.Find(owner, productID)
		if !ok && !reloaded {
			if _, err := s.Catalog.Load(r.Context(), owner); err != nil {
				return nil, err
			}
			reloaded = true
			product, ok = s.Catalog.Find(owner, productID)
		}
		if !ok {
			return nil, apperr.Validationf("product %s is not in the catalog", productID)
		}

		if err := c.AddQuantity(product, item.Quantity); err != nil {
			if errors.Is(err, cart.ErrBadQuantity) {
				return nil, &checkout.Error{Code: checkout.CodeInvalidLine, Product: product.Name}
			}
			return nil, &checkout.Error{Code: checkout.CodeInsufficientStock, Product: product.Name, Available: product.Stock}
		}
	}
	return c.Lines(), nil
}
