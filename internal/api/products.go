package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/safar/kasir-pos/internal/apperr"
	"github.com/safar/kasir-pos/internal/storage"
	"github.com/safar/kasir-pos/internal/store"
	"github.com/shopspring/decimal"
)

type productRequest struct {
	Name    string          `json:"name"`
	Weight  string          `json:"weight"`
	Price   decimal.Decimal `json:"price"`
	Stock   int             `json:"stock"`
	Version int             `json:"version,omitempty"`
}

func (p productRequest) input() (store.ProductInput, error) {
	in := store.ProductInput{
		Name:   strings.TrimSpace(p.Name),
		Weight: strings.TrimSpace(p.Weight),
		Price:  p.Price,
		Stock:  p.Stock,
	}
	switch {
	case in.Name == "":
		return in, apperr.Validation("name is required")
	case in.Weight == "":
		return in, apperr.Validation("weight is required")
	case !in.Price.IsPositive():
		return in, apperr.Validation("price must be positive")
	case in.Stock < 0:
		return in, apperr.Validation("stock must not be negative")
	}
	return in, nil
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	result, err := s.Store.ListProducts(r.Context(), identity(r).ID, page, pageSize)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	id := identity(r)
	if err := s.Store.EnsureUser(r.Context(), id.ID, id.Email, id.FullNamePtr()); err != nil {
		s.respondError(w, r, err)
		return
	}

	product, err := s.Store.CreateProduct(r.Context(), id.ID, in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.productsChanged(r.Context(), id.ID)

	respondJSON(w, http.StatusCreated, product)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := uuidParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	product, err := s.Store.GetProduct(r.Context(), identity(r).ID, productID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := uuidParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.Version < 1 {
		s.respondError(w, r, apperr.Validation("version is required"))
		return
	}
	in, err := req.input()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	owner := identity(r).ID
	product, err := s.Store.UpdateProduct(r.Context(), owner, productID, in, req.Version)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.productsChanged(r.Context(), owner)

	respondJSON(w, http.StatusOK, product)
}

// handleDeleteProduct removes the row and then its image. A failed image
// delete is only logged.
func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := uuidParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	owner := identity(r).ID
	product, err := s.Store.DeleteProduct(r.Context(), owner, productID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.productsChanged(r.Context(), owner)
	if s.Images != nil {
		s.Images.Discard(r.Context(), product.ImageURL)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	if s.Images == nil {
		s.respondError(w, r, storage.ErrNotConfigured)
		return
	}
	productID, err := uuidParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	owner := identity(r).ID
	product, err := s.Store.GetProduct(r.Context(), owner, productID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	limit := s.opts.MaxImageBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+64*1024)
	file, header, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, apperr.Validationf("image too large, max %dMB", limit/(1024*1024)))
			return
		}
		s.respondError(w, r, apperr.Validation("image file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		s.respondError(w, r, apperr.Validationf("read image: %v", err))
		return
	}

	updated, err := s.Images.Replace(r.Context(), product, header.Filename, data)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.productsChanged(r.Context(), owner)

	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleRemoveImage(w http.ResponseWriter, r *http.Request) {
	if s.Images == nil {
		s.respondError(w, r, storage.ErrNotConfigured)
		return
	}
	productID, err := uuidParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	owner := identity(r).ID
	product, err := s.Store.GetProduct(r.Context(), owner, productID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	updated, err := s.Images.Remove(r.Context(), product)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.productsChanged(r.Context(), owner)

	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	products, err := s.Catalog.Load(r.Context(), identity(r).ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}
