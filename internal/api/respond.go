package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/safar/kasir-pos/internal/apperr"
	"github.com/safar/kasir-pos/internal/checkout"
	"github.com/safar/kasir-pos/internal/database"
	"github.com/safar/kasir-pos/internal/storage"
	"github.com/safar/kasir-pos/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

// respondError writes err with the status its kind maps to. Server-side
// failures are logged with the request logger.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.log(r).Error().Err(err).Int("status", status).Msg("request failed")
	} else {
		s.log(r).Debug().Err(err).Int("status", status).Msg("request rejected")
	}

	msg := err.Error()
	if status == http.StatusInternalServerError && apperr.KindOf(err) == apperr.KindUnknown {
		msg = "internal server error"
	}
	respondJSON(w, status, errorResponse{Error: msg, Code: code})
}

func classify(err error) (int, string) {
	var cerr *checkout.Error
	if errors.As(err, &cerr) {
		switch cerr.ErrorKind() {
		case apperr.KindValidation:
			if cerr.Code == checkout.CodeInvalidIdentity {
				return http.StatusUnauthorized, string(cerr.Code)
			}
			return http.StatusUnprocessableEntity, string(cerr.Code)
		case apperr.KindPartialFailure:
			return http.StatusInternalServerError, string(cerr.Code)
		default:
			return http.StatusBadGateway, string(cerr.Code)
		}
	}

	switch {
	case errors.Is(err, database.ErrUserNotFound),
		errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrTransactionNotFound),
		errors.Is(err, store.ErrReportItemNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, database.ErrDuplicateProduct):
		return http.StatusBadRequest, "DUPLICATE_PRODUCT"
	case errors.Is(err, database.ErrOptimisticLockFailed):
		return http.StatusConflict, "VERSION_CONFLICT"
	case errors.Is(err, database.ErrInsufficientStock):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_STOCK"
	case errors.Is(err, errImportRunning):
		return http.StatusConflict, "IMPORT_RUNNING"
	case errors.Is(err, storage.ErrNotConfigured):
		return http.StatusServiceUnavailable, "STORAGE_DISABLED"
	}

	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest, "VALIDATION"
	case apperr.KindNotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case apperr.KindRemoteService:
		return http.StatusBadGateway, "REMOTE_SERVICE"
	case apperr.KindPartialFailure:
		return http.StatusInternalServerError, "PARTIAL_FAILURE"
	}
	return http.StatusInternalServerError, ""
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Validationf("invalid request body: %v", err)
	}
	return nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.Validationf("invalid %s", name)
	}
	return id, nil
}
