package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/safar/kasir-pos/internal/apperr"
	"github.com/safar/kasir-pos/internal/report"
)

func (s *Server) salesSummary(r *http.Request) (report.DateRange, report.Summary, error) {
	q := r.URL.Query()

	rng, err := report.ParseDateRange(q.Get("start"), q.Get("end"), s.Reports.Location())
	if err != nil {
		return report.DateRange{}, report.Summary{}, err
	}
	spec, err := report.ParseSort(q.Get("sort"), q.Get("dir"))
	if err != nil {
		return report.DateRange{}, report.Summary{}, err
	}

	summary, err := s.Reports.Sales(r.Context(), identity(r).ID, rng, spec)
	if err != nil {
		return report.DateRange{}, report.Summary{}, err
	}
	return rng, summary, nil
}

func (s *Server) exportHeader(r *http.Request, rng report.DateRange) report.Header {
	return report.Header{
		User:       identity(r).DisplayName(),
		Range:      rng,
		ExportedAt: s.now().In(s.Reports.Location()),
	}
}

func (s *Server) handleSales(w http.ResponseWriter, r *http.Request) {
	_, summary, err := s.salesSummary(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleSalesCSV(w http.ResponseWriter, r *http.Request) {
	rng, summary, err := s.salesSummary(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	filename := fmt.Sprintf("laporan-penjualan-%s.csv", s.now().In(s.Reports.Location()).Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := report.WriteCSV(w, s.exportHeader(r, rng), summary); err != nil {
		s.log(r).Error().Err(err).Msg("write csv export")
	}
}

func (s *Server) handleSalesHTML(w http.ResponseWriter, r *http.Request) {
	rng, summary, err := s.salesSummary(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.WriteHTML(w, s.exportHeader(r, rng), summary); err != nil {
		s.log(r).Error().Err(err).Msg("write html export")
	}
}

func (s *Server) handleAddReportItem(w http.ResponseWriter, r *http.Request) {
	var req report.Adjustment
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	id := identity(r)
	if err := s.Store.EnsureUser(r.Context(), id.ID, id.Email, id.FullNamePtr()); err != nil {
		s.respondError(w, r, err)
		return
	}

	txn, err := s.Reports.AddAdjustment(r.Context(), id.ID, req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, txn)
}

type updateReportItemRequest struct {
	OriginalName string `json:"original_name"`
	report.Adjustment
}

func (s *Server) handleUpdateReportItem(w http.ResponseWriter, r *http.Request) {
	var req updateReportItemRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.Reports.UpdateReportItem(r.Context(), identity(r).ID, req.OriginalName, req.Adjustment); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteReportItem(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		s.respondError(w, r, apperr.Validation("name is required"))
		return
	}

	n, err := s.Reports.DeleteReportItem(r.Context(), identity(r).ID, name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.Reports.Dashboard(r.Context(), identity(r).ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}
