package api

import (
	"net/http"
	"strconv"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	page, err := s.Store.ListTransactions(r.Context(), identity(r).ID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	txn, err := s.Store.GetTransaction(r.Context(), identity(r).ID, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, txn)
}
