package api

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/safar/kasir-pos/internal/apperr"
	"github.com/safar/kasir-pos/internal/importer"
)

var errImportRunning = &apperr.Error{Kind: apperr.KindValidation, Msg: "an import is already running"}

// importJobs holds the cancel flag of the running import of each owner.
type importJobs struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*atomic.Bool
}

func newImportJobs() *importJobs {
	return &importJobs{jobs: make(map[uuid.UUID]*atomic.Bool)}
}

func (j *importJobs) start(owner uuid.UUID) (*atomic.Bool, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, running := j.jobs[owner]; running {
		return nil, false
	}
	flag := &atomic.Bool{}
	j.jobs[owner] = flag
	return flag, true
}

func (j *importJobs) finish(owner uuid.UUID) {
	j.mu.Lock()
	delete(j.jobs, owner)
	j.mu.Unlock()
}

func (j *importJobs) cancel(owner uuid.UUID) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	flag, ok := j.jobs[owner]
	if ok {
		flag.Store(true)
	}
	return ok
}

type importPreview struct {
	Summary importer.Summary      `json:"summary"`
	Rows    []importer.Classified `json:"rows"`
}

// classifyUpload reads the uploaded workbook and checks it against the
// owner's current catalog.
func (s *Server) classifyUpload(w http.ResponseWriter, r *http.Request, owner uuid.UUID) ([]importer.Classified, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxImportBytes+64*1024)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Validationf("file is larger than %d MB", s.opts.MaxImportBytes/(1024*1024))
		}
		return nil, apperr.Validation("file is required")
	}
	defer file.Close()

	if err := importer.CheckFile(header.Filename, header.Size, s.opts.MaxImportBytes); err != nil {
		return nil, err
	}

	rows, err := importer.ReadWorkbook(file)
	if err != nil {
		return nil, err
	}

	existing, err := s.Catalog.Load(r.Context(), owner)
	if err != nil {
		return nil, err
	}
	return importer.Classify(existing, rows), nil
}

func (s *Server) handleImportPreview(w http.ResponseWriter, r *http.Request) {
	classified, err := s.classifyUpload(w, r, identity(r).ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, importPreview{
		Summary: importer.Summarize(classified),
		Rows:    classified,
	})
}

// handleImportCommit classifies the upload again and inserts its valid rows.
// DELETE /imports/current from another request stops it between batches.
func (s *Server) handleImportCommit(w http.ResponseWriter, r *http.Request) {
	id := identity(r)

	cancel, ok := s.jobs.start(id.ID)
	if !ok {
		s.respondError(w, r, errImportRunning)
		return
	}
	defer s.jobs.finish(id.ID)

	classified, err := s.classifyUpload(w, r, id.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.Store.EnsureUser(r.Context(), id.ID, id.Email, id.FullNamePtr()); err != nil {
		s.respondError(w, r, err)
		return
	}

	result := s.Importer.Commit(r.Context(), id.ID, classified, cancel)
	if result.Succeeded > 0 {
		s.productsChanged(r.Context(), id.ID)
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleImportCancel(w http.ResponseWriter, r *http.Request) {
	if !s.jobs.cancel(identity(r).ID) {
		s.respondError(w, r, apperr.NotFound("no import is running"))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleImportTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="template_import_produk.xlsx"`)
	if err := importer.WriteTemplate(w); err != nil {
		s.log(r).Error().Err(err).Msg("write import template")
	}
}
