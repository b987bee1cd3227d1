package api

import (
	"errors"
	"net/http"

	"github.com/ayusman/posecue/internal/app"
	"github.com/ayusman/posecue/internal/pnn"
	"github.com/ayusman/posecue/internal/preprocess"
	"github.com/ayusman/posecue/internal/store"
)

// maxUploadBytes caps CSV uploads.
const maxUploadBytes = 64 << 20

// SamplesHandler serves the training set: per-label counts, CSV import and
// removal by import source.
type SamplesHandler struct {
	store *store.Store
}

// NewSamplesHandler creates a new SamplesHandler with the given store.
func NewSamplesHandler(s *store.Store) *SamplesHandler {
	return &SamplesHandler{store: s}
}

// ServeHTTP implements the http.Handler interface.
func (h *SamplesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.counts(w, r)
	case http.MethodPost:
		h.importCSV(w, r)
	case http.MethodDelete:
		h.deleteSource(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type countsResponse struct {
	Total  int            `json:"total"`
	Labels map[string]int `json:"labels"`
}

// counts handles GET /api/samples.
func (h *SamplesHandler) counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.Samples().CountByLabel()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count samples")
		return
	}

	response := countsResponse{Labels: make(map[string]int, len(counts))}
	for label, n := range counts {
		response.Labels[label.String()] = n
		response.Total += n
	}
	writeJSON(w, http.StatusOK, response)
}

type importResponse struct {
	Source   string         `json:"source"`
	Format   string         `json:"format"`
	Imported int            `json:"imported"`
	Replaced int64          `json:"replaced"`
	Labels   map[string]int `json:"labels"`
}

// importCSV handles POST /api/samples?source=name[&label=fallback] with a
// training or raw tracker CSV as the body.
func (h *SamplesHandler) importCSV(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	fallback := pnn.Standing
	if name := r.URL.Query().Get("label"); name != "" {
		l, err := pnn.ParseLabel(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		fallback = l
	}

	res, err := app.ImportSamples(h.store.Samples(), http.MaxBytesReader(w, r.Body, maxUploadBytes), source, fallback)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "Upload too large")
		case errors.Is(err, preprocess.ErrDataRead):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		}
		return
	}

	response := importResponse{
		Source:   source,
		Format:   res.Format,
		Imported: res.Imported,
		Replaced: res.Replaced,
		Labels:   make(map[string]int, len(res.Counts)),
	}
	for label, n := range res.Counts {
		response.Labels[label.String()] = n
	}
	writeJSON(w, http.StatusCreated, response)
}

// deleteSource handles DELETE /api/samples?source=name.
func (h *SamplesHandler) deleteSource(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	n, err := h.store.Samples().DeleteBySource(source)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete samples")
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "No samples from that source")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
