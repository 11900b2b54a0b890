package http

import (
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"bibliocli/internal/config"
	apperrors "bibliocli/internal/errors"
	"bibliocli/internal/exporter"
)

// estimate names the API exposes, mapped to the files the pipeline writes
var estimateNames = map[string]string{
	"learning-curve": "learning_curve",
	"stickiness":     "stickiness",
	"regularity":     "regularity",
	"media-types":    "media_types",
}

// DataHandler serves the persisted pipeline outputs: snapshot metadata,
// the cleaned dataset CSV, and the estimate files.
type DataHandler struct {
	store  *exporter.SnapshotStore
	paths  *config.PathsConfig
	// version is the snapshot served when the request names none
	version string
	logger  *slog.Logger
}

// NewDataHandler creates a new data handler
func NewDataHandler(store *exporter.SnapshotStore, paths *config.PathsConfig, version string, logger *slog.Logger) *DataHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DataHandler{
		store:   store,
		paths:   paths,
		version: version,
		logger:  logger.With(slog.String("handler", "data")),
	}
}

// Routes returns the data routes
func (h *DataHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/metadata", h.GetMetadata)
	r.Get("/dataset", h.GetDataset)

	r.Route("/estimates", func(r chi.Router) {
		r.Get("/{name}", h.GetEstimate)
	})

	return r
}

// requestVersion resolves the snapshot version for a request
func (h *DataHandler) requestVersion(r *http.Request) string {
	if v := r.URL.Query().Get("version"); v != "" {
		return v
	}
	return h.version
}

// GetMetadata handles GET /api/metadata
func (h *DataHandler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	version := h.requestVersion(r)

	meta, err := h.store.ReadMetadata(version)
	if err != nil {
		if apperrors.IsNotFound(err) {
			render.Render(w, r, apperrors.ErrSnapshotNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to read snapshot metadata",
			slog.String("version", version),
			slog.String("error", err.Error()))
		render.Render(w, r, apperrors.ErrInternalServer)
		return
	}

	render.JSON(w, r, meta)
}

// GetDataset handles GET /api/dataset by streaming the snapshot CSV
func (h *DataHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	version := h.requestVersion(r)

	// confirm the snapshot exists before committing to a CSV response
	if _, err := h.store.ReadMetadata(version); err != nil {
		if apperrors.IsNotFound(err) {
			render.Render(w, r, apperrors.ErrSnapshotNotFound)
			return
		}
		render.Render(w, r, apperrors.ErrInternalServer)
		return
	}

	file, err := os.Open(h.store.SnapshotPath(version))
	if err != nil {
		if os.IsNotExist(err) {
			render.Render(w, r, apperrors.ErrSnapshotNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to open snapshot",
			slog.String("version", version),
			slog.String("error", err.Error()))
		render.Render(w, r, apperrors.ErrInternalServer)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="borrowings.csv"`)
	if _, err := io.Copy(w, file); err != nil {
		h.logger.WarnContext(r.Context(), "dataset stream interrupted",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("error", err.Error()))
	}
}

// GetEstimate handles GET /api/estimates/{name}
func (h *DataHandler) GetEstimate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	fileName, ok := estimateNames[name]
	if !ok {
		render.Render(w, r, apperrors.NotFoundAPI("estimate "+name))
		return
	}

	version := h.requestVersion(r)
	data, err := os.ReadFile(h.paths.EstimatePath(version, fileName))
	if err != nil {
		if os.IsNotExist(err) {
			render.Render(w, r, apperrors.ErrEstimateNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to read estimate",
			slog.String("name", name),
			slog.String("version", version),
			slog.String("error", err.Error()))
		render.Render(w, r, apperrors.ErrInternalServer)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(data)
}
