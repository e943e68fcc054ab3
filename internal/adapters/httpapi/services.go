package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"creatorstudio/internal/adapters/exports"
	"creatorstudio/internal/blob"
	"creatorstudio/internal/offline"
	"creatorstudio/internal/planner"
)

func (a *api) plan(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Idea string `json:"idea"`
	}
	if !decode(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Idea) == "" {
		writeError(w, http.StatusBadRequest, "idea is required")
		return
	}
	writeJSON(w, http.StatusOK, a.planner.Plan(r.Context(), in.Idea))
}

func (a *api) getSettings(w http.ResponseWriter, r *http.Request) {
	st, err := a.planner.Settings().Load(r.Context())
	if err != nil {
		a.storeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st.Redacted())
}

func (a *api) putSettings(w http.ResponseWriter, r *http.Request) {
	var st planner.Settings
	if !decode(w, r, &st) {
		return
	}
	if err := a.planner.Settings().Save(r.Context(), st); err != nil {
		a.storeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st.Redacted())
}

func (a *api) createExport(w http.ResponseWriter, r *http.Request) {
	var in exports.Input
	if !decode(w, r, &in) {
		return
	}
	rec, err := a.exports.Enqueue(r.Context(), in)
	switch {
	case errors.Is(err, exports.ErrProjectNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, exports.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, exports.ErrQueueFull), errors.Is(err, exports.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		a.storeFailure(w, r, err)
	default:
		writeJSON(w, http.StatusAccepted, rec)
	}
}

func (a *api) getExport(w http.ResponseWriter, r *http.Request) {
	rec, ok := a.exports.Get(chi.URLParam(r, "id"))
	if !ok {
		notFound(w, "export")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *api) downloadExport(w http.ResponseWriter, r *http.Request) {
	data, art, err := a.exports.Download(r.Context(), chi.URLParam(r, "id"), exports.Format(chi.URLParam(r, "format")))
	switch {
	case errors.Is(err, blob.ErrNotFound), errors.Is(err, exports.ErrUnsupportedFormat):
		notFound(w, "export artifact")
	case errors.Is(err, exports.ErrNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		a.storeFailure(w, r, err)
	default:
		w.Header().Set("Content-Type", art.ContentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

func (a *api) cacheStatus(w http.ResponseWriter, r *http.Request) {
	st, err := a.cache.Status(r.Context())
	if err != nil {
		a.storeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *api) cacheInstall(w http.ResponseWriter, r *http.Request) {
	if err := a.cache.Install(r.Context()); err != nil {
		if errors.Is(err, offline.ErrClosed) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		a.log.Warn("cache install failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	a.cacheStatus(w, r)
}

func (a *api) cacheActivate(w http.ResponseWriter, r *http.Request) {
	err := a.cache.Activate(r.Context())
	switch {
	case errors.Is(err, offline.ErrNotInstalled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, offline.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		a.storeFailure(w, r, err)
	default:
		a.cacheStatus(w, r)
	}
}
