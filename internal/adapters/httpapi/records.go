package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"creatorstudio/internal/core"
	"creatorstudio/pkg/domain"
)

func listOptions(r *http.Request) core.ListOptions {
	q := r.URL.Query()
	return core.ListOptions{ProjectID: q.Get("projectId"), Query: q.Get("q")}
}

func (a *api) listProjects(w http.ResponseWriter, r *http.Request) {
	items, err := a.store.ListProjects(r.Context())
	if err != nil {
		a.storeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

func (a *api) createProject(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Title string `json:"title"`
	}
	if !decode(w, r, &in) {
		return
	}
	p, err := a.store.AddProject(r.Context(), core.Project{Title: in.Title})
	if err != nil {
		a.storeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *api) defaultProject(w http.ResponseWriter, r *http.Request) {
	p, err := a.store.EnsureDefaultProject(r.Context())
	if err != nil {
		a.storeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *api) getProject(w http.ResponseWriter, r *http.Request) {
	p, ok, err := a.store.GetProject(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err != nil:
		a.storeFailure(w, r, err)
	case !ok:
		notFound(w, "project")
	default:
		writeJSON(w, http.StatusOK, p)
	}
}

func (a *api) updateProject(w http.ResponseWriter, r *http.Request) {
	var patch domain.ProjectPatch
	if !decode(w, r, &patch) {
		return
	}
	p, ok, err := a.store.UpdateProject(r.Context(), chi.URLParam(r, "id"), patch)
	switch {
	case err != nil:
		a.storeFailure(w, r, err)
	case !ok:
		notFound(w, "project")
	default:
		writeJSON(w, http.StatusOK, p)
	}
}

func (a *api) deleteProject(w http.ResponseWriter, r *http.Request) {
	if err := a.store.DeleteProject(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.storeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) listNotes(w http.ResponseWriter, r *http.Request) {
	items, err := a.store.ListNotes(r.Context(), listOptions(r))
	if err != nil {
		a.storeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

func (a *api) createNote(w http.ResponseWriter, r *http.Request) {
	var in core.Note
	if !decode(w, r, &in) {
		return
	}
	n, err := a.store.AddNote(r.Context(), core.Note{
		ProjectID: in.ProjectID,
		Title:     in.Title,
		Content:   in.Content,
		Pinned:    in.Pinned,
	})
	if err != nil {
		a.storeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (a *api) getNote(w http.ResponseWriter, r *http.Request) {
	n, ok, err := a.store.GetNote(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err != nil:
		a.storeFailure(w, r, err)
	case !ok:
		notFound(w, "note")
	default:
		writeJSON(w, http.StatusOK, n)
	}
}

func (a *api) updateNote(w http.ResponseWriter, r *http.Request) {
	var patch domain.NotePatch
	if !decode(w, r, &patch) {
		return
	}
	n, ok, err := a.store.UpdateNote(r.Context(), chi.URLParam(r, "id"), patch)
	switch {
	case err != nil:
		a.storeFailure(w, r, err)
	case !ok:
		notFound(w, "note")
	default:
		writeJSON(w, http.StatusOK, n)
	}
}

func (a *api) deleteNote(w http.ResponseWriter, r *http.Request) {
	if err := a.store.DeleteNote(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.storeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) listFiles(w http.ResponseWriter, r *http.Request) {
	items, err := a.store.ListFiles(r.Context(), listOptions(r))
	if err != nil {
		a.storeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

func (a *api) createFile(w http.ResponseWriter, r *http.Request) {
	var in core.File
	if !decode(w, r, &in) {
		return
	}
	f, err := a.store.AddFile(r.Context(), core.File{
		ProjectID: in.ProjectID,
		Name:      in.Name,
		Type:      in.Type,
		Content:   in.Content,
	})
	if err != nil {
		a.storeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (a *api) getFile(w http.ResponseWriter, r *http.Request) {
	f, ok, err := a.store.GetFile(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err != nil:
		a.storeFailure(w, r, err)
	case !ok:
		notFound(w, "file")
	default:
		writeJSON(w, http.StatusOK, f)
	}
}

func (a *api) updateFile(w http.ResponseWriter, r *http.Request) {
	var patch domain.FilePatch
	if !decode(w, r, &patch) {
		return
	}
	f, ok, err := a.store.UpdateFile(r.Context(), chi.URLParam(r, "id"), patch)
	switch {
	case err != nil:
		a.storeFailure(w, r, err)
	case !ok:
		notFound(w, "file")
	default:
		writeJSON(w, http.StatusOK, f)
	}
}

func (a *api) deleteFile(w http.ResponseWriter, r *http.Request) {
	if err := a.store.DeleteFile(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.storeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) listScenes(w http.ResponseWriter, r *http.Request) {
	items, err := a.store.ListScenes(r.Context(), listOptions(r))
	if err != nil {
		a.storeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

// sceneInput accepts either a verbatim payload or a list of shapes.
type sceneInput struct {
	ProjectID string          `json:"projectId"`
	Payload   json.RawMessage `json:"payload"`
	Shapes    []domain.Shape  `json:"shapes"`
}

func (a *api) createScene(w http.ResponseWriter, r *http.Request) {
	var in sceneInput
	if !decode(w, r, &in) {
		return
	}
	payload := in.Payload
	if len(payload) == 0 && in.Shapes != nil {
		var err error
		if payload, err = domain.EncodeShapes(in.Shapes); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	sc, err := a.store.AddScene(r.Context(), core.Scene{ProjectID: in.ProjectID, Payload: payload})
	if err != nil {
		a.storeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}

func (a *api) getScene(w http.ResponseWriter, r *http.Request) {
	sc, ok, err := a.store.GetScene(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err != nil:
		a.storeFailure(w, r, err)
	case !ok:
		notFound(w, "scene")
	default:
		writeJSON(w, http.StatusOK, sc)
	}
}

func (a *api) deleteScene(w http.ResponseWriter, r *http.Request) {
	if err := a.store.DeleteScene(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.storeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := a.store.GetProfile(r.Context())
	if err != nil {
		a.storeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *api) saveProfile(w http.ResponseWriter, r *http.Request) {
	var patch domain.ProfilePatch
	if !decode(w, r, &patch) {
		return
	}
	p, err := a.store.SaveProfile(r.Context(), patch)
	if err != nil {
		a.storeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
