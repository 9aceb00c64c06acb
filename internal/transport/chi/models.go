package chi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kailas-cloud/dataforge/internal/domain"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
)

type modelResponse struct {
	ID string `json:"_id"`
	dommodel.Spec
	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

func modelToResponse(m dommodel.Model) modelResponse {
	return modelResponse{ID: m.ID(), Spec: m.Spec(), CreatedAt: m.CreatedAt(), UpdatedAt: m.UpdatedAt()}
}

// specFromBody decodes a model definition, wrapping key and shape errors as validation errors.
func specFromBody(raw map[string]any) (dommodel.Spec, error) {
	spec, err := dommodel.SpecFromMap(raw)
	if err != nil {
		return dommodel.Spec{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return spec, nil
}

// listModels handles GET /models.
func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	models, err := s.svc.Models.List(r.Context(), user)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	items := make([]modelResponse, len(models))
	for i, m := range models {
		items[i] = modelToResponse(m)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": items})
}

// createModel handles POST /models.
func (s *Server) createModel(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	var raw map[string]any
	if !s.decode(w, r, &raw) {
		return
	}
	spec, err := specFromBody(raw)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	m, err := s.svc.Models.Create(r.Context(), user, spec)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": modelToResponse(m)})
}

// getModel handles GET /models/{model}.
func (s *Server) getModel(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	m, err := s.svc.Models.Get(r.Context(), user, chi.URLParam(r, "model"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": modelToResponse(m)})
}

// updateModel handles PUT /models/{model}. The body is either a definition or
// {"model": definition, "renames": {"old": "new"}} to carry field renames.
func (s *Server) updateModel(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	var raw map[string]any
	if !s.decode(w, r, &raw) {
		return
	}
	var renames map[string]string
	if wrapped, ok := raw["model"].(map[string]any); ok {
		if rr, ok := raw["renames"].(map[string]any); ok {
			renames = make(map[string]string, len(rr))
			for from, to := range rr {
				name, ok := to.(string)
				if !ok {
					writeError(w, http.StatusBadRequest, CodeValidationFailed, fmt.Sprintf("rename of %q must be a string", from))
					return
				}
				renames[from] = name
			}
		}
		raw = wrapped
	}
	name := chi.URLParam(r, "model")
	if _, set := raw["name"]; !set {
		raw["name"] = name
	}
	spec, err := specFromBody(raw)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	m, err := s.svc.Models.Update(r.Context(), user, name, spec, renames)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": modelToResponse(m)})
}

// deleteModel handles DELETE /models/{model}.
func (s *Server) deleteModel(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	if err := s.svc.Models.Delete(r.Context(), user, chi.URLParam(r, "model")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
