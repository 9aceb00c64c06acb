package chi

import (
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/kailas-cloud/dataforge/internal/domain"
	"github.com/kailas-cloud/dataforge/internal/domain/search/request"
	logpkg "github.com/kailas-cloud/dataforge/internal/logger"
)

// searchRequest is the body of POST /search.
type searchRequest struct {
	Model             string           `json:"model"`
	Filter            any              `json:"filter"`
	Page              int              `json:"page"`
	Limit             int              `json:"limit"`
	Sort              string           `json:"sort"`
	Depth             int              `json:"depth"`
	AutoExpand        bool             `json:"autoExpand"`
	IDs               string           `json:"ids"`
	PipelinesPosition string           `json:"pipelinesPosition"`
	Pipelines         []map[string]any `json:"pipelines"`
	// TimeoutMs is the caller's time budget; the server runs with half of it.
	TimeoutMs int64 `json:"timeoutMs"`
}

func (sr searchRequest) toDomain() (request.Request, error) {
	f, err := request.ParseFilter(sr.Filter)
	if err != nil {
		return request.Request{}, err
	}
	sortKeys, err := request.ParseSort(sr.Sort)
	if err != nil {
		return request.Request{}, err
	}
	stages := make([]bson.M, len(sr.Pipelines))
	for i, st := range sr.Pipelines {
		stages[i] = bson.M(st)
	}
	return request.New(request.Params{
		Model:       sr.Model,
		Filter:      f,
		Page:        sr.Page,
		Limit:       sr.Limit,
		Sort:        sortKeys,
		Depth:       sr.Depth,
		AutoExpand:  sr.AutoExpand,
		IDs:         request.ParseIDs(sr.IDs),
		Position:    request.Position(sr.PipelinesPosition),
		Stages:      stages,
		TimeoutHint: time.Duration(sr.TimeoutMs) * time.Millisecond,
	})
}

// searchDocuments handles POST /search.
func (s *Server) searchDocuments(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	var body searchRequest
	if !s.decode(w, r, &body) {
		return
	}
	if body.TimeoutMs < 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "timeoutMs must not be negative")
		return
	}
	req, err := body.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}
	logpkg.AnnotateModel(r.Context(), req.Model())
	s.runSearch(w, r, user, req)
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, user domain.User, req request.Request) {
	res, err := s.svc.Search.Search(r.Context(), user, req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    res.Data(),
		"count":   res.Count(),
	})
}
