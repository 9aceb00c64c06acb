package chi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/kailas-cloud/dataforge/internal/domain/batch"
	domdoc "github.com/kailas-cloud/dataforge/internal/domain/document"
	"github.com/kailas-cloud/dataforge/internal/domain/document/patch"
	"github.com/kailas-cloud/dataforge/internal/domain/search/request"
	documentuc "github.com/kailas-cloud/dataforge/internal/usecase/document"
)

const defaultHistoryLimit = 50

type batchItemResponse struct {
	Index  int    `json:"index"`
	ID     string `json:"_id,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func documentToResponse(d domdoc.Document) map[string]any {
	return d.Map()
}

// writeOptions reads ?mode=link and ?pack= of an insert.
func writeOptions(r *http.Request) (documentuc.WriteOptions, error) {
	q := r.URL.Query()
	var mode, pack string
	if err := runtime.BindQueryParameter("form", true, false, "mode", q, &mode); err != nil {
		return documentuc.WriteOptions{}, err
	}
	if err := runtime.BindQueryParameter("form", true, false, "pack", q, &pack); err != nil {
		return documentuc.WriteOptions{}, err
	}
	opts := documentuc.WriteOptions{Pack: pack}
	switch mode {
	case "", "direct":
		opts.Mode = documentuc.ModeDirect
	case "link":
		opts.Mode = documentuc.ModeLink
	default:
		return documentuc.WriteOptions{}, fmt.Errorf("invalid mode %q", mode)
	}
	return opts, nil
}

// insertDocuments handles POST /models/{model}/documents. An object body inserts
// one document; an array inserts each row independently and reports per row.
func (s *Server) insertDocuments(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	opts, err := writeOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	var body json.RawMessage
	if !s.decode(w, r, &body) {
		return
	}
	model := chi.URLParam(r, "model")

	var rows []map[string]any
	if err := json.Unmarshal(body, &rows); err == nil {
		results, err := s.svc.Documents.InsertMany(r.Context(), user, model, rows, opts)
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		items := make([]batchItemResponse, len(results))
		for i, res := range results {
			items[i] = batchItemResponse{Index: res.Index(), ID: res.ID(), Status: string(res.Status())}
			if res.Err() != nil {
				items[i].Error = safeDomainMessage(res.Err())
			}
		}
		status := http.StatusCreated
		if len(batch.Failed(results)) > 0 {
			status = http.StatusMultiStatus
		}
		writeJSON(w, status, map[string]any{"success": true, "results": items})
		return
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "body must be an object or an array of objects")
		return
	}
	d, err := s.svc.Documents.Insert(r.Context(), user, model, data, opts)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": documentToResponse(d)})
}

// listDocuments handles GET /models/{model}/documents?page&limit&sort&depth&ids.
func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	var (
		page, limit, depth int
		sortSpec, ids      string
		autoExpand         bool
	)
	binds := []struct {
		name string
		dest any
	}{
		{"page", &page},
		{"limit", &limit},
		{"depth", &depth},
		{"sort", &sortSpec},
		{"ids", &ids},
		{"autoExpand", &autoExpand},
	}
	for _, b := range binds {
		if err := runtime.BindQueryParameter("form", true, false, b.name, q, b.dest); err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
			return
		}
	}
	sortKeys, err := request.ParseSort(sortSpec)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}
	req, err := request.New(request.Params{
		Model:      chi.URLParam(r, "model"),
		Page:       page,
		Limit:      limit,
		Sort:       sortKeys,
		Depth:      depth,
		AutoExpand: autoExpand,
		IDs:        request.ParseIDs(ids),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}
	s.runSearch(w, r, user, req)
}

// getDocument handles GET /models/{model}/documents/{id}.
func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	d, err := s.svc.Documents.Get(r.Context(), user, chi.URLParam(r, "model"), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": documentToResponse(d)})
}

// updateDocument handles PUT /models/{model}/documents/{id}.
func (s *Server) updateDocument(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	var data map[string]any
	if !s.decode(w, r, &data) {
		return
	}
	d, err := s.svc.Documents.Update(r.Context(), user, chi.URLParam(r, "model"), chi.URLParam(r, "id"), data)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": documentToResponse(d)})
}

// patchDocument handles PATCH /models/{model}/documents/{id}. Null values unset fields.
func (s *Server) patchDocument(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	var values map[string]any
	if !s.decode(w, r, &values) {
		return
	}
	p, err := patch.New(values)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}
	d, err := s.svc.Documents.Patch(r.Context(), user, chi.URLParam(r, "model"), chi.URLParam(r, "id"), p)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": documentToResponse(d)})
}

// deleteDocument handles DELETE /models/{model}/documents/{id}.
func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	if err := s.svc.Documents.Delete(r.Context(), user, chi.URLParam(r, "model"), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// documentHistory handles GET /models/{model}/documents/{id}/history?limit.
func (s *Server) documentHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	limit := int64(defaultHistoryLimit)
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if limit <= 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "limit must be positive")
		return
	}
	entries, err := s.svc.History.List(r.Context(), user, chi.URLParam(r, "model"), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": entries})
}
