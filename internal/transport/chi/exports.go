package chi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/kailas-cloud/dataforge/internal/domain/search/request"
	exportuc "github.com/kailas-cloud/dataforge/internal/usecase/export"
)

type exportRequest struct {
	Models        []string       `json:"models"`
	Filters       map[string]any `json:"filters"`
	Depth         int            `json:"depth"`
	Limit         int            `json:"limit"`
	IncludeModels bool           `json:"includeModels"`
}

// export handles POST /export. The attachment is {model: records} or, when
// definitions were requested or a model failed, a bundle
// {"models": [...], "data": {...}, "errors": {...}} that POST /import accepts back.
func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	var body exportRequest
	if !s.decode(w, r, &body) {
		return
	}
	if body.Limit < 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "limit must not be negative")
		return
	}
	filters := make(map[string]request.Filter, len(body.Filters))
	for name, raw := range body.Filters {
		f, err := request.ParseFilter(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidationFailed, fmt.Sprintf("filter of %s: %v", name, err))
			return
		}
		filters[name] = f
	}

	res, err := s.svc.Exports.Export(r.Context(), user, exportuc.Request{
		Models:        body.Models,
		Filters:       filters,
		Depth:         body.Depth,
		Limit:         body.Limit,
		IncludeModels: body.IncludeModels,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	filename := fmt.Sprintf("export-%s.json", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if !body.IncludeModels && len(res.Errors) == 0 {
		writeJSON(w, http.StatusOK, res.Data)
		return
	}
	bundle := map[string]any{"data": res.Data}
	if body.IncludeModels {
		bundle["models"] = res.Models
	}
	if len(res.Errors) > 0 {
		bundle["errors"] = res.Errors
	}
	writeJSON(w, http.StatusOK, bundle)
}
