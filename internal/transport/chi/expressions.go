package chi

import (
	"encoding/json"
	"net/http"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/kailas-cloud/dataforge/internal/domain"
	"github.com/kailas-cloud/dataforge/internal/domain/filter"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
)

type compileRequest struct {
	Filter any `json:"filter"`
}

// Expressions travel as relaxed MongoDB extended JSON so BSON-only values
// such as undefined survive the round trip.
type decompileRequest struct {
	Expression json.RawMessage `json:"expression"`
}

type evaluateRequest struct {
	Model     string         `json:"model,omitempty"`
	Condition any            `json:"condition"`
	Record    map[string]any `json:"record"`
}

// compileFilter handles POST /filters/compile.
func (s *Server) compileFilter(w http.ResponseWriter, r *http.Request) {
	var req compileRequest
	if !s.decode(w, r, &req) {
		return
	}
	node, err := filter.Parse(req.Filter)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}
	expr, err := filter.Compile(node)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}
	raw, err := bson.MarshalExtJSON(expr, false, false)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "expression": json.RawMessage(raw)})
}

// decompileFilter handles POST /filters/decompile.
func (s *Server) decompileFilter(w http.ResponseWriter, r *http.Request) {
	var req decompileRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Expression) == 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "expression is required")
		return
	}
	var expr bson.D
	if err := bson.UnmarshalExtJSON(req.Expression, false, &expr); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "expression must be an extended JSON object: "+err.Error())
		return
	}
	node, err := filter.Decompile(expr)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "filter": node})
}

// evaluateCondition handles POST /conditions/evaluate. Without a model the
// condition is a single operator over a [left, right] pair.
func (s *Server) evaluateCondition(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	var req evaluateRequest
	if !s.decode(w, r, &req) {
		return
	}

	var (
		m      *dommodel.Model
		models []dommodel.Model
	)
	if req.Model != "" {
		all, err := s.svc.Models.List(r.Context(), user)
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		for i := range all {
			if all[i].Name() == req.Model {
				m = &all[i]
			}
		}
		if m == nil {
			s.handleDomainError(w, domain.ErrModelNotFound)
			return
		}
		models = all
	}
	matched := s.evaluator.Evaluate(m, req.Condition, req.Record, models, user)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": matched})
}
