package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dataforge/internal/domain"
	"github.com/kailas-cloud/dataforge/internal/domain/condition"
	logpkg "github.com/kailas-cloud/dataforge/internal/logger"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest          = "bad_request"
	CodeUnauthorized        = "unauthorized"
	CodeValidationFailed    = "validation_failed"
	CodePermissionDenied    = "permission_denied"
	CodeNotFound            = "not_found"
	CodeModelNotFound       = "model_not_found"
	CodeDocumentNotFound    = "document_not_found"
	CodeAlreadyExists       = "already_exists"
	CodeConstraintViolation = "constraint_violation"
	CodeDuplicate           = "duplicate"
	CodeCapacityExceeded    = "capacity_exceeded"
	CodePayloadTooLarge     = "payload_too_large"
	CodeTimeout             = "timeout"
	CodeRateLimited         = "rate_limited"
	CodeReconstruction      = "reconstruction_failed"
	CodeInternalError       = "internal_error"
)

// Default body limits.
const (
	DefaultMaxBodyBytes   = 10 << 20
	DefaultMaxUploadBytes = 50 << 20
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Services are the use cases the API exposes. Nil members disable their routes.
type Services struct {
	Models    ModelService
	Documents DocumentService
	Search    SearchService
	Imports   ImportService
	Exports   ExportService
	History   HistoryService
	Usage     UsageService
	Health    HealthChecker
}

// Server serves the data API over chi.
type Server struct {
	svc           Services
	evaluator     *condition.Evaluator
	auth          AuthConfig
	limiter       RateLimiter
	maxBody       int64
	maxUpload     int64
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(svc Services, logger *zap.Logger) *Server {
	s := &Server{
		svc:       svc,
		evaluator: condition.New(logger),
		maxBody:   DefaultMaxBodyBytes,
		maxUpload: DefaultMaxUploadBytes,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		constraintHandler,
		duplicateHandler,
		capacityHandler,
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrConflictingGeo, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrReconstruction, http.StatusUnprocessableEntity, CodeReconstruction),
		sentinelHandler(domain.ErrPermissionDenied, http.StatusForbidden, CodePermissionDenied),
		sentinelHandler(domain.ErrModelNotFound, http.StatusNotFound, CodeModelNotFound),
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, CodeDocumentNotFound),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrAlreadyExists, http.StatusConflict, CodeAlreadyExists),
		timeoutHandler,
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
	}
	return s
}

// WithAuth enables bearer token authentication.
func (s *Server) WithAuth(cfg AuthConfig) *Server {
	s.auth = cfg
	return s
}

// WithRateLimit enables per-user request limiting.
func (s *Server) WithRateLimit(l RateLimiter) *Server {
	s.limiter = l
	return s
}

// WithBodyLimits caps JSON bodies and import uploads. Non-positive values keep the defaults.
func (s *Server) WithBodyLimits(body, upload int64) *Server {
	if body > 0 {
		s.maxBody = body
	}
	if upload > 0 {
		s.maxUpload = upload
	}
	return s
}

// Register mounts the API on r.
func (s *Server) Register(r chi.Router) {
	if s.svc.Health != nil {
		r.Get("/health", s.getHealth)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.auth, s.logger))
		if s.limiter != nil {
			r.Use(RateLimitMiddleware(s.limiter, s.logger))
		}

		if s.svc.Models != nil {
			r.Route("/models", func(r chi.Router) {
				r.Get("/", s.listModels)
				r.Post("/", s.createModel)
				r.Get("/{model}", s.getModel)
				r.Put("/{model}", s.updateModel)
				r.Delete("/{model}", s.deleteModel)
			})
			r.Post("/conditions/evaluate", s.evaluateCondition)
		}
		if s.svc.Documents != nil {
			r.Route("/models/{model}/documents", func(r chi.Router) {
				r.Use(annotateModel)
				r.Post("/", s.insertDocuments)
				if s.svc.Search != nil {
					r.Get("/", s.listDocuments)
				}
				r.Get("/{id}", s.getDocument)
				r.Put("/{id}", s.updateDocument)
				r.Patch("/{id}", s.patchDocument)
				r.Delete("/{id}", s.deleteDocument)
				if s.svc.History != nil {
					r.Get("/{id}/history", s.documentHistory)
				}
			})
		}
		if s.svc.Search != nil {
			r.Post("/search", s.searchDocuments)
		}
		r.Post("/filters/compile", s.compileFilter)
		r.Post("/filters/decompile", s.decompileFilter)

		if s.svc.Imports != nil {
			r.Post("/import", s.startImport)
			r.Get("/import/{jobId}", s.getImport)
			r.Get("/import/{jobId}/events", s.importEvents)
		}
		if s.svc.Exports != nil {
			r.Post("/export", s.export)
		}
		if s.svc.Usage != nil {
			r.Get("/usage", s.getUsage)
		}
	})
}

// annotateModel tags the request logger with the {model} URL parameter.
func annotateModel(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logpkg.AnnotateModel(r.Context(), chi.URLParam(r, "model"))
		next.ServeHTTP(w, r)
	})
}

// Handler returns a router serving the API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.Register(r)
	return r
}

// user returns the authenticated caller or writes a 401.
func (s *Server) user(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	u, ok := domain.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "authentication required")
	}
	return u, ok
}

// decode reads a JSON body bounded by the server body limit.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func writeErrorDetails(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

// safeDomainMessage returns a client-safe message. Errors caused by the request
// itself keep their full text; everything else collapses to its sentinel.
func safeDomainMessage(err error) string {
	for _, s := range []error{domain.ErrValidation, domain.ErrReconstruction, domain.ErrConflictingGeo} {
		if errors.Is(err, s) {
			return err.Error()
		}
	}
	sentinels := []error{
		domain.ErrPermissionDenied,
		domain.ErrModelNotFound,
		domain.ErrDocumentNotFound,
		domain.ErrNotFound,
		domain.ErrAlreadyExists,
		domain.ErrConstraintViolation,
		domain.ErrDuplicate,
		domain.ErrCapacityExceeded,
		domain.ErrTimeout,
		domain.ErrRateLimited,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// constraintHandler reports every colliding key set.
func constraintHandler(w http.ResponseWriter, err error, msg string) bool {
	var cve *domain.ConstraintViolationError
	if !errors.As(err, &cve) {
		return false
	}
	writeErrorDetails(w, http.StatusConflict, CodeConstraintViolation, cve.Error(), map[string]any{
		"model":      cve.Model,
		"violations": cve.Violations,
	})
	return true
}

// duplicateHandler points the client at the document holding the same content.
func duplicateHandler(w http.ResponseWriter, err error, msg string) bool {
	var de *domain.DuplicateError
	if !errors.As(err, &de) {
		return false
	}
	writeErrorDetails(w, http.StatusConflict, CodeDuplicate, msg, map[string]string{"existingId": de.ExistingID})
	return true
}

// capacityHandler maps payload caps to 413 and stored-data quotas to 507.
func capacityHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrCapacityExceeded) {
		return false
	}
	var ce *domain.CapacityError
	if !errors.As(err, &ce) {
		writeError(w, http.StatusInsufficientStorage, CodeCapacityExceeded, msg)
		return true
	}
	status, code := http.StatusInsufficientStorage, CodeCapacityExceeded
	if ce.Kind == domain.CapacityPayload {
		status, code = http.StatusRequestEntityTooLarge, CodePayloadTooLarge
	}
	writeErrorDetails(w, status, code, ce.Error(), map[string]any{
		"kind":  ce.Kind,
		"limit": ce.Limit,
		"used":  ce.Used,
	})
	return true
}

// timeoutHandler marks query timeouts as retryable.
func timeoutHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrTimeout) {
		return false
	}
	w.Header().Set("Retry-After", strconv.Itoa(1))
	writeError(w, http.StatusServiceUnavailable, CodeTimeout, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
