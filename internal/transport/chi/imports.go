package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dataforge/internal/importsrc"
	logpkg "github.com/kailas-cloud/dataforge/internal/logger"
)

const multipartMemory = 8 << 20

// importSource is what an import request names: the payload, its format and parse options.
type importSource struct {
	body    io.Reader
	format  string
	options importsrc.Options
}

// startImport handles POST /import. A multipart upload carries the payload in
// the "file" part; any other body is the payload itself. Options come from form
// values or the query string: format, model, header, delimiter, sheet.
func (s *Server) startImport(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	src, err := s.importSource(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	format, err := importsrc.ParseFormat(src.format)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}
	ds, err := importsrc.Parse(format, src.body, src.options)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "parse import: "+err.Error())
		return
	}

	j, err := s.svc.Imports.Start(r.Context(), user, ds)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"job": j})
}

func (s *Server) importSource(r *http.Request) (importSource, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		opts, format, err := importOptions(r.URL.Query().Get)
		if err != nil {
			return importSource{}, err
		}
		if format == "" {
			format = mediaType
		}
		if format == "" {
			format = string(importsrc.FormatJSON)
		}
		return importSource{body: r.Body, format: format, options: opts}, nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return importSource{}, fmt.Errorf("parse multipart form: %w", err)
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		return importSource{}, fmt.Errorf("file part is required: %w", err)
	}
	get := func(key string) string {
		if v := r.FormValue(key); v != "" {
			return v
		}
		return r.URL.Query().Get(key)
	}
	opts, format, err := importOptions(get)
	if err != nil {
		return importSource{}, err
	}
	if format == "" {
		format = filepath.Ext(hdr.Filename)
	}
	return importSource{body: file, format: format, options: opts}, nil
}

// importOptions reads parse options through get and returns the explicit format, if any.
func importOptions(get func(string) string) (importsrc.Options, string, error) {
	opts := importsrc.Options{
		Model: strings.TrimSpace(get("model")),
		Sheet: get("sheet"),
	}
	if h := get("header"); h != "" {
		for _, col := range strings.Split(h, ",") {
			opts.Header = append(opts.Header, strings.TrimSpace(col))
		}
	}
	if d := get("delimiter"); d != "" {
		r, size := utf8.DecodeRuneInString(d)
		if size != len(d) {
			return importsrc.Options{}, "", fmt.Errorf("delimiter must be a single character, got %q", d)
		}
		opts.Delimiter = r
	}
	return opts, get("format"), nil
}

// getImport handles GET /import/{jobId}. Unknown jobs answer 200 with status
// not_found so pollers treat them as terminal.
func (s *Server) getImport(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	j, err := s.svc.Imports.Snapshot(r.Context(), user, chi.URLParam(r, "jobId"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": j})
}

// importEvents handles GET /import/{jobId}/events, streaming one job snapshot
// per progress change until the job is terminal.
func (s *Server) importEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	var retryMs int
	if err := runtime.BindQueryParameter("form", true, false, "retry", r.URL.Query(), &retryMs); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	rc := http.NewResponseController(w)
	// The stream outlives the server write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logpkg.FromContext(r.Context()).Debug("clear write deadline", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if retryMs > 0 {
		fmt.Fprintf(w, "retry: %d\n\n", retryMs)
	}

	for j := range s.svc.Imports.Watch(r.Context(), user, chi.URLParam(r, "jobId")) {
		data, err := json.Marshal(j)
		if err != nil {
			s.logger.Error("encode job snapshot", zap.String("job", j.ID), zap.Error(err))
			return
		}
		event := "progress"
		if j.Status.IsTerminal() {
			event = "done"
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
