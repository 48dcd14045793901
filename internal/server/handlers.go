package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/cvtext/internal/extract"
	"github.com/hyperjump/cvtext/internal/intake"
	"github.com/hyperjump/cvtext/internal/models"
	"github.com/hyperjump/cvtext/internal/storage"
)

const (
	uploadField     = "file"
	multipartMemory = 8 << 20
	// multipartSlack covers boundaries and part headers on top of the file itself.
	multipartSlack = 64 << 10
	defaultPage    = 50
	maxPage        = 500
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Stage string `json:"stage,omitempty"`
}

type uploadResponse struct {
	Result string         `json:"result"`
	Resume *models.Resume `json:"resume"`
}

// readUpload returns the name and content of the multipart "file" field.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	limit := s.config.Server.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartSlack)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return "", nil, false
		}
		s.respondError(w, http.StatusBadRequest, "expected multipart form with a \"file\" field")
		return "", nil, false
	}
	file, header, err := r.FormFile(uploadField)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing \"file\" field")
		return "", nil, false
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read upload")
		return "", nil, false
	}
	if int64(len(data)) > limit {
		s.respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return "", nil, false
	}
	// Browsers may send a path; only the base name is meaningful.
	return filepath.Base(header.Filename), data, true
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	name, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	s.logger.Debug("parse request", zap.String("file", name), zap.Int("bytes", len(data)))
	res, err := s.intake.ParseBytes(r.Context(), name, data)
	if err != nil {
		s.respondParseError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	name, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	s.logger.Debug("upload request", zap.String("file", name), zap.Int("bytes", len(data)))
	out, err := s.intake.IngestUpload(r.Context(), name, data)
	if err != nil {
		s.respondParseError(w, err)
		return
	}
	status := http.StatusCreated
	if out.Result == intake.ResultDeduplicated {
		status = http.StatusOK
	}
	s.respondJSON(w, status, uploadResponse{Result: out.Result, Resume: out.Resume})
}

func (s *Server) handleListResumes(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r)
	list, err := s.intake.List(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list resumes failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []*models.Resume{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"resumes": list, "offset": offset, "limit": limit})
}

func (s *Server) handleGetResume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	resume, err := s.intake.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "resume not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resume)
}

func (s *Server) handleDeleteResume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete resume request", zap.String("id", id))
	err := s.intake.Delete(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "resume not found")
		return
	}
	if err != nil {
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := &models.SearchQuery{Query: q.Get("q")}
	query.Limit, _ = strconv.Atoi(q.Get("limit"))
	query.Offset, _ = strconv.Atoi(q.Get("offset"))
	query.Fuzzy, _ = strconv.ParseBool(q.Get("fuzzy"))
	if err := query.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	resp, err := s.intake.Search(r.Context(), query)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListFailures(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r)
	list, err := s.intake.Failures(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list failures failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []*models.ParseFailure{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"failures": list, "offset": offset, "limit": limit})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.intake.Status(r.Context())
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	paths := append(storage.DatabaseFiles(s.config.Storage.DatabasePath), s.config.Storage.BleveIndexPath)
	if n, err := storage.DiskUsageBytes(paths...); err == nil {
		status.DiskUsageBytes = n
	}
	status.Version = s.version
	s.respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pagination(r *http.Request) (offset, limit int) {
	q := r.URL.Query()
	offset, _ = strconv.Atoi(q.Get("offset"))
	limit, _ = strconv.Atoi(q.Get("limit"))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultPage
	}
	if limit > maxPage {
		limit = maxPage
	}
	return offset, limit
}

// statusForParseError maps the parser's error kinds onto HTTP status codes.
func statusForParseError(err error) int {
	switch extract.KindOf(err) {
	case extract.EmptyInput:
		return http.StatusBadRequest
	case extract.UnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case extract.CorruptDocument:
		return http.StatusUnprocessableEntity
	case extract.IoFailure:
		return http.StatusInternalServerError
	}
	switch {
	case errors.Is(err, intake.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) respondParseError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	var pe *extract.ParseError
	if errors.As(err, &pe) {
		resp.Kind = pe.Kind.String()
		resp.Stage = string(pe.Stage)
	} else if errors.Is(err, intake.ErrTimeout) {
		resp.Kind = "timeout"
	}
	status := statusForParseError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("parse failed", zap.Error(err))
	}
	s.respondJSON(w, status, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, errorResponse{Error: message})
}
