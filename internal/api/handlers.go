package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"intellidoc/internal/models"
	"intellidoc/internal/rag"
)

type askRequest struct {
	Question     string `json:"question" validate:"required"`
	K            int    `json:"k" validate:"gte=0,lte=50"`
	SourceFilter string `json:"source_filter"`
}

type compareRequest struct {
	Doc1 string `json:"doc1_text" validate:"required"`
	Doc2 string `json:"doc2_text" validate:"required"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	name, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	res, err := s.docs.Ingest(r.Context(), name, data)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLegal(w http.ResponseWriter, r *http.Request) {
	name, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	docType := r.FormValue("document_type")
	if docType == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "document_type is required")
		return
	}
	res, err := s.docs.LegalCheck(r.Context(), name, docType, data)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLegalTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.docs.RuleTypes()
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"document_types": types})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !s.decode(w, r, &req) {
		return
	}
	ans, err := s.assistant.Ask(r.Context(), req.Question, rag.Options{K: req.K, Source: req.SourceFilter})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if !s.decode(w, r, &req) {
		return
	}
	out, err := s.assistant.Compare(r.Context(), req.Doc1, req.Doc2)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"comparison": out})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.docs.Status(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.docs.Clear(r.Context()); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "database cleared"})
}

func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	docs, err := s.docs.Docs(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if docs == nil {
		docs = []models.Upload{}
	}
	writeJSON(w, http.StatusOK, map[string][]models.Upload{"documents": docs})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.docs.Sources(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if sources == nil {
		sources = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sources": sources})
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	res, err := s.docs.DeleteSource(r.Context(), r.PathValue("source"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// readUpload reads the multipart "file" field within the upload limit.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		writeBodyError(w, err)
		return "", nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "multipart field \"file\" is required")
		return "", nil, false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeBodyError(w, err)
		return "", nil, false
	}
	return header.Filename, data, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeBodyError(w, err)
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return false
	}
	return true
}

func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, models.ErrExtractionFailed):
		return http.StatusUnprocessableEntity, "extraction_failed"
	case errors.Is(err, models.ErrStoreUnavailable), errors.Is(err, models.ErrEmbeddingFailure):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, models.ErrGeneratorFailure):
		return http.StatusBadGateway, "generator_failure"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	ev := zerolog.Ctx(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		ev = zerolog.Ctx(r.Context()).Error()
	}
	ev.Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeError(w, status, code, err.Error())
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}
