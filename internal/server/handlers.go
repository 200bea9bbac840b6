package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hyperjump/manualqa/internal/loader"
	"github.com/hyperjump/manualqa/internal/models"
	"github.com/hyperjump/manualqa/internal/service"
)

const (
	uploadField      = "uploaded_files"
	multipartMemory  = 32 << 20
	maxSearchLimit   = 100
	defaultPageLimit = 50
)

// invalidFileType is the message returned when an upload is not a PDF.
const invalidFileType = "Invalid file type"

var errInvalidFileType = errors.New("invalid file type")

type uploadFailure struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

type uploadResponse struct {
	Message string          `json:"message"`
	Files   []string        `json:"files"`
	Indexed []string        `json:"indexed"`
	Failed  []uploadFailure `json:"failed"`
}

type queryResponse struct {
	Question  string            `json:"question"`
	Answer    string            `json:"answer"`
	Sources   []models.Citation `json:"sources"`
	QueryTime int64             `json:"query_time_ms"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.config.UploadMaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.UploadMaxBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	headers := r.MultipartForm.File[uploadField]
	if len(headers) == 0 {
		s.respondError(w, http.StatusBadRequest, "no files uploaded")
		return
	}
	// Every part is checked before anything is written or indexed.
	for _, fh := range headers {
		if err := checkPDF(fh); err != nil {
			s.logger.Debug("upload rejected", zap.String("file", fh.Filename), zap.Error(err))
			s.respondError(w, http.StatusBadRequest, invalidFileType)
			return
		}
	}

	if err := os.MkdirAll(s.corpusDir, 0o755); err != nil {
		s.logger.Error("create corpus dir failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	paths := make([]string, 0, len(headers))
	names := make([]string, 0, len(headers))
	for _, fh := range headers {
		path, err := s.saveUpload(fh)
		if err != nil {
			s.logger.Error("save upload failed", zap.String("file", fh.Filename), zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "failed to save "+fh.Filename)
			return
		}
		paths = append(paths, path)
		names = append(names, filepath.Base(path))
	}
	s.logger.Debug("upload saved", zap.Strings("files", names))

	report, err := s.svc.Update(r.Context(), paths)
	if err != nil {
		s.respondServiceError(w, "upload indexing failed", err)
		return
	}
	resp := uploadResponse{
		Message: "Upload successful",
		Files:   names,
		Indexed: nonNil(report.Indexed),
		Failed:  []uploadFailure{},
	}
	for _, f := range report.Failed {
		resp.Failed = append(resp.Failed, uploadFailure{File: filepath.Base(f.Path), Error: f.Err.Error()})
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// checkPDF accepts a part only when its name ends in .pdf and its content sniffs as PDF.
func checkPDF(fh *multipart.FileHeader) error {
	if !loader.IsSupported(fh.Filename) || safeName(fh.Filename) == "" {
		return fmt.Errorf("%w: extension", errInvalidFileType)
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return err
	}
	if !mt.Is("application/pdf") {
		return fmt.Errorf("%w: content is %s", errInvalidFileType, mt.String())
	}
	return nil
}

// safeName strips directories from a client supplied file name.
func safeName(name string) string {
	base := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, `\`, "/")))
	if base == "/" || base == "." || strings.HasPrefix(base, ".") {
		return ""
	}
	return base
}

// saveUpload writes the part into the corpus directory via a temp file and rename.
func (s *Server) saveUpload(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()
	dst := filepath.Join(s.corpusDir, safeName(fh.Filename))
	tmp, err := os.CreateTemp(s.corpusDir, ".upload-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return dst, nil
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	} else {
		req.Question = r.FormValue("question")
	}
	if err := req.Normalize(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("question failed %q check", verrs[0].Tag()))
			return
		}
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("query request", zap.String("question", req.Question))
	res, err := s.svc.Query(r.Context(), req.Question)
	if err != nil {
		s.respondServiceError(w, "query failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, queryResponse{
		Question:  res.Question,
		Answer:    res.Answer,
		Sources:   nonNil(res.Citations),
		QueryTime: res.QueryTime,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit, err := intParam(r, "limit", 10)
	if err != nil || limit <= 0 {
		s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	limit = min(limit, maxSearchLimit)
	s.logger.Debug("search request", zap.String("q", q), zap.Int("limit", limit))
	hits, err := s.svc.Search(r.Context(), q, limit)
	if err != nil {
		s.respondServiceError(w, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"query":   q,
		"results": nonNil(hits),
		"total":   len(hits),
	})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	offset, err := intParam(r, "offset", 0)
	if err != nil || offset < 0 {
		s.respondError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	limit, err := intParam(r, "limit", defaultPageLimit)
	if err != nil || limit <= 0 {
		s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	docs, err := s.svc.Documents(r.Context(), offset, limit)
	if err != nil {
		s.respondServiceError(w, "list documents failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": nonNil(docs)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Status(r.Context())
	if err != nil {
		s.respondServiceError(w, "status failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrConfiguration),
		errors.Is(err, models.ErrEmptyQuestion),
		errors.Is(err, models.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotReady),
		errors.Is(err, models.ErrEmptyIndex),
		errors.Is(err, service.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondServiceError(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	switch {
	case errors.Is(err, models.ErrNotReady):
		err = models.ErrNotReady
	case errors.Is(err, models.ErrEmptyIndex):
		err = models.ErrEmptyIndex
	}
	if status == http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Int("status", status), zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
