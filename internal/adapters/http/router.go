package httpadapter

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/hybrid-rag-assistant/internal/config"
	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
	"github.com/kirillkom/hybrid-rag-assistant/internal/core/ports"
	"github.com/kirillkom/hybrid-rag-assistant/internal/observability/logging"
	"github.com/kirillkom/hybrid-rag-assistant/internal/observability/metrics"
)

const (
	serviceName      = "api"
	userIDHeader     = "X-User-Id"
	backpressureWait = 250 * time.Millisecond
	multipartMemory  = 8 << 20
)

type Dependencies struct {
	Ingestor  ports.DocumentIngestor
	Documents ports.DocumentReader
	Remover   ports.DocumentRemover
	Queries   ports.QueryProcessor
	Threads   ports.ThreadService
	Tools     ports.ToolCatalog
	Metrics   *metrics.HTTPServerMetrics
}

type Router struct {
	cfg       config.Config
	deps      Dependencies
	validator *requestValidator
}

func NewRouter(cfg config.Config, deps Dependencies) (*Router, error) {
	validator, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	return &Router{
		cfg:       cfg,
		deps:      deps,
		validator: validator,
	}, nil
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", rt.openapi)
	if rt.deps.Metrics != nil && rt.cfg.MetricsPort == "" {
		mux.Handle("GET /metrics", rt.deps.Metrics.Handler())
	}
	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents", rt.listDocuments)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	mux.HandleFunc("DELETE /v1/documents/{id}", rt.deleteDocument)
	mux.HandleFunc("POST /v1/chat/query", rt.chatQuery)
	mux.HandleFunc("GET /v1/chat/threads", rt.listThreads)
	mux.HandleFunc("GET /v1/chat/threads/{thread_id}", rt.getThread)
	mux.HandleFunc("DELETE /v1/chat/threads/{thread_id}", rt.deleteThread)
	mux.HandleFunc("GET /v1/tools", rt.listTools)

	var rejected rejectionRecorder
	if rt.deps.Metrics != nil {
		rejected = rt.deps.Metrics
	}

	var handler http.Handler = mux
	handler = rt.validator.middleware(handler)
	handler = backpressureWithRecorder(handler, rt.cfg.MaxInFlight, backpressureWait, rejected)
	handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst, rejected)
	if rt.deps.Metrics != nil {
		handler = rt.deps.Metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openapi(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapiSpec)
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	doc, err := rt.deps.Ingestor.Upload(
		r.Context(),
		userID,
		fileHeader.Filename,
		detectMimeType(fileHeader.Header.Get("Content-Type"), fileHeader.Filename),
		file,
	)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	docs, err := rt.deps.Documents.ListForUser(r.Context(), userID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	doc, err := rt.deps.Documents.GetForUser(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := rt.deps.Remover.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type chatQueryRequest struct {
	Query    string  `json:"query"`
	ThreadID *string `json:"thread_id"`
}

func (rt *Router) chatQuery(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req chatQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	threadID := ""
	if req.ThreadID != nil {
		threadID = *req.ThreadID
	}

	resp, err := rt.deps.Queries.ProcessQuery(r.Context(), req.Query, userID, threadID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) listThreads(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	threads, err := rt.deps.Threads.ListThreads(r.Context(), userID, limit, offset)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"threads": threads})
}

func (rt *Router) getThread(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	thread, err := rt.deps.Threads.GetThread(r.Context(), userID, r.PathValue("thread_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

func (rt *Router) deleteThread(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := rt.deps.Threads.DeleteThread(r.Context(), userID, r.PathValue("thread_id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) listTools(w http.ResponseWriter, _ *http.Request) {
	catalog := []domain.ToolInfo{}
	if rt.deps.Tools != nil {
		catalog = rt.deps.Tools.Catalog()
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": catalog})
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(userIDHeader))
	if userID == "" {
		writeError(w, http.StatusUnauthorized, userIDHeader+" header is required")
		return "", false
	}
	return userID, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func detectMimeType(header, filename string) string {
	if mediaType, _, err := mime.ParseMediaType(header); err == nil && mediaType != "application/octet-stream" {
		return mediaType
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		if mediaType, _, err := mime.ParseMediaType(byExt); err == nil {
			return mediaType
		}
	}
	return "application/octet-stream"
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	logger := logging.FromContext(r.Context())
	switch {
	case status >= 500:
		logger.Error("request_failed", "path", r.URL.Path, "status", status, "error", err)
	default:
		logger.Warn("request_rejected", "path", r.URL.Path, "status", status, "error", err)
	}

	message := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		message = "service temporarily unavailable"
	case http.StatusInternalServerError:
		message = "internal server error"
	}
	writeError(w, status, message)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
