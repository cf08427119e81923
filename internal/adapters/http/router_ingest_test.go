package httpadapter

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/hybrid-rag-assistant/internal/config"
	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
)

func newUploadRequest(t *testing.T, field, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set(userIDHeader, "user-1")
	return req
}

func TestUploadDocumentAccepted(t *testing.T) {
	deps := newTestDependencies()
	handler := newTestHandler(t, config.Config{MaxUploadBytes: 1 << 20}, deps)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, newUploadRequest(t, "file", "notes.txt", "hello"))
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}

	ingestor := deps.Ingestor.(*fakeIngestor)
	if ingestor.userID != "user-1" || ingestor.filename != "notes.txt" || ingestor.body != "hello" {
		t.Fatalf("unexpected upload call: %+v", ingestor)
	}
	if ingestor.mimeType != "text/plain" {
		t.Fatalf("expected mime type from extension, got %q", ingestor.mimeType)
	}
	body := decodeBody(t, res)
	if body["status"] != string(domain.StatusUploaded) {
		t.Fatalf("expected uploaded status, got %v", body["status"])
	}
}

func TestUploadDocumentMissingFileField(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, newTestDependencies())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, newUploadRequest(t, "attachment", "notes.txt", "hello"))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUploadDocumentTooLarge(t *testing.T) {
	handler := newTestHandler(t, config.Config{MaxUploadBytes: 64}, newTestDependencies())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, newUploadRequest(t, "file", "big.txt", strings.Repeat("x", 4096)))
	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.Code)
	}
}

func TestUploadDocumentUnsupportedTypeReturns400(t *testing.T) {
	deps := newTestDependencies()
	deps.Ingestor = &fakeIngestor{err: domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("unsupported mime type"))}
	handler := newTestHandler(t, config.Config{}, deps)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, newUploadRequest(t, "file", "image.png", "png"))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestDetectMimeType(t *testing.T) {
	tests := []struct {
		header   string
		filename string
		want     string
	}{
		{header: "text/markdown; charset=utf-8", filename: "a.md", want: "text/markdown"},
		{header: "application/octet-stream", filename: "a.txt", want: "text/plain"},
		{header: "", filename: "blob", want: "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := detectMimeType(tt.header, tt.filename); got != tt.want {
			t.Fatalf("detectMimeType(%q, %q) = %q, want %q", tt.header, tt.filename, got, tt.want)
		}
	}
}
