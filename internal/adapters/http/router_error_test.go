package httpadapter

import (
	"errors"
	"net/http"
	"testing"

	"github.com/kirillkom/hybrid-rag-assistant/internal/config"
	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
)

func TestChatQueryMapsDomainErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{
			name:    "invalid input",
			err:     domain.WrapError(domain.ErrInvalidInput, "process query", errors.New("query is empty")),
			status:  http.StatusBadRequest,
			message: "process query: invalid input: query is empty",
		},
		{
			name:    "thread not found",
			err:     domain.WrapError(domain.ErrThreadNotFound, "load thread", errors.New("thread x")),
			status:  http.StatusNotFound,
			message: "load thread: thread not found: thread x",
		},
		{
			name:    "temporary",
			err:     domain.WrapError(domain.ErrTemporary, "ollama.chat", errors.New("connection refused")),
			status:  http.StatusServiceUnavailable,
			message: "service temporarily unavailable",
		},
		{
			name:    "unknown",
			err:     errors.New("database exploded with secrets"),
			status:  http.StatusInternalServerError,
			message: "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestDependencies()
			deps.Queries = &fakeQueries{err: tt.err}
			handler := newTestHandler(t, config.Config{}, deps)

			res := doRequest(handler, http.MethodPost, "/v1/chat/query", "user-1", `{"query":"q"}`)
			if res.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, res.Code)
			}
			if got := decodeBody(t, res)["error"]; got != tt.message {
				t.Fatalf("expected message %q, got %q", tt.message, got)
			}
		})
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := map[error]int{
		domain.WrapError(domain.ErrValidation, "op", errors.New("x")):       http.StatusBadRequest,
		domain.WrapError(domain.ErrUnauthorized, "op", errors.New("x")):     http.StatusUnauthorized,
		domain.WrapError(domain.ErrDocumentNotFound, "op", errors.New("x")): http.StatusNotFound,
		domain.WrapError(domain.ErrGeneration, "op", errors.New("x")):       http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := mapErrorToHTTPStatus(err); got != want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", err, got, want)
		}
	}
}
