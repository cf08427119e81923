package resilience

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
)

// HTTPStatusError is returned by HTTP adapters for non-2xx upstream replies.
type HTTPStatusError struct {
	Service    string
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "upstream status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("%s %s status: %s", e.Service, e.Operation, e.Status)
	}
	return fmt.Sprintf("%s %s status: %s: %s", e.Service, e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// NewHTTPStatusError reads a bounded prefix of the body for diagnostics.
func NewHTTPStatusError(service, operation string, resp *http.Response) *HTTPStatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		Service:    service,
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(body),
	}
}

// ClassifyHTTPError is the shared classifier for JSON-over-HTTP upstreams.
func ClassifyHTTPError(err error) ErrorClassification {
	if err == nil {
		return ErrorClassification{}
	}
	if IsAttemptTimeout(err) {
		return ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	if IsCircuitOpen(err) {
		return ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if IsRetryableHTTPStatus(statusErr.StatusCode) {
			return ErrorClassification{
				Retryable:     true,
				RecordFailure: true,
			}
		}
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	return ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}

func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// WrapTemporary marks retryable upstream failures as domain.ErrTemporary.
func WrapTemporary(operation string, err error, classifier ErrorClassifier) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifier == nil {
		classifier = ClassifyHTTPError
	}
	class := classifier(err)
	if class.Retryable || IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

// Run executes fn through the executor when one is configured.
func Run(ctx context.Context, executor *Executor, operation string, fn func(context.Context) error, classifier ErrorClassifier) error {
	if executor == nil {
		return fn(ctx)
	}
	return executor.Execute(ctx, operation, fn, classifier)
}

// JSONCall is one JSON request to an upstream service. A nil Payload sends no
// body.
type JSONCall struct {
	Service   string
	Operation string
	Method    string
	URL       string
	Payload   any
}

func (c JSONCall) executorOperation() string {
	return c.Service + "." + strings.ReplaceAll(c.Operation, " ", "_")
}

// CallJSON runs DoJSON through the executor and marks retryable failures
// temporary.
func CallJSON(ctx context.Context, executor *Executor, client *http.Client, call JSONCall, out any) error {
	err := Run(ctx, executor, call.executorOperation(), func(callCtx context.Context) error {
		return DoJSON(callCtx, client, call, out)
	}, ClassifyHTTPError)
	return WrapTemporary(call.Service+" "+call.Operation, err, ClassifyHTTPError)
}

// DoJSON performs a single attempt. Non-2xx replies become *HTTPStatusError;
// a 2xx body is decoded into out unless out is nil.
func DoJSON(ctx context.Context, client *http.Client, call JSONCall, out any) error {
	var body io.Reader
	if call.Payload != nil {
		raw, err := json.Marshal(call.Payload)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", call.Operation, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, call.Method, call.URL, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", call.Operation, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s request: %w", call.Service, call.Operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return NewHTTPStatusError(call.Service, call.Operation, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", call.Operation, err)
	}
	return nil
}
