package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
	"github.com/kirillkom/hybrid-rag-assistant/internal/infrastructure/resilience"
)

const (
	serviceName = "qdrant"

	payloadExternalID = "external_id"
	payloadChunkID    = "chunk_id"
	payloadContent    = "content"
)

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

type Options struct {
	HTTPTimeout        time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL, collection string) *Client {
	return NewWithOptions(baseURL, collection, Options{})
}

func NewWithOptions(baseURL, collection string, options Options) *Client {
	timeout := options.HTTPTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

// PointID maps an external chunk id to a stable Qdrant point id.
func PointID(externalID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(externalID)).String()
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) Upsert(ctx context.Context, points []domain.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	size := len(points[0].Vector)
	if size == 0 {
		return fmt.Errorf("qdrant upsert: empty vector for %s", points[0].ExternalID)
	}

	body := make([]point, 0, len(points))
	for _, p := range points {
		if len(p.Vector) != size {
			return fmt.Errorf("qdrant upsert: vector size mismatch for %s: %d != %d", p.ExternalID, len(p.Vector), size)
		}
		payload := domain.CloneMetadata(p.Payload)
		payload[payloadExternalID] = p.ExternalID
		body = append(body, point{
			ID:      PointID(p.ExternalID),
			Vector:  p.Vector,
			Payload: payload,
		})
	}

	if err := c.ensureCollection(ctx, size); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	return c.do(ctx, http.MethodPut, url, map[string]any{"points": body}, nil, "upsert")
}

func (c *Client) Search(ctx context.Context, vector []float32, userID string, limit int) ([]domain.RetrievalResult, error) {
	if limit <= 0 {
		return []domain.RetrievalResult{}, nil
	}
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"filter":       matchFilter(map[string]string{domain.MetaUserID: userID}),
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	err := c.do(ctx, http.MethodPost, url, reqBody, &searchResp, "search")
	if isNotFound(err) {
		return []domain.RetrievalResult{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]domain.RetrievalResult, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, resultFromPayload(r.Payload, r.Score))
	}
	return out, nil
}

func (c *Client) DeleteByDocument(ctx context.Context, documentID, userID string) error {
	reqBody := map[string]any{
		"filter": matchFilter(map[string]string{
			domain.MetaDocumentID: documentID,
			domain.MetaUserID:     userID,
		}),
	}
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, c.collection)
	err := c.do(ctx, http.MethodPost, url, reqBody, nil, "delete")
	if isNotFound(err) {
		return nil
	}
	return err
}

func resultFromPayload(payload map[string]any, score float64) domain.RetrievalResult {
	metadata := domain.CloneMetadata(payload)
	content := getStringPayload(payload, payloadContent)
	id := getStringPayload(payload, payloadChunkID)
	if id == "" {
		id = getStringPayload(payload, payloadExternalID)
	}
	delete(metadata, payloadContent)
	delete(metadata, payloadExternalID)
	return domain.RetrievalResult{
		ID:       id,
		Content:  content,
		Metadata: metadata,
		Score:    score,
		Source:   domain.SourceVector,
	}
}

func matchFilter(fields map[string]string) map[string]any {
	must := make([]map[string]any, 0, len(fields))
	for key, value := range fields {
		must = append(must, map[string]any{
			"key":   key,
			"match": map[string]any{"value": value},
		})
	}
	return map[string]any{"must": must}
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err := c.do(ctx, http.MethodPut, url, reqBody, nil, "ensure collection")

	// 409 if the collection already exists (depends on version/config).
	var statusErr *resilience.HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		err = nil
	}
	if err != nil {
		return err
	}
	if err := c.ensureUserIndex(ctx); err != nil {
		return err
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

// ensureUserIndex creates the keyword payload index used by the per-user filter.
func (c *Client) ensureUserIndex(ctx context.Context) error {
	url := fmt.Sprintf("%s/collections/%s/index?wait=true", c.baseURL, c.collection)
	reqBody := map[string]any{
		"field_name":   domain.MetaUserID,
		"field_schema": "keyword",
	}
	return c.do(ctx, http.MethodPut, url, reqBody, nil, "ensure index")
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func (c *Client) do(ctx context.Context, method, url string, payload any, out any, operation string) error {
	return resilience.CallJSON(ctx, c.executor, c.httpClient, resilience.JSONCall{
		Service:   serviceName,
		Operation: operation,
		Method:    method,
		URL:       url,
		Payload:   payload,
	}, out)
}

func isNotFound(err error) bool {
	var statusErr *resilience.HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
