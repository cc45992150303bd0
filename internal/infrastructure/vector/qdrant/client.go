package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adamstz/organize-mail-sub001/internal/core/domain"
)

// Client is a thin wrapper over the Qdrant HTTP API holding one collection of
// message embeddings. Point ids are derived deterministically from the mail
// message id so re-indexing the same message overwrites its point instead of
// duplicating it.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func pointID(messageID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(messageID)).String()
}

func (c *Client) IndexMessage(ctx context.Context, msg domain.MailMessage, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("empty vector for message %s", msg.ID)
	}
	if err := c.ensureCollection(ctx, len(vector)); err != nil {
		return err
	}

	reqBody := map[string]any{
		"points": []map[string]any{{
			"id":     pointID(msg.ID),
			"vector": vector,
			"payload": map[string]any{
				"message_id": msg.ID,
				"subject":    msg.Subject,
				"sender":     msg.From,
				"labels":     msg.Labels,
			},
		}},
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	return c.do(ctx, http.MethodPut, path, reqBody, nil, "upsert")
}

func (c *Client) Search(
	ctx context.Context,
	queryVector []float32,
	limit int,
	threshold float64,
	filter domain.SearchFilter,
) ([]domain.RetrievedDocument, error) {
	if limit <= 0 {
		limit = 10
	}

	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if threshold > 0 {
		reqBody["score_threshold"] = threshold
	}
	if filter.Label != "" {
		reqBody["filter"] = map[string]any{
			"must": []map[string]any{
				{
					"key": "labels",
					"match": map[string]any{
						"value": filter.Label,
					},
				},
			},
		}
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.do(ctx, http.MethodPost, path, reqBody, &searchResp, "search"); err != nil {
		return nil, err
	}

	out := make([]domain.RetrievedDocument, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		id := getStringPayload(r.Payload, "message_id")
		if id == "" {
			continue
		}
		out = append(out, domain.RetrievedDocument{
			ID:     id,
			Rank:   len(out) + 1,
			Source: domain.SourceVector,
			Score:  r.Score,
		})
	}
	return out, nil
}

func (c *Client) VectorByMessageID(ctx context.Context, messageID string) ([]float32, error) {
	reqBody := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{
					"key": "message_id",
					"match": map[string]any{
						"value": messageID,
					},
				},
			},
		},
		"limit":       1,
		"with_vector": true,
	}

	var scrollResp struct {
		Result struct {
			Points []struct {
				Vector []float32 `json:"vector"`
			} `json:"points"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/scroll", c.collection)
	if err := c.do(ctx, http.MethodPost, path, reqBody, &scrollResp, "scroll"); err != nil {
		return nil, err
	}

	if len(scrollResp.Result.Points) == 0 || len(scrollResp.Result.Points[0].Vector) == 0 {
		return nil, domain.WrapError(domain.ErrMessageNotFound, "vector lookup", fmt.Errorf("message %s not indexed", messageID))
	}
	return scrollResp.Result.Points[0].Vector, nil
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

	path := fmt.Sprintf("/collections/%s", c.collection)
	err := c.do(ctx, http.MethodPut, path, reqBody, nil, "ensure collection")
	if err != nil {
		// 409 means the collection already exists (depends on version/config).
		var statusErr *statusError
		if asStatusError(err, &statusErr) && statusErr.code == http.StatusConflict {
			c.markCollectionEnsured(vectorSize)
			return nil
		}
		return err
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

type statusError struct {
	operation string
	code      int
	status    string
	body      string
}

func (e *statusError) Error() string {
	if strings.TrimSpace(e.body) == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.operation, e.status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.operation, e.status, e.body)
}

func asStatusError(err error, target **statusError) bool {
	se, ok := err.(*statusError)
	if ok {
		*target = se
	}
	return ok
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{
			operation: operation,
			code:      resp.StatusCode,
			status:    resp.Status,
			body:      strings.TrimSpace(string(raw)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
