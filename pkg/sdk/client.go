// Package sdk is a thin HTTP client for the needle API.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 60 * time.Second

// Client talks to a running needle server.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends the key as a bearer token on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the given base URL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// WriteDocuments adds documents to the corpus. Existing ids are overwritten
// unless failOnDuplicate is set.
func (c *Client) WriteDocuments(ctx context.Context, docs []Document, failOnDuplicate bool) (int, error) {
	req := writeDocumentsRequest{Documents: docs, FailOnDuplicate: failOnDuplicate}
	var resp writeDocumentsResponse
	if err := c.do(ctx, http.MethodPost, "/v1/documents", req, &resp); err != nil {
		return 0, err
	}
	return resp.Written, nil
}

// GetDocument fetches a single document by id.
func (c *Client) GetDocument(ctx context.Context, id string) (Document, error) {
	var doc Document
	path := "/v1/documents/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodGet, path, nil, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// UpdateEmbeddings triggers an embedding pass over pending documents.
func (c *Client) UpdateEmbeddings(ctx context.Context, batchSize int) (EmbedReport, error) {
	req := updateEmbeddingsRequest{BatchSize: batchSize}
	var resp EmbedReport
	if err := c.do(ctx, http.MethodPost, "/v1/index/embeddings", req, &resp); err != nil {
		return EmbedReport{}, err
	}
	return resp, nil
}

// Search retrieves the topK passages most relevant to the query.
func (c *Client) Search(ctx context.Context, query string, topK int) ([]SearchHit, error) {
	req := searchRequest{Query: query, TopK: topK}
	var resp searchResponse
	if err := c.do(ctx, http.MethodPost, "/v1/search", req, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Ask runs the full question answering pipeline.
func (c *Client) Ask(ctx context.Context, question string, opts AskOptions) ([]Answer, error) {
	req := askRequest{
		Question:      question,
		TopKRetriever: opts.TopKRetriever,
		TopKReader:    opts.TopKReader,
		MaxAnswers:    opts.MaxAnswers,
	}
	var resp askResponse
	if err := c.do(ctx, http.MethodPost, "/v1/ask", req, &resp); err != nil {
		return nil, err
	}
	return resp.Answers, nil
}

// Health reports server component health. A degraded server returns the
// report alongside a non-nil *APIError with StatusServiceUnavailable.
func (c *Client) Health(ctx context.Context) (HealthReport, error) {
	var resp HealthReport
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("sdk: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("sdk: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sdk: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return parseAPIError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("sdk: decode response: %w", err)
		}
	}
	return nil
}

func parseAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err == nil {
		_ = json.Unmarshal(data, apiErr)
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
