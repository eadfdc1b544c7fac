package monday

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/portal-credential-exchange/internal/domain"
)

var ErrAPI = errors.New("monday api error")

const maxResponseBytes = 4 << 20

type ClientConfig struct {
	Endpoint   string
	Token      string
	APIVersion string
	Timeout    time.Duration
}

// Client posts GraphQL documents to the Monday.com API.
type Client struct {
	endpoint   string
	token      string
	apiVersion string
	httpClient *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		token:      strings.TrimSpace(cfg.Token),
		apiVersion: cfg.APIVersion,
		httpClient: newHTTPClient(cfg.Timeout),
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(transport),
	}
}

func (c *Client) Configured() bool {
	return c.token != "" && c.endpoint != ""
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data         json.RawMessage `json:"data"`
	Errors       []graphQLError  `json:"errors"`
	ErrorCode    string          `json:"error_code"`
	ErrorMessage string          `json:"error_message"`
}

// Query runs one GraphQL document and decodes its data field into out.
func (c *Client) Query(ctx context.Context, query string, variables map[string]any, out any) error {
	if !c.Configured() {
		return fmt.Errorf("%w: monday api token", domain.ErrNotConfigured)
	}
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.token)
	if c.apiVersion != "" {
		req.Header.Set("API-Version", c.apiVersion)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrAPI, resp.StatusCode)
	}
	var envelope graphQLResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrAPI, err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("%w: %s", ErrAPI, envelope.Errors[0].Message)
	}
	if envelope.ErrorMessage != "" {
		return fmt.Errorf("%w: %s %s", ErrAPI, envelope.ErrorCode, envelope.ErrorMessage)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%w: decode data: %w", ErrAPI, err)
	}
	return nil
}
