package monday

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

	"github.com/sandeepkv93/portal-credential-exchange/internal/domain"
	"github.com/sandeepkv93/portal-credential-exchange/internal/observability"
)

type StorageConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Storage is the app storage key-value API. It has independent get, set and delete with no
// expiry and no conditional delete, so callers needing an atomic take wrap it in a locking store.
type Storage struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type storageValue struct {
	Value string `json:"value"`
}

func NewStorage(cfg StorageConfig) *Storage {
	return &Storage{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      strings.TrimSpace(cfg.Token),
		httpClient: newHTTPClient(cfg.Timeout),
	}
}

func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.do(ctx, http.MethodGet, key, nil)
	if err != nil {
		observability.RecordStoreOperation(ctx, "monday", "get", "error")
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		observability.RecordStoreOperation(ctx, "monday", "get", "not_found")
		return nil, domain.ErrKeyNotFound
	default:
		observability.RecordStoreOperation(ctx, "monday", "get", "error")
		return nil, fmt.Errorf("%w: storage get status %d", ErrAPI, resp.StatusCode)
	}

	var out storageValue
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		observability.RecordStoreOperation(ctx, "monday", "get", "error")
		return nil, fmt.Errorf("%w: decode storage value: %w", ErrAPI, err)
	}
	if out.Value == "" {
		observability.RecordStoreOperation(ctx, "monday", "get", "not_found")
		return nil, domain.ErrKeyNotFound
	}
	observability.RecordStoreOperation(ctx, "monday", "get", "success")
	return []byte(out.Value), nil
}

func (s *Storage) Set(ctx context.Context, key string, value []byte) error {
	body, err := json.Marshal(storageValue{Value: string(value)})
	if err != nil {
		return err
	}
	resp, err := s.do(ctx, http.MethodPost, key, body)
	if err != nil {
		observability.RecordStoreOperation(ctx, "monday", "set", "error")
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		observability.RecordStoreOperation(ctx, "monday", "set", "error")
		return fmt.Errorf("%w: storage set status %d", ErrAPI, resp.StatusCode)
	}
	observability.RecordStoreOperation(ctx, "monday", "set", "success")
	return nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	resp, err := s.do(ctx, http.MethodDelete, key, nil)
	if err != nil {
		observability.RecordStoreOperation(ctx, "monday", "delete", "error")
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || (resp.StatusCode >= 200 && resp.StatusCode <= 299) {
		observability.RecordStoreOperation(ctx, "monday", "delete", "success")
		return nil
	}
	observability.RecordStoreOperation(ctx, "monday", "delete", "error")
	return fmt.Errorf("%w: storage delete status %d", ErrAPI, resp.StatusCode)
}

func (s *Storage) do(ctx context.Context, method, key string, body []byte) (*http.Response, error) {
	if s.token == "" || s.baseURL == "" {
		return nil, fmt.Errorf("%w: monday storage token", domain.ErrNotConfigured)
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+"/"+url.PathEscape(key), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", s.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.httpClient.Do(req)
}
