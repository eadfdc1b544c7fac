package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/sandeepkv93/portal-credential-exchange/internal/config"
	"github.com/sandeepkv93/portal-credential-exchange/internal/di"
)

const (
	testBoardID   = "board-1"
	testAPIKey    = "issuer-key"
	testSecret    = "abcdefghijklmnopqrstuvwxyz123456"
	testMondayKey = "monday-token"
)

type boardRow struct {
	ID      string
	Name    string
	Email   string
	Company string
}

// fakeMonday serves the GraphQL API under /v2 and app storage under /storage/.
type fakeMonday struct {
	mu      sync.Mutex
	rows    []boardRow
	storage map[string]string
	scans   atomic.Int32
}

func (f *fakeMonday) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != testMondayKey {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	switch {
	case r.URL.Path == "/v2":
		f.serveGraphQL(w, r)
	case strings.HasPrefix(r.URL.Path, "/storage/"):
		f.serveStorage(w, r, strings.TrimPrefix(r.URL.Path, "/storage/"))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeMonday) itemJSON(row boardRow, withBoard bool) map[string]any {
	out := map[string]any{
		"id":   row.ID,
		"name": row.Name,
		"column_values": []map[string]string{
			{"id": "email", "text": row.Email},
			{"id": "company", "text": row.Company},
		},
	}
	if withBoard {
		out["board"] = map[string]string{"id": testBoardID}
	}
	return out
}

func (f *fakeMonday) serveGraphQL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var data any
	switch {
	case strings.Contains(req.Query, "next_items_page"):
		data = map[string]any{"next_items_page": map[string]any{"cursor": "", "items": []any{}}}
	case strings.Contains(req.Query, "items_page"):
		f.scans.Add(1)
		items := make([]any, 0, len(f.rows))
		for _, row := range f.rows {
			items = append(items, f.itemJSON(row, false))
		}
		data = map[string]any{"boards": []any{map[string]any{"items_page": map[string]any{"cursor": "", "items": items}}}}
	case strings.Contains(req.Query, "items(ids"):
		ids, _ := req.Variables["ids"].([]any)
		items := []any{}
		for _, row := range f.rows {
			if len(ids) > 0 && ids[0] == row.ID {
				items = append(items, f.itemJSON(row, true))
			}
		}
		data = map[string]any{"items": items}
	default:
		_ = json.NewEncoder(w).Encode(map[string]any{"errors": []map[string]string{{"message": "unknown query"}}})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func (f *fakeMonday) serveStorage(w http.ResponseWriter, r *http.Request, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodGet:
		v, ok := f.storage[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"value": v})
	case http.MethodPost:
		var in struct {
			Value string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.storage[key] = in.Value
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(f.storage, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeMonday) removeRow(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.rows[:0]
	for _, row := range f.rows {
		if row.ID != id {
			kept = append(kept, row)
		}
	}
	f.rows = kept
}

func (f *fakeMonday) storedKeys(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for k := range f.storage {
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}

type portalStack struct {
	baseURL string
	client  *http.Client
	monday  *fakeMonday
	redis   *miniredis.Miniredis
}

// newPortalStack wires the full application against a fake Monday account and miniredis.
func newPortalStack(t *testing.T, overrides map[string]string) *portalStack {
	t.Helper()
	mr := miniredis.RunT(t)
	fake := &fakeMonday{
		rows: []boardRow{
			{ID: "U1", Name: "Alice", Email: "Alice@Example.com", Company: "C7"},
			{ID: "U2", Name: "Bob", Email: "bob@example.com"},
		},
		storage: make(map[string]string),
	}
	mondaySrv := httptest.NewServer(fake)
	t.Cleanup(mondaySrv.Close)

	env := map[string]string{
		"APP_ENV":                  "test",
		"PUBLIC_BASE_URL":          "https://portal.example.com",
		"JWT_SECRET":               testSecret,
		"ISSUER_API_KEY":           testAPIKey,
		"DIRECTORY_DRIVER":         "monday",
		"STORE_DRIVER":             "monday",
		"MONDAY_API_URL":           mondaySrv.URL + "/v2",
		"MONDAY_STORAGE_URL":       mondaySrv.URL + "/storage",
		"MONDAY_API_TOKEN":         testMondayKey,
		"MONDAY_USERS_BOARD_ID":    testBoardID,
		"MONDAY_COMPANY_COLUMN_ID": "company",
		"REDIS_ADDR":               mr.Addr(),
	}
	for k, v := range overrides {
		env[k] = v
	}
	cfg, err := config.Load(func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	a, err := di.InitializeApp(cfg, logger, nil)
	if err != nil {
		t.Fatalf("initialize app: %v", err)
	}
	srv := httptest.NewServer(a.Server.Handler)
	t.Cleanup(func() {
		srv.Close()
		_ = a.Shutdown(context.Background())
	})
	return &portalStack{baseURL: srv.URL, client: srv.Client(), monday: fake, redis: mr}
}

func (s *portalStack) do(t *testing.T, method, path string, headers map[string]string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.baseURL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

func decode(t *testing.T, raw []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func (s *portalStack) issue(t *testing.T, email string) string {
	t.Helper()
	resp, raw := s.do(t, http.MethodPost, "/api/v1/auth/magic-link", map[string]string{"X-API-Key": testAPIKey}, map[string]any{"email": email})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("issue status=%d body=%s", resp.StatusCode, raw)
	}
	var out struct {
		MagicLink string `json:"magic_link"`
	}
	decode(t, raw, &out)
	const marker = "/auth/magic?token="
	idx := strings.Index(out.MagicLink, marker)
	if idx < 0 {
		t.Fatalf("unexpected magic link %q", out.MagicLink)
	}
	return out.MagicLink[idx+len(marker):]
}
