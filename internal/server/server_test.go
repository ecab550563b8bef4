package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"pageone/internal/config"
	"pageone/internal/db"
	"pageone/internal/engine"
	"pageone/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("pageone")
	e := engine.New(conn, cfg)
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: "test-secret"}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func signup(t *testing.T, srv *testServer, email, userType string) (string, string) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/signup", map[string]any{
		"email":    email,
		"password": "hunter2hunter2",
		"type":     userType,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("signup %s status %d: %s", email, res.StatusCode, string(data))
	}
	var auth AuthResponse
	if err := json.Unmarshal(data, &auth); err != nil {
		t.Fatalf("unmarshal auth: %v", err)
	}
	return auth.Token, auth.User.ID
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestGreenlightFlowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	writerToken, writerID := signup(t, srv, "w1@example.com", "writer")
	producerToken, _ := signup(t, srv, "p1@example.com", "producer")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/snippets", map[string]any{
		"title":        "Alpha",
		"genre":        "drama",
		"synopsis":     "a synopsis",
		"hook":         "a hook",
		"plot_summary": "a plot",
		"best_scene":   "a scene",
	}, bearer(writerToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create snippet status %d: %s", res.StatusCode, string(data))
	}
	var created SnippetResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal snippet: %v", err)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/discovery/next", nil, bearer(producerToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("discovery status %d: %s", res.StatusCode, string(data))
	}
	var draw DiscoveryNextResponse
	if err := json.Unmarshal(data, &draw); err != nil {
		t.Fatalf("unmarshal draw: %v", err)
	}
	if draw.NoMoreSnippets || draw.Snippet == nil {
		t.Fatalf("expected a card, got %s", string(data))
	}
	if draw.Snippet.ID != created.ID {
		t.Fatalf("discovery returned %s, want %s", draw.Snippet.ID, created.ID)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/snippets/"+created.ID+"/greenlight", nil, bearer(producerToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("greenlight status %d: %s", res.StatusCode, string(data))
	}
	var thread ThreadResponse
	if err := json.Unmarshal(data, &thread); err != nil {
		t.Fatalf("unmarshal thread: %v", err)
	}
	if thread.WriterID != writerID || thread.SnippetID != created.ID {
		t.Fatalf("thread wrong: %+v", thread)
	}

	// Duplicate greenlight conflicts.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/snippets/"+created.ID+"/greenlight", nil, bearer(producerToken))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate greenlight status %d: %s", res.StatusCode, string(data))
	}

	// Both sides see the thread; the writer starts with one unread seed.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/threads", nil, bearer(writerToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list threads status %d: %s", res.StatusCode, string(data))
	}
	var threads struct {
		Items []ThreadResponse `json:"items"`
	}
	if err := json.Unmarshal(data, &threads); err != nil {
		t.Fatalf("unmarshal threads: %v", err)
	}
	if len(threads.Items) != 1 || threads.Items[0].Unread != 1 {
		t.Fatalf("writer threads = %+v", threads.Items)
	}
	if threads.Items[0].CounterpartEmail != "p1@example.com" {
		t.Fatalf("writer counterpart = %q", threads.Items[0].CounterpartEmail)
	}
	if threads.Items[0].LastMessageText != "" {
		t.Fatalf("seed leaked into last text: %q", threads.Items[0].LastMessageText)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/threads/"+thread.ID+"/messages", map[string]any{
		"text": "loved the hook",
	}, bearer(producerToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("send message status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/threads", nil, bearer(writerToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list threads status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &threads); err != nil {
		t.Fatalf("unmarshal threads: %v", err)
	}
	if threads.Items[0].LastMessageText != "loved the hook" {
		t.Fatalf("last text = %q", threads.Items[0].LastMessageText)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/unread", nil, bearer(writerToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("unread status %d: %s", res.StatusCode, string(data))
	}
	var unread UnreadResponse
	if err := json.Unmarshal(data, &unread); err != nil {
		t.Fatalf("unmarshal unread: %v", err)
	}
	if unread.Total != 2 || unread.ByThread[thread.ID] != 2 {
		t.Fatalf("writer unread = %+v", unread)
	}

	// Deleting the thread cascades to its messages.
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/threads/"+thread.ID, nil, bearer(producerToken))
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete thread status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/threads/"+thread.ID+"/messages", nil, bearer(writerToken))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("messages after delete status %d: %s", res.StatusCode, string(data))
	}
}

func TestDiscoveryEmptyPoolIsNotAnError(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	producerToken, _ := signup(t, srv, "p1@example.com", "producer")

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/discovery/next", nil, bearer(producerToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("empty pool status %d: %s", res.StatusCode, string(data))
	}
	var draw DiscoveryNextResponse
	if err := json.Unmarshal(data, &draw); err != nil {
		t.Fatalf("unmarshal draw: %v", err)
	}
	if !draw.NoMoreSnippets || draw.Snippet != nil {
		t.Fatalf("expected terminal empty state, got %s", string(data))
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/snippets", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should be public, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/snippets", nil, map[string]string{"Authorization": "Bearer not-a-token"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	token, userID := signup(t, srv, "w1@example.com", "writer")
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/me/apikeys", map[string]any{
		"name": "ci",
	}, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create key status %d: %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	if err := json.Unmarshal(data, &key); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if key.Key == "" {
		t.Fatalf("raw key not returned on mint")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me via api key status %d: %s", res.StatusCode, string(data))
	}
	var me UserResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.ID != userID {
		t.Fatalf("api key resolved wrong user")
	}
}

func TestWriterCannotTriage(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	writerToken, _ := signup(t, srv, "w1@example.com", "writer")
	otherToken, _ := signup(t, srv, "w2@example.com", "writer")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/snippets", map[string]any{
		"title":        "Alpha",
		"genre":        "drama",
		"synopsis":     "s",
		"hook":         "h",
		"plot_summary": "p",
		"best_scene":   "b",
	}, bearer(writerToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create snippet status %d: %s", res.StatusCode, string(data))
	}
	var created SnippetResponse
	_ = json.Unmarshal(data, &created)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/snippets/"+created.ID+"/burn", nil, bearer(otherToken))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("writer burn status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/discovery/next", nil, bearer(otherToken))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("writer discovery status %d: %s", res.StatusCode, string(data))
	}
}
