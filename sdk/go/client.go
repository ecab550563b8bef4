package pageonesdk

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

// Client is a minimal Page One HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// User represents an account.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
}

// AuthResult carries a bearer token plus the account it belongs to.
type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Snippet represents the API snippet model.
type Snippet struct {
	ID          string `json:"id"`
	WriterID    string `json:"writer_id,omitempty"`
	Title       string `json:"title"`
	Genre       string `json:"genre"`
	Synopsis    string `json:"synopsis"`
	Hook        string `json:"hook"`
	PlotSummary string `json:"plot_summary"`
	BestScene   string `json:"best_scene"`
	Status      string `json:"status,omitempty"`
}

// ShortlistEntry is a saved snippet with its snapshot.
type ShortlistEntry struct {
	ID          string `json:"id"`
	SnippetID   string `json:"snippet_id"`
	TS          string `json:"ts"`
	SnippetData struct {
		Title    string `json:"title"`
		Genre    string `json:"genre"`
		Synopsis string `json:"synopsis"`
		WriterID string `json:"writer_id"`
	} `json:"snippet_data"`
}

// Thread is a producer/writer match conversation.
type Thread struct {
	ID             string `json:"id"`
	ProducerID     string `json:"producer_id"`
	WriterID       string `json:"writer_id"`
	SnippetID      string `json:"snippet_id"`
	SnippetPreview struct {
		Title    string `json:"title"`
		Genre    string `json:"genre"`
		Synopsis string `json:"synopsis"`
	} `json:"snippet_preview"`
	CounterpartEmail string `json:"counterpart_email,omitempty"`
	LastMessageText  string `json:"last_message_text,omitempty"`
	CreatedAt        string `json:"created_at"`
	LastMessageAt    string `json:"last_message_at"`
	Unread           int    `json:"unread"`
}

// DiscoverResult is one discovery draw. When the pool is exhausted
// NoMoreSnippets is true and Snippet is nil.
type DiscoverResult struct {
	NoMoreSnippets bool     `json:"no_more_snippets"`
	Snippet        *Snippet `json:"snippet"`
}

// Message is one chat line.
type Message struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	SenderID string `json:"sender_id"`
	Text     string `json:"text"`
	TS       string `json:"ts"`
	Read     bool   `json:"read"`
}

// Unread summarizes unread counts.
type Unread struct {
	Total    int            `json:"total"`
	ByThread map[string]int `json:"by_thread"`
	Cursor   int64          `json:"cursor"`
}

// Stats is the dashboard summary.
type Stats struct {
	TotalSnippets  int `json:"total_snippets"`
	Shortlisted    int `json:"shortlisted"`
	ActiveMatches  int `json:"active_matches"`
	UnreadMessages int `json:"unread_messages"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

type itemsOf[T any] struct {
	Items []T `json:"items"`
}

// SignUp creates an account and stores the returned token on the client.
func (c *Client) SignUp(ctx context.Context, email, password, userType string) (AuthResult, error) {
	body := map[string]any{"email": email, "password": password, "type": userType}
	var resp AuthResult
	err := c.do(ctx, http.MethodPost, "v0/auth/signup", body, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// Login exchanges credentials for a token and stores it on the client.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	body := map[string]any{"email": email, "password": password}
	var resp AuthResult
	err := c.do(ctx, http.MethodPost, "v0/auth/login", body, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// CreateSnippet authors a snippet.
func (c *Client) CreateSnippet(ctx context.Context, s Snippet) (Snippet, error) {
	body := map[string]any{
		"title":        s.Title,
		"genre":        s.Genre,
		"synopsis":     s.Synopsis,
		"hook":         s.Hook,
		"plot_summary": s.PlotSummary,
		"best_scene":   s.BestScene,
	}
	var resp Snippet
	err := c.do(ctx, http.MethodPost, "v0/snippets", body, &resp)
	return resp, err
}

// Snippets lists the caller's snippets.
func (c *Client) Snippets(ctx context.Context) ([]Snippet, error) {
	var resp itemsOf[Snippet]
	err := c.do(ctx, http.MethodGet, "v0/snippets", nil, &resp)
	return resp.Items, err
}

// DiscoverNext draws a random undecided snippet. Excluded ids are skipped
// for this draw only. An empty pool is not an error: the result reports
// NoMoreSnippets instead.
func (c *Client) DiscoverNext(ctx context.Context, exclude ...string) (DiscoverResult, error) {
	endpoint := "v0/discovery/next"
	if len(exclude) > 0 {
		endpoint += "?exclude=" + url.QueryEscape(strings.Join(exclude, ","))
	}
	var resp DiscoverResult
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Burn rejects a snippet.
func (c *Client) Burn(ctx context.Context, snippetID string) error {
	return c.do(ctx, http.MethodPost, c.snippetPath(snippetID, "burn"), nil, nil)
}

// Shortlist saves a snippet for later.
func (c *Client) Shortlist(ctx context.Context, snippetID string) (ShortlistEntry, error) {
	var resp ShortlistEntry
	err := c.do(ctx, http.MethodPost, c.snippetPath(snippetID, "shortlist"), nil, &resp)
	return resp, err
}

// Greenlight opens a thread with the snippet's writer.
func (c *Client) Greenlight(ctx context.Context, snippetID string) (Thread, error) {
	var resp Thread
	err := c.do(ctx, http.MethodPost, c.snippetPath(snippetID, "greenlight"), nil, &resp)
	return resp, err
}

// ShortlistEntries lists the caller's shortlist.
func (c *Client) ShortlistEntries(ctx context.Context) ([]ShortlistEntry, error) {
	var resp itemsOf[ShortlistEntry]
	err := c.do(ctx, http.MethodGet, "v0/shortlist", nil, &resp)
	return resp.Items, err
}

// Threads lists the caller's threads.
func (c *Client) Threads(ctx context.Context) ([]Thread, error) {
	var resp itemsOf[Thread]
	err := c.do(ctx, http.MethodGet, "v0/threads", nil, &resp)
	return resp.Items, err
}

// DeleteThread removes a thread and its messages.
func (c *Client) DeleteThread(ctx context.Context, threadID string) error {
	return c.do(ctx, http.MethodDelete, "v0/threads/"+url.PathEscape(threadID), nil, nil)
}

// Messages lists a thread's conversation.
func (c *Client) Messages(ctx context.Context, threadID string) ([]Message, error) {
	var resp itemsOf[Message]
	err := c.do(ctx, http.MethodGet, "v0/threads/"+url.PathEscape(threadID)+"/messages", nil, &resp)
	return resp.Items, err
}

// SendMessage posts a chat line to a thread.
func (c *Client) SendMessage(ctx context.Context, threadID, text string) (Message, error) {
	var resp Message
	err := c.do(ctx, http.MethodPost, "v0/threads/"+url.PathEscape(threadID)+"/messages", map[string]any{"text": text}, &resp)
	return resp, err
}

// MarkRead marks a thread read and returns how many messages flipped.
func (c *Client) MarkRead(ctx context.Context, threadID string) (int, error) {
	var resp struct {
		MessagesRead int `json:"messages_read"`
	}
	err := c.do(ctx, http.MethodPost, "v0/threads/"+url.PathEscape(threadID)+"/read", nil, &resp)
	return resp.MessagesRead, err
}

// UnreadCounts fetches the unread summary.
func (c *Client) UnreadCounts(ctx context.Context) (Unread, error) {
	var resp Unread
	err := c.do(ctx, http.MethodGet, "v0/unread", nil, &resp)
	return resp, err
}

// WatchUnread long-polls until unread counts change or the server timeout
// passes. Pass the cursor from the previous call; zero starts at now.
func (c *Client) WatchUnread(ctx context.Context, cursor int64, timeoutSeconds int) (Unread, error) {
	endpoint := fmt.Sprintf("v0/unread/watch?cursor=%d&timeout_seconds=%d", cursor, timeoutSeconds)
	var resp Unread
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetStats fetches the dashboard summary.
func (c *Client) GetStats(ctx context.Context) (Stats, error) {
	var resp Stats
	err := c.do(ctx, http.MethodGet, "v0/stats", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) snippetPath(snippetID, action string) string {
	return fmt.Sprintf("v0/snippets/%s/%s", url.PathEscape(snippetID), action)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
