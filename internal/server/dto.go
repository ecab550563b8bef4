package server

import (
	"encoding/json"

	"pageone/internal/domain"
	"pageone/internal/engine"
)

// Request payloads

type SignUpRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password" minLength:"8"`
	Type     string `json:"type" enum:"writer,producer"`
}

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type CreateSnippetRequest struct {
	Title       string `json:"title"`
	Genre       string `json:"genre"`
	Synopsis    string `json:"synopsis"`
	Hook        string `json:"hook"`
	PlotSummary string `json:"plot_summary"`
	BestScene   string `json:"best_scene"`
}

type UpdateSnippetRequest struct {
	Title       *string `json:"title,omitempty"`
	Genre       *string `json:"genre,omitempty"`
	Synopsis    *string `json:"synopsis,omitempty"`
	Hook        *string `json:"hook,omitempty"`
	PlotSummary *string `json:"plot_summary,omitempty"`
	BestScene   *string `json:"best_scene,omitempty"`
}

type SendMessageRequest struct {
	Text string `json:"text"`
}

// Response payloads

type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Type      string `json:"type" enum:"writer,producer"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, Type: u.Type, CreatedAt: u.CreatedAt}
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type SnippetResponse struct {
	ID          string `json:"id"`
	WriterID    string `json:"writer_id"`
	Title       string `json:"title"`
	Genre       string `json:"genre"`
	Synopsis    string `json:"synopsis"`
	Hook        string `json:"hook"`
	PlotSummary string `json:"plot_summary"`
	BestScene   string `json:"best_scene"`
	Status      string `json:"status" enum:"available,burned,shortlisted,greenlit"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

func snippetResponse(s domain.Snippet) SnippetResponse {
	return SnippetResponse{
		ID:          s.ID,
		WriterID:    s.WriterID,
		Title:       s.Title,
		Genre:       s.Genre,
		Synopsis:    s.Synopsis,
		Hook:        s.Hook,
		PlotSummary: s.PlotSummary,
		BestScene:   s.BestScene,
		Status:      s.Status,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// DiscoveryCardResponse is the snippet as shown in the discovery feed.
// The writer's identity stays hidden until a match exists.
type DiscoveryCardResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Genre       string `json:"genre"`
	Synopsis    string `json:"synopsis"`
	Hook        string `json:"hook"`
	PlotSummary string `json:"plot_summary"`
	BestScene   string `json:"best_scene"`
}

// DiscoveryNextResponse is the draw result. An exhausted pool is a
// terminal empty state, not an error: no_more_snippets is set and the
// card is absent.
type DiscoveryNextResponse struct {
	NoMoreSnippets bool                   `json:"no_more_snippets,omitempty"`
	Snippet        *DiscoveryCardResponse `json:"snippet,omitempty"`
}

func discoveryCardResponse(s domain.Snippet) DiscoveryCardResponse {
	return DiscoveryCardResponse{
		ID:          s.ID,
		Title:       s.Title,
		Genre:       s.Genre,
		Synopsis:    s.Synopsis,
		Hook:        s.Hook,
		PlotSummary: s.PlotSummary,
		BestScene:   s.BestScene,
	}
}

type SnippetSnapshotResponse struct {
	Title    string `json:"title"`
	Genre    string `json:"genre"`
	Synopsis string `json:"synopsis"`
	WriterID string `json:"writer_id"`
}

type ShortlistEntryResponse struct {
	ID          string                  `json:"id"`
	SnippetID   string                  `json:"snippet_id"`
	TS          string                  `json:"ts" format:"date-time"`
	SnippetData SnippetSnapshotResponse `json:"snippet_data"`
}

func shortlistEntryResponse(e domain.ShortlistEntry) ShortlistEntryResponse {
	return ShortlistEntryResponse{
		ID:        e.ID,
		SnippetID: e.SnippetID,
		TS:        e.TS,
		SnippetData: SnippetSnapshotResponse{
			Title:    e.Snapshot.Title,
			Genre:    e.Snapshot.Genre,
			Synopsis: e.Snapshot.Synopsis,
			WriterID: e.Snapshot.WriterID,
		},
	}
}

type SnippetPreviewResponse struct {
	Title    string `json:"title"`
	Genre    string `json:"genre"`
	Synopsis string `json:"synopsis"`
}

type ThreadResponse struct {
	ID               string                 `json:"id"`
	ProducerID       string                 `json:"producer_id"`
	WriterID         string                 `json:"writer_id"`
	SnippetID        string                 `json:"snippet_id"`
	SnippetPreview   SnippetPreviewResponse `json:"snippet_preview"`
	CounterpartEmail string                 `json:"counterpart_email,omitempty"`
	LastMessageText  string                 `json:"last_message_text,omitempty"`
	CreatedAt        string                 `json:"created_at" format:"date-time"`
	LastMessageAt    string                 `json:"last_message_at" format:"date-time"`
	Unread           int                    `json:"unread"`
}

func threadResponse(t domain.Thread, unread int) ThreadResponse {
	return ThreadResponse{
		ID:         t.ID,
		ProducerID: t.ProducerID,
		WriterID:   t.WriterID,
		SnippetID:  t.SnippetID,
		SnippetPreview: SnippetPreviewResponse{
			Title:    t.Preview.Title,
			Genre:    t.Preview.Genre,
			Synopsis: t.Preview.Synopsis,
		},
		CreatedAt:     t.CreatedAt,
		LastMessageAt: t.LastMessageAt,
		Unread:        unread,
	}
}

func threadSummaryResponse(s engine.ThreadSummary) ThreadResponse {
	r := threadResponse(s.Thread, s.Unread)
	r.CounterpartEmail = s.CounterpartEmail
	r.LastMessageText = s.LastMessageText
	return r
}

type MessageResponse struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	SenderID string `json:"sender_id"`
	Text     string `json:"text"`
	TS       string `json:"ts" format:"date-time"`
	Read     bool   `json:"read"`
}

func messageResponse(m domain.Message) MessageResponse {
	return MessageResponse{
		ID:       m.ID,
		ThreadID: m.ThreadID,
		SenderID: m.SenderID,
		Text:     m.Text,
		TS:       m.TS,
		Read:     m.Read,
	}
}

type UnreadResponse struct {
	Total    int            `json:"total"`
	ByThread map[string]int `json:"by_thread"`
	Cursor   int64          `json:"cursor"`
}

type StatsResponse struct {
	TotalSnippets  int `json:"total_snippets"`
	Shortlisted    int `json:"shortlisted"`
	ActiveMatches  int `json:"active_matches"`
	UnreadMessages int `json:"unread_messages"`
}

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts" format:"date-time"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
}

func eventResponse(e domain.Event) EventResponse {
	payload := json.RawMessage("{}")
	if e.Payload != "" && json.Valid([]byte(e.Payload)) {
		payload = json.RawMessage(e.Payload)
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    payload,
	}
}
