package domain

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Type         string `json:"type" enum:"writer,producer"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Snippet struct {
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

// Interaction is an append-only record of one producer decision on one
// snippet. Rows are never updated or deleted.
type Interaction struct {
	ID         string `json:"id"`
	ProducerID string `json:"producer_id"`
	SnippetID  string `json:"snippet_id"`
	Type       string `json:"interaction_type" enum:"viewed,burnt,greenlit"`
	TS         string `json:"ts" format:"date-time"`
}

// ShortlistEntry carries a denormalized snapshot of the snippet captured
// at shortlist time. The snapshot is allowed to drift if the writer edits
// the snippet afterward.
type ShortlistEntry struct {
	ID         string          `json:"id"`
	ProducerID string          `json:"producer_id"`
	SnippetID  string          `json:"snippet_id"`
	TS         string          `json:"ts" format:"date-time"`
	Snapshot   SnippetSnapshot `json:"snippet_data"`
}

type SnippetSnapshot struct {
	Title    string `json:"title"`
	Genre    string `json:"genre"`
	Synopsis string `json:"synopsis"`
	WriterID string `json:"writer_id"`
}

type Thread struct {
	ID            string         `json:"id"`
	ProducerID    string         `json:"producer_id"`
	WriterID      string         `json:"writer_id"`
	SnippetID     string         `json:"snippet_id"`
	Preview       SnippetPreview `json:"snippet_preview"`
	CreatedAt     string         `json:"created_at" format:"date-time"`
	LastMessageAt string         `json:"last_message_at" format:"date-time"`
}

type SnippetPreview struct {
	Title    string `json:"title"`
	Genre    string `json:"genre"`
	Synopsis string `json:"synopsis"`
}

// Message is one chat line, or a thread seed marker when Kind is
// producer/writer and Text is empty. Seed rows exist purely for unread
// bookkeeping and are filtered from rendered conversations.
type Message struct {
	ID          string `json:"id"`
	ThreadID    string `json:"thread_id"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Kind        string `json:"kind" enum:"producer,writer,chat"`
	Text        string `json:"text"`
	TS          string `json:"ts" format:"date-time"`
	Read        bool   `json:"read"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Stats is the writer dashboard summary.
type Stats struct {
	TotalSnippets  int `json:"total_snippets"`
	Shortlisted    int `json:"shortlisted"`
	ActiveMatches  int `json:"active_matches"`
	UnreadMessages int `json:"unread_messages"`
}
