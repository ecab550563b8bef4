package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"pageone/internal/config"
	"pageone/internal/domain"
	"pageone/internal/engine/auth"
	"pageone/internal/events"
	"pageone/internal/repo"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrNoEligibleSnippets = errors.New("no eligible snippets")
	ErrAlreadyTriaged     = errors.New("snippet already triaged by this producer")
	ErrMatchExists        = errors.New("snippet already greenlit by this producer")
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
	Rand   func(n int) int
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
		Rand:   rand.IntN,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) rand(n int) int {
	if e.Rand != nil {
		return e.Rand(n)
	}
	return rand.IntN(n)
}

func (e Engine) eligibility() string {
	if e.Config == nil || e.Config.Triage.Eligibility == "" {
		return config.EligibilityInteractionLog
	}
	return e.Config.Triage.Eligibility
}

// SignUp creates an account. The raw password is bcrypt-hashed before it
// touches the database.
func (e Engine) SignUp(ctx context.Context, email, password, userType string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, fmt.Errorf("a valid email is required")
	}
	if len(password) < 8 {
		return domain.User{}, fmt.Errorf("password of at least 8 characters is required")
	}
	switch userType {
	case "writer", "producer":
	default:
		return domain.User{}, fmt.Errorf("invalid account type %q", userType)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	u := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Type:         userType,
		CreatedAt:    e.now().UTC().Format(time.RFC3339),
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO users(id,email,password_hash,type,created_at) VALUES (?,?,?,?,?)`,
		u.ID, u.Email, u.PasswordHash, u.Type, u.CreatedAt); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "user.signup", "user", u.ID, u.ID, events.EventPayload{"type": u.Type}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Authenticate verifies email/password and returns the account.
func (e Engine) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	u, err := e.Repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// CreateAPIKey mints a raw key and stores only its hash. The raw key is
// returned once and cannot be recovered.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name string) (string, domain.APIKey, error) {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return "", domain.APIKey{}, err
	}
	raw := "po_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	k := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertAPIKey(ctx, k); err != nil {
		return "", domain.APIKey{}, err
	}
	return raw, k, nil
}

// SnippetCreateOptions are parameters for authoring a snippet.
type SnippetCreateOptions struct {
	WriterID    string
	Title       string
	Genre       string
	Synopsis    string
	Hook        string
	PlotSummary string
	BestScene   string
}

func (o SnippetCreateOptions) validate(cfg *config.Config) error {
	required := []struct{ name, value string }{
		{"title", o.Title},
		{"genre", o.Genre},
		{"synopsis", o.Synopsis},
		{"hook", o.Hook},
		{"plot_summary", o.PlotSummary},
		{"best_scene", o.BestScene},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%s is required", f.name)
		}
	}
	if cfg != nil && !cfg.KnownGenre(o.Genre) {
		return fmt.Errorf("invalid genre %q", o.Genre)
	}
	return nil
}

func (e Engine) CreateSnippet(ctx context.Context, opts SnippetCreateOptions) (domain.Snippet, error) {
	u, err := e.Repo.GetUser(ctx, opts.WriterID)
	if err != nil {
		return domain.Snippet{}, err
	}
	if err := auth.RequireRole(u, "writer"); err != nil {
		return domain.Snippet{}, err
	}
	if err := opts.validate(e.Config); err != nil {
		return domain.Snippet{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Snippet{}, err
	}
	defer tx.Rollback()

	now := e.now().UTC().Format(time.RFC3339)
	s := domain.Snippet{
		ID:          uuid.NewString(),
		WriterID:    opts.WriterID,
		Title:       opts.Title,
		Genre:       opts.Genre,
		Synopsis:    opts.Synopsis,
		Hook:        opts.Hook,
		PlotSummary: opts.PlotSummary,
		BestScene:   opts.BestScene,
		Status:      "available",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertSnippet(ctx, tx, s); err != nil {
		return domain.Snippet{}, fmt.Errorf("insert snippet: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "snippet.create", "snippet", s.ID, s.WriterID, events.EventPayload{"title": s.Title, "genre": s.Genre}); err != nil {
		return domain.Snippet{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Snippet{}, err
	}
	return s, nil
}

// SnippetUpdateOptions carries partial updates. Nil fields keep their value.
type SnippetUpdateOptions struct {
	ID          string
	ActorID     string
	Title       *string
	Genre       *string
	Synopsis    *string
	Hook        *string
	PlotSummary *string
	BestScene   *string
}

func (e Engine) UpdateSnippet(ctx context.Context, opts SnippetUpdateOptions) (domain.Snippet, error) {
	s, err := e.Repo.GetSnippet(ctx, opts.ID)
	if err != nil {
		return domain.Snippet{}, err
	}
	if s.WriterID != opts.ActorID {
		return domain.Snippet{}, auth.NotOwnerError{EntityKind: "snippet", EntityID: s.ID}
	}
	if opts.Title != nil {
		s.Title = *opts.Title
	}
	if opts.Genre != nil {
		s.Genre = *opts.Genre
	}
	if opts.Synopsis != nil {
		s.Synopsis = *opts.Synopsis
	}
	if opts.Hook != nil {
		s.Hook = *opts.Hook
	}
	if opts.PlotSummary != nil {
		s.PlotSummary = *opts.PlotSummary
	}
	if opts.BestScene != nil {
		s.BestScene = *opts.BestScene
	}
	check := SnippetCreateOptions{
		WriterID: s.WriterID, Title: s.Title, Genre: s.Genre, Synopsis: s.Synopsis,
		Hook: s.Hook, PlotSummary: s.PlotSummary, BestScene: s.BestScene,
	}
	if err := check.validate(e.Config); err != nil {
		return domain.Snippet{}, err
	}
	s.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Snippet{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateSnippet(ctx, tx, s); err != nil {
		return domain.Snippet{}, err
	}
	if err := e.Events.Append(ctx, tx, "snippet.update", "snippet", s.ID, opts.ActorID, events.EventPayload{}); err != nil {
		return domain.Snippet{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Snippet{}, err
	}
	return s, nil
}

func (e Engine) DeleteSnippet(ctx context.Context, id, actorID string) error {
	s, err := e.Repo.GetSnippet(ctx, id)
	if err != nil {
		return err
	}
	if s.WriterID != actorID {
		return auth.NotOwnerError{EntityKind: "snippet", EntityID: s.ID}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM snippets WHERE id=?`, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "snippet.delete", "snippet", id, actorID, events.EventPayload{"title": s.Title}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) GetSnippet(ctx context.Context, id string) (domain.Snippet, error) {
	return e.Repo.GetSnippet(ctx, id)
}

func (e Engine) ListWriterSnippets(ctx context.Context, writerID string) ([]domain.Snippet, error) {
	return e.Repo.ListSnippets(ctx, repo.SnippetFilters{WriterID: writerID})
}

// NextSnippet picks one random snippet the producer has not decided on.
// The exclude list carries session-local skips that are never persisted.
//
// Which snippets count as eligible depends on triage.eligibility:
// interaction_log keeps every snippet visible except the acting producer's
// past decisions, catalog_status shows only snippets still in status
// available.
func (e Engine) NextSnippet(ctx context.Context, producerID string, exclude []string) (domain.Snippet, error) {
	u, err := e.Repo.GetUser(ctx, producerID)
	if err != nil {
		return domain.Snippet{}, err
	}
	if err := auth.RequireRole(u, "producer"); err != nil {
		return domain.Snippet{}, err
	}

	filters := repo.SnippetFilters{}
	if e.eligibility() == config.EligibilityCatalogStatus {
		filters.Status = "available"
	}
	candidates, err := e.Repo.ListSnippets(ctx, filters)
	if err != nil {
		return domain.Snippet{}, err
	}

	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	if e.eligibility() == config.EligibilityInteractionLog {
		decided, err := e.Repo.InteractedSnippetIDs(ctx, producerID)
		if err != nil {
			return domain.Snippet{}, err
		}
		for _, id := range decided {
			skip[id] = true
		}
	}

	var eligible []domain.Snippet
	for _, s := range candidates {
		if s.WriterID == producerID || skip[s.ID] {
			continue
		}
		eligible = append(eligible, s)
	}
	if len(eligible) == 0 {
		return domain.Snippet{}, ErrNoEligibleSnippets
	}
	return eligible[e.rand(len(eligible))], nil
}

func (e Engine) triageTarget(ctx context.Context, producerID, snippetID string) (domain.Snippet, error) {
	u, err := e.Repo.GetUser(ctx, producerID)
	if err != nil {
		return domain.Snippet{}, err
	}
	if err := auth.RequireRole(u, "producer"); err != nil {
		return domain.Snippet{}, err
	}
	s, err := e.Repo.GetSnippet(ctx, snippetID)
	if err != nil {
		return domain.Snippet{}, err
	}
	if s.WriterID == producerID {
		return domain.Snippet{}, fmt.Errorf("triaging your own snippet is invalid")
	}
	return s, nil
}

// Burn records a rejection. Burned is terminal for the pair; a
// shortlisted snippet may still be demoted here, which drops its
// shortlist entry in the same transaction.
func (e Engine) Burn(ctx context.Context, producerID, snippetID string) error {
	s, err := e.triageTarget(ctx, producerID, snippetID)
	if err != nil {
		return err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	types, err := e.Repo.InteractionTypesTx(ctx, tx, producerID, snippetID)
	if err != nil {
		return err
	}
	for _, t := range types {
		if t == "burnt" || t == "greenlit" {
			return ErrAlreadyTriaged
		}
	}
	now := e.now().UTC().Format(time.RFC3339)
	in := domain.Interaction{
		ID: uuid.NewString(), ProducerID: producerID, SnippetID: snippetID,
		Type: "burnt", TS: now,
	}
	if err := e.Repo.InsertInteraction(ctx, tx, in); err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	if err := e.Repo.DeleteShortlistEntries(ctx, tx, producerID, snippetID); err != nil {
		return err
	}
	if e.eligibility() == config.EligibilityCatalogStatus {
		if err := e.Repo.UpdateSnippetStatus(ctx, tx, s.ID, "burned", now); err != nil {
			return err
		}
	}
	if err := e.Events.Append(ctx, tx, "snippet.burn", "snippet", s.ID, producerID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// Shortlist saves the snippet for later with a point-in-time snapshot of
// its discovery card.
func (e Engine) Shortlist(ctx context.Context, producerID, snippetID string) (domain.ShortlistEntry, error) {
	s, err := e.triageTarget(ctx, producerID, snippetID)
	if err != nil {
		return domain.ShortlistEntry{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ShortlistEntry{}, err
	}
	defer tx.Rollback()

	types, err := e.Repo.InteractionTypesTx(ctx, tx, producerID, snippetID)
	if err != nil {
		return domain.ShortlistEntry{}, err
	}
	if len(types) > 0 {
		return domain.ShortlistEntry{}, ErrAlreadyTriaged
	}
	now := e.now().UTC().Format(time.RFC3339)
	in := domain.Interaction{
		ID: uuid.NewString(), ProducerID: producerID, SnippetID: snippetID,
		Type: "viewed", TS: now,
	}
	if err := e.Repo.InsertInteraction(ctx, tx, in); err != nil {
		return domain.ShortlistEntry{}, fmt.Errorf("insert interaction: %w", err)
	}
	entry := domain.ShortlistEntry{
		ID: uuid.NewString(), ProducerID: producerID, SnippetID: snippetID, TS: now,
		Snapshot: domain.SnippetSnapshot{
			Title: s.Title, Genre: s.Genre, Synopsis: s.Synopsis, WriterID: s.WriterID,
		},
	}
	if err := e.Repo.InsertShortlistEntry(ctx, tx, entry); err != nil {
		return domain.ShortlistEntry{}, fmt.Errorf("insert shortlist entry: %w", err)
	}
	if e.eligibility() == config.EligibilityCatalogStatus {
		if err := e.Repo.UpdateSnippetStatus(ctx, tx, s.ID, "shortlisted", now); err != nil {
			return domain.ShortlistEntry{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "snippet.shortlist", "snippet", s.ID, producerID, events.EventPayload{}); err != nil {
		return domain.ShortlistEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ShortlistEntry{}, err
	}
	return entry, nil
}

func (e Engine) ListShortlist(ctx context.Context, producerID string) ([]domain.ShortlistEntry, error) {
	u, err := e.Repo.GetUser(ctx, producerID)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireRole(u, "producer"); err != nil {
		return nil, err
	}
	return e.Repo.ListShortlist(ctx, producerID)
}

// Greenlight creates the match: a message thread, two empty seed messages
// for unread bookkeeping, and the decision record. Promoting a shortlisted
// snippet removes its shortlist entry. Everything happens in one
// transaction so a failure leaves no partial match behind.
func (e Engine) Greenlight(ctx context.Context, producerID, snippetID string) (domain.Thread, error) {
	s, err := e.triageTarget(ctx, producerID, snippetID)
	if err != nil {
		return domain.Thread{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Thread{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.FindThread(ctx, tx, producerID, snippetID); err == nil {
		return domain.Thread{}, ErrMatchExists
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Thread{}, err
	}
	types, err := e.Repo.InteractionTypesTx(ctx, tx, producerID, snippetID)
	if err != nil {
		return domain.Thread{}, err
	}
	for _, t := range types {
		if t == "greenlit" {
			return domain.Thread{}, ErrMatchExists
		}
		if t == "burnt" {
			return domain.Thread{}, ErrAlreadyTriaged
		}
	}

	now := e.now().UTC().Format(time.RFC3339)
	thread := domain.Thread{
		ID:         uuid.NewString(),
		ProducerID: producerID,
		WriterID:   s.WriterID,
		SnippetID:  s.ID,
		Preview: domain.SnippetPreview{
			Title: s.Title, Genre: s.Genre, Synopsis: s.Synopsis,
		},
		CreatedAt:     now,
		LastMessageAt: now,
	}
	if err := e.Repo.InsertThread(ctx, tx, thread); err != nil {
		return domain.Thread{}, fmt.Errorf("insert thread: %w", err)
	}

	seeds := []domain.Message{
		{ID: uuid.NewString(), ThreadID: thread.ID, SenderID: producerID, RecipientID: s.WriterID, Kind: "producer", Text: "", TS: now, Read: false},
		{ID: uuid.NewString(), ThreadID: thread.ID, SenderID: s.WriterID, RecipientID: producerID, Kind: "writer", Text: "", TS: now, Read: false},
	}
	for _, m := range seeds {
		if err := e.Repo.InsertMessage(ctx, tx, m); err != nil {
			return domain.Thread{}, fmt.Errorf("insert seed message: %w", err)
		}
	}

	if err := e.Repo.DeleteShortlistEntries(ctx, tx, producerID, snippetID); err != nil {
		return domain.Thread{}, err
	}
	in := domain.Interaction{
		ID: uuid.NewString(), ProducerID: producerID, SnippetID: snippetID,
		Type: "greenlit", TS: now,
	}
	if err := e.Repo.InsertInteraction(ctx, tx, in); err != nil {
		return domain.Thread{}, fmt.Errorf("insert interaction: %w", err)
	}
	if e.eligibility() == config.EligibilityCatalogStatus {
		if err := e.Repo.UpdateSnippetStatus(ctx, tx, s.ID, "greenlit", now); err != nil {
			return domain.Thread{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "snippet.greenlight", "snippet", s.ID, producerID, events.EventPayload{"thread_id": thread.ID}); err != nil {
		return domain.Thread{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Thread{}, err
	}
	return thread, nil
}

func (e Engine) ListThreads(ctx context.Context, userID string) ([]domain.Thread, error) {
	return e.Repo.ListThreads(ctx, userID)
}

// ThreadSummary is a thread decorated for listing: who the other side is,
// the latest real message, and the caller's unread count.
type ThreadSummary struct {
	Thread           domain.Thread `json:"thread"`
	CounterpartEmail string        `json:"counterpart_email"`
	LastMessageText  string        `json:"last_message_text"`
	Unread           int           `json:"unread"`
}

// ThreadSummaries lists the user's threads with counterpart email, last
// non-empty message text, and per-thread unread counts.
func (e Engine) ThreadSummaries(ctx context.Context, userID string) ([]ThreadSummary, error) {
	threads, err := e.Repo.ListThreads(ctx, userID)
	if err != nil {
		return nil, err
	}
	unread, err := e.Repo.UnreadCountByThread(ctx, userID)
	if err != nil {
		return nil, err
	}
	emails := map[string]string{}
	res := make([]ThreadSummary, 0, len(threads))
	for _, t := range threads {
		counterpartID := t.ProducerID
		if counterpartID == userID {
			counterpartID = t.WriterID
		}
		email, ok := emails[counterpartID]
		if !ok {
			u, err := e.Repo.GetUser(ctx, counterpartID)
			if err != nil {
				return nil, err
			}
			email = u.Email
			emails[counterpartID] = email
		}
		last, err := e.Repo.LastMessageText(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		res = append(res, ThreadSummary{
			Thread:           t,
			CounterpartEmail: email,
			LastMessageText:  last,
			Unread:           unread[t.ID],
		})
	}
	return res, nil
}

func (e Engine) GetThread(ctx context.Context, threadID, userID string) (domain.Thread, error) {
	t, err := e.Repo.GetThread(ctx, threadID)
	if err != nil {
		return domain.Thread{}, err
	}
	if err := auth.RequireParticipant(t, userID); err != nil {
		return domain.Thread{}, err
	}
	return t, nil
}

// DeleteThread removes a thread and cascades to every message in it.
func (e Engine) DeleteThread(ctx context.Context, threadID, userID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetThreadTx(ctx, tx, threadID)
	if err != nil {
		return err
	}
	if err := auth.RequireParticipant(t, userID); err != nil {
		return err
	}
	deleted, err := e.Repo.DeleteThreadMessages(ctx, tx, threadID)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteThreadTx(ctx, tx, threadID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "thread.delete", "thread", threadID, userID, events.EventPayload{"messages_deleted": deleted}); err != nil {
		return err
	}
	return tx.Commit()
}

// ListThreadMessages returns the conversation, hiding the empty seed rows.
func (e Engine) ListThreadMessages(ctx context.Context, threadID, userID string) ([]domain.Message, error) {
	if _, err := e.GetThread(ctx, threadID, userID); err != nil {
		return nil, err
	}
	return e.Repo.ListMessages(ctx, threadID, false)
}

func (e Engine) SendMessage(ctx context.Context, threadID, senderID, text string) (domain.Message, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Message{}, fmt.Errorf("text is required")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Message{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetThreadTx(ctx, tx, threadID)
	if err != nil {
		return domain.Message{}, err
	}
	if err := auth.RequireParticipant(t, senderID); err != nil {
		return domain.Message{}, err
	}
	recipient := t.ProducerID
	if senderID == t.ProducerID {
		recipient = t.WriterID
	}
	now := e.now().UTC().Format(time.RFC3339)
	m := domain.Message{
		ID:          uuid.NewString(),
		ThreadID:    threadID,
		SenderID:    senderID,
		RecipientID: recipient,
		Kind:        "chat",
		Text:        text,
		TS:          now,
		Read:        false,
	}
	if err := e.Repo.InsertMessage(ctx, tx, m); err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}
	if err := e.Repo.TouchThread(ctx, tx, threadID, now); err != nil {
		return domain.Message{}, err
	}
	if err := e.Events.Append(ctx, tx, "message.send", "thread", threadID, senderID, events.EventPayload{"message_id": m.ID}); err != nil {
		return domain.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Message{}, err
	}
	return m, nil
}

// MarkThreadRead flags everything addressed to the user in the thread and
// returns how many messages flipped.
func (e Engine) MarkThreadRead(ctx context.Context, threadID, userID string) (int, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetThreadTx(ctx, tx, threadID)
	if err != nil {
		return 0, err
	}
	if err := auth.RequireParticipant(t, userID); err != nil {
		return 0, err
	}
	n, err := e.Repo.MarkThreadRead(ctx, tx, threadID, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if err := e.Events.Append(ctx, tx, "thread.read", "thread", threadID, userID, events.EventPayload{"messages_read": n}); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// UnreadSummary returns the total unread count plus a per-thread breakdown.
func (e Engine) UnreadSummary(ctx context.Context, userID string) (int, map[string]int, error) {
	total, err := e.Repo.UnreadCount(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	byThread, err := e.Repo.UnreadCountByThread(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	return total, byThread, nil
}

// Stats summarizes activity for the dashboard. Writers see reach into
// producer shortlists; producers see their own shortlist size.
func (e Engine) Stats(ctx context.Context, userID string) (domain.Stats, error) {
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return domain.Stats{}, err
	}
	var st domain.Stats
	if u.Type == "writer" {
		if st.TotalSnippets, err = e.Repo.CountSnippetsByWriter(ctx, userID); err != nil {
			return domain.Stats{}, err
		}
		if st.Shortlisted, err = e.Repo.CountShortlistsForWriter(ctx, userID); err != nil {
			return domain.Stats{}, err
		}
	} else {
		entries, err := e.Repo.ListShortlist(ctx, userID)
		if err != nil {
			return domain.Stats{}, err
		}
		st.Shortlisted = len(entries)
	}
	if st.ActiveMatches, err = e.Repo.CountThreadsForUser(ctx, userID); err != nil {
		return domain.Stats{}, err
	}
	if st.UnreadMessages, err = e.Repo.UnreadCount(ctx, userID); err != nil {
		return domain.Stats{}, err
	}
	return st, nil
}
