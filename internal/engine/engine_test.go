package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"pageone/internal/config"
	"pageone/internal/db"
	"pageone/internal/domain"
	"pageone/internal/engine"
	"pageone/internal/migrate"
	"pageone/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("pageone")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	draw := 0
	eng.Rand = func(n int) int {
		draw++
		return draw % n
	}
	return &testEnv{Engine: eng, Ctx: context.Background()}
}

func (env *testEnv) user(t *testing.T, email, userType string) domain.User {
	t.Helper()
	u, err := env.Engine.SignUp(env.Ctx, email, "hunter2hunter2", userType)
	if err != nil {
		t.Fatalf("signup %s: %v", email, err)
	}
	return u
}

func (env *testEnv) snippet(t *testing.T, writerID, title string) domain.Snippet {
	t.Helper()
	s, err := env.Engine.CreateSnippet(env.Ctx, engine.SnippetCreateOptions{
		WriterID:    writerID,
		Title:       title,
		Genre:       "drama",
		Synopsis:    "a synopsis",
		Hook:        "a hook",
		PlotSummary: "a plot",
		BestScene:   "a scene",
	})
	if err != nil {
		t.Fatalf("create snippet %s: %v", title, err)
	}
	return s
}

// insertSnippetOwnedBy plants a snippet row for an arbitrary owner,
// sidestepping the writer-role check so discovery's own-snippet exclusion
// can be exercised directly.
func (env *testEnv) insertSnippetOwnedBy(t *testing.T, ownerID, title string) domain.Snippet {
	t.Helper()
	now := env.Engine.Now().UTC().Format(time.RFC3339)
	s := domain.Snippet{
		ID: uuid.NewString(), WriterID: ownerID, Title: title, Genre: "drama",
		Synopsis: "s", Hook: "h", PlotSummary: "p", BestScene: "b",
		Status: "available", CreatedAt: now, UpdatedAt: now,
	}
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if err := env.Engine.Repo.InsertSnippet(env.Ctx, tx, s); err != nil {
		t.Fatalf("insert snippet: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestDiscoveryNeverReturnsOwnSnippet(t *testing.T) {
	env := newTestEnv(t)
	w1 := env.user(t, "w1@example.com", "writer")
	p1 := env.user(t, "p1@example.com", "producer")
	env.snippet(t, w1.ID, "Alpha")
	env.snippet(t, w1.ID, "Beta")
	own := env.insertSnippetOwnedBy(t, p1.ID, "Mine")

	for i := 0; i < 20; i++ {
		s, err := env.Engine.NextSnippet(env.Ctx, p1.ID, nil)
		if err != nil {
			t.Fatalf("draw %d: %v", i, err)
		}
		if s.ID == own.ID {
			t.Fatalf("draw %d returned the producer's own snippet", i)
		}
	}
}

func TestDiscoverySkipsDecidedSnippets(t *testing.T) {
	env := newTestEnv(t)
	w1 := env.user(t, "w1@example.com", "writer")
	p1 := env.user(t, "p1@example.com", "producer")
	s1 := env.snippet(t, w1.ID, "Alpha")
	env.snippet(t, w1.ID, "Beta")
	env.snippet(t, w1.ID, "Gamma")

	if err := env.Engine.Burn(env.Ctx, p1.ID, s1.ID); err != nil {
		t.Fatalf("burn: %v", err)
	}
	for i := 0; i < 20; i++ {
		s, err := env.Engine.NextSnippet(env.Ctx, p1.ID, nil)
		if err != nil {
			t.Fatalf("draw %d: %v", i, err)
		}
		if s.ID == s1.ID {
			t.Fatalf("draw %d returned a burnt snippet", i)
		}
	}
}

func TestDiscoveryRespectsSessionExcludes(t *testing.T) {
	env := newTestEnv(t)
	w1 := env.user(t, "w1@example.com", "writer")
	p1 := env.user(t, "p1@example.com", "producer")
	s1 := env.snippet(t, w1.ID, "Alpha")
	s2 := env.snippet(t, w1.ID, "Beta")

	s, err := env.Engine.NextSnippet(env.Ctx, p1.ID, []string{s1.ID})
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if s.ID != s2.ID {
		t.Fatalf("expected %s, got %s", s2.ID, s.ID)
	}
	// Excludes are session-local: without them the skipped snippet is
	// eligible again.
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		s, err := env.Engine.NextSnippet(env.Ctx, p1.ID, nil)
		if err != nil {
			t.Fatalf("draw %d: %v", i, err)
		}
		seen[s.ID] = true
	}
	if !seen[s1.ID] {
		t.Fatalf("excluded snippet never came back after the session")
	}
}

func TestDiscoveryEmptyStateSticky(t *testing.T) {
	env := newTestEnv(t)
	w1 := env.user(t, "w1@example.com", "writer")
	p1 := env.user(t, "p1@example.com", "producer")
	s1 := env.snippet(t, w1.ID, "Alpha")
	if err := env.Engine.Burn(env.Ctx, p1.ID, s1.ID); err != nil {
		t.Fatalf("burn: %v", err)
	}

	for i := 0; i < 3; i++ {
		_, err := env.Engine.NextSnippet(env.Ctx, p1.ID, nil)
		if !errors.Is(err, engine.ErrNoEligibleSnippets) {
			t.Fatalf("draw %d: expected no eligible snippets, got %v", i, err)
		}
	}
	s2 := env.snippet(t, w1.ID, "Beta")
	got, err := env.Engine.NextSnippet(env.Ctx, p1.ID, nil)
	if err != nil {
		t.Fatalf("draw after new snippet: %v", err)
	}
	if got.ID != s2.ID {
		t.Fatalf("expected the new snippet, got %s", got.ID)
	}
}

func TestGreenlightCreatesThreadAndSeeds(t *testing.T) {
	env := newTestEnv(t)
	w1 := env.user(t, "w1@example.com", "writer")
	p1 := env.user(t, "p1@example.com", "producer")
	s1 := env.snippet(t, w1.ID, "Alpha")

	thread, err := env.Engine.Greenlight(env.Ctx, p1.ID, s1.ID)
	if err != nil {
		t.Fatalf("greenlight: %v", err)
	}
	if thread.ProducerID != p1.ID || thread.WriterID != w1.ID || thread.SnippetID != s1.ID {
		t.Fatalf("thread participants wrong: %+v", thread)
	}
	if thread.Preview.Title != "Alpha" {
		t.Fatalf("preview title = %q", thread.Preview.Title)
	}

	msgs, err := env.Engine.Repo.ListMessages(env.Ctx, thread.ID, true)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 seed messages, got %d", len(msgs))
	}
	kinds := map[string]domain.Message{}
	for _, m := range msgs {
		if m.Text != "" || m.Read {
			t.Fatalf("seed message must be empty and unread: %+v", m)
		}
		kinds[m.Kind] = m
	}
	if kinds["producer"].SenderID != p1.ID || kinds["producer"].RecipientID != w1.ID {
		t.Fatalf("producer seed wrong: %+v", kinds["producer"])
	}
	if kinds["writer"].SenderID != w1.ID || kinds["writer"].RecipientID != p1.ID {
		t.Fatalf("writer seed wrong: %+v", kinds["writer"])
	}

	// Seeds are hidden from the rendered conversation.
	visible, err := env.Engine.ListThreadMessages(env.Ctx, thread.ID, p1.ID)
	if err != nil {
		t.Fatalf("list visible: %v", err)
	}
	if len(visible) != 0 {
		t.Fatalf("expected empty conversation, got %d messages", len(visible))
	}
}

func TestGreenlightDuplicateConflicts(t *testing.T) {
	env := newTestEnv(t)
	w1 := env.user(t, "w1@example.com", "writer")
	p1 := env.user(t, "p1@example.com", "producer")
	s1 := env.snippet(t, w1.ID, "Alpha")

	if _, err := env.Engine.Greenlight(env.Ctx, p1.ID, s1.ID); err != nil {
		t.Fatalf("greenlight: %v", err)
	}
	if _, err := env.Engine.Greenlight(env.Ctx, p1.ID, s1.ID); !errors.Is(err, engine.ErrMatchExists) {
		t.Fatalf("expected match conflict, got %v", err)
	}
	threads, err := env.Engine.ListThreads(env.Ctx, p1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(threads) != 1 {
		t.Fatalf("expected exactly one thread, got %d", len(threads))
	}
}

func TestShortlistSnapshotSurvivesEdits(t *testing.T) {
	env := newTestEnv(t)
	w1 := env.user(t, "w1@example.com", "writer")
	p1 := env.user(t, "p1@example.com", "producer")
	s1 := env.snippet(t, w1.ID, "Original Title")

	entry, err := env.Engine.Shortlist(env.Ctx, p1.ID, s1.ID)
	if err != nil {
		t.Fatalf("shortlist: %v", err)
	}
	newTitle := "Edited Title"
	if _, err := env.Engine.UpdateSnippet(env.Ctx, engine.SnippetUpdateOptions{
		ID: s1.ID, ActorID: w1.ID, Title: &newTitle,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	entries, err := env.Engine.ListShortlist(env.Ctx, p1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Snapshot.Title != "Original Title" {
		t.Fatalf("snapshot drifted: %q", entries[0].Snapshot.Title)
	}
	if entries[0].ID != entry.ID || entries[0].Snapshot.WriterID != w1.ID {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}

func TestGreenlightFromShortlistRemovesEntry(t *testing.T) {
	env := newTestEnv(t)
	w1 := env.user(t, "w1@example.com", "writer")
	p1 := env.user(t, "p1@example.com", "producer")
	s1 := env.snippet(t, w1.ID, "Alpha")

	if _, err := env.Engine.Shortlist(env.Ctx, p1.ID, s1.ID); err != nil {
		t.Fatalf("shortlist: %v", err)
	}
	thread, err := env.Engine.Greenlight(env.Ctx, p1.ID, s1.ID)
	if err != nil {
		t.Fatalf("greenlight: %v", err)
	}
	entries, err := env.Engine.ListShortlist(env.Ctx, p1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("shortlist entry not removed on promotion: %+v", entries)
	}
	msgs, err := env.Engine.Repo.ListMessages(env.Ctx, thread.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 seed messages, got %d", len(msgs))
	}
}

func TestBurnFromShortlistRemovesEntry(t *testing.T) {
	env := newTestEnv(t)
	w1 := env.user(t, "w1@example.com", "writer")
	p1 := env.user(t, "p1@example.com", "producer")
	s1 := env.snippet(t, w1.ID, "Alpha")

	if _, err := env.Engine.Shortlist(env.Ctx, p1.ID, s1.ID); err != nil {
		t.Fatalf("shortlist: %v", err)
	}
	// Shortlisted is not terminal: demoting to burned must succeed.
	if err := env.Engine.Burn(env.Ctx, p1.ID, s1.ID); err != nil {
		t.Fatalf("burn after shortlist: %v", err)
	}
	entries, err := env.Engine.ListShortlist(env.Ctx, p1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("shortlist entry not removed on demotion: %+v", entries)
	}

	ins, err := env.Engine.Repo.ListInteractions(env.Ctx, p1.ID)
	if err != nil {
		t.Fatal(err)
	}
	types := map[string]bool{}
	for _, in := range ins {
		types[in.Type] = true
	}
	if !types["viewed"] || !types["burnt"] {
		t.Fatalf("expected viewed and burnt interactions, got %v", types)
	}

	// Burned is terminal from here on.
	if err := env.Engine.Burn(env.Ctx, p1.ID, s1.ID); !errors.Is(err, engine.ErrAlreadyTriaged) {
		t.Fatalf("expected already triaged on re-burn, got %v", err)
	}
	if _, err := env.Engine.Greenlight(env.Ctx, p1.ID, s1.ID); !errors.Is(err, engine.ErrAlreadyTriaged) {
		t.Fatalf("expected already triaged on greenlight, got %v", err)
	}
	if _, err := env.Engine.NextSnippet(env.Ctx, p1.ID, nil); !errors.Is(err, engine.ErrNoEligibleSnippets) {
		t.Fatalf("burnt snippet still drawable: %v", err)
	}
}

func TestThreadDeleteCascades(t *testing.T) {
	env := newTestEnv(t)
	w1 := env.user(t, "w1@example.com", "writer")
	p1 := env.user(t, "p1@example.com", "producer")
	s1 := env.snippet(t, w1.ID, "Alpha")

	thread, err := env.Engine.Greenlight(env.Ctx, p1.ID, s1.ID)
	if err != nil {
		t.Fatalf("greenlight: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := env.Engine.SendMessage(env.Ctx, thread.ID, p1.ID, "hello"); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if err := env.Engine.DeleteThread(env.Ctx, thread.ID, p1.ID); err != nil {
		t.Fatalf("delete thread: %v", err)
	}

	msgs, err := env.Engine.Repo.ListMessages(env.Ctx, thread.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages after cascade, got %d", len(msgs))
	}
	threads, err := env.Engine.ListThreads(env.Ctx, p1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(threads) != 0 {
		t.Fatalf("thread still listed after delete")
	}
	if _, err := env.Engine.GetThread(env.Ctx, thread.ID, p1.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUnreadCountsConverge(t *testing.T) {
	env := newTestEnv(t)
	w1 := env.user(t, "w1@example.com", "writer")
	p1 := env.user(t, "p1@example.com", "producer")
	s1 := env.snippet(t, w1.ID, "Alpha")

	thread, err := env.Engine.Greenlight(env.Ctx, p1.ID, s1.ID)
	if err != nil {
		t.Fatalf("greenlight: %v", err)
	}
	// One unread seed per participant straight after the match.
	for _, u := range []domain.User{w1, p1} {
		total, _, err := env.Engine.UnreadSummary(env.Ctx, u.ID)
		if err != nil {
			t.Fatal(err)
		}
		if total != 1 {
			t.Fatalf("expected 1 unread seed for %s, got %d", u.Email, total)
		}
	}

	for i := 0; i < 3; i++ {
		if _, err := env.Engine.SendMessage(env.Ctx, thread.ID, p1.ID, "ping"); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	total, byThread, err := env.Engine.UnreadSummary(env.Ctx, w1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if total != 4 || byThread[thread.ID] != 4 {
		t.Fatalf("writer unread = %d (by thread %v), want 4", total, byThread)
	}

	n, err := env.Engine.MarkThreadRead(env.Ctx, thread.ID, w1.ID)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if n != 4 {
		t.Fatalf("marked %d messages, want 4", n)
	}
	total, _, err = env.Engine.UnreadSummary(env.Ctx, w1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 {
		t.Fatalf("writer unread after read = %d, want 0", total)
	}
	// The producer's own seed is untouched by the writer's read.
	total, _, err = env.Engine.UnreadSummary(env.Ctx, p1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Fatalf("producer unread = %d, want 1", total)
	}
}

func TestSendMessageTouchesThread(t *testing.T) {
	env := newTestEnv(t)
	w1 := env.user(t, "w1@example.com", "writer")
	p1 := env.user(t, "p1@example.com", "producer")
	s1 := env.snippet(t, w1.ID, "Alpha")

	thread, err := env.Engine.Greenlight(env.Ctx, p1.ID, s1.ID)
	if err != nil {
		t.Fatalf("greenlight: %v", err)
	}
	env.Engine.Now = func() time.Time { return time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC) }
	if _, err := env.Engine.SendMessage(env.Ctx, thread.ID, w1.ID, "hi there"); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := env.Engine.GetThread(env.Ctx, thread.ID, w1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastMessageAt != "2024-01-02T12:00:00Z" {
		t.Fatalf("last_message_at = %q", got.LastMessageAt)
	}
}

func TestThreadSummariesCarryCounterpartAndLastText(t *testing.T) {
	env := newTestEnv(t)
	w1 := env.user(t, "w1@example.com", "writer")
	p1 := env.user(t, "p1@example.com", "producer")
	s1 := env.snippet(t, w1.ID, "Alpha")

	thread, err := env.Engine.Greenlight(env.Ctx, p1.ID, s1.ID)
	if err != nil {
		t.Fatalf("greenlight: %v", err)
	}

	// Only seeds so far: no last text, one unread each.
	summaries, err := env.Engine.ThreadSummaries(env.Ctx, p1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	if summaries[0].CounterpartEmail != "w1@example.com" {
		t.Fatalf("producer counterpart = %q", summaries[0].CounterpartEmail)
	}
	if summaries[0].LastMessageText != "" {
		t.Fatalf("seed rows leaked into last text: %q", summaries[0].LastMessageText)
	}
	if summaries[0].Unread != 1 {
		t.Fatalf("producer unread = %d, want 1", summaries[0].Unread)
	}

	env.Engine.Now = func() time.Time { return time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC) }
	if _, err := env.Engine.SendMessage(env.Ctx, thread.ID, p1.ID, "loved the hook"); err != nil {
		t.Fatalf("send: %v", err)
	}
	env.Engine.Now = func() time.Time { return time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC) }
	if _, err := env.Engine.SendMessage(env.Ctx, thread.ID, w1.ID, "thanks, pages attached"); err != nil {
		t.Fatalf("send: %v", err)
	}

	summaries, err = env.Engine.ThreadSummaries(env.Ctx, w1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	if summaries[0].CounterpartEmail != "p1@example.com" {
		t.Fatalf("writer counterpart = %q", summaries[0].CounterpartEmail)
	}
	if summaries[0].LastMessageText != "thanks, pages attached" {
		t.Fatalf("last text = %q", summaries[0].LastMessageText)
	}
	// Seed plus the producer's message are unread for the writer.
	if summaries[0].Unread != 2 {
		t.Fatalf("writer unread = %d, want 2", summaries[0].Unread)
	}
}

func TestTriageRejectsOwnAndDuplicate(t *testing.T) {
	env := newTestEnv(t)
	w1 := env.user(t, "w1@example.com", "writer")
	p1 := env.user(t, "p1@example.com", "producer")
	own := env.insertSnippetOwnedBy(t, p1.ID, "Mine")
	s1 := env.snippet(t, w1.ID, "Alpha")

	if err := env.Engine.Burn(env.Ctx, p1.ID, own.ID); err == nil {
		t.Fatalf("expected error burning own snippet")
	}
	if err := env.Engine.Burn(env.Ctx, p1.ID, s1.ID); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if err := env.Engine.Burn(env.Ctx, p1.ID, s1.ID); !errors.Is(err, engine.ErrAlreadyTriaged) {
		t.Fatalf("expected already triaged, got %v", err)
	}
	if _, err := env.Engine.Shortlist(env.Ctx, p1.ID, s1.ID); !errors.Is(err, engine.ErrAlreadyTriaged) {
		t.Fatalf("expected already triaged on shortlist, got %v", err)
	}
	if _, err := env.Engine.Greenlight(env.Ctx, p1.ID, s1.ID); !errors.Is(err, engine.ErrAlreadyTriaged) {
		t.Fatalf("expected already triaged on greenlight, got %v", err)
	}
}

func TestCatalogStatusModelHidesForEveryone(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Triage.Eligibility = config.EligibilityCatalogStatus
	w1 := env.user(t, "w1@example.com", "writer")
	p1 := env.user(t, "p1@example.com", "producer")
	p2 := env.user(t, "p2@example.com", "producer")
	s1 := env.snippet(t, w1.ID, "Alpha")

	if err := env.Engine.Burn(env.Ctx, p1.ID, s1.ID); err != nil {
		t.Fatalf("burn: %v", err)
	}
	got, err := env.Engine.GetSnippet(env.Ctx, s1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "burned" {
		t.Fatalf("status = %q, want burned", got.Status)
	}
	// Status-driven eligibility hides the snippet from every producer.
	if _, err := env.Engine.NextSnippet(env.Ctx, p2.ID, nil); !errors.Is(err, engine.ErrNoEligibleSnippets) {
		t.Fatalf("expected no eligible snippets for p2, got %v", err)
	}
}

func TestSignUpAndAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "w1@example.com", "writer")
	if u.PasswordHash == "hunter2hunter2" {
		t.Fatalf("password stored in clear")
	}

	got, err := env.Engine.Authenticate(env.Ctx, "W1@Example.com ", "hunter2hunter2")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("authenticated wrong user")
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "w1@example.com", "wrong-password"); !errors.Is(err, engine.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := env.Engine.SignUp(env.Ctx, "w1@example.com", "hunter2hunter2", "writer"); !errors.Is(err, engine.ErrEmailTaken) {
		t.Fatalf("expected email taken, got %v", err)
	}
}

func TestSnippetValidationAndOwnership(t *testing.T) {
	env := newTestEnv(t)
	w1 := env.user(t, "w1@example.com", "writer")
	w2 := env.user(t, "w2@example.com", "writer")
	p1 := env.user(t, "p1@example.com", "producer")

	if _, err := env.Engine.CreateSnippet(env.Ctx, engine.SnippetCreateOptions{
		WriterID: w1.ID, Title: "No plot", Genre: "drama", Synopsis: "s", Hook: "h", BestScene: "b",
	}); err == nil {
		t.Fatalf("expected missing plot_summary error")
	}
	if _, err := env.Engine.CreateSnippet(env.Ctx, engine.SnippetCreateOptions{
		WriterID: w1.ID, Title: "Bad genre", Genre: "noir-opera", Synopsis: "s", Hook: "h", PlotSummary: "p", BestScene: "b",
	}); err == nil {
		t.Fatalf("expected unknown genre error")
	}
	if _, err := env.Engine.CreateSnippet(env.Ctx, engine.SnippetCreateOptions{
		WriterID: p1.ID, Title: "Producer pitch", Genre: "drama", Synopsis: "s", Hook: "h", PlotSummary: "p", BestScene: "b",
	}); err == nil {
		t.Fatalf("expected role error for producer author")
	}

	s1 := env.snippet(t, w1.ID, "Alpha")
	title := "Stolen"
	if _, err := env.Engine.UpdateSnippet(env.Ctx, engine.SnippetUpdateOptions{ID: s1.ID, ActorID: w2.ID, Title: &title}); err == nil {
		t.Fatalf("expected ownership error on update")
	}
	if err := env.Engine.DeleteSnippet(env.Ctx, s1.ID, w2.ID); err == nil {
		t.Fatalf("expected ownership error on delete")
	}
}

func TestStatsSummarizeActivity(t *testing.T) {
	env := newTestEnv(t)
	w1 := env.user(t, "w1@example.com", "writer")
	p1 := env.user(t, "p1@example.com", "producer")
	s1 := env.snippet(t, w1.ID, "Alpha")
	s2 := env.snippet(t, w1.ID, "Beta")
	env.snippet(t, w1.ID, "Gamma")

	if _, err := env.Engine.Shortlist(env.Ctx, p1.ID, s1.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Greenlight(env.Ctx, p1.ID, s2.ID); err != nil {
		t.Fatal(err)
	}

	st, err := env.Engine.Stats(env.Ctx, w1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalSnippets != 3 || st.Shortlisted != 1 || st.ActiveMatches != 1 || st.UnreadMessages != 1 {
		t.Fatalf("writer stats = %+v", st)
	}

	st, err = env.Engine.Stats(env.Ctx, p1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalSnippets != 0 || st.Shortlisted != 1 || st.ActiveMatches != 1 || st.UnreadMessages != 1 {
		t.Fatalf("producer stats = %+v", st)
	}
}

func TestEventsRecorded(t *testing.T) {
	env := newTestEnv(t)
	w1 := env.user(t, "w1@example.com", "writer")
	p1 := env.user(t, "p1@example.com", "producer")
	s1 := env.snippet(t, w1.ID, "Alpha")
	if _, err := env.Engine.Greenlight(env.Ctx, p1.ID, s1.ID); err != nil {
		t.Fatal(err)
	}

	events, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "", "", "")
	if err != nil {
		t.Fatal(err)
	}
	types := map[string]bool{}
	for _, evt := range events {
		types[evt.Type] = true
	}
	for _, want := range []string{"user.signup", "snippet.create", "snippet.greenlight"} {
		if !types[want] {
			t.Fatalf("missing event %s in %v", want, types)
		}
	}
}
