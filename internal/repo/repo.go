package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pageone/internal/config"
	"pageone/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const snippetColumns = `id,writer_id,title,genre,synopsis,hook,plot_summary,best_scene,status,created_at,updated_at`

func scanSnippet(row *sql.Row) (domain.Snippet, error) {
	var s domain.Snippet
	err := row.Scan(&s.ID, &s.WriterID, &s.Title, &s.Genre, &s.Synopsis, &s.Hook, &s.PlotSummary, &s.BestScene, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) InsertSnippet(ctx context.Context, tx *sql.Tx, s domain.Snippet) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO snippets(`+snippetColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.WriterID, s.Title, s.Genre, s.Synopsis, s.Hook, s.PlotSummary, s.BestScene, s.Status, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r Repo) GetSnippet(ctx context.Context, id string) (domain.Snippet, error) {
	return scanSnippet(r.DB.QueryRowContext(ctx, `SELECT `+snippetColumns+` FROM snippets WHERE id=?`, id))
}

// UpdateSnippet rewrites the content fields. writer_id is never touched.
func (r Repo) UpdateSnippet(ctx context.Context, tx *sql.Tx, s domain.Snippet) error {
	res, err := tx.ExecContext(ctx, `UPDATE snippets SET title=?, genre=?, synopsis=?, hook=?, plot_summary=?, best_scene=?, updated_at=? WHERE id=?`,
		s.Title, s.Genre, s.Synopsis, s.Hook, s.PlotSummary, s.BestScene, s.UpdatedAt, s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateSnippetStatus(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE snippets SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteSnippet(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM snippets WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type SnippetFilters struct {
	WriterID        string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListSnippets(ctx context.Context, f SnippetFilters) ([]domain.Snippet, error) {
	var clauses []string
	var args []any
	if f.WriterID != "" {
		clauses = append(clauses, "writer_id=?")
		args = append(args, f.WriterID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + snippetColumns + ` FROM snippets ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Snippet
	for rows.Next() {
		var s domain.Snippet
		if err := rows.Scan(&s.ID, &s.WriterID, &s.Title, &s.Genre, &s.Synopsis, &s.Hook, &s.PlotSummary, &s.BestScene, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) CountSnippetsByWriter(ctx context.Context, writerID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM snippets WHERE writer_id=?`, writerID).Scan(&n)
	return n, err
}

func (r Repo) InsertInteraction(ctx context.Context, tx *sql.Tx, in domain.Interaction) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO producer_interactions(id,producer_id,snippet_id,interaction_type,ts) VALUES (?,?,?,?,?)`,
		in.ID, in.ProducerID, in.SnippetID, in.Type, in.TS)
	return err
}

// InteractedSnippetIDs returns every snippet id this producer has already
// decided on, regardless of the decision.
func (r Repo) InteractedSnippetIDs(ctx context.Context, producerID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT DISTINCT snippet_id FROM producer_interactions WHERE producer_id=?`, producerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InteractionTypesTx returns the distinct decision types the producer has
// recorded for one snippet.
func (r Repo) InteractionTypesTx(ctx context.Context, tx *sql.Tx, producerID, snippetID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT DISTINCT interaction_type FROM producer_interactions WHERE producer_id=? AND snippet_id=?`, producerID, snippetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

func (r Repo) ListInteractions(ctx context.Context, producerID string) ([]domain.Interaction, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,producer_id,snippet_id,interaction_type,ts FROM producer_interactions WHERE producer_id=? ORDER BY ts DESC, id DESC`, producerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Interaction
	for rows.Next() {
		var in domain.Interaction
		if err := rows.Scan(&in.ID, &in.ProducerID, &in.SnippetID, &in.Type, &in.TS); err != nil {
			return nil, err
		}
		res = append(res, in)
	}
	return res, rows.Err()
}

func (r Repo) InsertShortlistEntry(ctx context.Context, tx *sql.Tx, e domain.ShortlistEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO shortlists(id,producer_id,snippet_id,ts,snapshot_title,snapshot_genre,snapshot_synopsis,snapshot_writer_id) VALUES (?,?,?,?,?,?,?,?)`,
		e.ID, e.ProducerID, e.SnippetID, e.TS, e.Snapshot.Title, e.Snapshot.Genre, e.Snapshot.Synopsis, e.Snapshot.WriterID)
	return err
}

func (r Repo) ListShortlist(ctx context.Context, producerID string) ([]domain.ShortlistEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,producer_id,snippet_id,ts,snapshot_title,snapshot_genre,snapshot_synopsis,snapshot_writer_id FROM shortlists WHERE producer_id=? ORDER BY ts DESC, id DESC`, producerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ShortlistEntry
	for rows.Next() {
		var e domain.ShortlistEntry
		if err := rows.Scan(&e.ID, &e.ProducerID, &e.SnippetID, &e.TS, &e.Snapshot.Title, &e.Snapshot.Genre, &e.Snapshot.Synopsis, &e.Snapshot.WriterID); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) GetShortlistEntry(ctx context.Context, producerID, snippetID string) (domain.ShortlistEntry, error) {
	var e domain.ShortlistEntry
	err := r.DB.QueryRowContext(ctx, `SELECT id,producer_id,snippet_id,ts,snapshot_title,snapshot_genre,snapshot_synopsis,snapshot_writer_id FROM shortlists WHERE producer_id=? AND snippet_id=? LIMIT 1`, producerID, snippetID).
		Scan(&e.ID, &e.ProducerID, &e.SnippetID, &e.TS, &e.Snapshot.Title, &e.Snapshot.Genre, &e.Snapshot.Synopsis, &e.Snapshot.WriterID)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	return e, err
}

// DeleteShortlistEntries removes every entry for the pair. Shortlisting
// twice leaves duplicate rows; promotion and demotion clear them all.
func (r Repo) DeleteShortlistEntries(ctx context.Context, tx *sql.Tx, producerID, snippetID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM shortlists WHERE producer_id=? AND snippet_id=?`, producerID, snippetID)
	return err
}

func (r Repo) CountShortlistsForWriter(ctx context.Context, writerID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM shortlists WHERE snapshot_writer_id=?`, writerID).Scan(&n)
	return n, err
}

func (r Repo) UpsertAppConfig(ctx context.Context, name string, cfg *config.Config) error {
	return upsertAppConfig(ctx, r.DB, nil, name, cfg)
}

func (r Repo) UpsertAppConfigTx(ctx context.Context, tx *sql.Tx, name string, cfg *config.Config) error {
	return upsertAppConfig(ctx, nil, tx, name, cfg)
}

func upsertAppConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, name string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.App.Name = name
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO app_configs(name,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(name) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, name, string(payload), now, now)
	return err
}

func (r Repo) GetAppConfig(ctx context.Context, name string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM app_configs WHERE name=?`, name).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.App.Name == "" {
		cfg.App.Name = name
	}
	return &cfg, cfg.Validate()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if entID.Valid {
			e.EntityID = entID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if entID.Valid {
			e.EntityID = entID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
