package repo

import (
	"context"
	"database/sql"

	"pageone/internal/domain"
)

const threadColumns = `id,producer_id,writer_id,snippet_id,preview_title,preview_genre,preview_synopsis,created_at,last_message_at`

func scanThread(row *sql.Row) (domain.Thread, error) {
	var t domain.Thread
	err := row.Scan(&t.ID, &t.ProducerID, &t.WriterID, &t.SnippetID, &t.Preview.Title, &t.Preview.Genre, &t.Preview.Synopsis, &t.CreatedAt, &t.LastMessageAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) InsertThread(ctx context.Context, tx *sql.Tx, t domain.Thread) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO message_threads(`+threadColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProducerID, t.WriterID, t.SnippetID, t.Preview.Title, t.Preview.Genre, t.Preview.Synopsis, t.CreatedAt, t.LastMessageAt)
	return err
}

func (r Repo) GetThread(ctx context.Context, id string) (domain.Thread, error) {
	return scanThread(r.DB.QueryRowContext(ctx, `SELECT `+threadColumns+` FROM message_threads WHERE id=?`, id))
}

func (r Repo) GetThreadTx(ctx context.Context, tx *sql.Tx, id string) (domain.Thread, error) {
	return scanThread(tx.QueryRowContext(ctx, `SELECT `+threadColumns+` FROM message_threads WHERE id=?`, id))
}

// FindThread looks up an existing thread for a producer/snippet pair.
func (r Repo) FindThread(ctx context.Context, tx *sql.Tx, producerID, snippetID string) (domain.Thread, error) {
	return scanThread(tx.QueryRowContext(ctx, `SELECT `+threadColumns+` FROM message_threads WHERE producer_id=? AND snippet_id=? LIMIT 1`, producerID, snippetID))
}

// ListThreads returns every thread the user participates in, either side,
// most recent activity first.
func (r Repo) ListThreads(ctx context.Context, userID string) ([]domain.Thread, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+threadColumns+` FROM message_threads WHERE producer_id=? OR writer_id=? ORDER BY last_message_at DESC, id DESC`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Thread
	for rows.Next() {
		var t domain.Thread
		if err := rows.Scan(&t.ID, &t.ProducerID, &t.WriterID, &t.SnippetID, &t.Preview.Title, &t.Preview.Genre, &t.Preview.Synopsis, &t.CreatedAt, &t.LastMessageAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) DeleteThreadTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM message_threads WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteThreadMessages removes every message in the thread. Runs in the
// same transaction as the thread delete so the cascade is atomic.
func (r Repo) DeleteThreadMessages(ctx context.Context, tx *sql.Tx, threadID string) (int, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE thread_id=?`, threadID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r Repo) TouchThread(ctx context.Context, tx *sql.Tx, id, lastMessageAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE message_threads SET last_message_at=? WHERE id=?`, lastMessageAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountThreadsForUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM message_threads WHERE producer_id=? OR writer_id=?`, userID, userID).Scan(&n)
	return n, err
}

const messageColumns = `id,thread_id,sender_id,recipient_id,kind,text,ts,read`

func (r Repo) InsertMessage(ctx context.Context, tx *sql.Tx, m domain.Message) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO messages(`+messageColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		m.ID, m.ThreadID, m.SenderID, m.RecipientID, m.Kind, m.Text, m.TS, m.Read)
	return err
}

// ListMessages returns a thread's messages oldest first. Seed messages
// carry empty text and are filtered out of the conversation view.
func (r Repo) ListMessages(ctx context.Context, threadID string, includeEmpty bool) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE thread_id=?`
	if !includeEmpty {
		query += ` AND text <> ''`
	}
	query += ` ORDER BY ts ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.SenderID, &m.RecipientID, &m.Kind, &m.Text, &m.TS, &m.Read); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// LastMessageText returns the newest non-empty message in the thread, or
// "" when only seed rows exist.
func (r Repo) LastMessageText(ctx context.Context, threadID string) (string, error) {
	var text string
	err := r.DB.QueryRowContext(ctx, `SELECT text FROM messages WHERE thread_id=? AND text <> '' ORDER BY ts DESC, id DESC LIMIT 1`, threadID).Scan(&text)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return text, err
}

// MarkThreadRead flags every message addressed to the user in the thread.
func (r Repo) MarkThreadRead(ctx context.Context, tx *sql.Tx, threadID, userID string) (int, error) {
	res, err := tx.ExecContext(ctx, `UPDATE messages SET read=1 WHERE thread_id=? AND recipient_id=? AND read=0`, threadID, userID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// UnreadCount counts unread messages addressed to the user across all
// threads. Seed rows count too until the thread is first marked read.
func (r Repo) UnreadCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM messages WHERE recipient_id=? AND read=0`, userID).Scan(&n)
	return n, err
}

// UnreadCountByThread breaks the unread count down per thread.
func (r Repo) UnreadCountByThread(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT thread_id, count(*) FROM messages WHERE recipient_id=? AND read=0 GROUP BY thread_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var threadID string
		var n int
		if err := rows.Scan(&threadID, &n); err != nil {
			return nil, err
		}
		counts[threadID] = n
	}
	return counts, rows.Err()
}
