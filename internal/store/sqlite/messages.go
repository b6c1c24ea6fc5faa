package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ternmail/tern/internal/domain"
	"github.com/ternmail/tern/internal/store"
)

const messageColumns = `id, account_id, folder_id, imap_uid, date_ts, from_addr, to_addr, cc_addr, subject, unread, preview`

func scanMessage(row interface{ Scan(...any) error }) (*domain.Message, error) {
	var m domain.Message
	var dateTS int64
	err := row.Scan(&m.ID, &m.AccountID, &m.FolderID, &m.UID, &dateTS,
		&m.From, &m.To, &m.CC, &m.Subject, &m.Unread, &m.Preview)
	if err != nil {
		return nil, err
	}
	m.Date = time.Unix(dateTS, 0).UTC()
	return &m, nil
}

func (s *DB) GetMessage(ctx context.Context, id int64) (*domain.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get message %d: %w", id, err)
	}
	return m, nil
}

func (s *DB) ListMessages(ctx context.Context, opts store.ListMessageOptions) ([]domain.Message, error) {
	var where []string
	var args []any
	if opts.AccountID != 0 {
		where = append(where, "account_id = ?")
		args = append(args, opts.AccountID)
	}
	if opts.FolderID != 0 {
		where = append(where, "folder_id = ?")
		args = append(args, opts.FolderID)
	}
	if opts.UnreadOnly {
		where = append(where, "unread = 1")
	}

	query := `SELECT ` + messageColumns + ` FROM messages`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date_ts DESC, id ASC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

func (s *DB) DeleteMessage(ctx context.Context, id int64) error {
	return s.withTx(func(tx *sql.Tx) error {
		var folderID int64
		var unread bool
		err := tx.QueryRowContext(ctx,
			`SELECT folder_id, unread FROM messages WHERE id = ?`, id,
		).Scan(&folderID, &unread)
		if err != nil {
			return fmt.Errorf("failed to look up message %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete message %d: %w", id, err)
		}
		if unread {
			if err := recountUnread(ctx, tx, folderID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *DB) SetMessageUnread(ctx context.Context, id int64, unread bool) error {
	return s.withTx(func(tx *sql.Tx) error {
		var folderID int64
		err := tx.QueryRowContext(ctx,
			`SELECT folder_id FROM messages WHERE id = ?`, id,
		).Scan(&folderID)
		if err != nil {
			return fmt.Errorf("failed to look up message %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE messages SET unread = ? WHERE id = ?`, unread, id); err != nil {
			return fmt.Errorf("failed to update message %d: %w", id, err)
		}
		return recountUnread(ctx, tx, folderID)
	})
}

// EnrichMessage fills the fields only available once the full body has been
// fetched: recipients and the preview snippet.
func (s *DB) EnrichMessage(ctx context.Context, id int64, to, cc, preview string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET to_addr = ?, cc_addr = ?, preview = ? WHERE id = ?`, to, cc, preview, id)
	if err != nil {
		return fmt.Errorf("failed to enrich message %d: %w", id, err)
	}
	return nil
}

// recountUnread refreshes a folder's denormalized unread counter from the
// messages table. Must run inside the same transaction as the change.
func recountUnread(ctx context.Context, tx *sql.Tx, folderID int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE folders SET unread = (SELECT COUNT(*) FROM messages WHERE folder_id = ? AND unread = 1)
		 WHERE id = ?`, folderID, folderID)
	if err != nil {
		return fmt.Errorf("failed to recount unread for folder %d: %w", folderID, err)
	}
	return nil
}

func (s *DB) GetRawBody(ctx context.Context, messageID int64) ([]byte, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT raw FROM bodies WHERE message_id = ?`, messageID,
	).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("failed to get body for message %d: %w", messageID, err)
	}
	return raw, nil
}

func (s *DB) PutRawBody(ctx context.Context, messageID int64, raw []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bodies (message_id, raw) VALUES (?, ?)
		 ON CONFLICT(message_id) DO UPDATE SET raw = excluded.raw`,
		messageID, raw)
	if err != nil {
		return fmt.Errorf("failed to store body for message %d: %w", messageID, err)
	}
	return nil
}

func (s *DB) SetAttachments(ctx context.Context, messageID int64, atts []domain.Attachment) error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM attachments WHERE message_id = ?`, messageID); err != nil {
			return fmt.Errorf("failed to clear attachments for message %d: %w", messageID, err)
		}
		for _, a := range atts {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO attachments (message_id, idx, filename, mime_type, size) VALUES (?, ?, ?, ?, ?)`,
				messageID, a.Index, a.Filename, a.MIME, a.Size); err != nil {
				return fmt.Errorf("failed to store attachment %d/%d: %w", messageID, a.Index, err)
			}
		}
		return nil
	})
}

func (s *DB) AttachmentsFor(ctx context.Context, messageID int64) ([]domain.Attachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, idx, filename, mime_type, size FROM attachments WHERE message_id = ? ORDER BY idx`,
		messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments for message %d: %w", messageID, err)
	}
	defer rows.Close()

	var atts []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		if err := rows.Scan(&a.MessageID, &a.Index, &a.Filename, &a.MIME, &a.Size); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		atts = append(atts, a)
	}
	return atts, rows.Err()
}
