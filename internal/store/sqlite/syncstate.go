package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ternmail/tern/internal/domain"
	"github.com/ternmail/tern/internal/provider"
	"github.com/ternmail/tern/internal/store"
)

func (s *DB) GetFolderSyncState(ctx context.Context, folderID int64) (*store.FolderSyncState, error) {
	var st store.FolderSyncState
	err := s.db.QueryRowContext(ctx,
		`SELECT folder_id, uidvalidity, uidnext, last_seen_uid, last_sync_ts, oldest_ts
		 FROM folder_sync_state WHERE folder_id = ?`, folderID,
	).Scan(&st.FolderID, &st.UIDValidity, &st.UIDNext, &st.LastSeenUID, &st.LastSyncTS, &st.OldestTS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state for folder %d: %w", folderID, err)
	}
	return &st, nil
}

// ResetCursor replaces the folder's sync cursor wholesale. Used when a folder
// is seen for the first time and when the server reports a new uidvalidity,
// which invalidates every stored uid for the folder.
func (s *DB) ResetCursor(ctx context.Context, st *store.FolderSyncState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO folder_sync_state (folder_id, uidvalidity, uidnext, last_seen_uid, last_sync_ts, oldest_ts)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(folder_id) DO UPDATE SET
		   uidvalidity = excluded.uidvalidity,
		   uidnext = excluded.uidnext,
		   last_seen_uid = excluded.last_seen_uid,
		   last_sync_ts = excluded.last_sync_ts,
		   oldest_ts = excluded.oldest_ts`,
		st.FolderID, st.UIDValidity, st.UIDNext, st.LastSeenUID, st.LastSyncTS, st.OldestTS)
	if err != nil {
		return fmt.Errorf("failed to reset sync cursor for folder %d: %w", st.FolderID, err)
	}
	return nil
}

// CommitHeaderChunk stores one fetched chunk of message headers and advances
// last_seen_uid, all in a single transaction. A crash between chunks leaves
// the cursor pointing at the last fully committed chunk, so a re-run resumes
// without re-requesting anything already stored.
func (s *DB) CommitHeaderChunk(ctx context.Context, accountID, folderID int64, msgs []domain.Message, lastSeenUID uint32) error {
	return s.withTx(func(tx *sql.Tx) error {
		if err := upsertMessages(ctx, tx, accountID, folderID, msgs); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE folder_sync_state SET last_seen_uid = ? WHERE folder_id = ?`,
			lastSeenUID, folderID); err != nil {
			return fmt.Errorf("failed to advance cursor for folder %d: %w", folderID, err)
		}
		if err := refreshOldestTS(ctx, tx, folderID); err != nil {
			return err
		}
		return recountUnread(ctx, tx, folderID)
	})
}

// CommitBackfillChunk stores one chunk of older headers and moves oldest_ts
// backwards. It never touches last_seen_uid.
func (s *DB) CommitBackfillChunk(ctx context.Context, accountID, folderID int64, msgs []domain.Message, oldestTS int64) error {
	return s.withTx(func(tx *sql.Tx) error {
		if err := upsertMessages(ctx, tx, accountID, folderID, msgs); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE folder_sync_state SET oldest_ts = ? WHERE folder_id = ? AND (oldest_ts = 0 OR oldest_ts > ?)`,
			oldestTS, folderID, oldestTS); err != nil {
			return fmt.Errorf("failed to update oldest_ts for folder %d: %w", folderID, err)
		}
		return recountUnread(ctx, tx, folderID)
	})
}

// FinalizeSync records the server's uidnext and the wall-clock completion
// time after all chunks of a pass have committed.
func (s *DB) FinalizeSync(ctx context.Context, folderID int64, uidNext uint32, syncTS int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE folder_sync_state SET uidnext = ?, last_sync_ts = ? WHERE folder_id = ?`,
		uidNext, syncTS, folderID)
	if err != nil {
		return fmt.Errorf("failed to finalize sync for folder %d: %w", folderID, err)
	}
	return nil
}

// ApplyFlagUpdates reconciles unread flags for already-mirrored messages.
// Unknown uids are ignored.
func (s *DB) ApplyFlagUpdates(ctx context.Context, folderID int64, updates []provider.FlagUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return s.withTx(func(tx *sql.Tx) error {
		for _, u := range updates {
			if _, err := tx.ExecContext(ctx,
				`UPDATE messages SET unread = ? WHERE folder_id = ? AND imap_uid = ?`,
				u.Unread, folderID, u.UID); err != nil {
				return fmt.Errorf("failed to apply flag update for uid %d: %w", u.UID, err)
			}
		}
		return recountUnread(ctx, tx, folderID)
	})
}

func upsertMessages(ctx context.Context, tx *sql.Tx, accountID, folderID int64, msgs []domain.Message) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO messages (account_id, folder_id, imap_uid, date_ts, from_addr, subject, unread, preview)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(folder_id, imap_uid) DO UPDATE SET
		   date_ts = excluded.date_ts,
		   from_addr = excluded.from_addr,
		   subject = excluded.subject,
		   unread = excluded.unread`)
	if err != nil {
		return fmt.Errorf("failed to prepare message upsert: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		if _, err := stmt.ExecContext(ctx,
			accountID, folderID, m.UID, m.Date.Unix(), m.From, m.Subject, m.Unread, m.Preview); err != nil {
			return fmt.Errorf("failed to upsert message uid %d: %w", m.UID, err)
		}
	}
	return nil
}

func refreshOldestTS(ctx context.Context, tx *sql.Tx, folderID int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE folder_sync_state SET oldest_ts = COALESCE(
		   (SELECT MIN(date_ts) FROM messages WHERE folder_id = ?), 0)
		 WHERE folder_id = ?`, folderID, folderID)
	if err != nil {
		return fmt.Errorf("failed to refresh oldest_ts for folder %d: %w", folderID, err)
	}
	return nil
}
