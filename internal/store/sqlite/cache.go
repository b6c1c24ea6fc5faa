package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ternmail/tern/internal/store"
)

func (s *DB) GetCacheText(ctx context.Context, messageID int64, widthCols int) (string, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM cache_text WHERE message_id = ? AND width_cols = ?`,
		messageID, widthCols,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read text cache for message %d: %w", messageID, err)
	}
	return body, true, nil
}

func (s *DB) PutCacheText(ctx context.Context, messageID int64, widthCols int, text string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO cache_text (message_id, width_cols, body, updated_at) VALUES (?, ?, ?, ?)`,
		messageID, widthCols, text, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write text cache for message %d: %w", messageID, err)
	}
	return nil
}

func (s *DB) GetCacheHTML(ctx context.Context, messageID int64, policy store.RemotePolicy) (string, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM cache_html WHERE message_id = ? AND remote_policy = ?`,
		messageID, string(policy),
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read html cache for message %d: %w", messageID, err)
	}
	return body, true, nil
}

func (s *DB) PutCacheHTML(ctx context.Context, messageID int64, policy store.RemotePolicy, html string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO cache_html (message_id, remote_policy, body, updated_at) VALUES (?, ?, ?, ?)`,
		messageID, string(policy), html, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write html cache for message %d: %w", messageID, err)
	}
	return nil
}

func (s *DB) GetCacheTiles(ctx context.Context, key store.TileKey) ([]store.Tile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tile_index, png FROM cache_tiles
		 WHERE message_id = ? AND width_px = ? AND tile_height_px = ? AND theme = ? AND remote_policy = ?
		 ORDER BY tile_index`,
		key.MessageID, key.WidthPx, key.TileHeightPx, key.Theme, string(key.Policy))
	if err != nil {
		return nil, fmt.Errorf("failed to read tile cache for message %d: %w", key.MessageID, err)
	}
	defer rows.Close()

	var tiles []store.Tile
	for rows.Next() {
		var t store.Tile
		if err := rows.Scan(&t.Index, &t.PNG); err != nil {
			return nil, fmt.Errorf("failed to scan tile: %w", err)
		}
		tiles = append(tiles, t)
	}
	return tiles, rows.Err()
}

// PutCacheTiles stores a full tile set in one transaction so a reader never
// observes a partial set for a key.
func (s *DB) PutCacheTiles(ctx context.Context, key store.TileKey, tiles []store.Tile) error {
	return s.withTx(func(tx *sql.Tx) error {
		now := time.Now().Unix()
		for _, t := range tiles {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO cache_tiles (message_id, width_px, tile_height_px, theme, remote_policy, tile_index, png, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				key.MessageID, key.WidthPx, key.TileHeightPx, key.Theme, string(key.Policy), t.Index, t.PNG, now); err != nil {
				return fmt.Errorf("failed to write tile %d for message %d: %w", t.Index, key.MessageID, err)
			}
		}
		return nil
	})
}
