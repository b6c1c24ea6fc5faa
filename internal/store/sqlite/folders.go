package sqlite

import (
	"context"
	"fmt"

	"github.com/ternmail/tern/internal/domain"
)

func (s *DB) UpsertFolder(ctx context.Context, f *domain.Folder) (int64, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO folders (account_id, name, unread) VALUES (?, ?, ?)
		 ON CONFLICT(account_id, name) DO UPDATE SET unread = excluded.unread`,
		f.AccountID, f.Name, f.Unread,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert folder %s: %w", f.Name, err)
	}
	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM folders WHERE account_id = ? AND name = ?`, f.AccountID, f.Name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve folder id: %w", err)
	}
	f.ID = id
	return id, nil
}

func (s *DB) FolderByName(ctx context.Context, accountID int64, name string) (*domain.Folder, error) {
	var f domain.Folder
	err := s.db.QueryRowContext(ctx,
		`SELECT id, account_id, name, unread FROM folders WHERE account_id = ? AND name = ?`,
		accountID, name,
	).Scan(&f.ID, &f.AccountID, &f.Name, &f.Unread)
	if err != nil {
		return nil, fmt.Errorf("failed to get folder %s: %w", name, err)
	}
	return &f, nil
}

func (s *DB) ListFolders(ctx context.Context, accountID int64) ([]domain.Folder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, name, unread FROM folders WHERE account_id = ? ORDER BY name`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()

	var folders []domain.Folder
	for rows.Next() {
		var f domain.Folder
		if err := rows.Scan(&f.ID, &f.AccountID, &f.Name, &f.Unread); err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}
