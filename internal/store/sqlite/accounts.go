package sqlite

import (
	"context"
	"fmt"

	"github.com/ternmail/tern/internal/domain"
)

func (s *DB) UpsertAccount(ctx context.Context, acct *domain.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (name, address) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET address = excluded.address`,
		acct.Name, acct.Address,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	if acct.ID == 0 {
		// LastInsertId is stale on the conflict path, so resolve by name
		row := s.db.QueryRowContext(ctx, `SELECT id FROM accounts WHERE name = ?`, acct.Name)
		if err := row.Scan(&acct.ID); err != nil {
			return fmt.Errorf("failed to resolve account id: %w", err)
		}
	}
	return nil
}

func (s *DB) GetAccountByName(ctx context.Context, name string) (*domain.Account, error) {
	var a domain.Account
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, address FROM accounts WHERE name = ?`, name,
	).Scan(&a.ID, &a.Name, &a.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", name, err)
	}
	return &a, nil
}

func (s *DB) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, address FROM accounts ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Address); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
