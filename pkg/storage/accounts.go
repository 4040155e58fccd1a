package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Account is a service identity linked to a pane's agent (e.g. which
// Anthropic/OpenAI/Google account is currently authenticated), used by
// usage-limit workflows to decide whether switching accounts is possible.
type Account struct {
	Service   string
	AccountID string
	Label     string
	AddedAt   time.Time
}

// UpsertAccount records or updates a known service account.
func (s *Store) UpsertAccount(a Account) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	if a.AddedAt.IsZero() {
		a.AddedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO accounts (service, account_id, label, added_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(service, account_id) DO UPDATE SET label = excluded.label
	`, a.Service, a.AccountID, nullableString(a.Label), a.AddedAt)
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// GetAccountsByService returns every known account for a given service,
// oldest first.
func (s *Store) GetAccountsByService(service string) ([]Account, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.Query(`
		SELECT service, account_id, label, added_at FROM accounts
		WHERE service = ? ORDER BY added_at ASC
	`, service)
	if err != nil {
		return nil, fmt.Errorf("get accounts by service: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		var label sql.NullString
		if err := rows.Scan(&a.Service, &a.AccountID, &label, &a.AddedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.Label = label.String
		out = append(out, a)
	}
	return out, rows.Err()
}
