package account

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"

	"github.com/citydrive/carshare-backend/internal/database"
)

// SQLStore persists one JSON record per user in the accounts table.
type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Get(ctx context.Context, userID string) (Account, error) {
	var raw []byte
	err := s.db.GetContext(ctx, &raw, s.db.Rebind(getAccountQuery), userID)
	if database.IsNoRows(err) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}

	var a Account
	if err := json.Unmarshal(raw, &a); err != nil {
		// A record that fails to parse is treated as no record.
		return Account{}, ErrNotFound
	}
	a.ID = userID
	return a, nil
}

const getAccountQuery = `SELECT record FROM accounts WHERE id = $1`

func (s *SQLStore) Put(ctx context.Context, a Account) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(putAccountQuery), a.ID, raw)
	return err
}

const putAccountQuery = `
INSERT INTO accounts (id, record, updated_at)
VALUES ($1, $2, CURRENT_TIMESTAMP)
ON CONFLICT (id) DO UPDATE SET record = excluded.record, updated_at = CURRENT_TIMESTAMP
`
