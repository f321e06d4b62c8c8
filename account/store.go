package account

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("account not found")

// Store persists whole account records keyed by user ID. Get returns
// ErrNotFound for unknown users; Put replaces the record.
type Store interface {
	Get(ctx context.Context, userID string) (Account, error)
	Put(ctx context.Context, a Account) error
}

// Bootstrap fetches the account for userID, lazily creating a fresh record
// on first sign-in.
func Bootstrap(ctx context.Context, s Store, userID, name, email, phone string) (Account, error) {
	a, err := s.Get(ctx, userID)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Account{}, err
	}

	a = New(userID, name, email, phone)
	if err := s.Put(ctx, a); err != nil {
		return Account{}, err
	}
	return a, nil
}
