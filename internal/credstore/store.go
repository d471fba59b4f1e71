// Package credstore keeps the session credentials ("accessToken" and
// "refreshToken") in a small encrypted key/value store.
package credstore

import (
	"context"
	"errors"
)

const (
	AccessTokenKey  = "accessToken"
	RefreshTokenKey = "refreshToken"
)

var (
	ErrItemNotFound    = errors.New("credential not found")
	ErrStore           = errors.New("credential store failure")
	ErrWrongPassphrase = errors.New("wrong store passphrase")
)

// Store persists opaque credential strings by key.
//
// Get returns ErrItemNotFound for a missing key. Delete of a missing key is
// not an error. Any other failure wraps ErrStore.
type Store interface {
	Save(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// batchSaver is implemented by stores that can write several keys atomically.
type batchSaver interface {
	SaveAll(ctx context.Context, items map[string]string) error
}

// SaveTokens writes both session tokens. Stores that support it write the
// pair in one transaction so a reader never sees a torn pair.
func SaveTokens(ctx context.Context, s Store, access, refresh string) error {
	if b, ok := s.(batchSaver); ok {
		return b.SaveAll(ctx, map[string]string{
			AccessTokenKey:  access,
			RefreshTokenKey: refresh,
		})
	}
	if err := s.Save(ctx, AccessTokenKey, access); err != nil {
		return err
	}
	return s.Save(ctx, RefreshTokenKey, refresh)
}

// LoadTokens reads both session tokens. It returns ErrItemNotFound when
// either one is missing.
func LoadTokens(ctx context.Context, s Store) (access, refresh string, err error) {
	access, err = s.Get(ctx, AccessTokenKey)
	if err != nil {
		return "", "", err
	}
	refresh, err = s.Get(ctx, RefreshTokenKey)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// DeleteTokens removes both session tokens. Both deletions are attempted;
// the joined error is returned.
func DeleteTokens(ctx context.Context, s Store) error {
	return errors.Join(
		s.Delete(ctx, AccessTokenKey),
		s.Delete(ctx, RefreshTokenKey),
	)
}
