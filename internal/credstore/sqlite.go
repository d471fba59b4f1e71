package credstore

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/dmitrijs2005/gophsky/internal/credstore/migrations"
	"github.com/dmitrijs2005/gophsky/internal/cryptox"
	"github.com/dmitrijs2005/gophsky/internal/dbx"
	"github.com/dmitrijs2005/gophsky/internal/filex"
)

const (
	metaSalt     = "kdf_salt"
	metaVerifier = "key_verifier"
)

// SQLiteStore is a Store backed by a SQLite file. Every value is sealed with
// AES-GCM under a key derived from the store passphrase; the credential key
// is bound as additional data so ciphertexts cannot be swapped between rows.
type SQLiteStore struct {
	db *sql.DB

	mu  sync.RWMutex
	key []byte
}

// OpenSQLite opens (creating if needed) the store at path and unlocks it
// with passphrase. The file is created with 0600 permissions.
func OpenSQLite(ctx context.Context, path, passphrase string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if _, err := filex.EnsureParentDir(path); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStore, err)
		}
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
		if err != nil {
			return nil, fmt.Errorf("%w: create %s: %w", ErrStore, path, err)
		}
		_ = f.Close()
	}

	db, err := dbx.OpenSQLite(ctx, path, migrations.Migrations)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}

	s, err := NewSQLiteStore(ctx, db, passphrase)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore unlocks a store on an already migrated database. The first
// unlock generates the salt and records the key verifier; later unlocks
// fail with ErrWrongPassphrase if the derived key does not match.
func NewSQLiteStore(ctx context.Context, db *sql.DB, passphrase string) (*SQLiteStore, error) {
	var key []byte

	err := dbx.WithTx(ctx, db, func(ctx context.Context, tx dbx.DBTX) error {
		salt, err := getMeta(ctx, tx, metaSalt)
		if err != nil {
			return err
		}

		if salt == nil {
			salt, err = cryptox.RandomBytes(cryptox.SaltSize)
			if err != nil {
				return err
			}
			key = cryptox.DeriveKey([]byte(passphrase), salt)
			if err := setMeta(ctx, tx, metaSalt, salt); err != nil {
				return err
			}
			return setMeta(ctx, tx, metaVerifier, cryptox.MakeVerifier(key))
		}

		verifier, err := getMeta(ctx, tx, metaVerifier)
		if err != nil {
			return err
		}
		key = cryptox.DeriveKey([]byte(passphrase), salt)
		if subtle.ConstantTimeCompare(verifier, cryptox.MakeVerifier(key)) != 1 {
			cryptox.Wipe(key)
			key = nil
			return ErrWrongPassphrase
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrWrongPassphrase) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: unlock: %w", ErrStore, err)
	}

	return &SQLiteStore{db: db, key: key}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, key, value string) error {
	return s.SaveAll(ctx, map[string]string{key: value})
}

// SaveAll upserts every item in a single transaction.
func (s *SQLiteStore) SaveAll(ctx context.Context, items map[string]string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return fmt.Errorf("%w: store is closed", ErrStore)
	}

	err := dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		for k, v := range items {
			ct, nonce, err := cryptox.Seal([]byte(v), s.key, []byte(k))
			if err != nil {
				return fmt.Errorf("seal %s: %w", k, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO credentials (key, ciphertext, nonce, updated_at)
				VALUES (?, ?, ?, CURRENT_TIMESTAMP)
				ON CONFLICT(key) DO UPDATE SET
					ciphertext = excluded.ciphertext,
					nonce = excluded.nonce,
					updated_at = excluded.updated_at
			`, k, ct, nonce)
			if err != nil {
				return fmt.Errorf("failed to save credential[%s]: %w", k, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return "", fmt.Errorf("%w: store is closed", ErrStore)
	}

	var ct, nonce []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT ciphertext, nonce FROM credentials WHERE key = ?`, key).Scan(&ct, &nonce)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrItemNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: failed to get credential[%s]: %w", ErrStore, key, err)
	}

	pt, err := cryptox.Open(ct, nonce, s.key, []byte(key))
	if err != nil {
		return "", fmt.Errorf("%w: credential[%s]: %w", ErrStore, key, err)
	}
	return string(pt), nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("%w: failed to delete credential[%s]: %w", ErrStore, key, err)
	}
	return nil
}

// Close wipes the derived key and closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	cryptox.Wipe(s.key)
	s.key = nil
	s.mu.Unlock()
	return s.db.Close()
}

func getMeta(ctx context.Context, db dbx.DBTX, key string) ([]byte, error) {
	var value []byte
	err := db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meta[%s]: %w", key, err)
	}
	return value, nil
}

func setMeta(ctx context.Context, db dbx.DBTX, key string, value []byte) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO store_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set meta[%s]: %w", key, err)
	}
	return nil
}
