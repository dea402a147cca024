package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Veraticus/coffer/internal/crypto"
)

const (
	metaSalt      = "kdf_salt"
	metaKDFParams = "kdf_params"
	metaKeyCheck  = "key_check"

	keyCheckAAD       = "store_meta.key_check"
	keyCheckPlaintext = "coffer-key-check-v1"
)

// ErrWrongPassphrase is returned when the passphrase does not unlock an existing store.
var ErrWrongPassphrase = errors.New("passphrase does not unlock store")

// unlockKeyring derives the keyring for an existing store, or provisions the
// salt, KDF parameters and key-check canary for a new one.
func unlockKeyring(ctx context.Context, db *sql.DB, passphrase string, opts Options) (*crypto.Keyring, error) {
	var salt []byte
	err := db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = ?`, metaSalt).Scan(&salt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return provisionKeyring(ctx, db, passphrase, opts)
	case err != nil:
		return nil, fmt.Errorf("failed to read key salt: %w", err)
	}

	var rawParams, canary []byte
	if err := db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = ?`, metaKDFParams).Scan(&rawParams); err != nil {
		return nil, fmt.Errorf("failed to read kdf parameters: %w", err)
	}
	if err := db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = ?`, metaKeyCheck).Scan(&canary); err != nil {
		return nil, fmt.Errorf("failed to read key check: %w", err)
	}

	var params crypto.Argon2Params
	if err := json.Unmarshal(rawParams, &params); err != nil {
		return nil, fmt.Errorf("failed to parse kdf parameters: %w", err)
	}

	keys, err := crypto.NewKeyring([]byte(passphrase), salt, params)
	if err != nil {
		return nil, err
	}

	plaintext, err := keys.OpenString(keyCheckAAD, canary)
	if err != nil || plaintext != keyCheckPlaintext {
		keys.Destroy()
		return nil, ErrWrongPassphrase
	}

	return keys, nil
}

func provisionKeyring(ctx context.Context, db *sql.DB, passphrase string, opts Options) (*crypto.Keyring, error) {
	params := opts.KDF
	if params == (crypto.Argon2Params{}) {
		params = crypto.DefaultArgon2Params()
	}

	salt, err := crypto.NewSalt()
	if err != nil {
		return nil, err
	}

	keys, err := crypto.NewKeyring([]byte(passphrase), salt, params)
	if err != nil {
		return nil, err
	}

	canary, err := keys.SealString(keyCheckAAD, keyCheckPlaintext)
	if err != nil {
		keys.Destroy()
		return nil, err
	}

	rawParams, err := json.Marshal(params)
	if err != nil {
		keys.Destroy()
		return nil, fmt.Errorf("failed to encode kdf parameters: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		keys.Destroy()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for key, value := range map[string][]byte{
		metaSalt:      salt,
		metaKDFParams: rawParams,
		metaKeyCheck:  canary,
	} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO store_meta (key, value) VALUES (?, ?)`, key, value); err != nil {
			keys.Destroy()
			return nil, fmt.Errorf("failed to store %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		keys.Destroy()
		return nil, fmt.Errorf("failed to commit key material: %w", err)
	}

	return keys, nil
}
