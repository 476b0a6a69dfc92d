package sqlite

import (
	"context"
	"database/sql"

	"github.com/hightide-labs/identity/internal/identity/store"
)

type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // caller commits/rollbacks; the outer DB stays open

// Ping is a no-op for transactions; the connection already exists.
func (t *txStore) Ping(ctx context.Context) error {
	return nil
}

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested tx not supported; could emulate with SAVEPOINT if needed
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	// Nested tx not supported; could emulate with SAVEPOINT if needed
	return sql.ErrTxDone
}

func (t *txStore) ApplyMigrations() error { return nil } // migrations run before any tx starts

func (t *txStore) Users() store.Users                           { return &usersRepo{db: t.tx} }
func (t *txStore) Sessions() store.Sessions                     { return &sessionsRepo{db: t.tx} }
func (t *txStore) RefreshTokenHashes() store.RefreshTokenHashes { return &refreshTokenHashesRepo{db: t.tx} }
func (t *txStore) TotpDevices() store.TotpDevices               { return &totpDevicesRepo{db: t.tx} }
func (t *txStore) RecoveryCodes() store.RecoveryCodes           { return &recoveryCodesRepo{db: t.tx} }
func (t *txStore) OAuth2Links() store.OAuth2Links               { return &oauth2LinksRepo{db: t.tx} }
