package store

import (
	"context"
	"errors"
	"time"

	"github.com/hightide-labs/identity/internal/identity/domain"
	"github.com/hightide-labs/identity/pkg/idx"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement this. It exposes sub-repositories to keep concerns tidy
// and testable.
//
// Mutating operations report whether a row was affected: an update or delete
// matching zero rows surfaces ErrNotFound (or false), never a silent no-op.
// That is how conflicting concurrent updates are detected, since there is no
// cross-transaction locking.
type Store interface {
	Users() Users
	Sessions() Sessions
	RefreshTokenHashes() RefreshTokenHashes
	TotpDevices() TotpDevices
	RecoveryCodes() RecoveryCodes
	OAuth2Links() OAuth2Links

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back wholesale; otherwise it is committed. This is
	// the recommended way to run multi-step mutations (session create +
	// last-login stamp, refresh rotation, MFA enable + recovery code).
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Users is the read-mostly view of the profile subsystem's user records. The
// identity core only ever patches last_login; CreateUser exists for completing
// OAuth2 self-registration.
type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id idx.ID) (domain.User, error)

	// GetUserByNameOrEmail resolves a login identifier, matching the name
	// exactly or the email case-insensitively.
	GetUserByNameOrEmail(ctx context.Context, nameOrEmail string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by the app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateLastLogin stamps last_login. ErrNotFound when no row matched.
	UpdateLastLogin(ctx context.Context, userID idx.ID, at time.Time) error
}

type Sessions interface {
	// CreateSession inserts a new session row.
	CreateSession(ctx context.Context, s domain.Session) error

	// GetSessionByID returns a session by id.
	GetSessionByID(ctx context.Context, id idx.ID) (domain.Session, error)

	// ListSessionsByUser returns all of a user's sessions, newest first.
	ListSessionsByUser(ctx context.Context, userID idx.ID) ([]domain.Session, error)

	// TouchSession advances updated_at. ErrNotFound when no row matched, so a
	// concurrently deleted session is never refreshed silently.
	TouchSession(ctx context.Context, id idx.ID, at time.Time) error

	// DeleteSession removes a session and reports whether a row existed.
	DeleteSession(ctx context.Context, id idx.ID) (bool, error)

	// DeleteSessionsByUser bulk-deletes a user's sessions.
	DeleteSessionsByUser(ctx context.Context, userID idx.ID) (int64, error)

	// DeleteSessionsUpdatedBefore removes sessions whose refresh window has
	// lapsed. Housekeeping only.
	DeleteSessionsUpdatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RefreshTokenHashes stores the single refresh-token hash each session owns.
// Hashes are raw SHA-256 digests; the opaque secret is never persisted.
type RefreshTokenHashes interface {
	// SetSessionTokenHash inserts or replaces the session's hash. A hash
	// collision with another session surfaces ErrAlreadyExists.
	SetSessionTokenHash(ctx context.Context, sessionID idx.ID, hash domain.TokenHash) error

	// GetSessionTokenHash returns the hash owned by a session.
	GetSessionTokenHash(ctx context.Context, sessionID idx.ID) (domain.TokenHash, error)

	// GetSessionIDByTokenHash resolves a presented refresh secret's hash to
	// its owning session.
	GetSessionIDByTokenHash(ctx context.Context, hash domain.TokenHash) (idx.ID, error)

	// ListTokenHashesByUser enumerates every hash owned by a user's sessions,
	// used for cross-cutting access-token invalidation.
	ListTokenHashesByUser(ctx context.Context, userID idx.ID) ([]domain.TokenHash, error)
}

type TotpDevices interface {
	// CreateDevice inserts a new (disabled) device.
	CreateDevice(ctx context.Context, d domain.TotpDevice) error

	// SetDeviceSecret inserts or replaces the device's raw key material.
	SetDeviceSecret(ctx context.Context, deviceID idx.ID, secret []byte) error

	// GetDeviceSecret returns the raw key material for a device.
	GetDeviceSecret(ctx context.Context, deviceID idx.ID) ([]byte, error)

	// ListDevicesByUser returns all of a user's devices.
	ListDevicesByUser(ctx context.Context, userID idx.ID) ([]domain.TotpDevice, error)

	// ListEnabledSecretsByUser returns the secrets of every enabled device,
	// the set MFA authentication iterates over.
	ListEnabledSecretsByUser(ctx context.Context, userID idx.ID) ([]domain.TotpSecret, error)

	// EnableDevice flips a device to enabled. ErrNotFound when no row matched.
	EnableDevice(ctx context.Context, deviceID idx.ID) error

	// DeleteDevicesByUser removes all devices (and their secrets, by cascade).
	DeleteDevicesByUser(ctx context.Context, userID idx.ID) (int64, error)
}

// RecoveryCodes stores at most one recovery-code hash per user.
type RecoveryCodes interface {
	// UpsertRecoveryCode replaces the user's recovery-code hash.
	UpsertRecoveryCode(ctx context.Context, userID idx.ID, hash domain.TokenHash) error

	// GetRecoveryCode returns the stored hash for a user.
	GetRecoveryCode(ctx context.Context, userID idx.ID) (domain.TokenHash, error)

	// DeleteRecoveryCode removes the hash and reports whether one existed.
	DeleteRecoveryCode(ctx context.Context, userID idx.ID) (bool, error)
}

type OAuth2Links interface {
	// CreateLink inserts a link. A (provider_id, remote_id) collision
	// surfaces ErrAlreadyExists.
	CreateLink(ctx context.Context, l domain.OAuth2Link) error

	// GetLinkByID returns one of a user's links by id.
	GetLinkByID(ctx context.Context, userID, linkID idx.ID) (domain.OAuth2Link, error)

	// GetLinkByRemote resolves a remote identity to its local link.
	GetLinkByRemote(ctx context.Context, providerID, remoteID string) (domain.OAuth2Link, error)

	// ListLinksByUser returns all of a user's links, newest first.
	ListLinksByUser(ctx context.Context, userID idx.ID) ([]domain.OAuth2Link, error)

	// DeleteLink removes one of a user's links and reports whether it existed.
	DeleteLink(ctx context.Context, userID, linkID idx.ID) (bool, error)

	// CountLinksByUser counts a user's links, used by the
	// last-login-method guard.
	CountLinksByUser(ctx context.Context, userID idx.ID) (int, error)
}
