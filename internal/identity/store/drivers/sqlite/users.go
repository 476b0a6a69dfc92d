package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/hightide-labs/identity/internal/identity/domain"
	"github.com/hightide-labs/identity/pkg/idx"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, name, email, email_verified, enabled, admin, password_hash, created_at, last_login, last_name_change`

func (r *usersRepo) GetUserByID(ctx context.Context, id idx.ID) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id.String())
	return scanUser(row)
}

func (r *usersRepo) GetUserByNameOrEmail(ctx context.Context, nameOrEmail string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE name = ? OR lower(email) = lower(?)`,
		nameOrEmail, nameOrEmail)
	return scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID.String(),
		u.Name,
		mapOptionalString(u.Email),
		u.EmailVerified,
		u.Enabled,
		u.Admin,
		mapOptionalString(u.PasswordHash),
		u.CreatedAt,
		mapOptionalTime(u.LastLogin),
		mapOptionalTime(u.LastNameChange),
	)
	return mapConflict(err)
}

func (r *usersRepo) UpdateLastLogin(ctx context.Context, userID idx.ID, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login = ? WHERE id = ?`, at, userID.String())
	return affectedOrNotFound(res, err)
}

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u              domain.User
		id             string
		email          sql.NullString
		passwordHash   sql.NullString
		lastLogin      sql.NullTime
		lastNameChange sql.NullTime
	)
	err := row.Scan(
		&id,
		&u.Name,
		&email,
		&u.EmailVerified,
		&u.Enabled,
		&u.Admin,
		&passwordHash,
		&u.CreatedAt,
		&lastLogin,
		&lastNameChange,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.ID = idx.ID(id)
	u.Email = mapNullStringPtr(email)
	u.PasswordHash = mapNullStringPtr(passwordHash)
	u.LastLogin = mapNullTimePtr(lastLogin)
	u.LastNameChange = mapNullTimePtr(lastNameChange)
	return u, nil
}
