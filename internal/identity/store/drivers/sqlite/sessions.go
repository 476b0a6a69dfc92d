package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/hightide-labs/identity/internal/identity/domain"
	"github.com/hightide-labs/identity/pkg/idx"
)

type sessionsRepo struct {
	db dbtx
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, device_name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		s.ID.String(),
		s.UserID.String(),
		mapOptionalDeviceName(s.DeviceName),
		s.CreatedAt,
		s.UpdatedAt,
	)
	return mapConflict(err)
}

func (r *sessionsRepo) GetSessionByID(ctx context.Context, id idx.ID) (domain.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, device_name, created_at, updated_at
		 FROM sessions WHERE id = ?`, id.String())
	return scanSession(row)
}

func (r *sessionsRepo) ListSessionsByUser(ctx context.Context, userID idx.ID) ([]domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, device_name, created_at, updated_at
		 FROM sessions WHERE user_id = ? ORDER BY created_at DESC`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var (
			s          domain.Session
			id, userID string
			deviceName sql.NullString
		)
		if err := rows.Scan(&id, &userID, &deviceName, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.ID = idx.ID(id)
		s.UserID = idx.ID(userID)
		s.DeviceName = mapNullDeviceNamePtr(deviceName)
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *sessionsRepo) TouchSession(ctx context.Context, id idx.ID, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, at, id.String())
	return affectedOrNotFound(res, err)
}

func (r *sessionsRepo) DeleteSession(ctx context.Context, id idx.ID) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = ?`, id.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *sessionsRepo) DeleteSessionsByUser(ctx context.Context, userID idx.ID) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = ?`, userID.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *sessionsRepo) DeleteSessionsUpdatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSession(row *sql.Row) (domain.Session, error) {
	var (
		s          domain.Session
		id, userID string
		deviceName sql.NullString
	)
	err := row.Scan(&id, &userID, &deviceName, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	s.ID = idx.ID(id)
	s.UserID = idx.ID(userID)
	s.DeviceName = mapNullDeviceNamePtr(deviceName)
	return s, nil
}
