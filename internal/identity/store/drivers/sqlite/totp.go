package sqlite

import (
	"context"

	"github.com/hightide-labs/identity/internal/identity/domain"
	"github.com/hightide-labs/identity/pkg/idx"
)

type totpDevicesRepo struct {
	db dbtx
}

func (r *totpDevicesRepo) CreateDevice(ctx context.Context, d domain.TotpDevice) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO totp_devices (id, user_id, enabled, created_at) VALUES (?, ?, ?, ?)`,
		d.ID.String(), d.UserID.String(), d.Enabled, d.CreatedAt)
	return mapConflict(err)
}

func (r *totpDevicesRepo) SetDeviceSecret(ctx context.Context, deviceID idx.ID, secret []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO totp_secrets (device_id, secret) VALUES (?, ?)
		 ON CONFLICT (device_id) DO UPDATE SET secret = excluded.secret`,
		deviceID.String(), secret)
	return err
}

func (r *totpDevicesRepo) GetDeviceSecret(ctx context.Context, deviceID idx.ID) ([]byte, error) {
	var secret []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT secret FROM totp_secrets WHERE device_id = ?`,
		deviceID.String()).Scan(&secret)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return secret, nil
}

func (r *totpDevicesRepo) ListDevicesByUser(ctx context.Context, userID idx.ID) ([]domain.TotpDevice, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, enabled, created_at
		 FROM totp_devices WHERE user_id = ? ORDER BY created_at`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []domain.TotpDevice
	for rows.Next() {
		var (
			d          domain.TotpDevice
			id, userID string
		)
		if err := rows.Scan(&id, &userID, &d.Enabled, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.ID = idx.ID(id)
		d.UserID = idx.ID(userID)
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (r *totpDevicesRepo) ListEnabledSecretsByUser(
	ctx context.Context,
	userID idx.ID,
) ([]domain.TotpSecret, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.device_id, s.secret
		 FROM totp_secrets s
		 JOIN totp_devices d ON d.id = s.device_id
		 WHERE d.user_id = ? AND d.enabled = 1
		 ORDER BY d.created_at`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var secrets []domain.TotpSecret
	for rows.Next() {
		var (
			deviceID string
			secret   []byte
		)
		if err := rows.Scan(&deviceID, &secret); err != nil {
			return nil, err
		}
		secrets = append(secrets, domain.TotpSecret{
			DeviceID: idx.ID(deviceID),
			Secret:   secret,
		})
	}
	return secrets, rows.Err()
}

func (r *totpDevicesRepo) EnableDevice(ctx context.Context, deviceID idx.ID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE totp_devices SET enabled = 1 WHERE id = ?`, deviceID.String())
	return affectedOrNotFound(res, err)
}

func (r *totpDevicesRepo) DeleteDevicesByUser(ctx context.Context, userID idx.ID) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM totp_devices WHERE user_id = ?`, userID.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
