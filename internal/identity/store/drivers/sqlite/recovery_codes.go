package sqlite

import (
	"context"

	"github.com/hightide-labs/identity/internal/identity/domain"
	"github.com/hightide-labs/identity/pkg/idx"
)

type recoveryCodesRepo struct {
	db dbtx
}

func (r *recoveryCodesRepo) UpsertRecoveryCode(
	ctx context.Context,
	userID idx.ID,
	hash domain.TokenHash,
) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO mfa_recovery_codes (user_id, code_hash) VALUES (?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET code_hash = excluded.code_hash`,
		userID.String(), hash.Bytes())
	return err
}

func (r *recoveryCodesRepo) GetRecoveryCode(ctx context.Context, userID idx.ID) (domain.TokenHash, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT code_hash FROM mfa_recovery_codes WHERE user_id = ?`,
		userID.String()).Scan(&raw)
	if err != nil {
		return domain.TokenHash{}, mapNotFound(err)
	}
	return domain.TokenHashFromBytes(raw)
}

func (r *recoveryCodesRepo) DeleteRecoveryCode(ctx context.Context, userID idx.ID) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM mfa_recovery_codes WHERE user_id = ?`, userID.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
