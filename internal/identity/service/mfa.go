package service

import (
	"context"
	"crypto/subtle"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/hightide-labs/identity/internal/identity/cache"
	"github.com/hightide-labs/identity/internal/identity/domain"
	"github.com/hightide-labs/identity/internal/identity/store"
	"github.com/hightide-labs/identity/pkg/cryptox"
	"github.com/hightide-labs/identity/pkg/idx"
	"github.com/hightide-labs/identity/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod     = 30
	totpSkew       = 1
	totpSecretSize = 20 // 160 bits, per RFC 4226 recommendation

	// totpReplayTTL covers the current step plus one step of skew either side.
	totpReplayTTL = 90 * time.Second

	totpUsedKeyPrefix = "totp-used:"
)

var (
	ErrMFAAlreadyEnabled = errors.New("mfa_already_enabled")
	ErrMFANotInitialized = errors.New("mfa_not_initialized")
	ErrMFANotEnabled     = errors.New("mfa_not_enabled")
	ErrMFAFailed         = errors.New("mfa_failed")
	ErrCodeRecentlyUsed  = errors.New("code_recently_used")
)

// base32NoPad matches the encoding otpauth:// secrets conventionally use.
var base32NoPad = base32.StdEncoding.WithPadding(base32.NoPadding)

// MFAService manages TOTP devices and the single recovery code per user.
// Enablement is single-device (initialize replaces any pending device);
// authentication checks every enabled device, so future multi-device schemas
// need no verification changes.
type MFAService struct {
	Store  store.Store
	Cache  cache.Cache
	Issuer string // label shown in authenticator apps

	now func() time.Time // test hook
}

func (s *MFAService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

// Initialize provisions a pending TOTP device for the user. Re-initializing
// before enablement replaces the secret but keeps the device id. Returns the
// provisioning material the client needs to render a QR code.
func (s *MFAService) Initialize(ctx context.Context, user domain.User) (domain.MFAProvisioning, error) {
	devices, err := s.Store.TotpDevices().ListDevicesByUser(ctx, user.ID)
	if err != nil {
		return domain.MFAProvisioning{}, err
	}
	for _, d := range devices {
		if d.Enabled {
			return domain.MFAProvisioning{}, ErrMFAAlreadyEnabled
		}
	}

	secret, err := cryptox.GenerateSecret(totpSecretSize)
	if err != nil {
		return domain.MFAProvisioning{}, err
	}

	if len(devices) > 0 {
		// Pending device exists; swap its secret in place.
		if err := s.Store.TotpDevices().SetDeviceSecret(ctx, devices[0].ID, secret); err != nil {
			return domain.MFAProvisioning{}, err
		}
	} else {
		deviceID := idx.New()
		err := s.Store.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.TotpDevices().CreateDevice(ctx, domain.TotpDevice{
				ID:        deviceID,
				UserID:    user.ID,
				Enabled:   false,
				CreatedAt: s.clock(),
			}); err != nil {
				return err
			}
			return tx.TotpDevices().SetDeviceSecret(ctx, deviceID, secret)
		})
		if err != nil {
			return domain.MFAProvisioning{}, err
		}
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: user.Name,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		Secret:      secret,
	})
	if err != nil {
		return domain.MFAProvisioning{}, err
	}

	return domain.MFAProvisioning{
		Secret:  key.Secret(),
		URL:     key.URL(),
		Issuer:  s.Issuer,
		Account: user.Name,
	}, nil
}

// Enable confirms the pending device with a live code and flips it to
// enabled, minting the user's recovery code in the same transaction. The
// plaintext recovery code is returned exactly once.
func (s *MFAService) Enable(ctx context.Context, userID idx.ID, code string) (string, error) {
	devices, err := s.Store.TotpDevices().ListDevicesByUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(devices) == 0 {
		return "", ErrMFANotInitialized
	}
	for _, d := range devices {
		if d.Enabled {
			return "", ErrMFAAlreadyEnabled
		}
	}

	device := devices[0]
	secret, err := s.Store.TotpDevices().GetDeviceSecret(ctx, device.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrMFANotInitialized
		}
		return "", err
	}

	if err := s.consumeCode(ctx, secret, code); err != nil {
		return "", err
	}

	recovery, err := cryptox.GenerateCode()
	if err != nil {
		return "", err
	}
	recoveryHash := domain.HashSecret(recovery)

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.TotpDevices().EnableDevice(ctx, device.ID); err != nil {
			return err
		}
		return tx.RecoveryCodes().UpsertRecoveryCode(ctx, userID, recoveryHash)
	})
	if err != nil {
		return "", err
	}

	return recovery, nil
}

// Disable removes all of the user's devices and their recovery code.
func (s *MFAService) Disable(ctx context.Context, userID idx.ID) error {
	enabled, err := s.isEnabled(ctx, userID)
	if err != nil {
		return err
	}
	if !enabled {
		return ErrMFANotEnabled
	}
	return s.removeAll(ctx, userID)
}

// Enabled reports whether the user has at least one enabled device.
func (s *MFAService) Enabled(ctx context.Context, userID idx.ID) (bool, error) {
	return s.isEnabled(ctx, userID)
}

// Devices returns all of the user's TOTP devices, pending and enabled.
func (s *MFAService) Devices(ctx context.Context, userID idx.ID) ([]domain.TotpDevice, error) {
	return s.Store.TotpDevices().ListDevicesByUser(ctx, userID)
}

// Authenticate evaluates an MFA challenge for a login attempt.
//
//   - MFADisabled: the user has no enabled device; no code was needed.
//   - MFAReset: the recovery code matched; every device and the code itself
//     were removed, so the user logs in and re-enrolls.
//   - MFAOk: a TOTP code matched an enabled device and was not a replay.
//
// Anything else is ErrMFAFailed (or ErrCodeRecentlyUsed for replays).
func (s *MFAService) Authenticate(
	ctx context.Context,
	userID idx.ID,
	totpCode, recoveryCode string,
) (domain.MFAStatus, error) {
	secrets, err := s.Store.TotpDevices().ListEnabledSecretsByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(secrets) == 0 {
		return domain.MFADisabled, nil
	}

	if recoveryCode != "" {
		ok, err := s.matchRecoveryCode(ctx, userID, recoveryCode)
		if err != nil {
			return 0, err
		}
		if ok {
			if err := s.removeAll(ctx, userID); err != nil {
				return 0, err
			}
			slogx.FromContext(ctx).Info("mfa reset via recovery code",
				slog.String("user_id", userID.String()))
			return domain.MFAReset, nil
		}
	}

	if totpCode != "" {
		for _, sec := range secrets {
			if !matchTOTP(sec.Secret, totpCode, s.clock()) {
				continue
			}
			if err := s.markCodeUsed(ctx, sec.Secret, totpCode); err != nil {
				return 0, err
			}
			return domain.MFAOk, nil
		}
	}

	return 0, ErrMFAFailed
}

// consumeCode validates a live TOTP code against a secret and burns it
// against replay. Used by Enable; Authenticate inlines the same steps per
// enabled secret.
func (s *MFAService) consumeCode(ctx context.Context, secret []byte, code string) error {
	if !matchTOTP(secret, code, s.clock()) {
		return ErrMFAFailed
	}
	return s.markCodeUsed(ctx, secret, code)
}

// markCodeUsed records a matched (secret, code) pair so the same code cannot
// authenticate twice within the validity window.
func (s *MFAService) markCodeUsed(ctx context.Context, secret []byte, code string) error {
	key := replayKey(secret, code)

	_, used, err := s.Cache.Get(ctx, key)
	if err != nil {
		return err
	}
	if used {
		return ErrCodeRecentlyUsed
	}

	return s.Cache.Set(ctx, key, []byte{1}, totpReplayTTL)
}

func (s *MFAService) matchRecoveryCode(ctx context.Context, userID idx.ID, code string) (bool, error) {
	stored, err := s.Store.RecoveryCodes().GetRecoveryCode(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	presented := domain.HashSecret(code)
	return subtle.ConstantTimeCompare(stored.Bytes(), presented.Bytes()) == 1, nil
}

func (s *MFAService) isEnabled(ctx context.Context, userID idx.ID) (bool, error) {
	secrets, err := s.Store.TotpDevices().ListEnabledSecretsByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return len(secrets) > 0, nil
}

func (s *MFAService) removeAll(ctx context.Context, userID idx.ID) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.TotpDevices().DeleteDevicesByUser(ctx, userID); err != nil {
			return err
		}
		_, err := tx.RecoveryCodes().DeleteRecoveryCode(ctx, userID)
		return err
	})
}

// matchTOTP checks a code against a raw secret at the given instant, allowing
// one period of clock skew either side.
func matchTOTP(secret []byte, code string, at time.Time) bool {
	ok, err := totp.ValidateCustom(code, base32NoPad.EncodeToString(secret), at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// replayKey addresses a used-code marker by the secret's digest rather than
// the secret itself.
func replayKey(secret []byte, code string) string {
	digest := cryptox.Digest(secret)
	return totpUsedKeyPrefix + hex.EncodeToString(digest[:]) + ":" + code
}
