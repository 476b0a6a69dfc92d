package domain

import (
	"time"

	"github.com/hightide-labs/identity/pkg/idx"
)

// TotpDevice transitions disabled -> enabled only through a successful code
// confirmation. A reset swaps the secret but keeps the device id and forces
// it back to disabled.
type TotpDevice struct {
	ID        idx.ID
	UserID    idx.ID
	Enabled   bool
	CreatedAt time.Time
}

// TotpSecret is the raw key material associated 1:1 with a device. It is
// stored as raw bytes and only base32-encoded for user-facing provisioning.
type TotpSecret struct {
	DeviceID idx.ID
	Secret   []byte
}

// MFAProvisioning is returned by device initialization so the client can
// render a QR code or offer manual entry.
type MFAProvisioning struct {
	Secret  string `json:"secret"` // base32 encoded
	URL     string `json:"url"`    // otpauth:// provisioning URL
	Issuer  string `json:"issuer"`
	Account string `json:"account"`
}

// MFAStatus is the outcome of an MFA authentication attempt.
type MFAStatus int

const (
	// MFADisabled means the user has no enabled device; MFA is not required.
	MFADisabled MFAStatus = iota
	// MFAOk means a TOTP code matched an enabled device.
	MFAOk
	// MFAReset means the recovery code matched; MFA was disabled entirely so
	// the user can re-enroll after losing their device.
	MFAReset
)
