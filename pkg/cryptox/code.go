package cryptox

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Human-readable code layout: hyphen-separated uppercase alphanumeric chunks,
// e.g. "X7K2MQ-9RT4WZ-AB3CD8-QQ17PN". Used for MFA recovery codes.
const (
	codeCharset  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	CodeGroups   = 4
	CodeGroupLen = 6
)

// GenerateCode returns a fresh recovery-style code of CodeGroups groups with
// CodeGroupLen characters each, drawn from the CSPRNG.
func GenerateCode() (string, error) {
	groups := make([]string, CodeGroups)
	buf := make([]byte, CodeGroupLen)
	for g := range groups {
		for i := range buf {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
			if err != nil {
				return "", fmt.Errorf("failed to generate code: %w", err)
			}
			buf[i] = codeCharset[n.Int64()]
		}
		groups[g] = string(buf)
	}
	return strings.Join(groups, "-"), nil
}
