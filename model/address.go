package model

import (
	"encoding/hex"
	"strings"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

const (
	hexAddressLength  = 40
	base58KeyByteSize = 32
)

// ValidateAddress accepts the two party address forms the engine is hosted
// with: 0x-prefixed 20-byte hex accounts (mixed case must carry a valid
// EIP-55 checksum) and base58-encoded 32-byte public keys.
func ValidateAddress(address string) error {
	if address == "" {
		return errors.Wrap(ErrInvalidParty, "address is empty")
	}
	if hasHexPrefix(address) {
		return validateHexAddress(address)
	}
	decoded, err := base58.Decode(address)
	if err != nil {
		return errors.Wrapf(ErrInvalidParty, "%q is neither hex nor base58", address)
	}
	if len(decoded) != base58KeyByteSize {
		return errors.Wrapf(ErrInvalidParty, "%q decodes to %d bytes, want %d", address, len(decoded), base58KeyByteSize)
	}
	return nil
}

func validateHexAddress(address string) error {
	body := address[2:]
	if len(body) != hexAddressLength {
		return errors.Wrapf(ErrInvalidParty, "%q has %d hex digits, want %d", address, len(body), hexAddressLength)
	}
	if _, err := hex.DecodeString(body); err != nil {
		return errors.Wrapf(ErrInvalidParty, "%q is not hex", address)
	}
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return nil
	}
	if checksumHex(body) != body {
		return errors.Wrapf(ErrInvalidParty, "%q fails its EIP-55 checksum", address)
	}
	return nil
}

// checksumHex applies EIP-55 capitalisation to a 40 digit hex body.
func checksumHex(body string) string {
	lower := strings.ToLower(body)
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte(lower))
	digest := hex.EncodeToString(hasher.Sum(nil))

	out := []byte(lower)
	for i := range out {
		if out[i] >= 'a' && out[i] <= 'f' && digest[i] >= '8' {
			out[i] -= 'a' - 'A'
		}
	}
	return string(out)
}

// SameAddress compares party addresses; hex addresses compare case-insensitively.
func SameAddress(a, b string) bool {
	if hasHexPrefix(a) && hasHexPrefix(b) {
		return strings.EqualFold(a[2:], b[2:])
	}
	return a == b
}

// CanonicalAddress is the form addresses are stored and indexed under:
// hex addresses lowercased, base58 keys unchanged.
func CanonicalAddress(address string) string {
	if hasHexPrefix(address) {
		return "0x" + strings.ToLower(address[2:])
	}
	return address
}

func hasHexPrefix(address string) bool {
	return strings.HasPrefix(address, "0x") || strings.HasPrefix(address, "0X")
}
