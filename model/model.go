package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a prefix,
// e.g. "rte_<uuid>" for routes and "trf_<uuid>" for transfers.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// HashTransfer generates a SHA-256 hash of a transfer's relevant fields.
// The amount is rendered in decimal so the hash is identical on every host.
func (transfer *Transfer) HashTransfer() string {
	data := fmt.Sprintf("%s%s%s%s%s%s%d", transfer.Amount.String(), transfer.RouteID, transfer.TokenID,
		transfer.Source, transfer.Destination, transfer.Purpose, transfer.CreatedAt.UnixNano())
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
