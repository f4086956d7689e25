package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

const (
	programNamespace = "git-voucher-escrow/v1"
	derivedPrefix    = "esc1"
	// digests starting with this byte are kept free for system accounts.
	reservedLeadByte = 0x00
)

// ErrNoViableNonce is returned when every nonce yields a reserved digest.
var ErrNoViableNonce = errors.New("no viable address nonce")

// DeriveAddress computes the record address for key within namespace. The
// same inputs always produce the same address and nonce. The nonce is the
// highest value in [0,255] whose digest falls outside the reserved range.
func DeriveAddress(namespace string, key []byte) (Address, uint8, error) {
	for nonce := 255; nonce >= 0; nonce-- {
		sum := digest(namespace, key, uint8(nonce))
		if sum[0] == reservedLeadByte {
			continue
		}
		return Address(derivedPrefix + hex.EncodeToString(sum[:])), uint8(nonce), nil
	}
	return "", 0, ErrNoViableNonce
}

func digest(namespace string, key []byte, nonce uint8) [sha256.Size]byte {
	h := sha256.New()
	h.Write([]byte(programNamespace))
	h.Write([]byte{0})
	h.Write([]byte(namespace))
	h.Write([]byte{0})
	h.Write(key)
	h.Write([]byte{nonce})
	var out [sha256.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}
