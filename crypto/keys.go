// Package crypto renders and parses stakerchain account addresses and creates
// the secp256k1 keys they are derived from.
package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the bech32 human-readable part.
type AddressPrefix string

// StakerPrefix marks stakerchain accounts, e.g. stk1qy...
const StakerPrefix AddressPrefix = "stk"

const addressLength = 20

var errAddressRequired = errors.New("address required")

// Address is a 20-byte account bound to a bech32 prefix.
type Address struct {
	prefix AddressPrefix
	raw    [addressLength]byte
}

// NewAddress binds b to prefix. It panics when b is not 20 bytes long.
func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != addressLength {
		panic(fmt.Sprintf("crypto: address must be %d bytes, got %d", addressLength, len(b)))
	}
	addr := Address{prefix: prefix}
	copy(addr.raw[:], b)
	return addr
}

func (a Address) String() string {
	words, err := bech32.ConvertBits(a.raw[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), words)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Hex renders the EIP-55 checksummed form.
func (a Address) Hex() string { return common.Address(a.raw).Hex() }

func (a Address) Bytes() [20]byte { return a.raw }

func (a Address) Prefix() AddressPrefix { return a.prefix }

// DecodeAddress parses a bech32 address of any prefix.
func DecodeAddress(s string) (Address, error) {
	hrp, words, err := bech32.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 address: %w", err)
	}
	raw, err := bech32.ConvertBits(words, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 payload: %w", err)
	}
	if len(raw) != addressLength {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", addressLength, len(raw))
	}
	return NewAddress(AddressPrefix(hrp), raw), nil
}

// FormatAddress renders addr with the staker prefix.
func FormatAddress(addr [20]byte) string {
	return Address{prefix: StakerPrefix, raw: addr}.String()
}

// ParseAddress accepts a stk-prefixed bech32 address or a 0x hex address.
func ParseAddress(s string) ([20]byte, error) {
	trimmed := strings.TrimSpace(s)
	switch {
	case trimmed == "":
		return [20]byte{}, errAddressRequired
	case strings.HasPrefix(trimmed, "0x"), strings.HasPrefix(trimmed, "0X"):
		if !common.IsHexAddress(trimmed) {
			return [20]byte{}, fmt.Errorf("invalid hex address: %s", trimmed)
		}
		return common.HexToAddress(trimmed), nil
	}
	decoded, err := DecodeAddress(strings.ToLower(trimmed))
	if err != nil {
		return [20]byte{}, err
	}
	if decoded.prefix != StakerPrefix {
		return [20]byte{}, fmt.Errorf("unexpected address prefix %q", decoded.prefix)
	}
	return decoded.raw, nil
}

// Key is a secp256k1 account key.
type Key struct {
	priv *ecdsa.PrivateKey
}

// GenerateKey creates a fresh random key.
func GenerateKey() (*Key, error) {
	priv, err := ecdsa.GenerateKey(ethcrypto.S256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Key{priv: priv}, nil
}

// KeyFromBytes restores a key from its 32-byte scalar.
func KeyFromBytes(b []byte) (*Key, error) {
	priv, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	return &Key{priv: priv}, nil
}

// Bytes returns the 32-byte private scalar.
func (k *Key) Bytes() []byte { return ethcrypto.FromECDSA(k.priv) }

// Address derives the account address, keccak of the public key.
func (k *Key) Address() [20]byte { return ethcrypto.PubkeyToAddress(k.priv.PublicKey) }
