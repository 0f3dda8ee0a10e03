package crypto

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// SignatureLength is the size of an R || S || V signature.
const SignatureLength = 65

const stakeDomain = "stakerchain/stake/v1"

var errSignatureLength = fmt.Errorf("signature must be %d bytes", SignatureLength)

// StakeDigest is the hash a participant signs to authorise a deposit of amount
// into pool. nonce binds the signature to a single use.
func StakeDigest(pool, from [20]byte, amount *big.Int, nonce uint64) ([]byte, error) {
	if amount == nil {
		return nil, errors.New("amount required")
	}
	payload := struct {
		Domain string
		Pool   [20]byte
		From   [20]byte
		Amount *big.Int
		Nonce  uint64
	}{stakeDomain, pool, from, amount, nonce}
	encoded, err := rlp.EncodeToBytes(payload)
	if err != nil {
		return nil, fmt.Errorf("encode stake: %w", err)
	}
	return ethcrypto.Keccak256(encoded), nil
}

// Sign produces a 65-byte signature over digest with V in {27, 28}.
func (k *Key) Sign(digest []byte) ([]byte, error) {
	sig, err := ethcrypto.Sign(digest, k.priv)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// RecoverAddress returns the account whose key produced sig over digest. V may
// be given as 0/1 or 27/28.
func RecoverAddress(digest, sig []byte) ([20]byte, error) {
	if len(sig) != SignatureLength {
		return [20]byte{}, errSignatureLength
	}
	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(digest, normalized)
	if err != nil {
		return [20]byte{}, fmt.Errorf("recover signer: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
