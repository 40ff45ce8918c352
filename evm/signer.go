package evm

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// OwnershipProof is a signature over a service origin by the facilitator's
// own key. It establishes control of the payment address to discovery
// platforms; it plays no part in the request-time protocol.
type OwnershipProof struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
	Chain     string `json:"chain"` // CAIP-2
}

// ParsePrivateKey parses a hex-encoded secp256k1 private key, with or
// without a 0x prefix.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// Address returns the checksummed address for a private key.
func Address(key *ecdsa.PrivateKey) string {
	return crypto.PubkeyToAddress(key.PublicKey).Hex()
}

// SignOwnership signs origin as an EIP-191 personal message with key.
func SignOwnership(key *ecdsa.PrivateKey, origin, chain string) (*OwnershipProof, error) {
	sig, err := crypto.Sign(personalHash(origin), key)
	if err != nil {
		return nil, fmt.Errorf("sign origin: %w", err)
	}
	// Wallet convention: recovery id is offset to 27/28.
	sig[64] += 27

	return &OwnershipProof{
		Address:   Address(key),
		Signature: hexutil.Encode(sig),
		Chain:     chain,
	}, nil
}

// RecoverOwner returns the address that signed origin.
func RecoverOwner(origin, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != 65 {
		return "", fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	if sig[64] >= 27 {
		sig = append(append([]byte{}, sig[:64]...), sig[64]-27)
	}

	pub, err := crypto.SigToPub(personalHash(origin), sig)
	if err != nil {
		return "", fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

func personalHash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}
