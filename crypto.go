package attestry

import (
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cosmos/cosmos-sdk/types/bech32"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/sha3"
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// GetHash returns the 128-bit content hash of data.
func GetHash(data []byte) [16]byte {
	return xxh3.Hash128(data).Bytes()
}

// NewRevisionID derives the revision identifier for a document appended
// after previous. Pass the empty string for the first revision of a stream.
func NewRevisionID(previous string, document []byte) string {
	buf := make([]byte, 0, len(previous)+len(document))
	buf = append(buf, previous...)
	buf = append(buf, document...)
	hash := GetHash(buf)
	return strings.ToLower(b32.EncodeToString(hash[:]))
}

func keccak256(data []byte) []byte {
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(data)
	return hasher.Sum(nil)
}

// SignBytes signs data with a hex-encoded secp256k1 private key.
func SignBytes(data []byte, privatekey string) ([]byte, error) {
	key, err := crypto.HexToECDSA(privatekey)
	if err != nil {
		return nil, err
	}
	return crypto.Sign(keccak256(data), key)
}

// VerifySignature checks that signature over data was produced by the key
// behind address.
func VerifySignature(data []byte, signature []byte, address string) error {
	recovered, err := RecoverAddress(data, signature, "aid")
	if err != nil {
		return err
	}
	if recovered != address {
		return fmt.Errorf("signature address mismatch: expected %s, got %s", address, recovered)
	}
	return nil
}

// RecoverAddress recovers the signer's bech32 address from a signature.
func RecoverAddress(data []byte, signature []byte, hrp string) (string, error) {
	pubkey, err := crypto.SigToPub(keccak256(data), signature)
	if err != nil {
		return "", err
	}
	raw := crypto.FromECDSAPub(pubkey)
	hash := keccak256(raw[1:])
	return bech32.ConvertAndEncode(hrp, hash[len(hash)-20:])
}

// PrivKeyToAddr derives the bech32 address for a hex private key.
func PrivKeyToAddr(privatekey string, hrp string) (string, error) {
	key, err := crypto.HexToECDSA(privatekey)
	if err != nil {
		return "", err
	}
	raw := crypto.FromECDSAPub(&key.PublicKey)
	hash := keccak256(raw[1:])
	return bech32.ConvertAndEncode(hrp, hash[len(hash)-20:])
}

// SignatureHex encodes a signature for transport in a Proof.
func SignatureHex(signature []byte) string {
	return hex.EncodeToString(signature)
}

// SignatureFromHex decodes a Proof signature.
func SignatureFromHex(signature string) ([]byte, error) {
	return hex.DecodeString(signature)
}
