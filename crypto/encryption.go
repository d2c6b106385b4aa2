package crypto

import (
	crand "crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/nacl/box"
)

// Encryption - Specifics
//
// An encrypted content group consists of:
//
// blob: an encrypted protocol string joined by colons : of the following components:
// - protocol version
// - encryption nonce
// - ciphertext
// - authenticated_data
// wrapped_keys: one entry per recipient, the symmetric content key sealed to the
// recipient's public key with the sender's private key (NaCl box).

const (
	// KeySize is the size of the key used by this AEAD, in bytes.
	KeySize = 32

	// NonceSizeX is the size of the nonce used with the XChaCha20-Poly1305
	// variant of this AEAD, in bytes.
	NonceSizeX = 24

	// BoxKeySize is the size of a Curve25519 key used for key wrapping, in bytes.
	BoxKeySize = 32

	// BoxNonceSize is the size of the nonce used by NaCl box, in bytes.
	BoxNonceSize = 24

	MaxPlaintextSize = 10000000
)

func SplitBlob(in string) (version, nonce, cipherText, authenticatedData string, err error) {
	components := strings.Split(in, ":")
	if len(components) < 4 {
		err = fmt.Errorf("invalid blob: expected 4 components, got %d", len(components))
		return
	}

	version = components[0]           // protocol version
	nonce = components[1]             // encryption nonce
	cipherText = components[2]        // ciphertext
	authenticatedData = components[3] // authenticated data

	return
}

func hexDecodeStrings(in string, noBytes int) (dn []byte, err error) {
	return hexDecodeBytes([]byte(in), noBytes)
}

func hexDecodeBytes(in []byte, noBytes int) (dn []byte, err error) {
	dn = make([]byte, noBytes)

	if _, err = hex.Decode(dn, in); err != nil {
		return
	}

	return
}

func DecryptCipherText(cipherText, rawKey, nonce, rawAuthenticatedData string) (result []byte, err error) {
	dct, err := base64.StdEncoding.DecodeString(cipherText)
	if err != nil {
		return nil, err
	}

	dk, err := hexDecodeBytes([]byte(rawKey), KeySize)
	if err != nil {
		return
	}

	aead, err := chacha20poly1305.NewX(dk)
	if err != nil {
		return nil, err
	}

	hexDecodedNonce, err := hexDecodeStrings(nonce, NonceSizeX)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, hexDecodedNonce, dct, []byte(rawAuthenticatedData))
	if err != nil {
		err = fmt.Errorf("decryptCipherText: %w", err)
	}

	return plaintext, err
}

// GenerateContentKey returns a fresh symmetric content key as a hex string.
func GenerateContentKey() string {
	contentKeyBytes := make([]byte, KeySize)

	_, err := crand.Read(contentKeyBytes)
	if err != nil {
		panic(err)
	}

	return hex.EncodeToString(contentKeyBytes)
}

func GenerateNonce() []byte {
	bNonce := make([]byte, chacha20poly1305.NonceSizeX)

	_, err := crand.Read(bNonce)
	if err != nil {
		panic(err)
	}

	return bNonce
}

func EncryptBytes(plainText []byte, key, nonce, authenticatedData string) (result string, err error) {
	if len(nonce) == 0 {
		panic("empty nonce")
	}

	if len(plainText) > MaxPlaintextSize {
		panic("plaintext too long. please report this issue at https://github.com/hushcal/hushcal/issues")
	}

	contentKey := make([]byte, KeySize)

	_, err = hex.Decode(contentKey, []byte(key))
	if err != nil {
		return
	}

	aead, err := chacha20poly1305.NewX(contentKey)
	if err != nil {
		panic(err)
	}

	hexDecodedNonce, err := hexDecodeStrings(nonce, NonceSizeX)
	if err != nil {
		return
	}

	encryptedMsg := aead.Seal(nil, hexDecodedNonce, plainText, []byte(authenticatedData))

	return base64.StdEncoding.EncodeToString(encryptedMsg), err
}

// GenerateBoxKeyPair returns a fresh Curve25519 key pair as hex strings, used
// for per-recipient content key wrapping.
func GenerateBoxKeyPair() (publicKey, privateKey string, err error) {
	pub, priv, err := box.GenerateKey(crand.Reader)
	if err != nil {
		return
	}

	return hex.EncodeToString(pub[:]), hex.EncodeToString(priv[:]), nil
}

func decodeBoxKey(in string) (k *[BoxKeySize]byte, err error) {
	kb, err := hexDecodeStrings(in, BoxKeySize)
	if err != nil {
		return
	}

	k = new([BoxKeySize]byte)
	copy(k[:], kb)

	return
}

// SealKey seals a symmetric content key to a recipient's public key using the
// sender's private key. The returned nonce is hex and the ciphertext base64.
func SealKey(contentKey, recipientPublicKey, senderPrivateKey string) (nonce, cipherText string, err error) {
	rpk, err := decodeBoxKey(recipientPublicKey)
	if err != nil {
		return "", "", fmt.Errorf("sealKey: invalid recipient public key: %w", err)
	}

	spk, err := decodeBoxKey(senderPrivateKey)
	if err != nil {
		return "", "", fmt.Errorf("sealKey: invalid sender private key: %w", err)
	}

	var bNonce [BoxNonceSize]byte

	if _, err = crand.Read(bNonce[:]); err != nil {
		panic(err)
	}

	sealed := box.Seal(nil, []byte(contentKey), &bNonce, rpk, spk)

	return hex.EncodeToString(bNonce[:]), base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenKey recovers a symmetric content key sealed with SealKey using the
// sender's public key and the recipient's private key.
func OpenKey(cipherText, nonce, senderPublicKey, recipientPrivateKey string) (contentKey string, err error) {
	dct, err := base64.StdEncoding.DecodeString(cipherText)
	if err != nil {
		return
	}

	nb, err := hexDecodeStrings(nonce, BoxNonceSize)
	if err != nil {
		return
	}

	var bNonce [BoxNonceSize]byte
	copy(bNonce[:], nb)

	spk, err := decodeBoxKey(senderPublicKey)
	if err != nil {
		return "", fmt.Errorf("openKey: invalid sender public key: %w", err)
	}

	rpk, err := decodeBoxKey(recipientPrivateKey)
	if err != nil {
		return "", fmt.Errorf("openKey: invalid recipient private key: %w", err)
	}

	opened, ok := box.Open(nil, dct, &bNonce, spk, rpk)
	if !ok {
		return "", fmt.Errorf("openKey: failed to open sealed key")
	}

	return string(opened), nil
}
