package envelope

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/hushcal/hushcal/crypto"
)

// ContentKey is a symmetric key encrypting one content group's serialized
// bytes, identified so wrapped copies can name the key they carry.
type ContentKey struct {
	ID  string `json:"id"`
	Key string `json:"key"` // hex
}

// NewContentKey generates a fresh content key. Keys are only generated when a
// group has none yet; merges never rotate an existing key.
func NewContentKey() ContentKey {
	return ContentKey{
		ID:  uuid.New().String(),
		Key: crypto.GenerateContentKey(),
	}
}

// WrapKeyForRecipient seals a content key to one recipient's public key so
// only that recipient, or the sender by re-derivation, can unwrap it.
func WrapKeyForRecipient(ck ContentKey, recipientID, recipientPublicKey, recipientPublicKeyID, senderPublicKey, senderPrivateKey string) (wk crypto.WrappedKey, err error) {
	if senderPrivateKey == "" {
		panic("attempting to wrap content key without sender private key")
	}

	nonce, cipherText, err := crypto.SealKey(ck.Key, recipientPublicKey, senderPrivateKey)
	if err != nil {
		return wk, CryptoError{Op: fmt.Sprintf("wrap key for %s", recipientID), Err: err}
	}

	return crypto.WrappedKey{
		RecipientID:     recipientID,
		KeyID:           ck.ID,
		WrappingKeyID:   recipientPublicKeyID,
		SenderPublicKey: senderPublicKey,
		Nonce:           nonce,
		CipherText:      cipherText,
	}, nil
}

// UnwrapKey recovers a content key wrapped for the caller.
func UnwrapKey(wk crypto.WrappedKey, recipientPrivateKey string) (ck ContentKey, err error) {
	key, err := wk.Open(recipientPrivateKey)
	if err != nil {
		return ck, CryptoError{Op: fmt.Sprintf("unwrap key %s", wk.KeyID), Err: err}
	}

	return ContentKey{ID: wk.KeyID, Key: key}, nil
}

// FindWrappedKey returns the wrapped key addressed to the given recipient.
func FindWrappedKey(wks []crypto.WrappedKey, recipientID string) (crypto.WrappedKey, bool) {
	for _, wk := range wks {
		if wk.RecipientID == recipientID {
			return wk, true
		}
	}

	return crypto.WrappedKey{}, false
}
