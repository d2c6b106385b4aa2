package crypto

// WrappedKey is a symmetric content key sealed for a single recipient. The
// recipient opens it with their private key and the sender's public key; no
// other party can recover the content key from it.
type WrappedKey struct {
	RecipientID     string `json:"recipient_id"`      // calendar ID of the recipient
	KeyID           string `json:"key_id"`            // identity of the wrapped content key
	WrappingKeyID   string `json:"wrapping_key_id"`   // identity of the recipient public key used to seal
	SenderPublicKey string `json:"sender_public_key"` // hex public key needed to open
	Nonce           string `json:"nonce"`
	CipherText      string `json:"ciphertext"`
}

// Open recovers the content key using the recipient's private key.
func (wk WrappedKey) Open(recipientPrivateKey string) (contentKey string, err error) {
	return OpenKey(wk.CipherText, wk.Nonce, wk.SenderPublicKey, recipientPrivateKey)
}
