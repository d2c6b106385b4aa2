package envelope

import "fmt"

// DecodeError reports a wire datagram outside the accepted schema
// compatibility range, or one too malformed to parse. It is fatal for the
// affected event only; sync continues with the rest of the batch.
type DecodeError struct {
	Kind   Kind
	Schema int
	Msg    string
}

func (e DecodeError) Error() string {
	if e.Schema != 0 {
		return fmt.Sprintf("decode %s: schema version %d outside accepted range: %s", e.Kind, e.Schema, e.Msg)
	}

	return fmt.Sprintf("decode %s: %s", e.Kind, e.Msg)
}

// CryptoError reports a symmetric decrypt or key unwrap failure: wrong key,
// tampered ciphertext, or a missing wrapped key for this recipient. Retrying
// without new key material cannot succeed, so callers surface it rather than
// retry.
type CryptoError struct {
	Op  string
	Err error
}

func (e CryptoError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("crypto %s", e.Op)
	}

	return fmt.Sprintf("crypto %s: %s", e.Op, e.Err)
}

func (e CryptoError) Unwrap() error { return e.Err }
