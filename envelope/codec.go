package envelope

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/hushcal/hushcal/crypto"
)

const schemaMember = "schema"

// authData binds a blob to its event and group so a datagram cannot be
// replayed under another event or kind.
type authData struct {
	U string `json:"u"`
	K Kind   `json:"k"`
	V string `json:"v"`
}

func encodeAuthData(eventID string, kind Kind) string {
	ad, err := json.Marshal(authData{U: eventID, K: kind, V: ProtocolVersion})
	if err != nil {
		panic(err)
	}

	return base64.StdEncoding.EncodeToString(ad)
}

// EncodeEventBody serializes the event body to its wire datagram and encrypts
// it under contentKey, returning a protocol string blob.
func EncodeEventBody(eventID string, body EventBody, contentKey string) (blob string, err error) {
	datagram, err := marshalDatagram(body, EventBodySchema, body.Extra)
	if err != nil {
		return "", fmt.Errorf("encode %s | %w", KindEventBody, err)
	}

	return sealDatagram(eventID, KindEventBody, datagram, contentKey)
}

// EncodePreferences serializes preferences to their wire datagram and encrypts
// it under contentKey.
func EncodePreferences(eventID string, prefs Preferences, contentKey string) (blob string, err error) {
	datagram, err := marshalDatagram(prefs, PreferencesSchema, prefs.Extra)
	if err != nil {
		return "", fmt.Errorf("encode %s | %w", KindPreferences, err)
	}

	return sealDatagram(eventID, KindPreferences, datagram, contentKey)
}

// DecodeEventBody is the strict inverse of EncodeEventBody. It returns a
// DecodeError for schema versions outside the accepted range and a
// CryptoError when decryption fails. Unknown datagram members are retained in
// Extra.
func DecodeEventBody(eventID, blob, contentKey string) (body EventBody, err error) {
	datagram, err := openDatagram(eventID, KindEventBody, blob, contentKey)
	if err != nil {
		return
	}

	extra, err := unmarshalDatagram(datagram, KindEventBody, EventBodyMinSchema, EventBodyMaxSchema, &body)
	if err != nil {
		return
	}

	body.Extra = extra

	return body, nil
}

// DecodePreferences is the strict inverse of EncodePreferences.
func DecodePreferences(eventID, blob, contentKey string) (prefs Preferences, err error) {
	datagram, err := openDatagram(eventID, KindPreferences, blob, contentKey)
	if err != nil {
		return
	}

	extra, err := unmarshalDatagram(datagram, KindPreferences, PreferencesMinSchema, PreferencesMaxSchema, &prefs)
	if err != nil {
		return
	}

	prefs.Extra = extra

	return prefs, nil
}

// marshalDatagram renders the group's known fields plus its schema version,
// then layers retained unknown members back in without overriding known ones.
func marshalDatagram(group any, schema int, extra map[string]json.RawMessage) ([]byte, error) {
	known, err := json.Marshal(group)
	if err != nil {
		return nil, err
	}

	var members map[string]json.RawMessage

	if err = json.Unmarshal(known, &members); err != nil {
		return nil, err
	}

	members[schemaMember] = json.RawMessage(fmt.Sprintf("%d", schema))

	for k, v := range extra {
		if _, ok := members[k]; ok {
			continue
		}

		members[k] = v
	}

	return json.Marshal(members)
}

// unmarshalDatagram validates the schema version, fills the group's known
// fields and returns the members this codec does not understand.
func unmarshalDatagram(datagram []byte, kind Kind, minSchema, maxSchema int, group any) (extra map[string]json.RawMessage, err error) {
	var members map[string]json.RawMessage

	if err = json.Unmarshal(datagram, &members); err != nil {
		return nil, DecodeError{Kind: kind, Msg: fmt.Sprintf("malformed datagram: %s", err)}
	}

	rawSchema, ok := members[schemaMember]
	if !ok {
		return nil, DecodeError{Kind: kind, Msg: "datagram missing schema version"}
	}

	var schema int

	if err = json.Unmarshal(rawSchema, &schema); err != nil {
		return nil, DecodeError{Kind: kind, Msg: fmt.Sprintf("invalid schema version: %s", err)}
	}

	if schema < minSchema || schema > maxSchema {
		return nil, DecodeError{
			Kind:   kind,
			Schema: schema,
			Msg:    fmt.Sprintf("accepted range is %d to %d", minSchema, maxSchema),
		}
	}

	if err = json.Unmarshal(datagram, group); err != nil {
		return nil, DecodeError{Kind: kind, Msg: fmt.Sprintf("malformed group: %s", err)}
	}

	knownMembers, err := knownMemberNames(group)
	if err != nil {
		return nil, err
	}

	extra = make(map[string]json.RawMessage)

	for k, v := range members {
		if k == schemaMember {
			continue
		}

		if _, known := knownMembers[k]; known {
			continue
		}

		extra[k] = v
	}

	if len(extra) == 0 {
		extra = nil
	}

	return extra, nil
}

func knownMemberNames(group any) (map[string]struct{}, error) {
	b, err := json.Marshal(group)
	if err != nil {
		return nil, err
	}

	var members map[string]json.RawMessage

	if err = json.Unmarshal(b, &members); err != nil {
		return nil, err
	}

	names := make(map[string]struct{}, len(members))
	for k := range members {
		names[k] = struct{}{}
	}

	return names, nil
}

func sealDatagram(eventID string, kind Kind, datagram []byte, contentKey string) (blob string, err error) {
	if contentKey == "" {
		panic(fmt.Sprintf("attempting to encrypt %s with empty content key", kind))
	}

	b64AuthData := encodeAuthData(eventID, kind)
	nonce := hex.EncodeToString(crypto.GenerateNonce())

	cipherText, err := crypto.EncryptBytes(datagram, contentKey, nonce, b64AuthData)
	if err != nil {
		return "", CryptoError{Op: fmt.Sprintf("encrypt %s", kind), Err: err}
	}

	return fmt.Sprintf("%s:%s:%s:%s", ProtocolVersion, nonce, cipherText, b64AuthData), nil
}

func openDatagram(eventID string, kind Kind, blob, contentKey string) (datagram []byte, err error) {
	version, nonce, cipherText, b64AuthData, err := crypto.SplitBlob(blob)
	if err != nil {
		return nil, DecodeError{Kind: kind, Msg: err.Error()}
	}

	if version != ProtocolVersion {
		return nil, DecodeError{Kind: kind, Msg: fmt.Sprintf("unsupported protocol version %q", version)}
	}

	if b64AuthData != encodeAuthData(eventID, kind) {
		return nil, CryptoError{Op: fmt.Sprintf("decrypt %s", kind), Err: fmt.Errorf("authenticated data mismatch for event %s", eventID)}
	}

	datagram, err = crypto.DecryptCipherText(cipherText, contentKey, nonce, b64AuthData)
	if err != nil {
		return nil, CryptoError{Op: fmt.Sprintf("decrypt %s", kind), Err: err}
	}

	return datagram, nil
}
