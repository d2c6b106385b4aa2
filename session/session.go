// Package session holds the caller's identity: their calendar ID and the
// asymmetric key pair used to wrap and unwrap content keys. Keys are issued
// elsewhere; this package only stores and loads them, with the private key at
// rest in the OS keyring.
package session

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/hushcal/hushcal/common"
	"github.com/hushcal/hushcal/crypto"
	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"
)

const (
	KeyringApplicationName = "Identity"
	KeyringService         = "HushcalCLI"

	MsgIdentityRemovalSuccess = "identity removed successfully"
	MsgIdentityRemovalFailure = "failed to remove identity"
)

// Session holds the identity and transport parameters required to reconcile
// and re-encrypt events. It carries no mutable engine state; concurrent
// merges may share one Session.
type Session struct {
	Debug       bool
	HTTPClient  *retryablehttp.Client
	Server      string
	CalendarID  string
	PublicKey   string `json:"public_key"`
	PublicKeyID string `json:"public_key_id"`
	PrivateKey  string `json:"-"`
}

// MinimalSession is the serialized form written to the keyring.
type MinimalSession struct {
	Server      string `json:"server"`
	CalendarID  string `json:"calendar_id"`
	PublicKey   string `json:"public_key"`
	PublicKeyID string `json:"public_key_id"`
	PrivateKey  string `json:"private_key"`
}

func (s *Session) Valid() bool {
	switch {
	case s == nil:
		return false
	case s.CalendarID == "":
		return false
	case s.PublicKey == "":
		return false
	case s.PrivateKey == "":
		return false
	}

	return true
}

// New creates a session with a freshly generated key pair. Intended for tests
// and first-run provisioning; normal operation loads issued keys.
func New(calendarID, server string, debug bool) (s *Session, err error) {
	pub, priv, err := crypto.GenerateBoxKeyPair()
	if err != nil {
		return nil, fmt.Errorf("new session | %w", err)
	}

	return &Session{
		Debug:       debug,
		HTTPClient:  common.NewHTTPClient(),
		Server:      server,
		CalendarID:  calendarID,
		PublicKey:   pub,
		PublicKeyID: calendarID + "-key",
		PrivateKey:  priv,
	}, nil
}

func makeMinimalSessionString(s Session) string {
	ms := MinimalSession{
		Server:      s.Server,
		CalendarID:  s.CalendarID,
		PublicKey:   s.PublicKey,
		PublicKeyID: s.PublicKeyID,
		PrivateKey:  s.PrivateKey,
	}

	b, err := json.Marshal(ms)
	if err != nil {
		panic("failed to marshal session")
	}

	return string(b)
}

func GetSessionFromKeyring(k keyring.Keyring) (s string, err error) {
	if k == nil {
		s, err = keyring.Get(KeyringService, KeyringApplicationName)
		if err != nil {
			return s, fmt.Errorf("GetSessionFromKeyring | %w", err)
		}
	}

	if k != nil {
		s, err = k.Get(KeyringService, KeyringApplicationName)
		if err != nil {
			err = fmt.Errorf("GetSessionFromKeyring | %w", err)
		}
	}

	return
}

func writeSession(s string, k keyring.Keyring) error {
	if k == nil {
		return keyring.Set(KeyringService, KeyringApplicationName, s)
	}

	return k.Set(KeyringService, KeyringApplicationName, s)
}

// Save writes the session to the keyring. Pass a nil Keyring to use the
// system default.
func Save(s Session, k keyring.Keyring) error {
	if !s.Valid() {
		return fmt.Errorf("refusing to save invalid session")
	}

	return writeSession(makeMinimalSessionString(s), k)
}

// Load restores a session from the keyring, applying any viper overrides for
// server and debug settings.
func Load(k keyring.Keyring, debug bool) (s *Session, err error) {
	raw, err := GetSessionFromKeyring(k)
	if err != nil {
		return
	}

	var ms MinimalSession

	if err = json.Unmarshal([]byte(raw), &ms); err != nil {
		return nil, fmt.Errorf("load session | failed to unmarshal keyring entry: %w", err)
	}

	server := ms.Server
	if viper.GetString("server") != "" {
		server = viper.GetString("server")
	}

	s = &Session{
		Debug:       debug,
		HTTPClient:  common.NewHTTPClient(),
		Server:      server,
		CalendarID:  ms.CalendarID,
		PublicKey:   ms.PublicKey,
		PublicKeyID: ms.PublicKeyID,
		PrivateKey:  ms.PrivateKey,
	}

	if !s.Valid() {
		return nil, fmt.Errorf("load session | keyring entry is incomplete")
	}

	return s, nil
}

// Remove deletes the stored session from the keyring.
func Remove(k keyring.Keyring) (msg string, err error) {
	if k == nil {
		err = keyring.Delete(KeyringService, KeyringApplicationName)
	} else {
		err = k.Delete(KeyringService, KeyringApplicationName)
	}

	if err != nil {
		return MsgIdentityRemovalFailure, err
	}

	return MsgIdentityRemovalSuccess, nil
}
