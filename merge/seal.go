package merge

import (
	"fmt"

	"github.com/hushcal/hushcal/attendee"
	"github.com/hushcal/hushcal/common"
	"github.com/hushcal/hushcal/crypto"
	"github.com/hushcal/hushcal/envelope"
	"github.com/hushcal/hushcal/event"
	"github.com/hushcal/hushcal/log"
)

// recipient is an internal attendee who must be able to unwrap a group's
// content key. External attendees never appear here.
type recipient struct {
	ID          string
	PublicKey   string // empty for attendees known only by an existing wrap
	PublicKeyID string
	existing    *crypto.WrappedKey
}

// openBody decrypts and decodes a body group using the session's own wrapped
// key. An empty group returns zero values and no key.
func (e Engine) openBody(eventID string, g event.Group) (body envelope.EventBody, ck envelope.ContentKey, err error) {
	if g.Empty() {
		return
	}

	ck, err = e.openKey(g)
	if err != nil {
		return
	}

	body, err = envelope.DecodeEventBody(eventID, g.Blob, ck.Key)

	return
}

// openPrefs decrypts and decodes a preferences group.
func (e Engine) openPrefs(eventID string, g event.Group) (prefs envelope.Preferences, ck envelope.ContentKey, err error) {
	if g.Empty() {
		return
	}

	ck, err = e.openKey(g)
	if err != nil {
		return
	}

	prefs, err = envelope.DecodePreferences(eventID, g.Blob, ck.Key)

	return
}

func (e Engine) openKey(g event.Group) (ck envelope.ContentKey, err error) {
	wk, ok := envelope.FindWrappedKey(g.WrappedKeys, e.Session.CalendarID)
	if !ok {
		return ck, envelope.CryptoError{
			Op:  "unwrap key",
			Err: fmt.Errorf("no wrapped key for recipient %s", e.Session.CalendarID),
		}
	}

	return envelope.UnwrapKey(wk, e.Session.PrivateKey)
}

// recipients derives the key recipients from a merged attendee list: the
// session itself plus every non-deleted internal attendee. Deleted attendees
// are dropped so they are not re-wrapped-for.
func (e Engine) recipients(list attendee.List) []recipient {
	out := []recipient{{
		ID:          e.Session.CalendarID,
		PublicKey:   e.Session.PublicKey,
		PublicKeyID: e.Session.PublicKeyID,
	}}

	for _, a := range list {
		b := a.AttendeeBase()
		if b.Deleted {
			continue
		}

		switch v := a.(type) {
		case attendee.InternalPublicKey:
			if v.CalendarID == e.Session.CalendarID {
				continue
			}

			out = append(out, recipient{
				ID:          v.CalendarID,
				PublicKey:   v.PublicKey,
				PublicKeyID: v.PublicKeyID,
			})
		case attendee.InternalWrappedKey:
			if v.CalendarID == e.Session.CalendarID {
				continue
			}

			wk := v.WrappedKey

			out = append(out, recipient{
				ID:       v.CalendarID,
				existing: &wk,
			})
		case attendee.External, attendee.Unresolved:
			// external attendees receive content over plaintext channels only
		}
	}

	return out
}

func (e Engine) sealBody(eventID string, prior event.Group, priorKey envelope.ContentKey, body envelope.EventBody, contentChanged bool, rs []recipient) (g event.Group, changedRecipients []string, err error) {
	encode := func(ck envelope.ContentKey) (string, error) {
		return envelope.EncodeEventBody(eventID, body, ck.Key)
	}

	return e.sealGroup(prior, priorKey, contentChanged, encode, rs)
}

func (e Engine) sealPrefs(eventID string, prior event.Group, priorKey envelope.ContentKey, prefs envelope.Preferences, contentChanged bool, rs []recipient) (g event.Group, changedRecipients []string, err error) {
	encode := func(ck envelope.ContentKey) (string, error) {
		return envelope.EncodePreferences(eventID, prefs, ck.Key)
	}

	return e.sealGroup(prior, priorKey, contentChanged, encode, rs)
}

// sealGroup re-encrypts a group only when its content changed, generates a
// fresh content key only when none existed, and (re)wraps the key for every
// current recipient. Untouched groups come back byte-identical, with wraps
// added only for recipients that lacked one.
func (e Engine) sealGroup(prior event.Group, priorKey envelope.ContentKey, contentChanged bool, encode func(envelope.ContentKey) (string, error), rs []recipient) (g event.Group, changedRecipients []string, err error) {
	ck := priorKey
	if prior.Empty() {
		ck = envelope.NewContentKey()
		contentChanged = true
	}

	g.KeyID = ck.ID
	g.Blob = prior.Blob

	if contentChanged {
		g.Blob, err = encode(ck)
		if err != nil {
			return
		}
	}

	for _, r := range rs {
		// reuse a wrap that already carries this key
		if wk, ok := envelope.FindWrappedKey(prior.WrappedKeys, r.ID); ok && wk.KeyID == ck.ID {
			g.WrappedKeys = append(g.WrappedKeys, wk)
			continue
		}

		if r.existing != nil && r.existing.KeyID == ck.ID {
			g.WrappedKeys = append(g.WrappedKeys, *r.existing)
			continue
		}

		if r.PublicKey == "" {
			// key material must never be synthesized; without a public key or
			// a matching wrap this recipient cannot be served
			log.DebugPrint(e.Session.Debug,
				fmt.Sprintf("sealGroup | no usable key material for recipient %s, skipping wrap", r.ID),
				common.MaxDebugChars)

			continue
		}

		var wk crypto.WrappedKey

		wk, err = envelope.WrapKeyForRecipient(ck, r.ID, r.PublicKey, r.PublicKeyID, e.Session.PublicKey, e.Session.PrivateKey)
		if err != nil {
			return
		}

		g.WrappedKeys = append(g.WrappedKeys, wk)
		changedRecipients = append(changedRecipients, r.ID)
	}

	if _, ok := envelope.FindWrappedKey(g.WrappedKeys, e.Session.CalendarID); !ok {
		panic("sealed group without a wrapped key for the session itself")
	}

	return g, changedRecipients, nil
}
