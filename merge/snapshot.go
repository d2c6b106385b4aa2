package merge

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/hushcal/hushcal/envelope"
	"github.com/hushcal/hushcal/event"
	"github.com/hushcal/hushcal/ledger"
)

// NewLocalSnapshot builds the snapshot created on first local edit: both
// groups are encoded under fresh content keys, wrapped for the session and
// every internal attendee, with every tracked field stamped at now.
func (e Engine) NewLocalSnapshot(externalID string, plain event.PlainContent, body envelope.EventBody, prefs envelope.Preferences, now int64) (s event.Snapshot, err error) {
	if !e.Session.Valid() {
		panic("invalid session")
	}

	if externalID == "" {
		externalID = uuid.New().String()
	}

	s.ExternalID = externalID
	s.Plain = plain
	s.PlainLedger = ledger.Ledger{}

	for _, f := range ledger.PlainFields() {
		s.PlainLedger.Touch(f, now)
	}

	bodyLedger := ledger.Ledger{}
	for _, f := range ledger.BodyFields() {
		bodyLedger.Touch(f, now)
	}

	prefsLedger := ledger.Ledger{}
	for _, f := range ledger.PrefsFields() {
		prefsLedger.Touch(f, now)
	}

	rs := e.recipients(body.Attendees)

	s.Body, _, err = e.sealBody(externalID, event.Group{}, envelope.ContentKey{}, body, true, rs)
	if err != nil {
		return s, fmt.Errorf("new snapshot | seal body: %w", err)
	}

	s.Body.Ledger = bodyLedger

	s.Prefs, _, err = e.sealPrefs(externalID, event.Group{}, envelope.ContentKey{}, prefs, true, rs)
	if err != nil {
		return s, fmt.Errorf("new snapshot | seal prefs: %w", err)
	}

	s.Prefs.Ledger = prefsLedger
	s.Local.Dirty = true

	return s, nil
}

// DecodeBody decrypts a snapshot's event body for display or local editing.
func (e Engine) DecodeBody(s event.Snapshot) (envelope.EventBody, error) {
	body, _, err := e.openBody(s.ExternalID, s.Body)

	return body, err
}

// DecodePrefs decrypts a snapshot's preferences.
func (e Engine) DecodePrefs(s event.Snapshot) (envelope.Preferences, error) {
	prefs, _, err := e.openPrefs(s.ExternalID, s.Prefs)

	return prefs, err
}

// UpdateBody decodes the body group, applies a sparse update, and re-seals it
// under the existing content key. This is the local-edit path; every touched
// field's ledger entry is bumped to now before the snapshot is persisted.
func (e Engine) UpdateBody(s *event.Snapshot, u event.BodyUpdate, now int64) error {
	body, ck, err := e.openBody(s.ExternalID, s.Body)
	if err != nil {
		return err
	}

	led := s.Body.Ledger
	if led == nil {
		led = ledger.Ledger{}
	}

	event.ApplyBodyUpdate(&body, led, u, now)

	rs := e.recipients(body.Attendees)

	g, _, err := e.sealBody(s.ExternalID, s.Body, ck, body, true, rs)
	if err != nil {
		return err
	}

	g.Ledger = led
	s.Body = g
	s.Local.Dirty = true

	return nil
}

// UpdatePrefs decodes the preferences group, applies a sparse update, and
// re-seals it. Only the preferences key is touched; the body group is not
// re-encrypted and its wraps are untouched.
func (e Engine) UpdatePrefs(s *event.Snapshot, u event.PrefsUpdate, now int64) error {
	prefs, ck, err := e.openPrefs(s.ExternalID, s.Prefs)
	if err != nil {
		return err
	}

	led := s.Prefs.Ledger
	if led == nil {
		led = ledger.Ledger{}
	}

	event.ApplyPrefsUpdate(&prefs, led, u, now)

	body, _, err := e.openBody(s.ExternalID, s.Body)
	if err != nil {
		return err
	}

	rs := e.recipients(body.Attendees)

	g, _, err := e.sealPrefs(s.ExternalID, s.Prefs, ck, prefs, true, rs)
	if err != nil {
		return err
	}

	g.Ledger = led
	s.Prefs = g
	s.Local.Dirty = true

	return nil
}
