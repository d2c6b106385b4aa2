package event

import (
	"github.com/hushcal/hushcal/attendee"
	"github.com/hushcal/hushcal/envelope"
	"github.com/hushcal/hushcal/ledger"
)

// Update sets make "which fields are being touched" explicit: a nil member is
// untouched, a set member overwrites the field and bumps its ledger entry to
// the supplied time. Local edits always flow through one of these before the
// snapshot is persisted.

// PlainUpdate is a sparse update to the plain content fields.
type PlainUpdate struct {
	StartsAt       *int64
	EndsAt         *int64
	Sequence       *int
	RecurrenceRule *string
	Deleted        *bool
}

// BodyUpdate is a sparse update to the decoded event body fields. An attendee
// list replacement carries no ledger entry: attendee merge is keyed by the
// per-attendee UpdatedAt stamps, not the content group ledger.
type BodyUpdate struct {
	Title       *string
	Description *string
	Location    *string
	AllDay      *bool
	Conference  *envelope.Conference
	Attendees   *attendee.List
}

// PrefsUpdate is a sparse update to the decoded preferences fields.
type PrefsUpdate struct {
	Color *string
}

// ApplyPlainUpdate applies the touched fields to the snapshot and bumps only
// their ledger entries.
func ApplyPlainUpdate(s *Snapshot, u PlainUpdate, now int64) {
	if s.PlainLedger == nil {
		s.PlainLedger = ledger.Ledger{}
	}

	if u.StartsAt != nil {
		s.Plain.StartsAt = *u.StartsAt
		s.PlainLedger.Touch(ledger.FieldStartsAt, now)
	}

	if u.EndsAt != nil {
		s.Plain.EndsAt = *u.EndsAt
		s.PlainLedger.Touch(ledger.FieldEndsAt, now)
	}

	if u.Sequence != nil {
		s.Plain.Sequence = *u.Sequence
		s.PlainLedger.Touch(ledger.FieldSequence, now)
	}

	if u.RecurrenceRule != nil {
		s.Plain.RecurrenceRule = *u.RecurrenceRule
		s.PlainLedger.Touch(ledger.FieldRecurrenceRule, now)
	}

	if u.Deleted != nil {
		s.Plain.Deleted = *u.Deleted
		s.PlainLedger.Touch(ledger.FieldDeleted, now)
	}

	s.Local.Dirty = true
}

// ApplyBodyUpdate applies the touched fields to a decoded event body and
// bumps only their entries in the body ledger.
func ApplyBodyUpdate(body *envelope.EventBody, led ledger.Ledger, u BodyUpdate, now int64) {
	if u.Title != nil {
		body.Title = *u.Title
		led.Touch(ledger.FieldTitle, now)
	}

	if u.Description != nil {
		body.Description = *u.Description
		led.Touch(ledger.FieldDescription, now)
	}

	if u.Location != nil {
		body.Location = *u.Location
		led.Touch(ledger.FieldLocation, now)
	}

	if u.AllDay != nil {
		body.AllDay = *u.AllDay
		led.Touch(ledger.FieldAllDay, now)
	}

	if u.Conference != nil {
		body.Conference = *u.Conference
		led.Touch(ledger.FieldConference, now)
	}

	if u.Attendees != nil {
		body.Attendees = *u.Attendees
	}
}

// ApplyPrefsUpdate applies the touched fields to decoded preferences and
// bumps only their entries in the preferences ledger.
func ApplyPrefsUpdate(prefs *envelope.Preferences, led ledger.Ledger, u PrefsUpdate, now int64) {
	if u.Color != nil {
		prefs.Color = *u.Color
		led.Touch(ledger.FieldColor, now)
	}
}
