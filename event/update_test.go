package event

import (
	"testing"

	"github.com/hushcal/hushcal/attendee"
	"github.com/hushcal/hushcal/envelope"
	"github.com/hushcal/hushcal/ledger"
	"github.com/stretchr/testify/require"
)

func TestApplyPlainUpdateTouchesOnlySetFields(t *testing.T) {
	t.Parallel()

	s := Snapshot{
		ExternalID:  "ev-1",
		Plain:       PlainContent{StartsAt: 1000, EndsAt: 2000, Sequence: 1},
		PlainLedger: ledger.Ledger{ledger.FieldStartsAt: 5, ledger.FieldEndsAt: 5, ledger.FieldSequence: 5},
	}

	startsAt := int64(1100)
	ApplyPlainUpdate(&s, PlainUpdate{StartsAt: &startsAt}, 9)

	require.Equal(t, int64(1100), s.Plain.StartsAt)
	require.Equal(t, int64(2000), s.Plain.EndsAt)
	require.Equal(t, int64(9), s.PlainLedger[ledger.FieldStartsAt])
	require.Equal(t, int64(5), s.PlainLedger[ledger.FieldEndsAt])
	require.Equal(t, int64(5), s.PlainLedger[ledger.FieldSequence])
	require.True(t, s.Local.Dirty)
}

func TestApplyPlainUpdateInitialisesLedger(t *testing.T) {
	t.Parallel()

	s := Snapshot{ExternalID: "ev-1"}

	deleted := true
	ApplyPlainUpdate(&s, PlainUpdate{Deleted: &deleted}, 4)

	require.True(t, s.Plain.Deleted)
	require.Equal(t, int64(4), s.PlainLedger[ledger.FieldDeleted])
}

func TestApplyBodyUpdate(t *testing.T) {
	t.Parallel()

	body := envelope.EventBody{Title: "old", Description: "keep"}
	led := ledger.Ledger{ledger.FieldTitle: 5, ledger.FieldDescription: 5}

	title := "new"
	allDay := true
	ApplyBodyUpdate(&body, led, BodyUpdate{Title: &title, AllDay: &allDay}, 9)

	require.Equal(t, "new", body.Title)
	require.Equal(t, "keep", body.Description)
	require.True(t, body.AllDay)
	require.Equal(t, int64(9), led[ledger.FieldTitle])
	require.Equal(t, int64(9), led[ledger.FieldAllDay])
	require.Equal(t, int64(5), led[ledger.FieldDescription])
}

func TestApplyBodyUpdateAttendeeReplacementSkipsLedger(t *testing.T) {
	t.Parallel()

	body := envelope.EventBody{}
	led := ledger.Ledger{}

	list := attendee.List{attendee.External{Base: attendee.Base{
		IdentityKey: "x@example.com",
		Email:       "x@example.com",
		UpdatedAt:   7,
	}}}

	ApplyBodyUpdate(&body, led, BodyUpdate{Attendees: &list}, 9)

	require.Len(t, body.Attendees, 1)
	require.Empty(t, led)
}

func TestApplyPrefsUpdate(t *testing.T) {
	t.Parallel()

	prefs := envelope.Preferences{Color: "RED"}
	led := ledger.Ledger{ledger.FieldColor: 5}

	color := "BLUE"
	ApplyPrefsUpdate(&prefs, led, PrefsUpdate{Color: &color}, 9)

	require.Equal(t, "BLUE", prefs.Color)
	require.Equal(t, int64(9), led[ledger.FieldColor])
}

func TestGroupEmpty(t *testing.T) {
	t.Parallel()

	require.True(t, Group{}.Empty())
	require.False(t, Group{Blob: "001:n:c:a"}.Empty())
}
