package merge

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/hushcal/hushcal/attendee"
	"github.com/hushcal/hushcal/envelope"
	"github.com/hushcal/hushcal/event"
	"github.com/hushcal/hushcal/ledger"
	"github.com/hushcal/hushcal/session"
	"github.com/stretchr/testify/require"
)

// two writers sharing one event
type pair struct {
	alice *session.Session
	bob   *session.Session
	engA  Engine
	engB  Engine
}

func newPair(t *testing.T) pair {
	t.Helper()

	alice, err := session.New("cal-alice", "http://relay:3000", false)
	require.NoError(t, err)

	bob, err := session.New("cal-bob", "http://relay:3000", false)
	require.NoError(t, err)

	return pair{
		alice: alice,
		bob:   bob,
		engA:  NewEngine(alice),
		engB:  NewEngine(bob),
	}
}

func (p pair) attendees() attendee.List {
	return attendee.List{
		attendee.InternalPublicKey{
			Base:        attendee.Base{IdentityKey: "cal-alice", Email: "alice@example.com", Status: attendee.StatusAccepted, UpdatedAt: 1},
			CalendarID:  "cal-alice",
			PublicKey:   p.alice.PublicKey,
			PublicKeyID: p.alice.PublicKeyID,
		},
		attendee.InternalPublicKey{
			Base:        attendee.Base{IdentityKey: "cal-bob", Email: "bob@example.com", Status: attendee.StatusNeedsAction, UpdatedAt: 1},
			CalendarID:  "cal-bob",
			PublicKey:   p.bob.PublicKey,
			PublicKeyID: p.bob.PublicKeyID,
		},
	}
}

func (p pair) baseSnapshot(t *testing.T, now int64) event.Snapshot {
	t.Helper()

	s, err := p.engA.NewLocalSnapshot("", event.PlainContent{
		StartsAt: 1000,
		EndsAt:   2000,
		Sequence: 1,
	}, envelope.EventBody{
		Title:       "Quarterly planning",
		Description: "x",
		Location:    "Room 4",
		Attendees:   p.attendees(),
	}, envelope.Preferences{
		Color: "RED",
	}, now)
	require.NoError(t, err)

	return s
}

func deepCopy(t *testing.T, s event.Snapshot) event.Snapshot {
	t.Helper()

	b, err := json.Marshal(s)
	require.NoError(t, err)

	var out event.Snapshot
	require.NoError(t, json.Unmarshal(b, &out))

	out.Local = s.Local

	return out
}

func strPtr(s string) *string { return &s }
func i64Ptr(i int64) *int64   { return &i }

func TestMergePreferenceOnlyChangeLeavesBodyUntouched(t *testing.T) {
	t.Parallel()

	p := newPair(t)
	local := p.baseSnapshot(t, 5)

	remote := deepCopy(t, local)
	require.NoError(t, p.engB.UpdatePrefs(&remote, event.PrefsUpdate{Color: strPtr("BLUE")}, 8))

	res, err := p.engA.Merge(&local, remote, 9)
	require.NoError(t, err)
	require.Equal(t, StateSynced, res.State)

	// the event body key and ciphertext are byte-identical to the pre-merge value
	require.Equal(t, local.Body.Blob, res.Snapshot.Body.Blob)
	require.Equal(t, local.Body.KeyID, res.Snapshot.Body.KeyID)
	require.Equal(t, local.Body.WrappedKeys, res.Snapshot.Body.WrappedKeys)

	prefs, err := p.engA.DecodePrefs(res.Snapshot)
	require.NoError(t, err)
	require.Equal(t, "BLUE", prefs.Color)
	require.Equal(t, int64(8), res.Snapshot.Prefs.Ledger[ledger.FieldColor])
}

func TestMergeConcurrentTitleAndDescriptionEdits(t *testing.T) {
	t.Parallel()

	p := newPair(t)
	base := p.baseSnapshot(t, 5)

	local := deepCopy(t, base)
	require.NoError(t, p.engA.UpdateBody(&local, event.BodyUpdate{Title: strPtr("Quarterly planning")}, 10))

	remote := deepCopy(t, base)
	require.NoError(t, p.engB.UpdateBody(&remote, event.BodyUpdate{Description: strPtr("y")}, 7))
	require.NoError(t, p.engB.UpdateBody(&remote, event.BodyUpdate{Title: strPtr("Quarterly planning")}, 10))

	res, err := p.engA.Merge(&local, remote, 11)
	require.NoError(t, err)
	require.Equal(t, StateSynced, res.State)

	body, err := p.engA.DecodeBody(res.Snapshot)
	require.NoError(t, err)
	require.Equal(t, "Quarterly planning", body.Title)
	require.Equal(t, "y", body.Description)
	require.Equal(t, int64(10), res.Snapshot.Body.Ledger[ledger.FieldTitle])
	require.Equal(t, int64(7), res.Snapshot.Body.Ledger[ledger.FieldDescription])
}

func TestMergeLWWDeterminism(t *testing.T) {
	t.Parallel()

	p := newPair(t)
	base := p.baseSnapshot(t, 100)

	local := deepCopy(t, base)
	require.NoError(t, p.engA.UpdateBody(&local, event.BodyUpdate{Location: strPtr("local room")}, 150))

	remote := deepCopy(t, base)
	require.NoError(t, p.engB.UpdateBody(&remote, event.BodyUpdate{Location: strPtr("remote room")}, 150))

	// equal timestamps resolve to local
	res, err := p.engA.Merge(&local, remote, 151)
	require.NoError(t, err)

	body, err := p.engA.DecodeBody(res.Snapshot)
	require.NoError(t, err)
	require.Equal(t, "local room", body.Location)
}

func TestMergeRemoteExternalAttendeeNeverGetsWrappedKey(t *testing.T) {
	t.Parallel()

	p := newPair(t)
	local := p.baseSnapshot(t, 5)

	remote := deepCopy(t, local)
	remoteBody, err := p.engB.DecodeBody(remote)
	require.NoError(t, err)

	newList := append(attendee.List{}, remoteBody.Attendees...)
	newList = append(newList, attendee.External{Base: attendee.Base{
		IdentityKey: "carol@example.com",
		Email:       "carol@example.com",
		Status:      attendee.StatusNeedsAction,
		UpdatedAt:   20,
	}})

	require.NoError(t, p.engB.UpdateBody(&remote, event.BodyUpdate{Attendees: &newList}, 20))

	res, err := p.engA.Merge(&local, remote, 21)
	require.NoError(t, err)

	body, err := p.engA.DecodeBody(res.Snapshot)
	require.NoError(t, err)
	require.Len(t, body.Attendees, 3)

	_, found := body.Attendees.Find("carol@example.com")
	require.True(t, found)

	for _, wk := range res.Snapshot.Body.WrappedKeys {
		require.NotEqual(t, "carol@example.com", wk.RecipientID)
	}

	for _, wk := range res.Snapshot.Prefs.WrappedKeys {
		require.NotEqual(t, "carol@example.com", wk.RecipientID)
	}
}

func TestMergeNewInternalAttendeeReceivesWrappedKeys(t *testing.T) {
	t.Parallel()

	p := newPair(t)

	dave, err := session.New("cal-dave", "http://relay:3000", false)
	require.NoError(t, err)

	local := p.baseSnapshot(t, 5)

	remote := deepCopy(t, local)
	remoteBody, err := p.engB.DecodeBody(remote)
	require.NoError(t, err)

	newList := append(attendee.List{}, remoteBody.Attendees...)
	newList = append(newList, attendee.InternalPublicKey{
		Base:        attendee.Base{IdentityKey: "cal-dave", Email: "dave@example.com", Status: attendee.StatusNeedsAction, UpdatedAt: 20},
		CalendarID:  "cal-dave",
		PublicKey:   dave.PublicKey,
		PublicKeyID: dave.PublicKeyID,
	})

	require.NoError(t, p.engB.UpdateBody(&remote, event.BodyUpdate{Attendees: &newList}, 20))

	res, err := p.engA.Merge(&local, remote, 21)
	require.NoError(t, err)
	require.Contains(t, res.ChangedRecipients, "cal-dave")

	bodyWrap, found := envelope.FindWrappedKey(res.Snapshot.Body.WrappedKeys, "cal-dave")
	require.True(t, found)
	require.Equal(t, res.Snapshot.Body.KeyID, bodyWrap.KeyID)

	// the new attendee can actually unwrap and read the merged body
	engD := NewEngine(dave)
	body, err := engD.DecodeBody(res.Snapshot)
	require.NoError(t, err)
	require.Equal(t, "Quarterly planning", body.Title)

	// preferences key is wrapped for them too, without re-encrypting the blob
	_, found = envelope.FindWrappedKey(res.Snapshot.Prefs.WrappedKeys, "cal-dave")
	require.True(t, found)
	require.Equal(t, local.Prefs.Blob, res.Snapshot.Prefs.Blob)
}

func TestMergeNeverRotatesAnExistingContentKey(t *testing.T) {
	t.Parallel()

	p := newPair(t)
	local := p.baseSnapshot(t, 5)

	remote := deepCopy(t, local)
	require.NoError(t, p.engB.UpdateBody(&remote, event.BodyUpdate{Title: strPtr("Renamed")}, 9))

	res, err := p.engA.Merge(&local, remote, 10)
	require.NoError(t, err)

	require.Equal(t, local.Body.KeyID, res.Snapshot.Body.KeyID)
	require.NotEqual(t, local.Body.Blob, res.Snapshot.Body.Blob)
}

func TestMergeInconsistentDatesFlagsConflict(t *testing.T) {
	t.Parallel()

	p := newPair(t)
	base := p.baseSnapshot(t, 5)

	local := deepCopy(t, base)
	event.ApplyPlainUpdate(&local, event.PlainUpdate{StartsAt: i64Ptr(1800)}, 10)

	remote := deepCopy(t, base)
	event.ApplyPlainUpdate(&remote, event.PlainUpdate{EndsAt: i64Ptr(1700)}, 12)

	res, err := p.engA.Merge(&local, remote, 13)
	require.NoError(t, err)

	// both winners applied as-is, no correction invented
	require.Equal(t, StateConflict, res.State)
	require.Equal(t, int64(1800), res.Snapshot.Plain.StartsAt)
	require.Equal(t, int64(1700), res.Snapshot.Plain.EndsAt)
}

func TestMergeFirstRemoteDelivery(t *testing.T) {
	t.Parallel()

	p := newPair(t)

	// bob created the event and shared it with alice
	remote, err := p.engB.NewLocalSnapshot("", event.PlainContent{StartsAt: 1000, EndsAt: 2000}, envelope.EventBody{
		Title:     "Offsite",
		Attendees: p.attendees(),
	}, envelope.Preferences{Color: "GREEN"}, 5)
	require.NoError(t, err)

	res, err := p.engA.Merge(nil, remote, 6)
	require.NoError(t, err)
	require.Equal(t, StateSynced, res.State)

	body, err := p.engA.DecodeBody(res.Snapshot)
	require.NoError(t, err)
	require.Equal(t, "Offsite", body.Title)

	prefs, err := p.engA.DecodePrefs(res.Snapshot)
	require.NoError(t, err)
	require.Equal(t, "GREEN", prefs.Color)

	require.Equal(t, int64(1000), res.Snapshot.Plain.StartsAt)

	// the delivered groups are adopted as-is: same keys, same ciphertext,
	// same wraps, nothing to push back
	require.Equal(t, remote.Body.KeyID, res.Snapshot.Body.KeyID)
	require.Equal(t, remote.Body.Blob, res.Snapshot.Body.Blob)
	require.Equal(t, remote.Body.WrappedKeys, res.Snapshot.Body.WrappedKeys)
	require.Equal(t, remote.Prefs.KeyID, res.Snapshot.Prefs.KeyID)
	require.Equal(t, remote.Prefs.Blob, res.Snapshot.Prefs.Blob)
	require.Empty(t, res.ChangedRecipients)
	require.False(t, res.Snapshot.Local.Dirty)
}

func TestMergeMissingWrappedKeyIsCryptoError(t *testing.T) {
	t.Parallel()

	p := newPair(t)

	carol, err := session.New("cal-carol", "http://relay:3000", false)
	require.NoError(t, err)

	// carol is not a recipient of this event
	local := p.baseSnapshot(t, 5)

	engC := NewEngine(carol)

	_, err = engC.Merge(nil, local, 6)
	require.Error(t, err)

	var ce envelope.CryptoError
	require.True(t, errors.As(err, &ce))
}

func TestMergeTombstonedAttendeeIsNotRewrappedFor(t *testing.T) {
	t.Parallel()

	p := newPair(t)
	local := p.baseSnapshot(t, 5)

	remote := deepCopy(t, local)
	remoteBody, err := p.engB.DecodeBody(remote)
	require.NoError(t, err)

	// bob removes himself; the tombstone is retained but he is dropped from wraps
	newList := append(attendee.List{}, remoteBody.Attendees...)
	bob := newList[1].(attendee.InternalPublicKey)
	bob.Deleted = true
	bob.UpdatedAt = 20
	newList[1] = bob

	require.NoError(t, p.engB.UpdateBody(&remote, event.BodyUpdate{Attendees: &newList}, 20))

	res, err := p.engA.Merge(&local, remote, 21)
	require.NoError(t, err)

	body, err := p.engA.DecodeBody(res.Snapshot)
	require.NoError(t, err)

	kept, found := body.Attendees.Find("cal-bob")
	require.True(t, found)
	require.True(t, kept.AttendeeBase().Deleted)

	_, found = envelope.FindWrappedKey(res.Snapshot.Body.WrappedKeys, "cal-bob")
	require.False(t, found)
}
