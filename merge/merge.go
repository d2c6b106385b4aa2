// Package merge implements the conflict merge engine: given a local snapshot
// and a remote one, it computes a merged snapshot using last-writer-wins per
// field, merges attendee lists structurally, and re-encrypts whatever
// actually changed. All operations are pure over their inputs; the engine
// holds no mutable state, so concurrent merges of distinct events need no
// locking. Merges of the same event must be serialized by the caller.
package merge

import (
	"encoding/json"
	"fmt"

	"github.com/hushcal/hushcal/attendee"
	"github.com/hushcal/hushcal/common"
	"github.com/hushcal/hushcal/envelope"
	"github.com/hushcal/hushcal/event"
	"github.com/hushcal/hushcal/ledger"
	"github.com/hushcal/hushcal/log"
	"github.com/hushcal/hushcal/session"
)

// State reports the outcome of one merge.
type State string

const (
	StateSynced   State = "synced"
	StateConflict State = "conflict"
)

// Engine performs merges on behalf of one session. It is stateless; construct
// one per call or share one across goroutines.
type Engine struct {
	Session *session.Session
}

func NewEngine(s *session.Session) Engine {
	return Engine{Session: s}
}

// Result is the outcome of merging one event: the snapshot to persist, the
// recipients whose wrapped key changed and therefore must receive a push, and
// whether the merged plain fields are logically consistent.
type Result struct {
	Snapshot          event.Snapshot
	State             State
	ChangedRecipients []string
}

// Merge reconciles a remote snapshot against the local one. A nil local means
// first remote delivery; the remote state then wins every field. The merged
// snapshot is always returned, even when flagged as a conflict, so no data is
// lost.
func (e Engine) Merge(local *event.Snapshot, remote event.Snapshot, now int64) (r Result, err error) {
	if !e.Session.Valid() {
		panic("invalid session")
	}

	if local == nil {
		local = &event.Snapshot{
			ExternalID:    remote.ExternalID,
			ParentEventID: remote.ParentEventID,
		}
	}

	if local.ExternalID != remote.ExternalID {
		return r, fmt.Errorf("merge | local %s and remote %s are different events", local.ExternalID, remote.ExternalID)
	}

	eventID := local.ExternalID

	// decode both sides of both groups before touching anything
	localBody, localBodyKey, err := e.openBody(eventID, local.Body)
	if err != nil {
		return r, fmt.Errorf("merge | local body: %w", err)
	}

	remoteBody, _, err := e.openBody(eventID, remote.Body)
	if err != nil {
		return r, fmt.Errorf("merge | remote body: %w", err)
	}

	localPrefs, localPrefsKey, err := e.openPrefs(eventID, local.Prefs)
	if err != nil {
		return r, fmt.Errorf("merge | local prefs: %w", err)
	}

	remotePrefs, _, err := e.openPrefs(eventID, remote.Prefs)
	if err != nil {
		return r, fmt.Errorf("merge | remote prefs: %w", err)
	}

	merged := event.Snapshot{
		ExternalID:    eventID,
		ParentEventID: local.ParentEventID,
		Local:         local.Local,
	}

	if merged.ParentEventID == "" {
		merged.ParentEventID = remote.ParentEventID
	}

	merged.Plain = mergePlain(local.Plain, remote.Plain, local.PlainLedger, remote.PlainLedger)
	merged.PlainLedger = ledger.Merge(local.PlainLedger, remote.PlainLedger)

	mergedBody, bodyChanged := mergeBody(localBody, remoteBody, local.Body.Ledger, remote.Body.Ledger)

	mergedBody.Attendees = attendee.MergeLists(localBody.Attendees, remoteBody.Attendees)
	if !mergedBody.Attendees.Equal(localBody.Attendees) {
		bodyChanged = true
	}

	mergedPrefs, prefsChanged := mergePrefs(localPrefs, remotePrefs, local.Prefs.Ledger, remote.Prefs.Ledger)

	recipients := e.recipients(mergedBody.Attendees)

	var changed []string

	// a group the local side has never sealed arrives with its content key
	// already established; adopt it as delivered. Merges never rotate a key.
	if local.Body.Empty() && !remote.Body.Empty() {
		merged.Body = remote.Body
		bodyChanged = false
	} else {
		merged.Body, changed, err = e.sealBody(eventID, local.Body, localBodyKey, mergedBody, bodyChanged, recipients)
		if err != nil {
			return r, fmt.Errorf("merge | seal body: %w", err)
		}

		r.ChangedRecipients = appendUnique(r.ChangedRecipients, changed...)
	}

	merged.Body.Ledger = ledger.Merge(local.Body.Ledger, remote.Body.Ledger)

	if local.Prefs.Empty() && !remote.Prefs.Empty() {
		merged.Prefs = remote.Prefs
		prefsChanged = false
	} else {
		merged.Prefs, changed, err = e.sealPrefs(eventID, local.Prefs, localPrefsKey, mergedPrefs, prefsChanged, recipients)
		if err != nil {
			return r, fmt.Errorf("merge | seal prefs: %w", err)
		}

		r.ChangedRecipients = appendUnique(r.ChangedRecipients, changed...)
	}

	merged.Prefs.Ledger = ledger.Merge(local.Prefs.Ledger, remote.Prefs.Ledger)

	merged.Local.SyncedAt = now
	merged.Local.Dirty = local.Local.Dirty || bodyChanged || prefsChanged || len(r.ChangedRecipients) > 0

	r.Snapshot = merged
	r.State = StateSynced

	// independently won date fields can contradict each other; surface, never
	// guess a correction
	if merged.Plain.StartsAt > 0 && merged.Plain.EndsAt > 0 && merged.Plain.EndsAt < merged.Plain.StartsAt {
		log.DebugPrint(e.Session.Debug,
			fmt.Sprintf("merge | event %s merged to end %d before start %d", eventID, merged.Plain.EndsAt, merged.Plain.StartsAt),
			common.MaxDebugChars)

		r.State = StateConflict
	}

	return r, nil
}

func mergePlain(local, remote event.PlainContent, localLed, remoteLed ledger.Ledger) event.PlainContent {
	merged := local

	if ledger.Compare(ledger.FieldStartsAt, localLed, remoteLed) == ledger.WinnerRemote {
		merged.StartsAt = remote.StartsAt
	}

	if ledger.Compare(ledger.FieldEndsAt, localLed, remoteLed) == ledger.WinnerRemote {
		merged.EndsAt = remote.EndsAt
	}

	if ledger.Compare(ledger.FieldSequence, localLed, remoteLed) == ledger.WinnerRemote {
		merged.Sequence = remote.Sequence
	}

	if ledger.Compare(ledger.FieldRecurrenceRule, localLed, remoteLed) == ledger.WinnerRemote {
		merged.RecurrenceRule = remote.RecurrenceRule
	}

	if ledger.Compare(ledger.FieldDeleted, localLed, remoteLed) == ledger.WinnerRemote {
		merged.Deleted = remote.Deleted
	}

	return merged
}

func mergeBody(local, remote envelope.EventBody, localLed, remoteLed ledger.Ledger) (merged envelope.EventBody, changed bool) {
	merged = local

	if ledger.Compare(ledger.FieldTitle, localLed, remoteLed) == ledger.WinnerRemote {
		merged.Title = remote.Title
		changed = true
	}

	if ledger.Compare(ledger.FieldDescription, localLed, remoteLed) == ledger.WinnerRemote {
		merged.Description = remote.Description
		changed = true
	}

	if ledger.Compare(ledger.FieldLocation, localLed, remoteLed) == ledger.WinnerRemote {
		merged.Location = remote.Location
		changed = true
	}

	if ledger.Compare(ledger.FieldAllDay, localLed, remoteLed) == ledger.WinnerRemote {
		merged.AllDay = remote.AllDay
		changed = true
	}

	if ledger.Compare(ledger.FieldConference, localLed, remoteLed) == ledger.WinnerRemote {
		merged.Conference = remote.Conference
		changed = true
	}

	merged.Extra = mergeExtra(local.Extra, remote.Extra)
	if len(merged.Extra) != len(local.Extra) {
		changed = true
	}

	return merged, changed
}

func mergePrefs(local, remote envelope.Preferences, localLed, remoteLed ledger.Ledger) (merged envelope.Preferences, changed bool) {
	merged = local

	if ledger.Compare(ledger.FieldColor, localLed, remoteLed) == ledger.WinnerRemote {
		merged.Color = remote.Color
		changed = true
	}

	merged.Extra = mergeExtra(local.Extra, remote.Extra)
	if len(merged.Extra) != len(local.Extra) {
		changed = true
	}

	return merged, changed
}

// mergeExtra unions unknown wire members, preferring local on collision, so
// fields added by newer clients survive a merge by this one.
func mergeExtra(local, remote map[string]json.RawMessage) map[string]json.RawMessage {
	if len(remote) == 0 {
		return local
	}

	merged := make(map[string]json.RawMessage, len(local)+len(remote))

	for k, v := range remote {
		merged[k] = v
	}

	for k, v := range local {
		merged[k] = v
	}

	return merged
}

func appendUnique(in []string, add ...string) []string {
	for _, a := range add {
		found := false

		for _, x := range in {
			if x == a {
				found = true
				break
			}
		}

		if !found {
			in = append(in, a)
		}
	}

	return in
}
