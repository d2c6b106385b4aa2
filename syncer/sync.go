// Package syncer orchestrates one sync round: merge each remote delta against
// local state, collect re-encrypted push payloads, and report the batch
// outcome. It owns one event at a time, which serializes merges per event; it
// performs no I/O and never retries, leaving transport concerns to the relay
// client.
package syncer

import (
	"errors"
	"fmt"

	"github.com/hushcal/hushcal/common"
	"github.com/hushcal/hushcal/envelope"
	"github.com/hushcal/hushcal/event"
	"github.com/hushcal/hushcal/log"
	"github.com/hushcal/hushcal/merge"
	"github.com/hushcal/hushcal/session"
)

// SyncState is the outcome for a whole batch: Conflict if any event in it
// merged into a conflicted state.
type SyncState string

const (
	SyncStateSynced   SyncState = "synced"
	SyncStateConflict SyncState = "conflict"
)

// SyncInput defines the input for reconciling one remote delta batch.
type SyncInput struct {
	Session    *session.Session
	Locals     map[string]event.Snapshot // local snapshots keyed by external ID
	Batch      []event.Snapshot          // remote deltas
	Checkpoint string                    // token the batch was fetched at
	Now        int64                     // client-observed time in unix milliseconds
}

// Push is a merged, re-encrypted payload ready for the relay, plus the
// recipients whose wrapped key changed and must be notified.
type Push struct {
	Snapshot          event.Snapshot `json:"snapshot"`
	ChangedRecipients []string       `json:"changed_recipients"`
}

// EventFailure records an event skipped during the batch. Crypto and decode
// failures never abort the rest of a batch.
type EventFailure struct {
	ExternalID string
	Err        error
}

// SyncOutput defines the output of one sync round.
type SyncOutput struct {
	Snapshots  map[string]event.Snapshot // updated local snapshot set
	Pushes     []Push
	Conflicts  []string // external IDs flagged for manual resolution
	Failures   []EventFailure
	Checkpoint string
	State      SyncState
}

// Sync reconciles the batch. Errors scoped to a single event are collected in
// Failures; only programmer-error-class conditions fail the whole round.
func Sync(in SyncInput) (out SyncOutput, err error) {
	if !in.Session.Valid() {
		return out, fmt.Errorf("sync | session is invalid")
	}

	out.Snapshots = make(map[string]event.Snapshot, len(in.Locals)+len(in.Batch))
	for id, s := range in.Locals {
		out.Snapshots[id] = s
	}

	out.Checkpoint = in.Checkpoint
	out.State = SyncStateSynced

	engine := merge.NewEngine(in.Session)

	for _, remote := range in.Batch {
		var local *event.Snapshot

		if l, ok := in.Locals[remote.ExternalID]; ok {
			lc := l
			local = &lc
		}

		res, mErr := engine.Merge(local, remote, in.Now)
		if mErr != nil {
			if isEventScoped(mErr) {
				log.DebugPrint(in.Session.Debug,
					fmt.Sprintf("sync | skipping event %s: %s", remote.ExternalID, mErr),
					common.MaxDebugChars)

				out.Failures = append(out.Failures, EventFailure{ExternalID: remote.ExternalID, Err: mErr})

				continue
			}

			return out, fmt.Errorf("sync | event %s: %w", remote.ExternalID, mErr)
		}

		out.Snapshots[remote.ExternalID] = res.Snapshot

		if res.State == merge.StateConflict {
			out.Conflicts = append(out.Conflicts, remote.ExternalID)
			out.State = SyncStateConflict
		}

		if res.Snapshot.Local.Dirty {
			out.Pushes = append(out.Pushes, Push{
				Snapshot:          res.Snapshot,
				ChangedRecipients: res.ChangedRecipients,
			})
		}
	}

	log.DebugPrint(in.Session.Debug,
		fmt.Sprintf("sync | merged %d deltas, %d pushes, %d conflicts, %d failures",
			len(in.Batch), len(out.Pushes), len(out.Conflicts), len(out.Failures)),
		common.MaxDebugChars)

	return out, nil
}

// isEventScoped reports whether an error is isolated to one event: a failed
// decrypt or unwrap, or a datagram outside the schema compatibility range.
func isEventScoped(err error) bool {
	var ce envelope.CryptoError
	if errors.As(err, &ce) {
		return true
	}

	var de envelope.DecodeError

	return errors.As(err, &de)
}
