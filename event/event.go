// Package event defines the durable snapshot of a calendar event: plain
// fields carrying their own ledger, the two encrypted content groups, and
// local-only metadata that never participates in encryption or merge.
package event

import (
	"github.com/hushcal/hushcal/crypto"
	"github.com/hushcal/hushcal/ledger"
)

// PlainContent holds the fields that need no encryption envelope but still
// participate in conflict resolution through the plain content ledger.
// Timestamps are unix milliseconds.
type PlainContent struct {
	StartsAt       int64  `json:"starts_at"`
	EndsAt         int64  `json:"ends_at"`
	Sequence       int    `json:"sequence"`
	RecurrenceRule string `json:"recurrence_rule"`
	Deleted        bool   `json:"deleted"`
}

// Group is one encrypted content group at rest: the encrypted blob, the
// identity of its content key, the wrapped copies of that key, and the
// group's field ledger. The plaintext content key is never stored here.
type Group struct {
	KeyID       string              `json:"key_id"`
	Blob        string              `json:"blob"`
	WrappedKeys []crypto.WrappedKey `json:"wrapped_keys"`
	Ledger      ledger.Ledger       `json:"ledger"`
}

// Empty reports whether the group has never been encrypted.
func (g Group) Empty() bool {
	return g.Blob == "" && g.KeyID == ""
}

// LocalMeta is device-local state: it is never encrypted, never merged and
// never pushed.
type LocalMeta struct {
	SyncedAt     int64 `json:"synced_at"`
	MailDedupeAt int64 `json:"mail_dedupe_at"`
	Dirty        bool  `json:"dirty"`
}

// Snapshot is the full locally cached state of one event. Snapshots are never
// deleted, only tombstoned through the Deleted plain field.
type Snapshot struct {
	ExternalID    string `json:"external_id"`
	ParentEventID string `json:"parent_event_id,omitempty"` // recurrence series identity

	Plain       PlainContent  `json:"plain"`
	PlainLedger ledger.Ledger `json:"plain_ledger"`

	Body  Group `json:"body"`
	Prefs Group `json:"prefs"`

	Local LocalMeta `json:"-"`
}
