// Package ledger implements the per-field last-writer-wins ledger carried
// alongside every mutable content group. A ledger maps field names to the
// client-observed time of their last update; merge decisions compare the two
// sides' entries per field.
package ledger

// Field names a single tracked field within a content group.
type Field string

// Plain content fields. These never travel inside an encrypted envelope.
const (
	FieldStartsAt       Field = "starts_at"
	FieldEndsAt         Field = "ends_at"
	FieldSequence       Field = "sequence"
	FieldRecurrenceRule Field = "recurrence_rule"
	FieldDeleted        Field = "deleted"
)

// Event body fields.
const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldLocation    Field = "location"
	FieldAllDay      Field = "is_all_day"
	FieldConference  Field = "conference"
)

// Preferences fields.
const (
	FieldColor Field = "color"
)

// PlainFields lists the fields tracked by the plain content ledger.
func PlainFields() []Field {
	return []Field{FieldStartsAt, FieldEndsAt, FieldSequence, FieldRecurrenceRule, FieldDeleted}
}

// BodyFields lists the fields tracked by the event body ledger.
func BodyFields() []Field {
	return []Field{FieldTitle, FieldDescription, FieldLocation, FieldAllDay, FieldConference}
}

// PrefsFields lists the fields tracked by the preferences ledger.
func PrefsFields() []Field {
	return []Field{FieldColor}
}

// Winner identifies which side of a merge holds the surviving value for a field.
type Winner int

const (
	WinnerLocal Winner = iota
	WinnerRemote
	WinnerTie
)

func (w Winner) String() string {
	switch w {
	case WinnerRemote:
		return "remote"
	case WinnerTie:
		return "tie"
	default:
		return "local"
	}
}

// Ledger maps a field name to the time its value was last updated, in unix
// milliseconds. A field absent from the ledger has never been explicitly
// tracked and is treated as timestamp 0, so it loses to any tracked remote
// write.
type Ledger map[Field]int64

// Compare determines the winning side for a single field. The remote value
// wins only when its entry is strictly greater than the local one; equal
// timestamps resolve to local for stability.
func Compare(f Field, local, remote Ledger) Winner {
	lt := local[f]
	rt := remote[f]

	switch {
	case rt > lt:
		return WinnerRemote
	case rt < lt:
		return WinnerLocal
	default:
		return WinnerTie
	}
}

// Merge combines two ledgers, keeping the greater timestamp per field. It is
// commutative and idempotent: Merge(a, b) == Merge(b, a) and Merge(a, a) == a.
func Merge(a, b Ledger) Ledger {
	merged := make(Ledger, len(a)+len(b))

	for f, ts := range a {
		merged[f] = ts
	}

	for f, ts := range b {
		if ts > merged[f] {
			merged[f] = ts
		}
	}

	return merged
}

// Clone returns an independent copy of the ledger.
func Clone(l Ledger) Ledger {
	c := make(Ledger, len(l))

	for f, ts := range l {
		c[f] = ts
	}

	return c
}

// Touch records an update to a field, never moving its entry backwards. The
// monotonic guarantee holds per replica provided merges of the same event are
// serialized by the caller.
func (l Ledger) Touch(f Field, ts int64) {
	if ts > l[f] {
		l[f] = ts
	}
}

// Equal reports whether two ledgers track identical entries.
func Equal(a, b Ledger) bool {
	if len(a) != len(b) {
		return false
	}

	for f, ts := range a {
		if b[f] != ts {
			return false
		}
	}

	return true
}
