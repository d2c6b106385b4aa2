// Package attendee defines the closed set of attendee classes and the logic
// that classifies and merges them. An attendee is exactly one of: an internal
// user holding a long-term public key, an internal user holding a content key
// already wrapped for them, or an external invitee reachable only by email. A
// fourth, transient class carries raw input until directory lookup has run; it
// is never persisted.
package attendee

import "github.com/hushcal/hushcal/crypto"

type Status string

const (
	StatusNeedsAction Status = "needs_action"
	StatusAccepted    Status = "accepted"
	StatusDeclined    Status = "declined"
	StatusTentative   Status = "tentative"
)

type Permission string

const (
	PermissionSee    Permission = "see"
	PermissionInvite Permission = "invite"
	PermissionModify Permission = "modify"
)

// Base holds the fields shared by every attendee class. IdentityKey is unique
// within an attendee list: the calendar ID for internal users, the email
// address for external ones. Deleted is a tombstone; deleted attendees are
// retained so removal converges across replicas, with UpdatedAt breaking ties.
type Base struct {
	IdentityKey string     `json:"identity_key"`
	Status      Status     `json:"status"`
	Permission  Permission `json:"permission"`
	Optional    bool       `json:"optional"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Deleted     bool       `json:"deleted"`
	UpdatedAt   int64      `json:"updated_at"`
	IsNew       bool       `json:"is_new"`
}

// Attendee is a closed sum over the attendee classes. The unexported method
// keeps the set of implementations fixed to this package, so class switches
// can be exhaustive.
type Attendee interface {
	AttendeeBase() Base
	isAttendee()
}

// InternalPublicKey is an internal user for whom no content key has been
// wrapped yet; their long-term public key is used for the first wrap.
type InternalPublicKey struct {
	Base
	CalendarID  string `json:"calendar_id"`
	PublicKey   string `json:"public_key"`
	PublicKeyID string `json:"public_key_id"`
}

// InternalWrappedKey is an internal user already holding a wrapped content
// key, plus the identity of the key that wrapped it.
type InternalWrappedKey struct {
	Base
	CalendarID string            `json:"calendar_id"`
	WrappedKey crypto.WrappedKey `json:"wrapped_key"`
}

// External is a non-member attendee. Content reaches them only over plaintext
// channels; they never receive a wrapped content key.
type External struct {
	Base
}

// Unresolved carries attendee input before identity-class lookup has
// completed. It must be passed through Resolve before being persisted.
type Unresolved struct {
	Base
}

func (a InternalPublicKey) AttendeeBase() Base  { return a.Base }
func (a InternalWrappedKey) AttendeeBase() Base { return a.Base }
func (a External) AttendeeBase() Base           { return a.Base }
func (a Unresolved) AttendeeBase() Base         { return a.Base }

func (InternalPublicKey) isAttendee()  {}
func (InternalWrappedKey) isAttendee() {}
func (External) isAttendee()           {}
func (Unresolved) isAttendee()         {}
