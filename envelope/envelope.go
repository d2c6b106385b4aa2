// Package envelope serializes content groups to versioned wire datagrams and
// applies the encryption envelope: the serialized bytes are encrypted under a
// symmetric content key, and the content key is wrapped per recipient with
// asymmetric keys. Event body and preferences are independent groups with
// independent keys, so a preference-only change never forces re-wrapping the
// body key for every recipient.
package envelope

import (
	"encoding/json"

	"github.com/hushcal/hushcal/attendee"
)

// Kind identifies a content group wire schema.
type Kind string

const (
	KindEventBody   Kind = "event_body"
	KindPreferences Kind = "preferences"
)

// ProtocolVersion prefixes every encrypted blob.
const ProtocolVersion = "001"

// Wire schema versions and per-group compatibility ranges. Decode accepts any
// schema within [min, max]; unknown members inside an accepted schema are
// preserved through re-encode so newer clients' fields survive older peers.
const (
	EventBodySchema    = 2
	EventBodyMinSchema = 1
	EventBodyMaxSchema = 3

	PreferencesSchema    = 1
	PreferencesMinSchema = 1
	PreferencesMaxSchema = 2
)

// Conference describes the conferencing details attached to an event.
type Conference struct {
	Provider string `json:"provider"`
	URI      string `json:"uri"`
}

// EventBody is the shared, encrypted portion of an event. Extra carries wire
// members this codec version does not understand; they round-trip losslessly.
type EventBody struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Location    string        `json:"location"`
	AllDay      bool          `json:"is_all_day"`
	Conference  Conference    `json:"conference"`
	Attendees   attendee.List `json:"attendees"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Preferences is the per-user encrypted portion of an event, encrypted under
// its own content key since it is usually changed unilaterally.
type Preferences struct {
	Color string `json:"color"`

	Extra map[string]json.RawMessage `json:"-"`
}
