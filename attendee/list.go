package attendee

import (
	"encoding/json"
	"fmt"

	"github.com/hushcal/hushcal/crypto"
)

// Wire class discriminants.
const (
	classInternalPublicKey  = "internal_public_key"
	classInternalWrappedKey = "internal_wrapped_key"
	classExternal           = "external"
)

// List is an ordered attendee list. On the wire each entry carries a "class"
// discriminant alongside its fields; in memory the list holds the closed sum.
type List []Attendee

type wireAttendee struct {
	Class string `json:"class"`
	Base
	CalendarID  string             `json:"calendar_id,omitempty"`
	PublicKey   string             `json:"public_key,omitempty"`
	PublicKeyID string             `json:"public_key_id,omitempty"`
	WrappedKey  *crypto.WrappedKey `json:"wrapped_key,omitempty"`
}

func (l List) MarshalJSON() ([]byte, error) {
	was := make([]wireAttendee, 0, len(l))

	for _, a := range l {
		var wa wireAttendee

		switch v := a.(type) {
		case InternalPublicKey:
			wa = wireAttendee{
				Class:       classInternalPublicKey,
				Base:        v.Base,
				CalendarID:  v.CalendarID,
				PublicKey:   v.PublicKey,
				PublicKeyID: v.PublicKeyID,
			}
		case InternalWrappedKey:
			wk := v.WrappedKey
			wa = wireAttendee{
				Class:      classInternalWrappedKey,
				Base:       v.Base,
				CalendarID: v.CalendarID,
				WrappedKey: &wk,
			}
		case External:
			wa = wireAttendee{
				Class: classExternal,
				Base:  v.Base,
			}
		case Unresolved:
			return nil, fmt.Errorf("cannot marshal unresolved attendee: %s", v.IdentityKey)
		default:
			return nil, fmt.Errorf("cannot marshal unknown attendee class: %T", a)
		}

		was = append(was, wa)
	}

	return json.Marshal(was)
}

func (l *List) UnmarshalJSON(data []byte) error {
	var was []wireAttendee

	if err := json.Unmarshal(data, &was); err != nil {
		return err
	}

	out := make(List, 0, len(was))

	for _, wa := range was {
		switch wa.Class {
		case classInternalPublicKey:
			out = append(out, InternalPublicKey{
				Base:        wa.Base,
				CalendarID:  wa.CalendarID,
				PublicKey:   wa.PublicKey,
				PublicKeyID: wa.PublicKeyID,
			})
		case classInternalWrappedKey:
			a := InternalWrappedKey{
				Base:       wa.Base,
				CalendarID: wa.CalendarID,
			}
			if wa.WrappedKey != nil {
				a.WrappedKey = *wa.WrappedKey
			}

			out = append(out, a)
		case classExternal:
			out = append(out, External{Base: wa.Base})
		default:
			return fmt.Errorf("unknown attendee class: %q", wa.Class)
		}
	}

	*l = out

	return nil
}

// Find returns the attendee with the given identity key, if present.
func (l List) Find(identityKey string) (Attendee, bool) {
	for _, a := range l {
		if a.AttendeeBase().IdentityKey == identityKey {
			return a, true
		}
	}

	return nil, false
}

// Equal reports whether two lists hold the same attendees in the same order.
func (l List) Equal(other List) bool {
	if len(l) != len(other) {
		return false
	}

	a, err := json.Marshal(l)
	if err != nil {
		return false
	}

	b, err := json.Marshal(other)
	if err != nil {
		return false
	}

	return string(a) == string(b)
}
