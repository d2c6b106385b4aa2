package attendee

import (
	"fmt"

	"github.com/hushcal/hushcal/common"
	"github.com/hushcal/hushcal/directory"
	"github.com/hushcal/hushcal/log"
)

// Resolve classifies an unresolved attendee by directory lookup. Internal
// users become InternalPublicKey; everyone else, including any lookup
// failure, degrades to External, since an email-only invite is always valid.
func Resolve(u Unresolved, d directory.Directory, debug bool) Attendee {
	r, err := d.Lookup(u.Email)
	if err != nil {
		log.DebugPrint(debug, fmt.Sprintf("resolve | lookup failed for %s, degrading to external: %s", u.Email, err), common.MaxDebugChars)

		r = directory.Result{Class: directory.ClassExternal}
	}

	if r.Class == directory.ClassInternal && r.CalendarID != "" && r.PublicKey != "" {
		b := u.Base
		b.IdentityKey = r.CalendarID

		return InternalPublicKey{
			Base:        b,
			CalendarID:  r.CalendarID,
			PublicKey:   r.PublicKey,
			PublicKeyID: r.PublicKeyID,
		}
	}

	b := u.Base
	b.IdentityKey = u.Email

	return External{Base: b}
}

// ResolveList resolves any unresolved entries in place order, passing through
// entries already classified.
func ResolveList(in List, d directory.Directory, debug bool) List {
	out := make(List, 0, len(in))

	for _, a := range in {
		if u, ok := a.(Unresolved); ok {
			out = append(out, Resolve(u, d, debug))
			continue
		}

		out = append(out, a)
	}

	return out
}
