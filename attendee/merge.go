package attendee

// MergeLists merges two attendee lists into one convergent result: a union by
// identity key where, for identities on both sides, the entry with the larger
// UpdatedAt survives. On an exact timestamp tie the non-deleted entry wins, so
// an explicit undelete is never silently dropped by a concurrent delete; if
// both sides agree on deletion state, local is kept for stability.
//
// Output order is stable: retained local entries keep local order, then
// remote-only entries are appended in remote order. The survivor keeps only
// its own key material; key material is never synthesized from the losing
// side.
func MergeLists(local, remote List) List {
	merged := make(List, 0, len(local)+len(remote))
	seen := make(map[string]struct{}, len(local)+len(remote))

	for _, la := range local {
		key := la.AttendeeBase().IdentityKey
		seen[key] = struct{}{}

		ra, ok := remote.Find(key)
		if !ok {
			merged = append(merged, la)
			continue
		}

		merged = append(merged, pick(la, ra))
	}

	for _, ra := range remote {
		key := ra.AttendeeBase().IdentityKey
		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}

		merged = append(merged, ra)
	}

	return merged
}

func pick(local, remote Attendee) Attendee {
	lb := local.AttendeeBase()
	rb := remote.AttendeeBase()

	switch {
	case rb.UpdatedAt > lb.UpdatedAt:
		return remote
	case rb.UpdatedAt < lb.UpdatedAt:
		return local
	case lb.Deleted && !rb.Deleted:
		// resurrection wins the tie
		return remote
	default:
		return local
	}
}
