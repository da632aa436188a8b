package access

// Target is the snapshot of an event's visibility and ownership attributes.
type Target struct {
	EventID     string
	OrganizerID string
	Public      bool
	InvitedIDs  []string
}

// IsInvited reports whether userID is in the invited set.
func (t Target) IsInvited(userID string) bool {
	if userID == "" {
		return false
	}
	for _, invited := range t.InvitedIDs {
		if invited == userID {
			return true
		}
	}
	return false
}

// CanView decides whether identity may read the event and its derived
// resources (RSVPs, reviews). Rules are evaluated in order; the first match wins.
func CanView(identity Identity, target Target) bool {
	switch {
	case target.Public:
		return true
	case identity.IsAnonymous():
		return false
	case identity.IsStaff():
		return true
	case identity.UserID() == target.OrganizerID:
		return true
	case target.IsInvited(identity.UserID()):
		return true
	default:
		return false
	}
}

// FilterVisible returns the items identity may view, in their original order,
// with duplicates (same event id) removed. Staff identities see every item.
func FilterVisible[T any](identity Identity, items []T, target func(T) Target) []T {
	out := make([]T, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		t := target(item)
		if _, dup := seen[t.EventID]; dup {
			continue
		}
		if !identity.IsStaff() && !CanView(identity, t) {
			continue
		}
		seen[t.EventID] = struct{}{}
		out = append(out, item)
	}
	return out
}
