package access

// CanMutate reports whether identity may update or delete an owner-style
// resource (RSVP, review) created by ownerID. Staff gets no bypass here: read
// access for staff comes from CanView, never from mutation rights.
func CanMutate(identity Identity, ownerID string) bool {
	if identity.IsAnonymous() || ownerID == "" {
		return false
	}
	return identity.UserID() == ownerID
}

// CanMutateEvent reports whether identity may change the event's fields or its
// invited set. Only the organizer may.
func CanMutateEvent(identity Identity, target Target) bool {
	return CanMutate(identity, target.OrganizerID)
}
