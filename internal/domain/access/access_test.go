package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func privateEvent() Target {
	return Target{EventID: "E", OrganizerID: "O", Public: false, InvitedIDs: []string{"A"}}
}

func TestCanViewPrivateEvent(t *testing.T) {
	target := privateEvent()

	tests := []struct {
		name     string
		identity Identity
		want     bool
	}{
		{name: "organizer", identity: Authenticated("O", false), want: true},
		{name: "invited", identity: Authenticated("A", false), want: true},
		{name: "stranger", identity: Authenticated("B", false), want: false},
		{name: "anonymous", identity: Anonymous(), want: false},
		{name: "staff", identity: Authenticated("S", true), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, CanView(tt.identity, target))
		})
	}
}

func TestCanViewPublicEvent(t *testing.T) {
	target := Target{EventID: "E", OrganizerID: "O", Public: true}

	require.True(t, CanView(Anonymous(), target))
	require.True(t, CanView(Authenticated("B", false), target))
}

func TestAuthenticatedBlankIsAnonymous(t *testing.T) {
	identity := Authenticated("   ", true)

	require.True(t, identity.IsAnonymous())
	require.False(t, identity.IsStaff())
	require.False(t, CanView(identity, privateEvent()))
}

func TestFilterVisibleDedupesAndKeepsOrder(t *testing.T) {
	public := Target{EventID: "P", OrganizerID: "X", Public: true}
	own := Target{EventID: "M", OrganizerID: "A"}
	invited := privateEvent()
	hidden := Target{EventID: "H", OrganizerID: "Z"}
	// A public event the caller also organizes matches several clauses.
	ownPublic := Target{EventID: "OP", OrganizerID: "A", Public: true, InvitedIDs: []string{"A"}}

	items := []Target{public, own, hidden, invited, ownPublic, invited, public}
	identity := Authenticated("A", false)

	got := FilterVisible(identity, items, func(t Target) Target { return t })

	require.Equal(t, []string{"P", "M", "E", "OP"}, eventIDs(got))
}

func TestFilterVisibleAnonymousOnlyPublic(t *testing.T) {
	items := []Target{
		{EventID: "P", Public: true},
		privateEvent(),
	}

	got := FilterVisible(Anonymous(), items, func(t Target) Target { return t })

	require.Equal(t, []string{"P"}, eventIDs(got))
}

func TestFilterVisibleStaffSeesAll(t *testing.T) {
	items := []Target{
		{EventID: "P", Public: true},
		privateEvent(),
		{EventID: "H", OrganizerID: "Z"},
		{EventID: "H", OrganizerID: "Z"},
	}

	got := FilterVisible(Authenticated("S", true), items, func(t Target) Target { return t })

	require.Equal(t, []string{"P", "E", "H"}, eventIDs(got))
}

func TestCanMutateEvent(t *testing.T) {
	target := privateEvent()

	require.True(t, CanMutateEvent(Authenticated("O", false), target))
	require.False(t, CanMutateEvent(Authenticated("A", false), target))
	require.False(t, CanMutateEvent(Authenticated("S", true), target))
	require.False(t, CanMutateEvent(Anonymous(), target))
}

func TestCanMutateOwnerOnly(t *testing.T) {
	require.True(t, CanMutate(Authenticated("U1", false), "U1"))
	require.False(t, CanMutate(Authenticated("U2", false), "U1"))
	require.False(t, CanMutate(Authenticated("S", true), "U1"))
	require.False(t, CanMutate(Anonymous(), "U1"))
	require.False(t, CanMutate(Anonymous(), ""))
}

func TestIdentityContextRoundTrip(t *testing.T) {
	ctx := WithIdentity(context.Background(), Authenticated("U1", true))

	identity := FromContext(ctx)

	require.Equal(t, "U1", identity.UserID())
	require.True(t, identity.IsStaff())
	require.Equal(t, "staff:U1", identity.String())
	require.True(t, FromContext(context.Background()).IsAnonymous())
}

func eventIDs(targets []Target) []string {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.EventID)
	}
	return out
}
