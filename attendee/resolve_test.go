package attendee

import (
	"fmt"
	"testing"

	"github.com/hushcal/hushcal/directory"
	"github.com/stretchr/testify/require"
)

type failingDirectory struct{}

func (failingDirectory) Lookup(string) (directory.Result, error) {
	return directory.Result{}, fmt.Errorf("directory unavailable")
}

func TestResolveInternal(t *testing.T) {
	t.Parallel()

	d := directory.Static{
		"alice@example.com": {
			Class:       directory.ClassInternal,
			CalendarID:  "cal-alice",
			PublicKey:   "bb22",
			PublicKeyID: "cal-alice-key",
		},
	}

	u := Unresolved{Base: Base{Email: "alice@example.com", Status: StatusNeedsAction}}

	resolved := Resolve(u, d, false)

	internal, ok := resolved.(InternalPublicKey)
	require.True(t, ok)
	require.Equal(t, "cal-alice", internal.IdentityKey)
	require.Equal(t, "cal-alice", internal.CalendarID)
	require.Equal(t, "bb22", internal.PublicKey)
}

func TestResolveUnknownAddressDegradesToExternal(t *testing.T) {
	t.Parallel()

	d := directory.Static{}

	u := Unresolved{Base: Base{Email: "stranger@example.com"}}

	resolved := Resolve(u, d, false)

	ext, ok := resolved.(External)
	require.True(t, ok)
	require.Equal(t, "stranger@example.com", ext.IdentityKey)
}

func TestResolveLookupFailureDegradesToExternal(t *testing.T) {
	t.Parallel()

	u := Unresolved{Base: Base{Email: "alice@example.com"}}

	resolved := Resolve(u, failingDirectory{}, false)

	ext, ok := resolved.(External)
	require.True(t, ok)
	require.Equal(t, "alice@example.com", ext.IdentityKey)
}

func TestResolveListPassesThroughClassified(t *testing.T) {
	t.Parallel()

	d := directory.Static{}

	in := List{
		internalWithPublicKey("cal-a", false, 1),
		Unresolved{Base: Base{Email: "new@example.com"}},
	}

	out := ResolveList(in, d, false)

	require.Len(t, out, 2)
	require.IsType(t, InternalPublicKey{}, out[0])
	require.IsType(t, External{}, out[1])
}
