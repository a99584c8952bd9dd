package identity

import "testing"

func TestReady(t *testing.T) {
	cases := []struct {
		name string
		id   Identity
		want bool
	}{
		{"signed in", SignedIn("u1"), true},
		{"signed out", SignedOut(), false},
		{"loading", Identity{ID: "u1", IsSignedIn: true}, false},
		{"signed in without id", Identity{IsLoaded: true, IsSignedIn: true}, false},
	}
	for _, tc := range cases {
		if got := tc.id.Ready(); got != tc.want {
			t.Errorf("%s: Ready() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
