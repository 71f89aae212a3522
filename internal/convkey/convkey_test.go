package convkey

import (
	"errors"
	"testing"
)

func TestDeriveSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"bob", "alice"},
		{"u1", "u10"},
		{"Z", "a"},
		{"same", "same"},
	}
	for _, p := range pairs {
		if Derive(p[0], p[1]) != Derive(p[1], p[0]) {
			t.Errorf("Derive(%q,%q) != Derive(%q,%q)", p[0], p[1], p[1], p[0])
		}
	}
}

func TestDeriveSmallerFirst(t *testing.T) {
	if got := Derive("bob", "alice"); got != "alice_bob" {
		t.Errorf("Derive(bob, alice) = %q, want alice_bob", got)
	}
}

// TestDeriveCollisionFree covers the case plain concatenation gets wrong:
// "ab"+"c" and "a"+"bc" both read "abc".
func TestDeriveCollisionFree(t *testing.T) {
	tests := []struct {
		a, b, c string
	}{
		{"a", "bc", "b"},
		{"ab", "c", "abc"},
		{"x", "y", "z"},
		{"user-1", "user-12", "user-2"},
	}
	for _, tt := range tests {
		if Derive(tt.a, tt.b) == Derive(tt.a, tt.c) {
			t.Errorf("Derive(%q,%q) == Derive(%q,%q)", tt.a, tt.b, tt.a, tt.c)
		}
	}
	if Derive("ab", "c") == Derive("a", "bc") {
		t.Error("split point must be preserved")
	}
}

func TestPeer(t *testing.T) {
	key := Derive("alice", "bob")

	tests := []struct {
		name    string
		self    string
		want    string
		wantErr bool
	}{
		{"first participant", "alice", "bob", false},
		{"second participant", "bob", "alice", false},
		{"stranger", "carol", "", true},
		{"substring of a participant", "ali", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Peer(key, tt.self)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Peer(%q, %q) error = %v, wantErr %v", key, tt.self, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Peer(%q, %q) = %q, want %q", key, tt.self, got, tt.want)
			}
		})
	}
}

func TestParticipantsMalformed(t *testing.T) {
	for _, key := range []string{"", "nosep", "_b", "a_", "a_b_c"} {
		if _, _, err := Participants(key); !errors.Is(err, ErrInvalid) {
			t.Errorf("Participants(%q) err = %v, want ErrInvalid", key, err)
		}
	}
}

func TestValidUID(t *testing.T) {
	tests := []struct {
		uid  string
		want bool
	}{
		{"abc123", true},
		{"Xy7-Q", true},
		{"", false},
		{"with_underscore", false},
		{"with space", false},
		{"dot.ted", false},
	}
	for _, tt := range tests {
		if got := ValidUID(tt.uid); got != tt.want {
			t.Errorf("ValidUID(%q) = %v, want %v", tt.uid, got, tt.want)
		}
	}
}
