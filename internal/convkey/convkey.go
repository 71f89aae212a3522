// Package convkey derives the canonical identifier shared by both
// participants of a two-party conversation.
package convkey

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Separator joins the two uids of a key. It is outside the uid alphabet.
const Separator = "_"

// ErrInvalid is wrapped by every error returned for a malformed key or a
// uid that is not a participant.
var ErrInvalid = errors.New("invalid uid")

var uidRegexp = regexp.MustCompile(`^[A-Za-z0-9-]{1,128}$`)

// ValidUID reports whether uid belongs to the accepted uid namespace.
func ValidUID(uid string) bool {
	return uidRegexp.MatchString(uid)
}

// Derive returns the conversation key for the unordered pair {a, b}.
// The lexicographically smaller uid comes first, so Derive(a, b) == Derive(b, a).
func Derive(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + Separator + b
}

// Participants splits a key produced by Derive back into its two uids.
func Participants(key string) (string, string, error) {
	a, b, ok := strings.Cut(key, Separator)
	if !ok || !ValidUID(a) || !ValidUID(b) {
		return "", "", fmt.Errorf("malformed conversation key %q: %w", key, ErrInvalid)
	}
	return a, b, nil
}

// Peer returns the participant of key that is not self.
func Peer(key, self string) (string, error) {
	a, b, err := Participants(key)
	if err != nil {
		return "", err
	}
	switch self {
	case a:
		return b, nil
	case b:
		return a, nil
	}
	return "", fmt.Errorf("uid %q is not a participant of %q: %w", self, key, ErrInvalid)
}
