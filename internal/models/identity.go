package models

import (
	"strings"
	"unicode/utf8"
)

// IdentityKind distinguishes how a requester was identified.
type IdentityKind string

const (
	// IdentityAuthenticated is an identity asserted by the hosting platform
	// through a trusted request header.
	IdentityAuthenticated IdentityKind = "authenticated"
	// IdentityAnonymous is the durable identifier kept in the client cookie.
	IdentityAnonymous IdentityKind = "anonymous"
)

// MaxIdentityLength caps identity values before they are stored.
const MaxIdentityLength = 64

// Identity attributes a record to exactly one requester.
type Identity struct {
	Kind  IdentityKind `json:"kind"`
	Value string       `json:"value"`
}

// IsZero reports whether no identity was resolved.
func (i Identity) IsZero() bool {
	return i.Value == ""
}

// ResolveIdentity picks the identity a request is attributed to.
// A non-empty authenticated value always wins over the anonymous one.
func ResolveIdentity(authenticated, anonymous string) Identity {
	if v := Truncate(strings.TrimSpace(authenticated), MaxIdentityLength); v != "" {
		return Identity{Kind: IdentityAuthenticated, Value: v}
	}
	if v := Truncate(strings.TrimSpace(anonymous), MaxIdentityLength); v != "" {
		return Identity{Kind: IdentityAnonymous, Value: v}
	}
	return Identity{}
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
