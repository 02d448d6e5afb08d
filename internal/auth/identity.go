// Package auth resolves bearer credentials into client identities. The
// resolver never rejects a request itself: a missing, malformed or expired
// token degrades to the anonymous identity and tier-gated routes reject
// downstream.
package auth

// Tier classifies a client for rate-limit and authorization policy.
type Tier string

const (
	TierAnonymous Tier = "anonymous"
	TierUser      Tier = "user"
	TierAdmin     Tier = "admin"
)

// tier ranks for ordering comparisons, anonymous lowest.
var tierRank = map[Tier]int{
	TierAnonymous: 0,
	TierUser:      1,
	TierAdmin:     2,
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// AtLeast reports whether t grants at least the privileges of other.
func (t Tier) AtLeast(other Tier) bool {
	return tierRank[t] >= tierRank[other]
}

// Identity is the per-request client identity derived from a credential.
// It is never persisted.
type Identity struct {
	ClientID    string
	Tier        Tier
	Permissions map[string]struct{}
}

// Anonymous returns the identity used when no valid credential is presented.
func Anonymous() Identity {
	return Identity{
		ClientID:    "anonymous",
		Tier:        TierAnonymous,
		Permissions: map[string]struct{}{},
	}
}

// HasPermission reports whether the identity carries the named permission.
func (id Identity) HasPermission(name string) bool {
	_, ok := id.Permissions[name]
	return ok
}
