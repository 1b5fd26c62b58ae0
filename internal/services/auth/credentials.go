package auth

import "strings"

// principalDomain is the synthetic mail domain appended to member numbers.
// Existing accounts were provisioned against it, so it cannot change without
// a migration.
const principalDomain = "temp.com"

// DeriveCredentials maps a member number onto its credential pair. Pure and
// deterministic: the same derivation runs at signup and at every later
// sign-in, so both must always agree. The secret equals the member number
// itself; a known weakness kept for compatibility with provisioned accounts
// (storage-side hardening lives in the backend adapter).
func DeriveCredentials(memberNumber string) Credentials {
	trimmed := strings.TrimSpace(memberNumber)
	return Credentials{
		Principal: strings.ToLower(trimmed) + "@" + principalDomain,
		Secret:    trimmed,
	}
}
