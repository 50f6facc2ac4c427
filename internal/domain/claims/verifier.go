// Package claims implements the optional checksum-tag verifier.
//
// The tag is deliberately weak (an additive checksum, not a MAC): it
// exists to catch accidental header corruption from a
// misconfigured sidecar, not to authenticate a hostile caller. Verification
// still runs in constant time so a timing side channel doesn't make the
// weak tag weaker than designed.
package claims

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// Compute derives the 8-hex-digit tag for (secret, tenant, principal,
// resource, action): lowercase hex of the wrapping sum, mod 2^32, of every
// byte in "secret|tenant|principal|resource|action".
func Compute(secret, tenant, principal, resource, action string) string {
	payload := secret + "|" + tenant + "|" + principal + "|" + resource + "|" + action

	var sum uint32
	for i := 0; i < len(payload); i++ {
		sum += uint32(payload[i])
	}

	return fmt.Sprintf("%08x", sum)
}

// Verify reports whether tag is the correct checksum for the given
// request fields under secret, comparing in constant time.
func Verify(secret, tenant, principal, resource, action, tag string) bool {
	want := Compute(secret, tenant, principal, resource, action)

	wantBytes, err := hex.DecodeString(want)
	if err != nil {
		return false
	}
	gotBytes, err := hex.DecodeString(tag)
	if err != nil || len(gotBytes) != len(wantBytes) {
		return false
	}

	return subtle.ConstantTimeCompare(wantBytes, gotBytes) == 1
}
