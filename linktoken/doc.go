// Package linktoken issues and verifies expiring signed-link tokens.
//
// A link token is a compact JWT whose subject is the record id it unlocks and
// whose scope names the record type. It is an alternative to the plain HMAC
// signature of package signedlink for deployments that want expiry embedded in
// the link itself; both satisfy the same Verify(subjectID, signature) contract.
package linktoken
