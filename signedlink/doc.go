// Package signedlink issues and verifies subject-scoped capability links.
//
// A signed link carries a subject id and a keyed MAC of that id:
//
//	/public/record?id=<subjectId>&sig=<signature>
//
// # Verification contract
//
// [Verifier.Verify] is pure: no I/O, no observable side effects, and identical
// inputs always yield the identical boolean. Every failure mode (empty input,
// malformed encoding, missing secret) is reported as false, never as an error.
//
// # Revocation
//
// Links carry no expiry. A link stops working when the secret that signed it is
// rotated out of the verifier, or when its subject is added to a [Revocations]
// list. Revocation lookups are a separate step performed by the guard after
// Verify returns true.
//
// # What this package must NOT do
//
//   - Leak whether a subject exists through distinct failure results.
//   - Compare signatures with anything other than a constant-time comparison.
package signedlink
