// Package session turns the identity collaborator's answers into immutable
// Session values.
//
// # Fail-closed contract
//
// [Authenticator.Check] returns an authenticated [Session] only for a
// well-formed positive answer. The explicit "not logged in" answer is an
// expected outcome and is not logged as an error. Every other failure (network
// error, server error, malformed body, unknown role, timeout) also yields the
// anonymous session, tagged [OutcomeFailure] for diagnostics. Checks are never
// retried inside a call; the next navigation or poll issues a fresh one.
//
// # Ordering
//
// [Sequencer] lets the owner of concurrent checks discard a superseded result
// that resolves after a newer one.
//
// # What this package must NOT do
//
//   - Cache sessions across checks.
//   - Import the guard or route packages.
package session
