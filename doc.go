// Package goGuard provides an access-control and session-lifecycle engine for
// role-gated web applications with time-limited subscriptions.
//
// For every navigation the engine classifies the target route, asks the
// identity collaborator who the visitor is, verifies signed record links,
// consults the visitor's subscription and produces exactly one [Decision]:
// Allow, RedirectTo or Pending.
//
// # Entry points
//
//   - [Engine.Evaluate] runs one navigation to completion. It is what the
//     HTTP middleware uses; collaborator failures become denials.
//   - [Engine.NewNavigator] returns a long-lived [Navigator] for one visitor.
//     It drives a [Presenter] through the loading, access-denied and
//     redirecting screens and keeps a subscription monitor running for the
//     authenticated session.
//   - [Decide] is the pure decision table both entry points share.
//
// # Architecture boundaries
//
// goGuard is the public surface. Route classification lives in route/, session
// checks in session/, link signatures in signedlink/ and linktoken/, and the
// subscription countdown in subscription/. Audit dispatch and the Redis link
// limiter live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Grant a non-public page without a verified link or an authenticated session.
//   - Let a superseded session check overwrite a newer one.
//   - Invoke the logout collaborator more than once per session lifetime.
package goGuard
