// Package middleware adapts goGuard.Engine to net/http for server-rendered
// pages.
//
// # Guards
//
//   - [Guard] evaluates each request and either serves it with a [goGuard.Grant]
//     in the context or answers with a 303 redirect.
//   - [ReturnPath] hands a login handler the page remembered before the
//     login redirect, once.
//
// The visitor's cookies are forwarded to the collaborators through
// client.WithCookies, so a client.Client built once serves every request.
//
// # What this package must NOT do
//
//   - Decide access itself. Every decision comes from Engine.Evaluate.
//   - Redirect anywhere but the decision target or a local return path.
package middleware
