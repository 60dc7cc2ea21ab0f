// Package internal holds helpers private to goGuard.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - rate: Redis-backed per-IP budget for rejected signed links
//
// # What this package must NOT do
//
//   - Export types that appear in the public goGuard API except through aliases.
//   - Be imported by any package outside the goGuard module.
package internal
