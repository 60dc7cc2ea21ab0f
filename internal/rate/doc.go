// Package rate provides the Redis-backed fixed-window counter that throttles
// signed-link guessing per client IP.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Only rejected
// attempts are counted; a client at its budget is refused before the
// signature is even checked. Key layout: <prefix>:link:<ip>.
//
// # What this package must NOT do
//
//   - Decide what a refusal means for the visitor (the Engine maps it to not-found).
//   - Be imported outside the goGuard module.
package rate
