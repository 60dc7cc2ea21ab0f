// Package subscription tracks the entitlement of one authenticated session and
// ends the session when it lapses.
//
// # State machine
//
//	Unknown -> Loading -> Known(active, remaining)
//	                   \-> Expired
//	Known   -> Expired   (inactive record, failed fetch, or countdown <= 0)
//
// A [Monitor] is owned by exactly one session. It runs two independent
// periodic tasks while Known: a short countdown tick and a coarse re-poll of
// the subscription record. Both are cancelled together by [Monitor.Stop], and
// no callback fires after Stop returns.
//
// On expiry the monitor calls logout at most once for its lifetime, then
// reports the Expired state. A new Monitor (new session) starts with a fresh
// latch. Exempt roles (developer, student) load once and never expire.
package subscription
