// Package dispatch sends newsletter issues to confirmed subscribers.
//
// A dispatch walks the confirmed subscribers one at a time, sending each a
// copy of the issue with their personal unsubscribe link. One recipient's
// failure is counted and logged, never fatal to the batch. The gap between
// sends is owned by a Pacer so the loop itself has no notion of time.
//
// Optionally a Locker keeps two processes from sending the same issue at
// once, and a Ledger remembers which issues already went out.
package dispatch
