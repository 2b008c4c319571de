// Package domain defines the core business types for the newsletter.
//
// Subscriber and Issue are entities: they own their invariants and expose
// behavior (state transitions, derived accessors) but know nothing about
// databases, HTTP, or email providers. They are the shared language between
// handlers, services, and repositories.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - Time is always passed in; nothing here calls time.Now() on its own
//   - Lifecycle legality lives in Transition and nowhere else
//   - Constants and enums belong here
package domain
