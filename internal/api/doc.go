// Package api exposes the newsletter over HTTP: the signup form endpoint,
// the confirmation and unsubscribe links embedded in emails, an RSS feed of
// published issues, health probes, and admin endpoints for dispatching an
// issue and reading subscriber stats.
package api
