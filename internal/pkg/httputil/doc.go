// Package httputil holds the response helpers shared by the HTTP handlers:
// JSON envelopes, error-to-status mapping and post-action redirects.
package httputil
