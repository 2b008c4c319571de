// Package links builds the public URLs embedded in outgoing email.
package links

import (
	"net/url"
	"strings"
)

// ConfirmURL is the link a pending subscriber follows to confirm.
func ConfirmURL(baseURL, token string) string {
	return trim(baseURL) + "/api/confirm/" + url.PathEscape(token)
}

// UnsubscribeURL is the one-click unsubscribe link for a subscriber.
func UnsubscribeURL(baseURL, email, token string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", token)
	return trim(baseURL) + "/api/unsubscribe?" + q.Encode()
}

// IssueURL is the web version of an issue.
func IssueURL(baseURL, slug string) string {
	return trim(baseURL) + "/newsletters/" + url.PathEscape(slug)
}

func trim(baseURL string) string {
	return strings.TrimRight(baseURL, "/")
}
