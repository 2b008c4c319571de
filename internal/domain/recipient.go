package domain

// Recipient is one addressee of a newsletter send with their personal
// unsubscribe link.
type Recipient struct {
	Email          string
	UnsubscribeURL string
}
