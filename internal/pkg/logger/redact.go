package logger

import "strings"

// addressKeys are attribute keys whose whole value is a subscriber address.
// Any key containing "email" is treated the same way.
var addressKeys = map[string]bool{
	"to":         true,
	"subscriber": true,
	"recipient":  true,
}

func isAddressKey(key string) bool {
	return addressKeys[key] || strings.Contains(key, "email")
}

// RedactEmail masks a subscriber address for logging, keeping the domain
// and at most two leading characters of the mailbox. A "+tag" suffix is
// dropped since newsletter tags often identify the reader.
//
//	"john.doe+news@example.com" -> "jo***@example.com"
//	"ab@example.com"            -> "***@example.com"
//	"@example.com"              -> "***@example.com"
//	"not-an-email"              -> "***@***"
func RedactEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return "***@***"
	}
	mailbox, host := email[:at], email[at+1:]
	if host == "" {
		host = "***"
	}
	if plus := strings.IndexByte(mailbox, '+'); plus >= 0 {
		mailbox = mailbox[:plus]
	}
	if len(mailbox) > 2 {
		return mailbox[:2] + "***@" + host
	}
	return "***@" + host
}
