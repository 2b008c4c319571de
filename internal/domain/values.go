package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
)

const (
	maxEmailLength = 255
	tokenBytes     = 32

	// TokenLength is the length of an encoded subscriber token.
	TokenLength = tokenBytes * 2
)

// NormalizeEmail trims and lower-cases raw, then validates it as a bare
// address (no display name, domain must contain a dot).
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", &ValidationError{Field: "email", Message: "email is required"}
	}
	if len(email) > maxEmailLength {
		return "", &ValidationError{Field: "email", Message: "email is too long"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return "", &ValidationError{Field: "email", Message: "invalid email address"}
	}
	at := strings.LastIndexByte(email, '@')
	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", &ValidationError{Field: "email", Message: "invalid email address"}
	}
	return email, nil
}

// NewToken returns a fresh hex-encoded token from crypto/rand.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// IsWellFormedToken reports whether s has the shape NewToken produces.
// Lookups skip the store entirely for malformed tokens.
func IsWellFormedToken(s string) bool {
	if len(s) != TokenLength {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// NewID returns a fresh subscriber identifier.
func NewID() string {
	return uuid.NewString()
}
