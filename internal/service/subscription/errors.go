package subscription

import (
	"fmt"

	"github.com/ignite/newsletter/internal/domain"
)

// Sentinel errors carried in Result.Err so the HTTP layer can pick a status.
var (
	ErrAlreadySubscribed   = fmt.Errorf("email already subscribed: %w", domain.ErrConflict)
	ErrConfirmationPending = fmt.Errorf("confirmation already sent: %w", domain.ErrConflict)
	ErrInvalidToken        = fmt.Errorf("unknown confirmation token: %w", domain.ErrNotFound)
	ErrSubscriberNotFound  = fmt.Errorf("subscriber: %w", domain.ErrNotFound)
	ErrMissingIdentity     = &domain.ValidationError{Field: "email", Message: "email or token is required"}
)
