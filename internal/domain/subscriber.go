package domain

import "time"

// SubscriberStatus enumerates the states a subscriber can be in.
type SubscriberStatus string

const (
	StatusPending      SubscriberStatus = "pending_confirmation"
	StatusConfirmed    SubscriberStatus = "confirmed"
	StatusUnsubscribed SubscriberStatus = "unsubscribed"
)

// Valid reports whether s is one of the known statuses.
func (s SubscriberStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusUnsubscribed:
		return true
	}
	return false
}

// Event is something that moves a subscriber through its lifecycle.
type Event string

const (
	EventConfirm     Event = "confirm"
	EventUnsubscribe Event = "unsubscribe"
)

// Lifecycle is the mutable part of a subscriber: its status and the
// timestamps that must agree with it.
type Lifecycle struct {
	Status         SubscriberStatus
	ConfirmedAt    *time.Time
	UnsubscribedAt *time.Time
}

// Transition applies event to l at time at and returns the resulting
// lifecycle. l itself is never modified. It is the single place where
// lifecycle legality is decided:
//
//	pending_confirmation --confirm-->     confirmed
//	pending_confirmation --unsubscribe--> unsubscribed
//	confirmed            --unsubscribe--> unsubscribed
//
// Everything else is an *InvalidStateError.
func Transition(l Lifecycle, event Event, at time.Time) (Lifecycle, error) {
	next := l
	switch {
	case event == EventConfirm && l.Status == StatusPending:
		next.Status = StatusConfirmed
		next.ConfirmedAt = timePtr(at)
	case event == EventUnsubscribe && (l.Status == StatusPending || l.Status == StatusConfirmed):
		next.Status = StatusUnsubscribed
		next.UnsubscribedAt = timePtr(at)
	default:
		return l, &InvalidStateError{From: l.Status, Event: event}
	}
	return next, nil
}

// Subscriber is one email address's relationship with the newsletter.
// Identity (id, email, token, subscribedAt) is fixed at creation; only the
// lifecycle changes, and only through Confirm and Unsubscribe.
type Subscriber struct {
	id           string
	email        string
	token        string
	subscribedAt time.Time
	lifecycle    Lifecycle
}

// NewSubscriber creates a pending subscriber with a fresh id and token.
func NewSubscriber(email string, now time.Time) (*Subscriber, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	token, err := NewToken()
	if err != nil {
		return nil, err
	}
	return &Subscriber{
		id:           NewID(),
		email:        normalized,
		token:        token,
		subscribedAt: now.UTC(),
		lifecycle:    Lifecycle{Status: StatusPending},
	}, nil
}

func (s *Subscriber) ID() string { return s.id }
func (s *Subscriber) Email() string { return s.email }
func (s *Subscriber) Token() string { return s.token }
func (s *Subscriber) Status() SubscriberStatus { return s.lifecycle.Status }
func (s *Subscriber) SubscribedAt() time.Time { return s.subscribedAt }
func (s *Subscriber) ConfirmedAt() *time.Time { return copyTime(s.lifecycle.ConfirmedAt) }
func (s *Subscriber) UnsubscribedAt() *time.Time { return copyTime(s.lifecycle.UnsubscribedAt) }

// Confirm moves a pending subscriber to confirmed.
func (s *Subscriber) Confirm(now time.Time) error {
	return s.apply(EventConfirm, now)
}

// Unsubscribe moves a pending or confirmed subscriber to unsubscribed.
func (s *Subscriber) Unsubscribe(now time.Time) error {
	return s.apply(EventUnsubscribe, now)
}

func (s *Subscriber) apply(event Event, now time.Time) error {
	next, err := Transition(s.lifecycle, event, now.UTC())
	if err != nil {
		return err
	}
	s.lifecycle = next
	return nil
}

func (s *Subscriber) IsPending() bool { return s.lifecycle.Status == StatusPending }
func (s *Subscriber) IsActive() bool { return s.lifecycle.Status == StatusConfirmed }
func (s *Subscriber) IsUnsubscribed() bool { return s.lifecycle.Status == StatusUnsubscribed }

// SubscriberRecord is the flat persisted shape of a Subscriber.
type SubscriberRecord struct {
	ID             string           `json:"id" db:"id"`
	Email          string           `json:"email" db:"email"`
	Status         SubscriberStatus `json:"status" db:"status"`
	SubscribedAt   time.Time        `json:"subscribed_at" db:"subscribed_at"`
	ConfirmedAt    *time.Time       `json:"confirmed_at,omitempty" db:"confirmed_at"`
	UnsubscribedAt *time.Time       `json:"unsubscribed_at,omitempty" db:"unsubscribed_at"`
	Token          string           `json:"-" db:"unsubscribe_token"`
}

// Record flattens s for persistence.
func (s *Subscriber) Record() SubscriberRecord {
	return SubscriberRecord{
		ID:             s.id,
		Email:          s.email,
		Status:         s.lifecycle.Status,
		SubscribedAt:   s.subscribedAt,
		ConfirmedAt:    copyTime(s.lifecycle.ConfirmedAt),
		UnsubscribedAt: copyTime(s.lifecycle.UnsubscribedAt),
		Token:          s.token,
	}
}

// SubscriberFromRecord rebuilds a Subscriber from storage. The email is
// trusted as-is and the token is kept; neither is revalidated nor regenerated.
func SubscriberFromRecord(r SubscriberRecord) *Subscriber {
	return &Subscriber{
		id:           r.ID,
		email:        r.Email,
		token:        r.Token,
		subscribedAt: r.SubscribedAt,
		lifecycle: Lifecycle{
			Status:         r.Status,
			ConfirmedAt:    copyTime(r.ConfirmedAt),
			UnsubscribedAt: copyTime(r.UnsubscribedAt),
		},
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
