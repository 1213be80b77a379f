package app

import (
	"context"
	"time"

	"quizgate/internal/domain"
)

// SubscriptionRegistry stores per-user access expiry (in-memory, Redis, etc).
type SubscriptionRegistry interface {
	// SetExpiry overwrites the user's expiry unconditionally.
	SetExpiry(ctx context.Context, userID int64, expiresAt time.Time) error
	// Expiry returns the stored expiry and whether one exists.
	Expiry(ctx context.Context, userID int64) (time.Time, bool, error)
}

// SessionStore abstracts how active test sessions are kept, one per user.
type SessionStore interface {
	// Put stores the session under its user key and returns the session it
	// replaced, if any.
	Put(userID int64, s *Session) (prev *Session)
	Get(userID int64) (*Session, bool)
	// Remove deletes the user's entry only if it still holds the session with
	// the given ID, and reports whether anything was removed.
	Remove(userID int64, sessionID string) bool
}

// QuestionBank provides the loaded question records.
type QuestionBank interface {
	Questions(ctx context.Context) ([]domain.Question, error)
}

// Notifier delivers engine-originated messages. Summaries go to the chat a
// session was started from; subscription confirmations go straight to the user.
type Notifier interface {
	NotifySummary(chatID int64, s domain.Summary)
	NotifySubscribed(userID int64, expiresAt time.Time)
}

// IsSubscribed is the access gate: true iff the user has a subscription whose
// expiry is strictly after now. Read-only, no side effects.
func (s *QuizService) IsSubscribed(ctx context.Context, userID int64) bool {
	expiry, ok, err := s.subs.Expiry(ctx, userID)
	if err != nil || !ok {
		return false
	}
	return s.now().Before(expiry)
}

// SubscriptionStatus returns the stored expiry and whether it is still active.
func (s *QuizService) SubscriptionStatus(ctx context.Context, userID int64) (time.Time, bool) {
	expiry, ok, err := s.subs.Expiry(ctx, userID)
	if err != nil || !ok {
		return time.Time{}, false
	}
	return expiry, s.now().Before(expiry)
}
