package domain

import "errors"

var (
	// ErrNotSubscribed is returned when a user without an active subscription tries to start a test.
	ErrNotSubscribed = errors.New("subscription not active")
	// ErrNoQuestions indicates the question bank is empty.
	ErrNoQuestions = errors.New("no questions available")
	// ErrNoActiveSession is returned when an answer or navigation arrives with no session in progress.
	ErrNoActiveSession = errors.New("no active test session")
	// ErrPaymentUnavailable indicates the payment link could not be created.
	ErrPaymentUnavailable = errors.New("payment service unavailable")
)
