package domain

import "time"

// Question is a multiple-choice question with exactly one correct option label.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
	Correct string   `json:"correct"`
}

// Subscription grants a user access until ExpiresAt.
// Active iff the current time is strictly before ExpiresAt.
type Subscription struct {
	UserID    int64     `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NavCommand moves the session cursor or finishes the test.
type NavCommand string

const (
	NavPrevious NavCommand = "previous"
	NavNext     NavCommand = "next"
	NavSkip     NavCommand = "skip"
	NavFinish   NavCommand = "finish"
)

// RenderQuestion is the payload the dispatcher turns into a message plus keyboard.
type RenderQuestion struct {
	Index            int      `json:"index"`
	Total            int      `json:"total"`
	Prompt           string   `json:"prompt"`
	Options          []string `json:"options"`
	Answered         bool     `json:"answered"`
	Chosen           string   `json:"chosen,omitempty"`
	MinutesRemaining int      `json:"minutesRemaining"`
}

// Summary is emitted exactly once when a session terminates.
type Summary struct {
	FinalScore float64 `json:"finalScore"`
	Total      int     `json:"total"`
	Correct    int     `json:"correct"`
	Wrong      int     `json:"wrong"`
	Unanswered int     `json:"unanswered"`
}

// ActionResult is the outcome of a submit or navigate call on a live session.
// When the call terminated the session (timeout or finish) Question is nil and
// the summary has already been dispatched to the session's chat.
type ActionResult struct {
	Question  *RenderQuestion
	Duplicate bool
	TimedOut  bool
	Finished  bool
}
