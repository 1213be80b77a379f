package app

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"quizgate/internal/domain"

	"github.com/google/uuid"
)

// Config carries the timing and scoring constants. It is passed in at
// construction so tests can run with compressed time scales.
type Config struct {
	TestDuration         time.Duration
	TotalQuestions       int
	SubscriptionValidity time.Duration
	CorrectReward        float64
	WrongPenalty         float64
}

// DefaultConfig returns the production constants.
func DefaultConfig() Config {
	return Config{
		TestDuration:         15 * time.Minute,
		TotalQuestions:       20,
		SubscriptionValidity: 28 * 24 * time.Hour,
		CorrectReward:        1,
		WrongPenalty:         -1.0 / 3.0,
	}
}

// QuizService owns the session state machine: question sampling, the answer
// ledger and score, navigation, and the deadline watcher racing against user
// actions.
type QuizService struct {
	cfg      Config
	subs     SubscriptionRegistry
	sessions SessionStore
	bank     QuestionBank
	notifier Notifier
	now      func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuizService(cfg Config, subs SubscriptionRegistry, sessions SessionStore, bank QuestionBank) *QuizService {
	return NewQuizServiceWithClock(cfg, subs, sessions, bank, time.Now)
}

// NewQuizServiceWithClock allows deterministic timestamps in tests.
func NewQuizServiceWithClock(cfg Config, subs SubscriptionRegistry, sessions SessionStore, bank QuestionBank, now func() time.Time) *QuizService {
	return &QuizService{
		cfg:      cfg,
		subs:     subs,
		sessions: sessions,
		bank:     bank,
		now:      now,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetNotifier wires the outbound message sink. A nil notifier drops output,
// which is what unit tests without a transport want.
func (s *QuizService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Session is one user's in-progress test attempt. The ID is unique per
// attempt, so a deadline watcher left over from a replaced session can never
// terminate its successor.
type Session struct {
	id        string
	userID    int64
	chatID    int64
	questions []domain.Question
	deadline  time.Time

	mu      sync.Mutex
	current int
	answers map[int]string
	score   float64
	done    bool
	timer   *time.Timer
}

// ID returns the session's attempt identifier.
func (s *Session) ID() string { return s.id }

// StartSession gates on the subscription, samples questions, stores a fresh
// session (silently discarding any prior one for the user) and schedules its
// deadline watcher. Returns the first question's render payload.
func (s *QuizService) StartSession(ctx context.Context, userID, chatID int64) (domain.RenderQuestion, error) {
	if !s.IsSubscribed(ctx, userID) {
		return domain.RenderQuestion{}, domain.ErrNotSubscribed
	}

	all, err := s.bank.Questions(ctx)
	if err != nil || len(all) == 0 {
		return domain.RenderQuestion{}, domain.ErrNoQuestions
	}

	now := s.now()
	sess := &Session{
		id:        uuid.NewString(),
		userID:    userID,
		chatID:    chatID,
		questions: s.sample(all),
		deadline:  now.Add(s.cfg.TestDuration),
		answers:   make(map[int]string),
	}

	if prev := s.sessions.Put(userID, sess); prev != nil {
		prev.abandon()
	}

	sess.mu.Lock()
	sess.timer = time.AfterFunc(sess.deadline.Sub(now), func() {
		s.expire(userID, sess.id)
	})
	render := sess.renderLocked(now)
	sess.mu.Unlock()
	return render, nil
}

// SubmitAnswer records the user's first answer for a question index and
// adjusts the score exactly once. Later submissions for the same index are
// ignored. If the deadline has passed the session is terminated instead.
func (s *QuizService) SubmitAnswer(ctx context.Context, userID int64, questionIndex int, option string) (domain.ActionResult, error) {
	sess, ok := s.sessions.Get(userID)
	if !ok {
		return domain.ActionResult{}, domain.ErrNoActiveSession
	}
	now := s.now()

	sess.mu.Lock()
	if sess.done {
		sess.mu.Unlock()
		return domain.ActionResult{}, domain.ErrNoActiveSession
	}
	if !now.Before(sess.deadline) {
		summary := sess.finishLocked()
		sess.mu.Unlock()
		s.finalize(sess, summary)
		return domain.ActionResult{TimedOut: true}, nil
	}
	if questionIndex < 0 || questionIndex >= len(sess.questions) {
		render := sess.renderLocked(now)
		sess.mu.Unlock()
		return domain.ActionResult{Question: &render}, nil
	}
	if _, answered := sess.answers[questionIndex]; answered {
		render := sess.renderLocked(now)
		sess.mu.Unlock()
		return domain.ActionResult{Question: &render, Duplicate: true}, nil
	}
	sess.answers[questionIndex] = option
	// Unrecognized labels count as wrong, not as errors.
	if option == sess.questions[questionIndex].Correct {
		sess.score += s.cfg.CorrectReward
	} else {
		sess.score += s.cfg.WrongPenalty
	}
	render := sess.renderLocked(now)
	sess.mu.Unlock()
	return domain.ActionResult{Question: &render}, nil
}

// Navigate moves the cursor or finishes the session. Previous at the first
// question and Next/Skip at the last are no-ops; Skip never clears an answer.
func (s *QuizService) Navigate(ctx context.Context, userID int64, cmd domain.NavCommand) (domain.ActionResult, error) {
	sess, ok := s.sessions.Get(userID)
	if !ok {
		return domain.ActionResult{}, domain.ErrNoActiveSession
	}
	now := s.now()

	sess.mu.Lock()
	if sess.done {
		sess.mu.Unlock()
		return domain.ActionResult{}, domain.ErrNoActiveSession
	}
	if !now.Before(sess.deadline) {
		summary := sess.finishLocked()
		sess.mu.Unlock()
		s.finalize(sess, summary)
		return domain.ActionResult{TimedOut: true}, nil
	}

	switch cmd {
	case domain.NavPrevious:
		if sess.current > 0 {
			sess.current--
		}
	case domain.NavNext, domain.NavSkip:
		if sess.current < len(sess.questions)-1 {
			sess.current++
		}
	case domain.NavFinish:
		summary := sess.finishLocked()
		sess.mu.Unlock()
		s.finalize(sess, summary)
		return domain.ActionResult{Finished: true}, nil
	}
	render := sess.renderLocked(now)
	sess.mu.Unlock()
	return domain.ActionResult{Question: &render}, nil
}

// Option resolves an option label from a stored session, so transports can
// key buttons by index instead of shipping free-text labels around.
func (s *QuizService) Option(userID int64, questionIndex, optionIndex int) (string, bool) {
	sess, ok := s.sessions.Get(userID)
	if !ok {
		return "", false
	}
	if questionIndex < 0 || questionIndex >= len(sess.questions) {
		return "", false
	}
	opts := sess.questions[questionIndex].Options
	if optionIndex < 0 || optionIndex >= len(opts) {
		return "", false
	}
	return opts[optionIndex], true
}

// Grant overwrites the user's subscription expiry to now + validity,
// regardless of any remaining balance.
func (s *QuizService) Grant(ctx context.Context, userID int64) (time.Time, error) {
	expiry := s.now().Add(s.cfg.SubscriptionValidity)
	if err := s.subs.SetExpiry(ctx, userID, expiry); err != nil {
		return time.Time{}, err
	}
	return expiry, nil
}

// Activate is the payment-confirmation entry point: grant access, then send
// the confirmation to the user off the caller's request path.
func (s *QuizService) Activate(ctx context.Context, userID int64) (time.Time, error) {
	expiry, err := s.Grant(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	if n := s.notifier; n != nil {
		go n.NotifySubscribed(userID, expiry)
	}
	return expiry, nil
}

// expire is the deadline watcher body. It terminates the session only if the
// store still holds this exact attempt; a session already finished, timed out,
// or replaced makes it a no-op.
func (s *QuizService) expire(userID int64, sessionID string) {
	sess, ok := s.sessions.Get(userID)
	if !ok || sess.id != sessionID {
		return
	}
	sess.mu.Lock()
	if sess.done {
		sess.mu.Unlock()
		return
	}
	summary := sess.finishLocked()
	sess.mu.Unlock()
	s.finalize(sess, summary)
}

// finalize removes the session from the store and emits its summary. The done
// flag flipped in finishLocked guarantees a single caller reaches here per
// session.
func (s *QuizService) finalize(sess *Session, summary domain.Summary) {
	s.sessions.Remove(sess.userID, sess.id)
	if n := s.notifier; n != nil {
		n.NotifySummary(sess.chatID, summary)
	}
}

func (s *QuizService) sample(all []domain.Question) []domain.Question {
	n := s.cfg.TotalQuestions
	if n > len(all) {
		n = len(all)
	}
	picked := make([]domain.Question, len(all))
	copy(picked, all)
	s.rndMu.Lock()
	s.rnd.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	s.rndMu.Unlock()
	return picked[:n]
}

// finishLocked flips the session into its terminal state, cancels the watcher
// and computes the summary. Callers must hold sess.mu and must have checked
// done beforehand.
func (sess *Session) finishLocked() domain.Summary {
	sess.done = true
	if sess.timer != nil {
		sess.timer.Stop()
	}

	correct, wrong := 0, 0
	for idx, given := range sess.answers {
		if given == sess.questions[idx].Correct {
			correct++
		} else {
			wrong++
		}
	}
	return domain.Summary{
		FinalScore: sess.score,
		Total:      len(sess.questions),
		Correct:    correct,
		Wrong:      wrong,
		Unanswered: len(sess.questions) - len(sess.answers),
	}
}

// abandon marks a replaced session dead without emitting a summary.
func (sess *Session) abandon() {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.done {
		return
	}
	sess.done = true
	if sess.timer != nil {
		sess.timer.Stop()
	}
}

func (sess *Session) renderLocked(now time.Time) domain.RenderQuestion {
	q := sess.questions[sess.current]
	chosen, answered := sess.answers[sess.current]
	minutes := int(math.Ceil(sess.deadline.Sub(now).Minutes()))
	if minutes < 0 {
		minutes = 0
	}
	return domain.RenderQuestion{
		Index:            sess.current,
		Total:            len(sess.questions),
		Prompt:           q.Prompt,
		Options:          q.Options,
		Answered:         answered,
		Chosen:           chosen,
		MinutesRemaining: minutes,
	}
}
