package exam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mind-engage/examportal/internal/metrics"
	syncx "github.com/mind-engage/examportal/internal/sync"
	"github.com/mind-engage/examportal/pkg/attempt"
)

// Service is the server side of a timed attempt: it starts attempts, takes
// answer upserts until the deadline and finalizes exactly once.
type Service struct {
	store   Store
	events  syncx.Sink
	guard   SubmitGuard
	metrics *metrics.Metrics
	urls    URLResolver
	now     func() time.Time
	grace   time.Duration
	log     *log.Logger
}

type Option func(*Service)

func WithEvents(s syncx.Sink) Option { return func(x *Service) { x.events = s } }
func WithGuard(g SubmitGuard) Option { return func(x *Service) { x.guard = g } }
func WithMetrics(m *metrics.Metrics) Option { return func(x *Service) { x.metrics = m } }
func WithURLResolver(u URLResolver) Option { return func(x *Service) { x.urls = u } }
func WithClock(now func() time.Time) Option { return func(x *Service) { x.now = now } }
func WithLogger(l *log.Logger) Option { return func(x *Service) { x.log = l } }
func WithAnswerGrace(d time.Duration) Option { return func(x *Service) { x.grace = d } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		events: syncx.Discard,
		guard:  NewMemoryGuard(),
		now:    time.Now,
		grace:  30 * time.Second,
		log:    log.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) PutTest(ctx context.Context, t Test) error {
	if err := ValidateTest(t); err != nil {
		return err
	}
	return s.store.PutTest(ctx, t)
}

// GetTest returns the full test, answer key included. Teacher use only.
func (s *Service) GetTest(ctx context.Context, id string) (Test, error) {
	return s.store.GetTest(ctx, id)
}

func (s *Service) ListTests(ctx context.Context, opts ListOpts) ([]TestSummary, error) {
	return s.store.ListTests(ctx, opts)
}

func (s *Service) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	return s.store.ListAttempts(ctx, opts)
}

// StartAttempt returns the student-safe test and the (possibly resumed) attempt.
func (s *Service) StartAttempt(ctx context.Context, testID, userID string) (attempt.Test, attempt.Attempt, error) {
	t, err := s.store.GetTest(ctx, testID)
	if err != nil {
		return attempt.Test{}, attempt.Attempt{}, err
	}
	a, created, err := s.store.StartAttempt(ctx, testID, userID, s.now())
	if err != nil {
		return attempt.Test{}, attempt.Attempt{}, err
	}
	if created {
		s.metrics.AttemptStarted()
		s.emit(ctx, syncx.TypeAttemptStarted, a)
	}
	return StudentView(t, s.urls), AttemptView(a), nil
}

// SaveAnswer upserts one answer for the caller's attempt on testID.
func (s *Service) SaveAnswer(ctx context.Context, testID, userID string, ans Answer) error {
	err := s.saveAnswer(ctx, testID, userID, ans)
	switch {
	case errors.Is(err, errStale):
		// an older write arrived after a newer one; the newer value stands
		s.metrics.AnswerSaved("stale")
		return nil
	case err != nil:
		s.metrics.AnswerSaved("rejected")
		return err
	}
	s.metrics.AnswerSaved("applied")
	return nil
}

var errStale = errors.New("stale answer")

func (s *Service) saveAnswer(ctx context.Context, testID, userID string, ans Answer) error {
	t, err := s.store.GetTest(ctx, testID)
	if err != nil {
		return err
	}
	q, ok := t.Lookup(ans.SectionID, ans.QuestionID)
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrUnknownQuestion, ans.SectionID, ans.QuestionID)
	}
	if err := checkAnswer(q, ans); err != nil {
		return err
	}
	a, err := s.store.FindAttempt(ctx, testID, userID)
	if err != nil {
		return err
	}
	if a.Submitted() {
		return ErrAlreadySubmitted
	}
	now := s.now()
	if now.After(a.Deadline().Add(s.grace)) {
		return ErrDeadlinePassed
	}
	if ans.Seq == 0 {
		// clients without write ids get arrival order
		ans.Seq = now.UnixNano()
	}
	applied, err := s.store.SaveAnswer(ctx, a.ID, ans)
	if err != nil {
		return err
	}
	if !applied {
		return errStale
	}
	return nil
}

// SubmitAttempt finalizes the caller's attempt. A second submit returns the
// stored attempt with ErrAlreadySubmitted.
func (s *Service) SubmitAttempt(ctx context.Context, testID, userID string) (Attempt, error) {
	begin := s.now()
	a, err := s.store.FindAttempt(ctx, testID, userID)
	if err != nil {
		s.metrics.Submitted("error", 0)
		return Attempt{}, err
	}
	if a.Submitted() {
		s.metrics.Submitted("duplicate", 0)
		return a, ErrAlreadySubmitted
	}

	release, err := s.guard.Acquire(ctx, a.ID, 30*time.Second)
	if err != nil {
		if errors.Is(err, ErrSubmitInProgress) {
			s.metrics.Submitted("duplicate", 0)
			return a, ErrSubmitInProgress
		}
		s.log.Printf("exam: submit guard for %s unavailable, relying on store: %v", a.ID, err)
		release = func() {}
	}
	defer release()

	done, err := s.store.Submit(ctx, a.ID, s.now())
	if err != nil {
		if errors.Is(err, ErrAlreadySubmitted) {
			s.metrics.Submitted("duplicate", 0)
		} else {
			s.metrics.Submitted("error", 0)
		}
		return done, err
	}
	s.metrics.Submitted("submitted", s.now().Sub(begin))
	s.emit(ctx, syncx.TypeAttemptSubmitted, done)
	return done, nil
}

// Result is the graded view of the caller's submitted attempt.
func (s *Service) Result(ctx context.Context, testID, userID string) (attempt.Result, error) {
	t, err := s.store.GetTest(ctx, testID)
	if err != nil {
		return attempt.Result{}, err
	}
	a, err := s.store.FindAttempt(ctx, testID, userID)
	if err != nil {
		return attempt.Result{}, err
	}
	if !a.Submitted() {
		return attempt.Result{}, ErrNotSubmitted
	}
	return ResultView(t, a, s.urls), nil
}

type eventData struct {
	AttemptID   string    `json:"attemptId"`
	TestID      string    `json:"testId"`
	UserID      string    `json:"userId"`
	StartedAt   time.Time `json:"startedAt"`
	Score       float64   `json:"score,omitempty"`
	MaxScore    float64   `json:"maxScore,omitempty"`
	AnswerCount int       `json:"answerCount"`
}

func (s *Service) emit(ctx context.Context, typ string, a Attempt) {
	n := 0
	for _, ans := range a.Answers {
		if ans.HasAnswer() {
			n++
		}
	}
	data, _ := json.Marshal(eventData{
		AttemptID: a.ID, TestID: a.TestID, UserID: a.UserID, StartedAt: a.StartedAt,
		Score: a.Score, MaxScore: a.MaxScore, AnswerCount: n,
	})
	e := syncx.Event{Type: typ, Key: a.ID, DataJSON: string(data), CreatedAt: s.now().Unix()}
	if err := s.events.Append(ctx, e); err != nil {
		s.log.Printf("exam: emit %s for %s: %v", typ, a.ID, err)
	}
}
