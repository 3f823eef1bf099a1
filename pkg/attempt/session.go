package attempt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
)

var ErrNotSubmitted = errors.New("attempt not submitted")

type Options struct {
	Now                func() time.Time
	TickInterval       time.Duration
	MaxConcurrentSaves int64
	SaveTimeout        time.Duration
	RetryMin           time.Duration
	RetryMax           time.Duration
	Logger             *log.Logger

	OnTick        func(remaining int)
	OnSubmitted   func(Trigger)
	OnSubmitError func(error)
	OnSaveError   func(AnswerRecord, error)
}

// Session is one student's timed attempt: a clock, an answer store, the
// visit/review tracker, a cursor and the submission controller, all over a
// single Attempt.
type Session struct {
	svc     Service
	test    Test
	attempt Attempt
	opts    Options

	clock   *Clock
	answers *AnswerStore
	tracker *Tracker
	cursor  *Cursor
	submit  *Controller
}

// Start asks the service for the attempt and begins the session. An
// ErrAlreadySubmitted result means the caller should show results instead.
func Start(ctx context.Context, svc Service, testID string, opts Options) (*Session, error) {
	t, a, err := svc.StartAttempt(ctx, testID)
	if err != nil {
		if errors.Is(err, ErrAlreadySubmitted) {
			return nil, err
		}
		return nil, fmt.Errorf("start attempt: %w", err)
	}
	return Resume(svc, t, a, opts)
}

// Resume builds a session from an already-started attempt.
func Resume(svc Service, t Test, a Attempt, opts Options) (*Session, error) {
	if a.Submitted() {
		return nil, ErrAlreadySubmitted
	}
	if err := Validate(t, a); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	s := &Session{svc: svc, test: t, attempt: a, opts: opts}

	s.tracker = NewTracker()
	s.answers = NewAnswerStore(t.ID, svc, AnswerStoreOptions{
		MaxConcurrentSaves: opts.MaxConcurrentSaves,
		SaveTimeout:        opts.SaveTimeout,
		Now:                opts.Now,
		Logger:             opts.Logger,
		OnSaveError:        opts.OnSaveError,
	})
	if err := s.answers.Hydrate(a.Answers); err != nil {
		return nil, err
	}
	for _, r := range a.Answers {
		if r.HasAnswer() {
			s.tracker.MarkVisited(r.Key())
		}
	}

	s.submit = NewController(t.ID, svc, s.answers, ControllerOptions{
		RetryMin:    opts.RetryMin,
		RetryMax:    opts.RetryMax,
		Logger:      opts.Logger,
		OnSubmitted: s.onSubmitted,
		OnError: func(err *SubmitError) {
			if opts.OnSubmitError != nil {
				opts.OnSubmitError(err)
			}
		},
	})
	s.cursor = NewCursor(t, s.tracker.MarkVisited)
	s.clock = NewClock(ClockOptions{
		Now:       opts.Now,
		Interval:  opts.TickInterval,
		OnTick:    opts.OnTick,
		OnExpired: s.submit.Expire,
		Logger:    opts.Logger,
	})
	if err := s.clock.Start(a.StartedAt, time.Duration(a.DurationSec)*time.Second); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) onSubmitted(trigger Trigger) {
	s.clock.Cancel()
	if s.opts.OnSubmitted != nil {
		s.opts.OnSubmitted(trigger)
	}
}

func (s *Session) Test() Test       { return s.test }
func (s *Session) AttemptID() string { return s.attempt.ID }

func (s *Session) Position() Position { return s.cursor.Position() }

func (s *Session) Current() (Section, QuestionEntry) { return s.cursor.Current() }

func (s *Session) Next() bool { return s.cursor.Next() }
func (s *Session) Prev() bool { return s.cursor.Prev() }

func (s *Session) JumpTo(section, question int) error { return s.cursor.JumpTo(section, question) }
func (s *Session) JumpToSection(section int) error    { return s.cursor.JumpToSection(section) }

func (s *Session) SelectOption(opt string) error {
	if s.answers.Frozen() {
		return ErrFrozen
	}
	_, q := s.cursor.Current()
	if q.Question.Type != TypeMCQ {
		return fmt.Errorf("%w: question %s takes a numerical value", ErrInvalidAnswer, q.Question.ID)
	}
	return s.answers.SelectOption(s.cursor.Key(), opt)
}

func (s *Session) EnterNumerical(v float64) error {
	if s.answers.Frozen() {
		return ErrFrozen
	}
	_, q := s.cursor.Current()
	if q.Question.Type != TypeNumerical {
		return fmt.Errorf("%w: question %s takes an option", ErrInvalidAnswer, q.Question.ID)
	}
	return s.answers.SetNumber(s.cursor.Key(), v)
}

// EnterNumericalText accepts raw input; blank input clears the response.
func (s *Session) EnterNumericalText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return s.ClearResponse()
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("%w: %q is not a number", ErrInvalidAnswer, text)
	}
	return s.EnterNumerical(v)
}

func (s *Session) ClearResponse() error {
	return s.answers.Clear(s.cursor.Key())
}

// SaveAndNext advances; the current answer was already queued when it was set.
func (s *Session) SaveAndNext() bool {
	return s.cursor.Next()
}

func (s *Session) MarkForReviewAndNext() error {
	if s.submit.State() != InProgress || s.answers.Frozen() {
		return ErrFrozen
	}
	s.tracker.MarkForReview(s.cursor.Key())
	s.cursor.Next()
	return nil
}

func (s *Session) Answer(k Key) (AnswerRecord, bool) { return s.answers.Get(k) }

// Answers returns every local record that holds a value.
func (s *Session) Answers() []AnswerRecord {
	all := s.answers.Records()
	out := all[:0]
	for _, r := range all {
		if r.HasAnswer() {
			out = append(out, r)
		}
	}
	return out
}

func (s *Session) StatusOf(k Key) Status {
	st := s.tracker.State(k)
	return Classify(st.Visited, st.MarkedForReview, s.answers.HasAnswer(k))
}

func (s *Session) Palette() []PaletteSection {
	cur := s.cursor.Position()
	out := make([]PaletteSection, 0, len(s.test.Sections))
	for si, sec := range s.test.Sections {
		ps := PaletteSection{ID: sec.ID, Name: sec.Name, Cells: make([]PaletteCell, 0, len(sec.Questions))}
		for qi, q := range sec.Questions {
			k := Key{SectionID: sec.ID, QuestionID: q.Question.ID}
			ps.Cells = append(ps.Cells, PaletteCell{
				Index:   qi,
				Key:     k,
				Status:  s.StatusOf(k),
				Current: cur.Section == si && cur.Question == qi,
			})
		}
		out = append(out, ps)
	}
	return out
}

func (s *Session) Stats() Stats {
	var st Stats
	for _, sec := range s.Palette() {
		for _, c := range sec.Cells {
			st.add(c.Status)
		}
	}
	return st
}

func (s *Session) Remaining() int   { return s.clock.Remaining() }
func (s *Session) Urgency() Urgency { return UrgencyOf(s.clock.Remaining()) }

// Submit is the user's confirmed submit.
func (s *Session) Submit(ctx context.Context) error {
	return s.submit.RequestSubmit(ctx, Manual)
}

func (s *Session) State() State { return s.submit.State() }

func (s *Session) Done() <-chan struct{} { return s.submit.Done() }

// Result loads the results view once the attempt is final.
func (s *Session) Result(ctx context.Context) (Result, error) {
	if s.submit.State() != Submitted {
		return Result{}, ErrNotSubmitted
	}
	return s.svc.FetchResult(ctx, s.test.ID)
}

// Close tears the session down: the clock stops, pending retries and saves are dropped.
func (s *Session) Close() {
	s.clock.Cancel()
	s.submit.Close()
	s.answers.Close()
}
