package exam_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/examportal/internal/exam"
	"github.com/mind-engage/examportal/internal/metrics"
	syncx "github.com/mind-engage/examportal/internal/sync"
	"github.com/mind-engage/examportal/pkg/attempt"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingSink struct {
	mu     sync.Mutex
	events []syncx.Event
}

func (r *recordingSink) Append(_ context.Context, e syncx.Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type heldGuard struct{}

func (heldGuard) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, exam.ErrSubmitInProgress
}

type brokenGuard struct{}

func (brokenGuard) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, errors.New("redis: connection refused")
}

type prefixURLs string

func (p prefixURLs) SignedURL(key string) (string, error) { return string(p) + key, nil }

// counterValue reads a counter from the registry; outcome selects the
// labelled series when non-empty.
func counterValue(t *testing.T, m *metrics.Metrics, name, outcome string) float64 {
	t.Helper()
	mfs, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, c := range mf.GetMetric() {
			if outcome == "" {
				return c.GetCounter().GetValue()
			}
			for _, l := range c.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return c.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

type fixture struct {
	svc    *exam.Service
	clock  *fakeClock
	events *recordingSink
	m      *metrics.Metrics
}

func newFixture(t *testing.T, opts ...exam.Option) fixture {
	t.Helper()
	f := fixture{clock: &fakeClock{now: t0}, events: &recordingSink{}, m: metrics.New()}
	opts = append([]exam.Option{
		exam.WithClock(f.clock.Now),
		exam.WithEvents(f.events),
		exam.WithMetrics(f.m),
		exam.WithLogger(log.New(io.Discard, "", 0)),
	}, opts...)
	f.svc = exam.NewService(exam.NewInMemoryStore(nil), opts...)
	require.NoError(t, f.svc.PutTest(context.Background(), sampleTest()))
	return f
}

func TestService_PutTestValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := sampleTest()
	bad.DurationMin = 0
	assert.ErrorIs(t, f.svc.PutTest(ctx, bad), exam.ErrInvalidTest)

	bad = sampleTest()
	bad.Sections[0].Questions[0].Question.CorrectOption = "E"
	assert.ErrorIs(t, f.svc.PutTest(ctx, bad), exam.ErrInvalidTest)

	bad = sampleTest()
	bad.Sections[1].Questions[1].Question.CorrectNumerical = nil
	assert.ErrorIs(t, f.svc.PutTest(ctx, bad), exam.ErrInvalidTest)

	bad = sampleTest()
	bad.Sections[1].Questions = append(bad.Sections[1].Questions, mcqQ("q3", "A"))
	assert.ErrorIs(t, f.svc.PutTest(ctx, bad), exam.ErrInvalidTest, "duplicate question id")
}

func TestService_StartHidesAnswerKeyAndEmitsOnce(t *testing.T) {
	f := newFixture(t, exam.WithURLResolver(prefixURLs("https://cdn.example/")))
	ctx := context.Background()

	tt := sampleTest()
	tt.Sections[0].Questions[0].Question.ImageKey = "img/q1.png"
	require.NoError(t, f.svc.PutTest(ctx, tt))

	test, a, err := f.svc.StartAttempt(ctx, "jee-mock-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 180*60, a.DurationSec)
	assert.True(t, t0.Equal(a.StartedAt))
	assert.Equal(t, "https://cdn.example/img/q1.png", test.Sections[0].Questions[0].Question.ImageURL)

	raw, err := json.Marshal(test)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "correctOption")
	assert.NotContains(t, string(raw), "correctNumerical")

	f.clock.Advance(time.Minute)
	_, again, err := f.svc.StartAttempt(ctx, "jee-mock-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, again.ID)
	assert.True(t, t0.Equal(again.StartedAt))

	assert.Equal(t, []string{syncx.TypeAttemptStarted}, f.events.types())
	assert.Equal(t, 1.0, counterValue(t, f.m, "exam_attempts_started_total", ""))
}

func TestService_SaveAnswerChecksShape(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.StartAttempt(ctx, "jee-mock-1", "u1")
	require.NoError(t, err)

	cases := []struct {
		name string
		ans  exam.Answer
		want error
	}{
		{"unknown question", exam.Answer{SectionID: "phy", QuestionID: "q9", SelectedOption: sp("A")}, exam.ErrUnknownQuestion},
		{"wrong section", exam.Answer{SectionID: "mat", QuestionID: "q1", SelectedOption: sp("A")}, exam.ErrUnknownQuestion},
		{"bad option", exam.Answer{SectionID: "phy", QuestionID: "q1", SelectedOption: sp("E")}, exam.ErrInvalidAnswer},
		{"number on mcq", exam.Answer{SectionID: "phy", QuestionID: "q1", NumericalAnswer: fp(1)}, exam.ErrInvalidAnswer},
		{"option on numerical", exam.Answer{SectionID: "mat", QuestionID: "q4", SelectedOption: sp("A")}, exam.ErrInvalidAnswer},
		{"both channels", exam.Answer{SectionID: "phy", QuestionID: "q1", SelectedOption: sp("A"), NumericalAnswer: fp(1)}, exam.ErrInvalidAnswer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, f.svc.SaveAnswer(ctx, "jee-mock-1", "u1", tc.ans), tc.want)
		})
	}

	err = f.svc.SaveAnswer(ctx, "jee-mock-1", "nobody", exam.Answer{SectionID: "phy", QuestionID: "q1", SelectedOption: sp("A")})
	assert.ErrorIs(t, err, exam.ErrNotFound, "no attempt started")
}

func TestService_SaveAnswerStaleWriteIsAccepted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a, err := f.svc.StartAttempt(ctx, "jee-mock-1", "u1")
	require.NoError(t, err)

	require.NoError(t, f.svc.SaveAnswer(ctx, "jee-mock-1", "u1", exam.Answer{SectionID: "phy", QuestionID: "q1", SelectedOption: sp("C"), Seq: 200}))
	require.NoError(t, f.svc.SaveAnswer(ctx, "jee-mock-1", "u1", exam.Answer{SectionID: "phy", QuestionID: "q1", SelectedOption: sp("A"), Seq: 100}))

	rows, err := f.svc.ListAttempts(ctx, exam.AttemptListOpts{TestID: "jee-mock-1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, a.ID, rows[0].ID)
	require.Len(t, rows[0].Answers, 1)
	assert.Equal(t, "C", *rows[0].Answers[0].SelectedOption)

	assert.Equal(t, 1.0, counterValue(t, f.m, "exam_answers_saved_total", "applied"))
	assert.Equal(t, 1.0, counterValue(t, f.m, "exam_answers_saved_total", "stale"))
}

func TestService_SaveAnswerWithoutSeqUsesArrivalOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.StartAttempt(ctx, "jee-mock-1", "u1")
	require.NoError(t, err)

	require.NoError(t, f.svc.SaveAnswer(ctx, "jee-mock-1", "u1", exam.Answer{SectionID: "mat", QuestionID: "q4", NumericalAnswer: fp(1)}))
	f.clock.Advance(time.Second)
	require.NoError(t, f.svc.SaveAnswer(ctx, "jee-mock-1", "u1", exam.Answer{SectionID: "mat", QuestionID: "q4", NumericalAnswer: fp(2)}))

	rows, err := f.svc.ListAttempts(ctx, exam.AttemptListOpts{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, rows[0].Answers, 1)
	assert.Equal(t, 2.0, *rows[0].Answers[0].NumericalAnswer)
	assert.Equal(t, t0.Add(time.Second).UnixNano(), rows[0].Answers[0].Seq)
}

func TestService_SaveAnswerAfterDeadline(t *testing.T) {
	f := newFixture(t, exam.WithAnswerGrace(10*time.Second))
	ctx := context.Background()
	_, _, err := f.svc.StartAttempt(ctx, "jee-mock-1", "u1")
	require.NoError(t, err)

	ans := exam.Answer{SectionID: "phy", QuestionID: "q1", SelectedOption: sp("B")}

	f.clock.Advance(180*time.Minute + 5*time.Second)
	assert.NoError(t, f.svc.SaveAnswer(ctx, "jee-mock-1", "u1", ans), "inside grace")

	f.clock.Advance(10 * time.Second)
	assert.ErrorIs(t, f.svc.SaveAnswer(ctx, "jee-mock-1", "u1", ans), exam.ErrDeadlinePassed)

	// submission itself is still accepted after the deadline
	done, err := f.svc.SubmitAttempt(ctx, "jee-mock-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 4.0, done.Score)
}

func TestService_SubmitExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.StartAttempt(ctx, "jee-mock-1", "u1")
	require.NoError(t, err)

	require.NoError(t, f.svc.SaveAnswer(ctx, "jee-mock-1", "u1", exam.Answer{SectionID: "phy", QuestionID: "q1", SelectedOption: sp("B")}))
	require.NoError(t, f.svc.SaveAnswer(ctx, "jee-mock-1", "u1", exam.Answer{SectionID: "phy", QuestionID: "q2", SelectedOption: sp("D")}))

	_, err = f.svc.Result(ctx, "jee-mock-1", "u1")
	assert.ErrorIs(t, err, exam.ErrNotSubmitted)

	f.clock.Advance(time.Hour)
	done, err := f.svc.SubmitAttempt(ctx, "jee-mock-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 3.0, done.Score)
	assert.Equal(t, 16.0, done.MaxScore)

	again, err := f.svc.SubmitAttempt(ctx, "jee-mock-1", "u1")
	assert.ErrorIs(t, err, exam.ErrAlreadySubmitted)
	assert.Equal(t, done.ID, again.ID)

	err = f.svc.SaveAnswer(ctx, "jee-mock-1", "u1", exam.Answer{SectionID: "phy", QuestionID: "q2", SelectedOption: sp("A")})
	assert.ErrorIs(t, err, exam.ErrAlreadySubmitted)

	assert.Equal(t, []string{syncx.TypeAttemptStarted, syncx.TypeAttemptSubmitted}, f.events.types())
	assert.Equal(t, 1.0, counterValue(t, f.m, "exam_submissions_total", "submitted"))
	assert.Equal(t, 1.0, counterValue(t, f.m, "exam_submissions_total", "duplicate"))

	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(f.events.events[1].DataJSON), &data))
	assert.Equal(t, 3.0, data["score"])
	assert.Equal(t, 2.0, data["answerCount"])

	res, err := f.svc.Result(ctx, "jee-mock-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 3.0, res.TotalScore)
	require.Len(t, res.Answers, 2)
	assert.True(t, res.Answers[0].IsCorrect)
	assert.Equal(t, -1.0, res.Answers[1].MarksAwarded)
}

func TestService_ConcurrentSubmitsFinalizeOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.StartAttempt(ctx, "jee-mock-1", "u1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.SubmitAttempt(ctx, "jee-mock-1", "u1"); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			} else {
				assert.True(t, errors.Is(err, exam.ErrAlreadySubmitted) || errors.Is(err, exam.ErrSubmitInProgress), err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.Equal(t, []string{syncx.TypeAttemptStarted, syncx.TypeAttemptSubmitted}, f.events.types())
}

func TestService_SubmitGuard(t *testing.T) {
	ctx := context.Background()

	held := newFixture(t, exam.WithGuard(heldGuard{}))
	_, _, err := held.svc.StartAttempt(ctx, "jee-mock-1", "u1")
	require.NoError(t, err)
	_, err = held.svc.SubmitAttempt(ctx, "jee-mock-1", "u1")
	assert.ErrorIs(t, err, exam.ErrSubmitInProgress)

	// an unreachable guard falls back to the store's own once-only transition
	broken := newFixture(t, exam.WithGuard(brokenGuard{}))
	_, _, err = broken.svc.StartAttempt(ctx, "jee-mock-1", "u1")
	require.NoError(t, err)
	_, err = broken.svc.SubmitAttempt(ctx, "jee-mock-1", "u1")
	assert.NoError(t, err)
}

func TestService_ResumeAfterSubmitIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.StartAttempt(ctx, "jee-mock-1", "u1")
	require.NoError(t, err)
	_, err = f.svc.SubmitAttempt(ctx, "jee-mock-1", "u1")
	require.NoError(t, err)

	_, _, err = f.svc.StartAttempt(ctx, "jee-mock-1", "u1")
	assert.ErrorIs(t, err, exam.ErrAlreadySubmitted)
}

func TestService_StartedViewPassesEngineValidation(t *testing.T) {
	f := newFixture(t)
	test, a, err := f.svc.StartAttempt(context.Background(), "jee-mock-1", "u1")
	require.NoError(t, err)
	assert.NoError(t, attempt.Validate(test, a))
}

func TestMemoryGuard(t *testing.T) {
	g := exam.NewMemoryGuard()
	ctx := context.Background()

	release, err := g.Acquire(ctx, "a1", time.Minute)
	require.NoError(t, err)

	_, err = g.Acquire(ctx, "a1", time.Minute)
	assert.ErrorIs(t, err, exam.ErrSubmitInProgress)

	other, err := g.Acquire(ctx, "a2", time.Minute)
	require.NoError(t, err)
	other()

	release()
	again, err := g.Acquire(ctx, "a1", time.Minute)
	require.NoError(t, err)
	again()

	// an expired hold is taken over
	_, err = g.Acquire(ctx, "a3", time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = g.Acquire(ctx, "a3", time.Minute)
	assert.NoError(t, err)
}
