package attempt_test

import (
	"context"
	"sync"
	"time"

	"github.com/mind-engage/examportal/pkg/attempt"
)

/* ---------------- In-memory fake that satisfies attempt.Service ---------------- */

type fakeService struct {
	mu sync.Mutex

	test     attempt.Test
	att      attempt.Attempt
	startErr error

	remote    map[attempt.Key]attempt.AnswerRecord
	saveCalls int
	saveErr   error
	saveGate  func(rec attempt.AnswerRecord) // runs before a save is applied

	submitCalls int
	submitOK    int
	submitErrs  []error // consumed one per call
	submitGate  chan struct{}
}

func newFakeService(t attempt.Test, a attempt.Attempt) *fakeService {
	return &fakeService{test: t, att: a, remote: map[attempt.Key]attempt.AnswerRecord{}}
}

func (f *fakeService) StartAttempt(_ context.Context, _ string) (attempt.Test, attempt.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return attempt.Test{}, attempt.Attempt{}, f.startErr
	}
	return f.test, f.att, nil
}

func (f *fakeService) SaveAnswer(ctx context.Context, _ string, rec attempt.AnswerRecord) error {
	f.mu.Lock()
	gate := f.saveGate
	f.mu.Unlock()
	if gate != nil {
		gate(rec)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.remote[rec.Key()] = rec
	return nil
}

func (f *fakeService) SubmitAttempt(_ context.Context, _ string) error {
	f.mu.Lock()
	f.submitCalls++
	gate := f.submitGate
	var err error
	if len(f.submitErrs) > 0 {
		err = f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
	}
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err == nil {
		f.mu.Lock()
		f.submitOK++
		now := time.Now()
		f.att.SubmittedAt = &now
		f.mu.Unlock()
	}
	return err
}

func (f *fakeService) FetchResult(_ context.Context, _ string) (attempt.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := attempt.Result{Attempt: f.att, Test: f.test}
	for _, r := range f.remote {
		if r.HasAnswer() {
			res.Answers = append(res.Answers, attempt.GradedAnswer{AnswerRecord: r})
		}
	}
	return res, nil
}

func (f *fakeService) remoteRecord(k attempt.Key) (attempt.AnswerRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.remote[k]
	return r, ok
}

func (f *fakeService) counts() (saves, submits, submitOK int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveCalls, f.submitCalls, f.submitOK
}

/* ---------------- fixtures ---------------- */

type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeNow(t time.Time) *fakeNow { return &fakeNow{t: t} }

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func mcq(id string) attempt.QuestionEntry {
	return attempt.QuestionEntry{Question: attempt.Question{ID: id, Type: attempt.TypeMCQ}, PositiveMarks: 4, NegativeMarks: 1}
}

func numerical(id string) attempt.QuestionEntry {
	return attempt.QuestionEntry{Question: attempt.Question{ID: id, Type: attempt.TypeNumerical}, PositiveMarks: 4}
}

// twoByTwo is two sections of two questions: physics (q1 mcq, q2 mcq), maths (q3 mcq, q4 numerical).
func twoByTwo() attempt.Test {
	return attempt.Test{
		ID:          "test-1",
		Name:        "Mock JEE 1",
		DurationMin: 180,
		Sections: []attempt.Section{
			{ID: "phy", Name: "Physics", Questions: []attempt.QuestionEntry{mcq("q1"), mcq("q2")}},
			{ID: "mat", Name: "Maths", Questions: []attempt.QuestionEntry{mcq("q3"), numerical("q4")}},
		},
	}
}

func freshAttempt(startedAt time.Time, durationSec int) attempt.Attempt {
	return attempt.Attempt{ID: "attempt-1", TestID: "test-1", UserID: "u1", StartedAt: startedAt, DurationSec: durationSec}
}

func key(sec, q string) attempt.Key { return attempt.Key{SectionID: sec, QuestionID: q} }

func strp(s string) *string { return &s }
