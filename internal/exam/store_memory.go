package exam

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/examportal/internal/grading"
)

type answerKey struct{ section, question string }

type memAttempt struct {
	Attempt
	answers map[answerKey]Answer
}

type memoryStore struct {
	mu       sync.RWMutex
	grader   grading.Grader
	tests    map[string]Test
	attempts map[string]*memAttempt
	byUser   map[[2]string]string // (testID, userID) -> attempt id
}

func NewInMemoryStore(g grading.Grader) Store {
	if g == nil {
		g = grading.NewDefaultGrader()
	}
	return &memoryStore{
		grader:   g,
		tests:    map[string]Test{},
		attempts: map[string]*memAttempt{},
		byUser:   map[[2]string]string{},
	}
}

func (m *memoryStore) PutTest(_ context.Context, t Test) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.CreatedAt == 0 {
		if old, ok := m.tests[t.ID]; ok {
			t.CreatedAt = old.CreatedAt
		} else {
			t.CreatedAt = time.Now().Unix()
		}
	}
	m.tests[t.ID] = t
	return nil
}

func (m *memoryStore) GetTest(_ context.Context, id string) (Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tests[id]
	if !ok {
		return Test{}, ErrNotFound
	}
	return t, nil
}

func (m *memoryStore) ListTests(_ context.Context, opts ListOpts) ([]TestSummary, error) {
	m.mu.RLock()
	out := make([]TestSummary, 0, len(m.tests))
	q := strings.ToLower(strings.TrimSpace(opts.Q))
	for _, t := range m.tests {
		if q != "" && !strings.Contains(strings.ToLower(t.Name), q) {
			continue
		}
		out = append(out, summarize(t))
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return page(out, opts.Limit, opts.Offset), nil
}

func (m *memoryStore) StartAttempt(_ context.Context, testID, userID string, now time.Time) (Attempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tests[testID]
	if !ok {
		return Attempt{}, false, ErrNotFound
	}
	if id, ok := m.byUser[[2]string{testID, userID}]; ok {
		a := m.attempts[id]
		if a.Submitted() {
			return Attempt{}, false, ErrAlreadySubmitted
		}
		return a.snapshot(), false, nil
	}
	a := &memAttempt{
		Attempt: Attempt{
			ID:          uuid.NewString(),
			TestID:      testID,
			UserID:      userID,
			Status:      StatusInProgress,
			StartedAt:   now.UTC().Truncate(time.Millisecond),
			DurationSec: t.DurationSec(),
			MaxScore:    t.MaxScore(),
		},
		answers: map[answerKey]Answer{},
	}
	m.attempts[a.ID] = a
	m.byUser[[2]string{testID, userID}] = a.ID
	return a.snapshot(), true, nil
}

func (m *memoryStore) FindAttempt(_ context.Context, testID, userID string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byUser[[2]string{testID, userID}]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	return m.attempts[id].snapshot(), nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	return a.snapshot(), nil
}

func (m *memoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, error) {
	m.mu.RLock()
	out := make([]Attempt, 0)
	for _, a := range m.attempts {
		if opts.TestID != "" && a.TestID != opts.TestID {
			continue
		}
		if opts.UserID != "" && a.UserID != opts.UserID {
			continue
		}
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		out = append(out, a.snapshot())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return page(out, opts.Limit, opts.Offset), nil
}

func (m *memoryStore) SaveAnswer(_ context.Context, attemptID string, ans Answer) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return false, ErrNotFound
	}
	if a.Submitted() {
		return false, ErrAlreadySubmitted
	}
	k := answerKey{ans.SectionID, ans.QuestionID}
	if cur, ok := a.answers[k]; ok && cur.Seq > ans.Seq {
		return false, nil
	}
	ans.IsCorrect, ans.MarksAwarded = false, 0
	a.answers[k] = ans
	return true, nil
}

func (m *memoryStore) Submit(ctx context.Context, attemptID string, now time.Time) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	if a.Submitted() {
		return a.snapshot(), ErrAlreadySubmitted
	}
	graded := gradeAttempt(ctx, m.grader, m.tests[a.TestID], a.snapshot())
	at := now.UTC().Truncate(time.Millisecond)
	graded.Status = StatusSubmitted
	graded.SubmittedAt = &at

	a.Attempt = graded
	a.Answers = nil
	for _, ans := range graded.Answers {
		a.answers[answerKey{ans.SectionID, ans.QuestionID}] = ans
	}
	return a.snapshot(), nil
}

// snapshot copies the attempt with answers in stable order.
func (a *memAttempt) snapshot() Attempt {
	out := a.Attempt
	if a.SubmittedAt != nil {
		at := *a.SubmittedAt
		out.SubmittedAt = &at
	}
	out.Answers = make([]Answer, 0, len(a.answers))
	for _, ans := range a.answers {
		out.Answers = append(out.Answers, ans)
	}
	sortAnswers(out.Answers)
	return out
}

func sortAnswers(as []Answer) {
	sort.Slice(as, func(i, j int) bool {
		if as[i].SectionID != as[j].SectionID {
			return as[i].SectionID < as[j].SectionID
		}
		return as[i].QuestionID < as[j].QuestionID
	})
}

func summarize(t Test) TestSummary {
	n := 0
	for _, s := range t.Sections {
		n += len(s.Questions)
	}
	return TestSummary{ID: t.ID, Name: t.Name, DurationMin: t.DurationMin, Questions: n, CreatedAt: t.CreatedAt}
}

func page[T any](in []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(in) {
			return in[:0]
		}
		in = in[offset:]
	}
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
