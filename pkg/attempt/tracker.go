package attempt

import "sync"

// QuestionUIState is client-only and lost on reload.
type QuestionUIState struct {
	Visited         bool
	MarkedForReview bool
}

// Tracker holds the per-question visited and review flags. Both flags only
// ever go from false to true within a session.
type Tracker struct {
	mu    sync.RWMutex
	state map[Key]QuestionUIState
}

func NewTracker() *Tracker {
	return &Tracker{state: map[Key]QuestionUIState{}}
}

func (t *Tracker) MarkVisited(k Key) {
	t.mu.Lock()
	st := t.state[k]
	st.Visited = true
	t.state[k] = st
	t.mu.Unlock()
}

// MarkForReview also marks the question visited; a question can only be
// marked from the question view.
func (t *Tracker) MarkForReview(k Key) {
	t.mu.Lock()
	t.state[k] = QuestionUIState{Visited: true, MarkedForReview: true}
	t.mu.Unlock()
}

func (t *Tracker) State(k Key) QuestionUIState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state[k]
}
