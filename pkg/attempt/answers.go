package attempt

import (
	"context"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Saver persists one answer upsert. attempt.Service satisfies it.
type Saver interface {
	SaveAnswer(ctx context.Context, testID string, rec AnswerRecord) error
}

type AnswerStoreOptions struct {
	MaxConcurrentSaves int64         // across keys; defaults to 4
	SaveTimeout        time.Duration // per request; defaults to 10s
	Now                func() time.Time
	Logger             *log.Logger
	OnSaveError        func(rec AnswerRecord, err error)
}

// AnswerStore keeps the authoritative local answers and persists them in the
// background. Saves for one key are sent strictly one after another and
// coalesce to the newest value, so the last local write is the last one the
// server sees. Different keys save concurrently.
type AnswerStore struct {
	testID string
	saver  Saver
	sem    *semaphore.Weighted
	opts   AnswerStoreOptions

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	records map[Key]AnswerRecord
	slots   map[Key]*saveSlot
	lastSeq int64
	frozen  bool
	running int
	idle    chan struct{}
}

type saveSlot struct {
	pending *AnswerRecord
	running bool
	acked   int64 // seq of the newest value the server confirmed
	failed  bool  // the newest value sent was rejected
}

func NewAnswerStore(testID string, saver Saver, opts AnswerStoreOptions) *AnswerStore {
	if opts.MaxConcurrentSaves <= 0 {
		opts.MaxConcurrentSaves = 4
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AnswerStore{
		testID:  testID,
		saver:   saver,
		sem:     semaphore.NewWeighted(opts.MaxConcurrentSaves),
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		records: map[Key]AnswerRecord{},
		slots:   map[Key]*saveSlot{},
	}
}

// SelectOption records an mcq choice and clears the numerical channel.
func (s *AnswerStore) SelectOption(k Key, opt string) error {
	if !validOption(opt) {
		return ErrInvalidAnswer
	}
	return s.put(AnswerRecord{SectionID: k.SectionID, QuestionID: k.QuestionID, SelectedOption: &opt})
}

// SetNumber records a numerical answer and clears the option channel.
// NaN and infinities are rejected; they cannot be sent to the server.
func (s *AnswerStore) SetNumber(k Key, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ErrInvalidAnswer
	}
	return s.put(AnswerRecord{SectionID: k.SectionID, QuestionID: k.QuestionID, NumericalAnswer: &v})
}

// Clear sets both channels absent and persists the empty record.
func (s *AnswerStore) Clear(k Key) error {
	return s.put(AnswerRecord{SectionID: k.SectionID, QuestionID: k.QuestionID})
}

func (s *AnswerStore) put(rec AnswerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return ErrFrozen
	}
	rec.Seq = s.nextSeq()
	s.records[rec.Key()] = rec
	s.schedule(rec)
	return nil
}

// nextSeq is wall-clock based so a reloaded session keeps outranking the
// values it hydrated from the server.
func (s *AnswerStore) nextSeq() int64 {
	n := s.opts.Now().UnixNano()
	if n <= s.lastSeq {
		n = s.lastSeq + 1
	}
	s.lastSeq = n
	return n
}

func (s *AnswerStore) Get(k Key) (AnswerRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[k]
	return rec, ok
}

func (s *AnswerStore) HasAnswer(k Key) bool {
	rec, ok := s.Get(k)
	return ok && rec.HasAnswer()
}

// Records returns a stable-ordered copy of every local record, cleared ones included.
func (s *AnswerStore) Records() []AnswerRecord {
	s.mu.Lock()
	out := make([]AnswerRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key().String() < out[j].Key().String() })
	return out
}

// Hydrate replaces local state with answers saved by an earlier session.
// Nothing is persisted.
func (s *AnswerStore) Hydrate(recs []AnswerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return ErrFrozen
	}
	s.records = make(map[Key]AnswerRecord, len(recs))
	for _, r := range recs {
		s.records[r.Key()] = r
		if r.Seq > s.lastSeq {
			s.lastSeq = r.Seq
		}
	}
	return nil
}

func (s *AnswerStore) Freeze() {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
}

func (s *AnswerStore) Thaw() {
	s.mu.Lock()
	s.frozen = false
	s.mu.Unlock()
}

func (s *AnswerStore) Frozen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frozen
}

// Sync resends every key whose newest value failed to persist, then waits
// for all in-flight saves. Used right before submission.
func (s *AnswerStore) Sync(ctx context.Context) error {
	s.mu.Lock()
	for k, sl := range s.slots {
		if sl.failed && !sl.running && sl.pending == nil {
			s.schedule(s.records[k])
		}
	}
	s.mu.Unlock()
	return s.Wait(ctx)
}

// Wait blocks until no save is in flight or ctx is done.
func (s *AnswerStore) Wait(ctx context.Context) error {
	s.mu.Lock()
	if s.running == 0 {
		s.mu.Unlock()
		return nil
	}
	if s.idle == nil {
		s.idle = make(chan struct{})
	}
	ch := s.idle
	s.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close aborts queued and in-flight saves.
func (s *AnswerStore) Close() { s.cancel() }

// schedule queues rec behind any in-flight save for the same key. s.mu held.
func (s *AnswerStore) schedule(rec AnswerRecord) {
	k := rec.Key()
	sl, ok := s.slots[k]
	if !ok {
		sl = &saveSlot{}
		s.slots[k] = sl
	}
	sl.pending = &rec
	if sl.running {
		return
	}
	sl.running = true
	s.running++
	go s.drain(sl)
}

func (s *AnswerStore) drain(sl *saveSlot) {
	for {
		s.mu.Lock()
		rec := sl.pending
		if rec == nil {
			sl.running = false
			s.running--
			if s.running == 0 && s.idle != nil {
				close(s.idle)
				s.idle = nil
			}
			s.mu.Unlock()
			return
		}
		sl.pending = nil
		s.mu.Unlock()

		err := s.send(*rec)

		s.mu.Lock()
		sl.failed = err != nil
		if err == nil && rec.Seq > sl.acked {
			sl.acked = rec.Seq
		}
		s.mu.Unlock()

		if err != nil {
			s.opts.Logger.Printf("attempt: save %s failed: %v", rec.Key(), err)
			if s.opts.OnSaveError != nil {
				s.opts.OnSaveError(*rec, err)
			}
		}
	}
}

func (s *AnswerStore) send(rec AnswerRecord) error {
	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.SaveTimeout)
	defer cancel()
	return s.saver.SaveAnswer(ctx, s.testID, rec)
}
