package attempt_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/examportal/pkg/attempt"
)

func newController(svc *fakeService, opts attempt.ControllerOptions) (*attempt.Controller, *attempt.AnswerStore) {
	store := attempt.NewAnswerStore("test-1", svc, attempt.AnswerStoreOptions{Logger: quiet})
	if opts.Logger == nil {
		opts.Logger = quiet
	}
	return attempt.NewController("test-1", svc, store, opts), store
}

func TestController_ManualAndTimeoutSubmitExactlyOnce(t *testing.T) {
	svc := newFakeService(twoByTwo(), attempt.Attempt{})
	svc.submitGate = make(chan struct{})
	var submitted []attempt.Trigger
	var mu sync.Mutex
	c, store := newController(svc, attempt.ControllerOptions{
		OnSubmitted: func(tr attempt.Trigger) {
			mu.Lock()
			submitted = append(submitted, tr)
			mu.Unlock()
		},
	})
	defer c.Close()
	defer store.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = c.RequestSubmit(context.Background(), attempt.Manual) }()
	go func() { defer wg.Done(); c.Expire() }()

	require.Eventually(t, func() bool { _, calls, _ := svc.counts(); return calls == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, attempt.Submitting, c.State())
	close(svc.submitGate)
	wg.Wait()

	// a late click after the fact is still a no-op
	require.NoError(t, c.RequestSubmit(context.Background(), attempt.Manual))

	_, calls, ok := svc.counts()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, ok)
	assert.Equal(t, attempt.Submitted, c.State())
	assert.Len(t, submitted, 1)
	select {
	case <-c.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestController_ManualFailureReturnsToInProgress(t *testing.T) {
	svc := newFakeService(twoByTwo(), attempt.Attempt{})
	svc.submitErrs = []error{errors.New("502 bad gateway")}
	var surfaced []*attempt.SubmitError
	c, store := newController(svc, attempt.ControllerOptions{
		OnError: func(err *attempt.SubmitError) { surfaced = append(surfaced, err) },
	})
	defer c.Close()
	defer store.Close()

	err := c.RequestSubmit(context.Background(), attempt.Manual)
	var serr *attempt.SubmitError
	require.ErrorAs(t, err, &serr)
	assert.True(t, serr.Retryable())
	assert.Equal(t, attempt.Manual, serr.Trigger)
	assert.Len(t, surfaced, 1)

	assert.Equal(t, attempt.InProgress, c.State())
	assert.False(t, store.Frozen(), "student keeps answering after a failed manual submit")

	require.NoError(t, c.RequestSubmit(context.Background(), attempt.Manual))
	assert.Equal(t, attempt.Submitted, c.State())
	assert.True(t, store.Frozen())
}

func TestController_TimeoutFailureRetriesUntilSubmitted(t *testing.T) {
	svc := newFakeService(twoByTwo(), attempt.Attempt{})
	svc.submitErrs = []error{errors.New("offline"), errors.New("offline")}
	c, store := newController(svc, attempt.ControllerOptions{
		RetryMin: 2 * time.Millisecond,
		RetryMax: 5 * time.Millisecond,
	})
	defer c.Close()
	defer store.Close()

	c.Expire()
	assert.True(t, store.Frozen(), "no edits after the deadline even while retrying")

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timeout submission was abandoned")
	}
	_, calls, ok := svc.counts()
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, ok)
}

func TestController_ManualFailureAfterExpiryKeepsRetrying(t *testing.T) {
	svc := newFakeService(twoByTwo(), attempt.Attempt{})
	svc.submitErrs = []error{errors.New("offline"), errors.New("offline")}
	c, store := newController(svc, attempt.ControllerOptions{RetryMin: 2 * time.Millisecond})
	defer c.Close()
	defer store.Close()

	c.Expire() // first failure schedules a retry
	err := c.RequestSubmit(context.Background(), attempt.Manual)
	if err != nil {
		assert.True(t, store.Frozen())
	}
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expired attempt was left unsubmitted")
	}
}

func TestController_AlreadySubmittedCountsAsSuccess(t *testing.T) {
	svc := newFakeService(twoByTwo(), attempt.Attempt{})
	svc.submitErrs = []error{attempt.ErrAlreadySubmitted}
	c, store := newController(svc, attempt.ControllerOptions{})
	defer c.Close()
	defer store.Close()

	require.NoError(t, c.RequestSubmit(context.Background(), attempt.Manual))
	assert.Equal(t, attempt.Submitted, c.State())
}

func TestController_CloseStopsRetries(t *testing.T) {
	svc := newFakeService(twoByTwo(), attempt.Attempt{})
	svc.submitErrs = []error{errors.New("offline")}
	c, store := newController(svc, attempt.ControllerOptions{RetryMin: 20 * time.Millisecond})
	defer store.Close()

	c.Expire()
	c.Close()
	time.Sleep(60 * time.Millisecond)

	_, calls, _ := svc.counts()
	assert.Equal(t, 1, calls)
	assert.Equal(t, attempt.InProgress, c.State())
}

func TestController_SubmitWaitsForInFlightSaves(t *testing.T) {
	svc := newFakeService(twoByTwo(), attempt.Attempt{})
	release := make(chan struct{})
	svc.saveGate = func(attempt.AnswerRecord) { <-release }
	c, store := newController(svc, attempt.ControllerOptions{})
	defer c.Close()
	defer store.Close()

	require.NoError(t, store.SelectOption(key("phy", "q1"), "B"))
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	require.NoError(t, c.RequestSubmit(context.Background(), attempt.Manual))

	rec, ok := svc.remoteRecord(key("phy", "q1"))
	require.True(t, ok, "answer reached the server before submission")
	assert.Equal(t, "B", *rec.SelectedOption)
}
