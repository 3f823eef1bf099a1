package attempt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

type Trigger int

const (
	Manual Trigger = iota
	Timeout
)

func (t Trigger) String() string {
	if t == Timeout {
		return "timeout"
	}
	return "manual"
}

type State int

const (
	InProgress State = iota
	Submitting
	Submitted
)

func (s State) String() string {
	switch s {
	case Submitting:
		return "submitting"
	case Submitted:
		return "submitted"
	default:
		return "in_progress"
	}
}

// SubmitError is a failed submission. The controller is back in InProgress
// and the user may try again; timeout submissions retry on their own.
type SubmitError struct {
	Trigger Trigger
	Err     error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit (%s): %v", e.Trigger, e.Err)
}

func (e *SubmitError) Unwrap() error   { return e.Err }
func (e *SubmitError) Retryable() bool { return true }

type Submitter interface {
	SubmitAttempt(ctx context.Context, testID string) error
}

// answerGate is the part of AnswerStore the controller drives.
type answerGate interface {
	Freeze()
	Thaw()
	Sync(ctx context.Context) error
}

type ControllerOptions struct {
	RetryMin      time.Duration // first timeout retry delay, defaults to 1s
	RetryMax      time.Duration // backoff cap, defaults to 30s
	SyncTimeout   time.Duration // wait for in-flight saves, defaults to 5s
	SubmitTimeout time.Duration // defaults to 30s
	Logger        *log.Logger
	OnSubmitted   func(Trigger)
	OnError       func(*SubmitError)
}

// Controller is the only writer of the terminal state. It moves
// InProgress → Submitting → Submitted exactly once.
type Controller struct {
	testID  string
	svc     Submitter
	answers answerGate
	opts    ControllerOptions

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	expired bool
	closed  bool
	backoff time.Duration
	retry   *time.Timer
	done    chan struct{}
}

func NewController(testID string, svc Submitter, answers answerGate, opts ControllerOptions) *Controller {
	if opts.RetryMin <= 0 {
		opts.RetryMin = time.Second
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = 30 * time.Second
	}
	if opts.RetryMax < opts.RetryMin {
		opts.RetryMax = opts.RetryMin
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = 5 * time.Second
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		testID:  testID,
		svc:     svc,
		answers: answers,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the attempt is Submitted.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Expire is the deadline edge: answers freeze first, then a Timeout
// submission starts. Nothing is accepted from the user after this returns.
func (c *Controller) Expire() {
	c.mu.Lock()
	c.expired = true
	c.mu.Unlock()
	c.answers.Freeze()
	_ = c.RequestSubmit(c.ctx, Timeout)
}

// RequestSubmit submits the attempt. Calls made while Submitting or after
// Submitted return nil without contacting the service. Manual callers must
// have confirmed with the user already.
func (c *Controller) RequestSubmit(ctx context.Context, trigger Trigger) error {
	c.mu.Lock()
	if trigger == Timeout {
		c.expired = true
	}
	if c.state != InProgress || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.state = Submitting
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	c.mu.Unlock()

	c.answers.Freeze()
	err := c.submit(ctx)

	c.mu.Lock()
	if err == nil {
		c.state = Submitted
		close(c.done)
		c.mu.Unlock()
		c.opts.Logger.Printf("attempt: test %s submitted (%s)", c.testID, trigger)
		if c.opts.OnSubmitted != nil {
			c.opts.OnSubmitted(trigger)
		}
		return nil
	}
	c.state = InProgress
	if c.expired {
		if !c.closed {
			c.scheduleRetry()
		}
	} else {
		c.answers.Thaw()
	}
	c.mu.Unlock()

	serr := &SubmitError{Trigger: trigger, Err: err}
	c.opts.Logger.Printf("attempt: %v", serr)
	if c.opts.OnError != nil {
		c.opts.OnError(serr)
	}
	return serr
}

func (c *Controller) submit(ctx context.Context) error {
	syncCtx, cancel := context.WithTimeout(ctx, c.opts.SyncTimeout)
	if err := c.answers.Sync(syncCtx); err != nil {
		c.opts.Logger.Printf("attempt: submitting test %s with saves still pending: %v", c.testID, err)
	}
	cancel()

	subCtx, cancel := context.WithTimeout(ctx, c.opts.SubmitTimeout)
	defer cancel()
	err := c.svc.SubmitAttempt(subCtx, c.testID)
	if errors.Is(err, ErrAlreadySubmitted) {
		// an earlier request landed but its response was lost
		return nil
	}
	return err
}

// scheduleRetry runs with c.mu held.
func (c *Controller) scheduleRetry() {
	if c.backoff == 0 {
		c.backoff = c.opts.RetryMin
	} else {
		c.backoff *= 2
		if c.backoff > c.opts.RetryMax {
			c.backoff = c.opts.RetryMax
		}
	}
	c.retry = time.AfterFunc(c.backoff, func() {
		_ = c.RequestSubmit(c.ctx, Timeout)
	})
}

// Close stops pending retries. An in-flight request is cancelled.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	c.mu.Unlock()
	c.cancel()
}
