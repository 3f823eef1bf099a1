package attempt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

var ErrClockStarted = errors.New("clock already started")

type ClockOptions struct {
	Now       func() time.Time // defaults to time.Now
	Interval  time.Duration    // tick period, defaults to 1s
	OnTick    func(remaining int)
	OnExpired func()
	Logger    *log.Logger
}

// Clock derives remaining time from the server-issued start timestamp on
// every tick. It never accumulates locally, so reloads, throttled timers and
// drift all converge on the same deadline.
type Clock struct {
	opts ClockOptions

	mu        sync.Mutex
	startedAt time.Time
	duration  time.Duration
	started   bool
	cancelled bool
	expired   bool
	stop      chan struct{}
	done      chan struct{}
}

func NewClock(opts ClockOptions) *Clock {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Clock{
		opts: opts,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// RemainingAt returns duration − (now − startedAt) in whole seconds, floored at 0.
// A client clock behind the server never yields more than the full duration.
func RemainingAt(now, startedAt time.Time, duration time.Duration) int {
	elapsed := now.Sub(startedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	rem := int(duration/time.Second) - int(elapsed/time.Second)
	if rem < 0 {
		return 0
	}
	return rem
}

// Start begins ticking. If the deadline already passed, OnExpired fires
// without any preceding tick.
func (c *Clock) Start(startedAt time.Time, duration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return ErrClockStarted
	}
	if c.cancelled {
		return nil
	}
	c.started = true
	c.startedAt = startedAt
	c.duration = duration
	go c.run()
	return nil
}

// Cancel detaches the listeners. It is safe to call from inside a listener
// and more than once. A listener call the tick loop already dispatched may
// still run to completion; no later tick or expiry follows it.
func (c *Clock) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return
	}
	c.cancelled = true
	close(c.stop)
	if !c.started {
		close(c.done)
	}
}

// Done is closed when the tick loop has exited.
func (c *Clock) Done() <-chan struct{} { return c.done }

func (c *Clock) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return 0
	}
	return RemainingAt(c.opts.Now(), c.startedAt, c.duration)
}

func (c *Clock) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

func (c *Clock) run() {
	defer close(c.done)
	t := time.NewTicker(c.opts.Interval)
	defer t.Stop()
	for {
		if c.step() {
			return
		}
		select {
		case <-c.stop:
			return
		case <-t.C:
		}
	}
}

// step evaluates the deadline once and reports whether the loop is finished.
func (c *Clock) step() bool {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return true
	}
	rem := RemainingAt(c.opts.Now(), c.startedAt, c.duration)
	if rem <= 0 {
		c.expired = true
	}
	c.mu.Unlock()

	if rem <= 0 {
		c.emit(func() {
			if c.opts.OnExpired != nil {
				c.opts.OnExpired()
			}
		})
		return true
	}
	c.emit(func() {
		if c.opts.OnTick != nil {
			c.opts.OnTick(rem)
		}
	})
	return false
}

func (c *Clock) emit(fn func()) {
	c.mu.Lock()
	cancelled := c.cancelled
	c.mu.Unlock()
	if cancelled {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.opts.Logger.Printf("attempt: clock listener panic: %v", r)
		}
	}()
	fn()
}

// FormatRemaining renders seconds the way the exam header shows them.
func FormatRemaining(sec int) string {
	if sec < 0 {
		sec = 0
	}
	h, m, s := sec/3600, (sec%3600)/60, sec%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

type Urgency int

const (
	Calm Urgency = iota
	Warning
	Critical
)

func (u Urgency) String() string {
	switch u {
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	default:
		return "calm"
	}
}

// UrgencyOf buckets the remaining time: under 5 minutes is critical, under 10 a warning.
func UrgencyOf(sec int) Urgency {
	switch {
	case sec < 300:
		return Critical
	case sec < 600:
		return Warning
	default:
		return Calm
	}
}
