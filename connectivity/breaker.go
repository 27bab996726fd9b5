package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State is where a Breaker stands.
type State int

const (
	Closed   State = iota // calls pass
	Open                  // calls rejected until the cooldown ends
	HalfOpen              // trial calls decide between Closed and Open
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Breaker guards one remote service. It opens after threshold consecutive
// retryable failures and rejects calls for the cooldown. It then lets trial
// calls through: probes successes in a row close it, one failure reopens it.
// Client errors and cancellations are not held against the service.
type Breaker struct {
	service   string
	threshold int
	probes    int
	cooldown  time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// Threshold sets the consecutive failures that open the breaker. Default 5.
func Threshold(n int) BreakerOption { return func(b *Breaker) { b.threshold = n } }

// Cooldown sets how long an open breaker rejects calls. Default 30s.
func Cooldown(d time.Duration) BreakerOption { return func(b *Breaker) { b.cooldown = d } }

// Probes sets the half-open successes needed to close. Default 2.
func Probes(n int) BreakerOption { return func(b *Breaker) { b.probes = n } }

// BreakerClock replaces time.Now.
func BreakerClock(now func() time.Time) BreakerOption { return func(b *Breaker) { b.now = now } }

// BreakerLogger receives one line per state change. Default slog.Default().
func BreakerLogger(l *slog.Logger) BreakerOption {
	return func(b *Breaker) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBreaker returns a closed breaker for service.
func NewBreaker(service string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		service:   service,
		threshold: 5,
		probes:    2,
		cooldown:  30 * time.Second,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Service returns the guarded service name.
func (b *Breaker) Service() string { return b.service }

// State returns the current state, moving Open to HalfOpen once the cooldown
// has passed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cool()
	return b.state
}

// Check returns nil when a call may go out, or *ErrCircuitOpen carrying the
// time left before trial calls are allowed.
func (b *Breaker) Check() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cool()
	if b.state != Open {
		return nil
	}
	return &ErrCircuitOpen{Service: b.service, RetryAfter: b.cooldown - b.now().Sub(b.openedAt)}
}

// Observe records the outcome of one call.
func (b *Breaker) Observe(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cool()
	switch {
	case err == nil:
		b.failures = 0
		if b.state == HalfOpen {
			b.successes++
			if b.successes >= b.probes {
				b.set(Closed, nil)
			}
		}
	case errors.Is(err, context.Canceled) || !IsRetryable(err):
	default:
		b.failures++
		if b.state == HalfOpen || (b.state == Closed && b.failures >= b.threshold) {
			b.set(Open, err)
		}
	}
}

// Reset closes the breaker and forgets past failures.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.state != Closed {
		b.set(Closed, nil)
	}
}

// cool moves Open to HalfOpen after the cooldown. Caller holds mu.
func (b *Breaker) cool() {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cooldown {
		b.set(HalfOpen, nil)
	}
}

// set changes state and logs it. Caller holds mu.
func (b *Breaker) set(s State, cause error) {
	from := b.state
	b.state = s
	b.successes = 0
	switch s {
	case Open:
		b.openedAt = b.now()
		b.logger.Warn("connectivity: breaker opened",
			"service", b.service, "from", from.String(), "failures", b.failures,
			"cooldown", b.cooldown, "error", cause)
	case Closed:
		b.failures = 0
		b.logger.Info("connectivity: breaker closed", "service", b.service, "from", from.String())
	default:
		b.logger.Info("connectivity: breaker half-open", "service", b.service)
	}
}

// WithBreaker rejects calls with *ErrCircuitOpen while b is open and feeds
// every outcome back into it.
func WithBreaker(b *Breaker) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			if err := b.Check(); err != nil {
				return nil, err
			}
			resp, err := next(ctx, payload)
			b.Observe(err)
			return resp, err
		}
	}
}
