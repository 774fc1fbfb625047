package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/planqk-cli/internal/domain"
	"github.com/bnema/planqk-cli/internal/mailbox"
	"github.com/bnema/planqk-cli/internal/ports"
	"github.com/rs/zerolog"
)

type RefresherState string

const (
	RefresherRunning    RefresherState = "running"
	RefresherRefreshing RefresherState = "refreshing"
	RefresherCancelled  RefresherState = "cancelled"
	RefresherFailed     RefresherState = "failed"
)

// RenewFunc produces the successor of the current credential.
type RenewFunc func(ctx context.Context, current domain.Credential) (domain.Credential, error)

// RenewedFunc runs after a renewed credential has been published. Readers are
// no longer blocked while it runs.
type RenewedFunc func(ctx context.Context, next domain.Credential)

// IntervalFunc returns how long to wait before renewing current.
type IntervalFunc func(current domain.Credential) time.Duration

// Refresher is the only writer of a credential mailbox. It renews the held
// credential on a schedule until it is stopped or a renewal fails, in which
// case it publishes the empty sentinel credential and exits.
type Refresher struct {
	tokens   *mailbox.Mailbox[domain.Credential]
	renew    RenewFunc
	renewed  RenewedFunc
	interval IntervalFunc
	clock    ports.Clock
	logger   zerolog.Logger

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	mu    sync.Mutex
	state RefresherState
	err   error
}

// StartRefresher spawns the refresh loop. tokens must already be seeded.
// renewed may be nil.
func StartRefresher(tokens *mailbox.Mailbox[domain.Credential], renew RenewFunc, renewed RenewedFunc, interval IntervalFunc, clock ports.Clock, logger zerolog.Logger) *Refresher {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Refresher{
		tokens:   tokens,
		renew:    renew,
		renewed:  renewed,
		interval: interval,
		clock:    clock,
		logger:   logger,
		cancel:   cancel,
		done:     make(chan struct{}),
		state:    RefresherRunning,
	}

	go r.run(ctx)
	return r
}

// Stop requests cancellation and returns without waiting for the loop to exit.
func (r *Refresher) Stop() {
	r.stopOnce.Do(r.cancel)
}

// Done is closed once the loop has exited.
func (r *Refresher) Done() <-chan struct{} {
	return r.done
}

func (r *Refresher) State() RefresherState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns why the loop exited: the renewal error, or
// domain.ErrConnectionClosed after Stop. It is nil while running.
func (r *Refresher) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Refresher) run(ctx context.Context) {
	defer close(r.done)
	defer func() {
		if p := recover(); p != nil {
			if _, full := r.tokens.TryPeek(); !full {
				r.tokens.Publish(domain.Credential{})
			}
			r.setState(RefresherFailed, fmt.Errorf("refresher panicked: %v", p))
			r.logger.Error().Interface("panic", p).Msg("refresher crashed, connection must be reopened")
		}
	}()

	for {
		wait := r.interval(r.tokens.Peek())
		r.logger.Debug().Dur("in", wait).Msg("next credential refresh scheduled")

		select {
		case <-ctx.Done():
			r.stopped()
			return
		case <-r.clock.After(wait):
		}

		// Cancellation may win the race against the timer.
		if ctx.Err() != nil {
			r.stopped()
			return
		}

		r.setState(RefresherRefreshing, nil)
		current := r.tokens.TakeForUpdate()

		next, err := r.safeRenew(ctx, current)
		if err != nil {
			if ctx.Err() != nil {
				r.tokens.Publish(current)
				r.stopped()
				return
			}
			r.tokens.Publish(domain.Credential{})
			r.setState(RefresherFailed, err)
			r.logger.Error().Err(err).Msg("credential refresh failed, connection must be reopened")
			return
		}

		r.tokens.Publish(next)
		r.setState(RefresherRunning, nil)
		r.logger.Debug().Str("kind", string(next.Kind)).Msg("credential refreshed")

		if r.renewed != nil {
			r.afterRenew(ctx, next)
		}
	}
}

// safeRenew turns a panicking renewal into an ordinary failure.
func (r *Refresher) safeRenew(ctx context.Context, current domain.Credential) (next domain.Credential, err error) {
	defer func() {
		if p := recover(); p != nil {
			next = domain.Credential{}
			err = fmt.Errorf("credential renewal panicked: %v", p)
		}
	}()

	return r.renew(ctx, current)
}

func (r *Refresher) afterRenew(ctx context.Context, next domain.Credential) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Msg("post-refresh hook panicked")
		}
	}()

	r.renewed(ctx, next)
}

func (r *Refresher) stopped() {
	r.setState(RefresherCancelled, domain.ErrConnectionClosed)
	r.logger.Info().Msg("refresher stopped")
}

func (r *Refresher) setState(state RefresherState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
	r.err = err
}
