package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/shortsmith/api/internal/model"
)

// Completer finishes an authorization from its code.
type Completer interface {
	CompleteAuthorization(ctx context.Context, code, state string) (*model.TokenRecord, error)
}

type relayEntry struct {
	createdAt time.Time
	inflight  bool
	done      chan struct{}
	res       *model.Resolution
}

// SignalRelay turns the outcome reported by the authorization window into
// one Resolution per state. The first signal for a state settles it; later
// signals get the same answer.
type SignalRelay struct {
	mu        sync.Mutex
	entries   map[string]*relayEntry
	completer Completer
	ttl       time.Duration
	notify    func(*model.Resolution)
	validate  *validator.Validate
	now       func() time.Time
	logger    arbor.ILogger
}

func newSignalRelay(completer Completer, ttl time.Duration, logger arbor.ILogger) *SignalRelay {
	return &SignalRelay{
		entries:   make(map[string]*relayEntry),
		completer: completer,
		ttl:       ttl,
		validate:  validator.New(),
		now:       time.Now,
		logger:    logger,
	}
}

// OnResolved registers fn to be called once per settled state.
func (r *SignalRelay) OnResolved(fn func(*model.Resolution)) {
	r.mu.Lock()
	r.notify = fn
	r.mu.Unlock()
}

// Expect registers a state that a signal will later settle.
func (r *SignalRelay) Expect(state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entryLocked(state)
}

func (r *SignalRelay) entryLocked(state string) *relayEntry {
	e, ok := r.entries[state]
	if !ok {
		e = &relayEntry{createdAt: r.now(), done: make(chan struct{})}
		r.entries[state] = e
	}
	return e
}

// Publish settles the state named by sig. A code signal runs the token
// exchange; success and error signals only record what the window saw and
// must refer to a state this relay expects.
func (r *SignalRelay) Publish(ctx context.Context, sig model.Signal) (*model.Resolution, error) {
	if err := r.validate.Struct(sig); err != nil {
		return nil, fmt.Errorf("invalid signal: %w", err)
	}

	r.mu.Lock()
	e, known := r.entries[sig.State]
	if !known {
		if sig.Type != model.SignalCode {
			r.mu.Unlock()
			return nil, model.ErrInvalidState
		}
		// a restart loses the relay, the persisted state still decides
		e = r.entryLocked(sig.State)
	}
	if e.res != nil || e.inflight {
		r.mu.Unlock()
		return r.wait(ctx, e)
	}
	e.inflight = true
	r.mu.Unlock()

	res, err := r.resolve(ctx, sig)
	rejected := !known && errors.Is(err, model.ErrInvalidState)

	r.mu.Lock()
	e.res = res
	e.inflight = false
	close(e.done)
	if rejected && r.entries[sig.State] == e {
		delete(r.entries, sig.State)
	}
	notify := r.notify
	r.mu.Unlock()

	if rejected {
		r.logger.Warn().Msg("OAuth code signal for unknown state rejected")
		return res, nil
	}
	r.logger.Info().Str("type", string(sig.Type)).Bool("success", res.Success).Msg("OAuth signal resolved")
	if notify != nil {
		notify(res)
	}
	return res, nil
}

// resolve also returns the exchange error so Publish can tell a state the
// connector never issued from a failed exchange.
func (r *SignalRelay) resolve(ctx context.Context, sig model.Signal) (*model.Resolution, error) {
	res := &model.Resolution{State: sig.State, ResolvedAt: r.now().UTC()}

	switch sig.Type {
	case model.SignalCode:
		if sig.Code == "" {
			res.Error = "authorization code missing"
			return res, nil
		}
		rec, err := r.completer.CompleteAuthorization(ctx, sig.Code, sig.State)
		if err != nil {
			res.Error = err.Error()
			return res, err
		}
		res.Success = true
		res.IdentityName = rec.ChannelName
	case model.SignalSuccess:
		res.Success = true
		res.IdentityName = sig.IdentityName
	case model.SignalError:
		res.Error = sig.Message
		if res.Error == "" {
			res.Error = "authorization was not completed"
		}
	}
	return res, nil
}

// Await blocks until state is settled or ctx ends.
func (r *SignalRelay) Await(ctx context.Context, state string) (*model.Resolution, error) {
	r.mu.Lock()
	e, ok := r.entries[state]
	r.mu.Unlock()
	if !ok {
		return nil, model.ErrInvalidState
	}
	return r.wait(ctx, e)
}

func (r *SignalRelay) wait(ctx context.Context, e *relayEntry) (*model.Resolution, error) {
	select {
	case <-e.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		res := *e.res
		return &res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Sweep forgets entries older than the state TTL and returns how many.
// Unsettled entries still have waiters blocked on their own deadlines.
func (r *SignalRelay) Sweep(now time.Time) int {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for state, e := range r.entries {
		if now.Sub(e.createdAt) > r.ttl && !e.inflight {
			delete(r.entries, state)
			removed++
		}
	}
	return removed
}
