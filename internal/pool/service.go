// Package pool runs rotation engine operations against a persistent store.
//
// Every operation is one load, mutate, save cycle under a single service-wide
// lock, so concurrent operator sessions never overwrite each other's results.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tinywideclouds/go-keypool-service/internal/metrics"
	"github.com/tinywideclouds/go-keypool-service/pkg/keypool"
)

// Service serializes access to a keypool.Store.
type Service struct {
	mu      sync.Mutex
	store   keypool.Store
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics sets the recorder for operation outcomes.
func WithMetrics(r metrics.Recorder) Option {
	return func(s *Service) { s.metrics = r }
}

// WithClock overrides the time source used for lastUsed and exhaustion stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service over store.
func New(store keypool.Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  logger.With("component", "pool_service"),
		metrics: metrics.NoOp{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// mutation is an engine step. It reports whether the pool changed and needs saving.
type mutation func(p *keypool.Pool, now time.Time) (bool, error)

// run performs one locked load, mutate, save cycle and returns the resulting pool.
// On any error the pool is nil. An operation that changed the pool is saved even
// when it is rejected, and its outcome is recorded once, after the save.
func (s *Service) run(ctx context.Context, op string, fn mutation) (keypool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := s.logger.With("operation", op)

	p, err := s.store.Load(ctx)
	if err != nil {
		logger.Error("Failed to load key pool", "err", err)
		s.metrics.RecordOperation(op, metrics.OutcomeError)
		return nil, fmt.Errorf("%w: load: %w", keypool.ErrPersistence, err)
	}

	changed, opErr := fn(&p, s.now())

	if changed {
		if err := s.store.Save(ctx, p); err != nil {
			logger.Error("Failed to save key pool", "err", err)
			s.metrics.RecordOperation(op, metrics.OutcomeError)
			return nil, fmt.Errorf("%w: save: %w", keypool.ErrPersistence, err)
		}
	}
	s.metrics.ObservePool(p.Stats())

	if opErr != nil {
		logger.Debug("Operation rejected", "err", opErr, "changed", changed)
		s.metrics.RecordOperation(op, outcomeOf(opErr))
		return nil, opErr
	}
	s.metrics.RecordOperation(op, metrics.OutcomeSuccess)
	logger.Debug("Operation complete", "changed", changed)
	return p, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, keypool.ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, keypool.ErrNoActiveKeys):
		return metrics.OutcomeEmpty
	case errors.Is(err, keypool.ErrDuplicateName), errors.Is(err, keypool.ErrKeyExhausted):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}

func notFound(name string) error {
	return fmt.Errorf("%w: %s", keypool.ErrNotFound, name)
}

// List returns the pool in rotation order.
func (s *Service) List(ctx context.Context) (keypool.Pool, error) {
	return s.run(ctx, "list", func(p *keypool.Pool, _ time.Time) (bool, error) {
		return false, nil
	})
}

// Get returns the named record.
func (s *Service) Get(ctx context.Context, name string) (keypool.KeyRecord, error) {
	var rec keypool.KeyRecord
	_, err := s.run(ctx, "get", func(p *keypool.Pool, _ time.Time) (bool, error) {
		var ok bool
		if rec, ok = p.Find(name); !ok {
			return false, notFound(name)
		}
		return false, nil
	})
	if err != nil {
		return keypool.KeyRecord{}, err
	}
	return rec, nil
}

// Stats summarizes the pool.
func (s *Service) Stats(ctx context.Context) (keypool.Stats, error) {
	p, err := s.List(ctx)
	if err != nil {
		return keypool.Stats{}, err
	}
	return p.Stats(), nil
}

// Current serves the current key: the active key is resolved (adopting one if
// none is flagged), its lastUsed stamp is refreshed and the pool is saved.
func (s *Service) Current(ctx context.Context) (keypool.KeyRecord, keypool.Pool, error) {
	var rec keypool.KeyRecord
	p, err := s.run(ctx, "current", func(p *keypool.Pool, now time.Time) (bool, error) {
		active, ok := p.GetActive(now)
		if !ok {
			return false, keypool.ErrNoActiveKeys
		}
		// re-serving the same key counts as a use
		p.SelectCurrent(active.Name, now)
		rec, _ = p.Find(active.Name)
		return true, nil
	})
	if err != nil {
		return keypool.KeyRecord{}, nil, err
	}
	return rec, p, nil
}

// Next moves rotation from the current key to the next active one.
func (s *Service) Next(ctx context.Context) (keypool.KeyRecord, keypool.Pool, error) {
	var rec keypool.KeyRecord
	p, err := s.run(ctx, "next", func(p *keypool.Pool, now time.Time) (bool, error) {
		active, ok := p.GetActive(now)
		if !ok {
			return false, keypool.ErrNoActiveKeys
		}
		next, ok := p.Advance(active.Name, now)
		if !ok {
			return true, keypool.ErrNoActiveKeys
		}
		rec = next
		return true, nil
	})
	if err != nil {
		return keypool.KeyRecord{}, nil, err
	}
	return rec, p, nil
}

// Advance selects the next active key after from.
func (s *Service) Advance(ctx context.Context, from string) (keypool.KeyRecord, keypool.Pool, error) {
	var rec keypool.KeyRecord
	p, err := s.run(ctx, "advance", func(p *keypool.Pool, now time.Time) (bool, error) {
		next, ok := p.Advance(from, now)
		if !ok {
			// Advance cleared every current flag, which must be persisted too
			return true, keypool.ErrNoActiveKeys
		}
		rec = next
		return true, nil
	})
	if err != nil {
		return keypool.KeyRecord{}, nil, err
	}
	return rec, p, nil
}

// Exhaust marks the named key exhausted. It does not select a replacement.
func (s *Service) Exhaust(ctx context.Context, name string) (keypool.KeyRecord, error) {
	var rec keypool.KeyRecord
	_, err := s.run(ctx, "exhaust", func(p *keypool.Pool, now time.Time) (bool, error) {
		if !p.MarkExhausted(name, now) {
			return false, notFound(name)
		}
		rec, _ = p.Find(name)
		return true, nil
	})
	if err != nil {
		return keypool.KeyRecord{}, err
	}
	return rec, nil
}

// ExhaustResult is the outcome of ExhaustAndAdvance. Next is nil when no
// active key is left after the exhaustion.
type ExhaustResult struct {
	Exhausted keypool.KeyRecord
	Next      *keypool.KeyRecord
	Pool      keypool.Pool
}

// ExhaustAndAdvance marks the named key exhausted and rotates past it in one
// locked cycle, so no other session can move the current key in between.
// Running out of active keys is not an error; the exhaustion is still saved.
func (s *Service) ExhaustAndAdvance(ctx context.Context, name string) (ExhaustResult, error) {
	var res ExhaustResult
	p, err := s.run(ctx, "exhaust_advance", func(p *keypool.Pool, now time.Time) (bool, error) {
		if !p.MarkExhausted(name, now) {
			return false, notFound(name)
		}
		res.Exhausted, _ = p.Find(name)
		if next, ok := p.Advance(name, now); ok {
			res.Next = &next
		}
		return true, nil
	})
	if err != nil {
		return ExhaustResult{}, err
	}
	res.Pool = p
	return res, nil
}

// Activate returns the named key to rotation.
func (s *Service) Activate(ctx context.Context, name string) (keypool.KeyRecord, error) {
	var rec keypool.KeyRecord
	_, err := s.run(ctx, "activate", func(p *keypool.Pool, _ time.Time) (bool, error) {
		if !p.Activate(name) {
			return false, notFound(name)
		}
		rec, _ = p.Find(name)
		return true, nil
	})
	if err != nil {
		return keypool.KeyRecord{}, err
	}
	return rec, nil
}

// Select makes the named key current.
func (s *Service) Select(ctx context.Context, name string) (keypool.KeyRecord, error) {
	var rec keypool.KeyRecord
	_, err := s.run(ctx, "select", func(p *keypool.Pool, now time.Time) (bool, error) {
		found, ok := p.Find(name)
		if !ok {
			return false, notFound(name)
		}
		if !p.SelectCurrent(name, now) {
			return false, fmt.Errorf("%w: %s", keypool.ErrKeyExhausted, found.Name)
		}
		rec, _ = p.Find(name)
		return true, nil
	})
	if err != nil {
		return keypool.KeyRecord{}, err
	}
	return rec, nil
}

// Reset reactivates every key and makes the first one current.
func (s *Service) Reset(ctx context.Context) (keypool.Pool, error) {
	return s.run(ctx, "reset", func(p *keypool.Pool, _ time.Time) (bool, error) {
		p.ResetAll()
		return true, nil
	})
}

// Add appends a new key to the pool.
func (s *Service) Add(ctx context.Context, rec keypool.KeyRecord) (keypool.KeyRecord, error) {
	var added keypool.KeyRecord
	_, err := s.run(ctx, "add", func(p *keypool.Pool, _ time.Time) (bool, error) {
		if err := p.Add(rec); err != nil {
			return false, err
		}
		added, _ = p.Find(rec.Name)
		return true, nil
	})
	if err != nil {
		return keypool.KeyRecord{}, err
	}
	return added, nil
}

// Remove deletes the named key.
func (s *Service) Remove(ctx context.Context, name string) error {
	_, err := s.run(ctx, "remove", func(p *keypool.Pool, _ time.Time) (bool, error) {
		if !p.Remove(name) {
			return false, notFound(name)
		}
		return true, nil
	})
	return err
}

// Normalize repairs the current pointer of a stored pool, see keypool.Pool.EnsureCurrent.
func (s *Service) Normalize(ctx context.Context) (bool, error) {
	var changed bool
	_, err := s.run(ctx, "normalize", func(p *keypool.Pool, now time.Time) (bool, error) {
		changed = p.EnsureCurrent(now)
		return changed, nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}
