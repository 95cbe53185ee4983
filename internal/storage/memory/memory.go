// Package memory is a process-local implementation of the shortener
// repositories, used for STORAGE_BACKEND=memory and in tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sundayezeilo/linkusage/internal/errx"
	"github.com/sundayezeilo/linkusage/internal/shorten"
	"github.com/sundayezeilo/linkusage/internal/shortener"
)

// MaxShortenAttempts bounds retries when the provider returns a short URL that
// is already taken.
const MaxShortenAttempts = 3

var errNotFound = errors.New("not found")

// Store holds mappings and usage events behind a single lock. It satisfies
// shortener.MappingRepository through Mappings() and shortener.UsageRepository
// through Usages().
type Store struct {
	mu        sync.RWMutex
	provider  shorten.Provider
	now       func() time.Time
	mappings  []shortener.Mapping // index = id-1
	byInitial map[string]int64
	byShort   map[string]int64
	usages    map[int64][]shortener.UsageEvent
	nextUsage int64
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, for deterministic timestamps in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(provider shorten.Provider, opts ...Option) *Store {
	s := &Store{
		provider:  provider,
		now:       func() time.Time { return time.Now().UTC() },
		byInitial: make(map[string]int64),
		byShort:   make(map[string]int64),
		usages:    make(map[int64][]shortener.UsageEvent),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Mappings() shortener.MappingRepository { return (*mappingRepo)(s) }
func (s *Store) Usages() shortener.UsageRepository     { return (*usageRepo)(s) }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

type mappingRepo Store

func (r *mappingRepo) CreateOrGet(ctx context.Context, initialURL string) (shortener.Mapping, bool, error) {
	const op = "memory.mappings.CreateOrGet"

	r.mu.RLock()
	id, ok := r.byInitial[initialURL]
	if ok {
		m := r.mappings[id-1]
		r.mu.RUnlock()
		return m, false, nil
	}
	r.mu.RUnlock()

	for range MaxShortenAttempts {
		// The provider may block on the network, so it runs outside the lock.
		short, err := r.provider.Shorten(ctx, initialURL)
		if err != nil {
			return shortener.Mapping{}, false, errx.E(op, errx.ShorteningFailed, err)
		}

		r.mu.Lock()
		if id, ok := r.byInitial[initialURL]; ok {
			m := r.mappings[id-1]
			r.mu.Unlock()
			return m, false, nil
		}
		if _, taken := r.byShort[short]; taken {
			r.mu.Unlock()
			continue
		}
		m := shortener.Mapping{
			ID:         int64(len(r.mappings)) + 1,
			InitialURL: initialURL,
			ShortURL:   short,
			CreatedAt:  r.now(),
			State:      shortener.StateActive,
		}
		r.mappings = append(r.mappings, m)
		r.byInitial[initialURL] = m.ID
		r.byShort[short] = m.ID
		r.mu.Unlock()
		return m, true, nil
	}

	return shortener.Mapping{}, false, errx.E(op, errx.ShorteningFailed,
		fmt.Errorf("short url collided %d times", MaxShortenAttempts))
}

func (r *mappingRepo) GetByID(_ context.Context, id int64) (shortener.Mapping, error) {
	const op = "memory.mappings.GetByID"

	r.mu.RLock()
	defer r.mu.RUnlock()

	if id < 1 || id > int64(len(r.mappings)) {
		return shortener.Mapping{}, errx.E(op, errx.NotFound, fmt.Errorf("mapping %d: %w", id, errNotFound))
	}
	return r.mappings[id-1], nil
}

func (r *mappingRepo) GetByShortURL(_ context.Context, shortURL string) (shortener.Mapping, error) {
	const op = "memory.mappings.GetByShortURL"

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byShort[shortURL]
	if !ok {
		return shortener.Mapping{}, errx.E(op, errx.NotFound, fmt.Errorf("short url %q: %w", shortURL, errNotFound))
	}
	return r.mappings[id-1], nil
}

func (r *mappingRepo) SoftDelete(_ context.Context, id int64) (shortener.Mapping, error) {
	const op = "memory.mappings.SoftDelete"

	r.mu.Lock()
	defer r.mu.Unlock()

	if id < 1 || id > int64(len(r.mappings)) {
		return shortener.Mapping{}, errx.E(op, errx.NotFound, fmt.Errorf("mapping %d: %w", id, errNotFound))
	}
	m := r.mappings[id-1]
	next, err := m.State.Delete()
	if err != nil {
		return shortener.Mapping{}, errx.E(op, errx.AlreadyDeleted, fmt.Errorf("mapping %d: %w", id, err))
	}
	m.State = next
	r.mappings[id-1] = m
	return m, nil
}

type usageRepo Store

func (r *usageRepo) RecordUsage(_ context.Context, urlID int64, clientHost string, clientPort int) (shortener.UsageEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextUsage++
	ev := shortener.UsageEvent{
		ID:            r.nextUsage,
		URLID:         urlID,
		UsageDatetime: r.now(),
		ClientHost:    clientHost,
		ClientPort:    clientPort,
	}
	r.usages[urlID] = append(r.usages[urlID], ev)
	return ev, nil
}

func (r *usageRepo) Status(_ context.Context, urlID int64, fullInfo bool, page shortener.Pagination) (shortener.UsageStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.usages[urlID]
	if !fullInfo {
		return shortener.UsageStatus{Count: int64(len(events))}, nil
	}

	sorted := make([]shortener.UsageEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].UsageDatetime.Equal(sorted[j].UsageDatetime) {
			return sorted[i].UsageDatetime.Before(sorted[j].UsageDatetime)
		}
		return sorted[i].ID < sorted[j].ID
	})

	out := []shortener.UsageEvent{}
	offset := max(page.Offset, 0)
	if offset < len(sorted) && page.MaxResult > 0 {
		end := len(sorted)
		if page.MaxResult < end-offset {
			end = offset + page.MaxResult
		}
		out = append(out, sorted[offset:end]...)
	}
	return shortener.UsageStatus{FullInfo: true, Events: out}, nil
}
