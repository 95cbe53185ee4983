package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sundayezeilo/linkusage/internal/errx"
	"github.com/sundayezeilo/linkusage/internal/shorten"
	"github.com/sundayezeilo/linkusage/internal/shortener"
)

// sequentialProvider hands out s1, s2, ... so short URLs are predictable.
func sequentialProvider() shorten.Provider {
	var (
		mu sync.Mutex
		n  int
	)
	return shorten.Func(func(context.Context, string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("http://sho.rt/s%d", n), nil
	})
}

func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}

func TestMappings_CreateOrGet(t *testing.T) {
	ctx := context.Background()

	t.Run("second call returns the same mapping", func(t *testing.T) {
		repo := New(sequentialProvider()).Mappings()

		first, created, err := repo.CreateOrGet(ctx, "https://example.com/a")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, int64(1), first.ID)
		assert.True(t, first.Active())

		second, created, err := repo.CreateOrGet(ctx, "https://example.com/a")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first, second)
	})

	t.Run("returns deleted mapping unchanged", func(t *testing.T) {
		repo := New(sequentialProvider()).Mappings()

		m, _, err := repo.CreateOrGet(ctx, "https://example.com/a")
		require.NoError(t, err)
		_, err = repo.SoftDelete(ctx, m.ID)
		require.NoError(t, err)

		again, created, err := repo.CreateOrGet(ctx, "https://example.com/a")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, shortener.StateDeleted, again.State)
		assert.Equal(t, m.ID, again.ID)
	})

	t.Run("provider failure is ShorteningFailed", func(t *testing.T) {
		failing := shorten.Func(func(context.Context, string) (string, error) {
			return "", errors.New("tinyurl down")
		})
		repo := New(failing).Mappings()

		_, _, err := repo.CreateOrGet(ctx, "https://example.com/a")
		assert.Equal(t, errx.ShorteningFailed, errx.KindOf(err))
	})

	t.Run("retries on short url collision", func(t *testing.T) {
		shorts := []string{"http://sho.rt/x", "http://sho.rt/x", "http://sho.rt/y"}
		calls := 0
		p := shorten.Func(func(context.Context, string) (string, error) {
			s := shorts[calls]
			calls++
			return s, nil
		})
		repo := New(p).Mappings()

		_, _, err := repo.CreateOrGet(ctx, "https://example.com/1")
		require.NoError(t, err)
		m, created, err := repo.CreateOrGet(ctx, "https://example.com/2")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "http://sho.rt/y", m.ShortURL)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after repeated collisions", func(t *testing.T) {
		p := shorten.Func(func(context.Context, string) (string, error) { return "http://sho.rt/same", nil })
		repo := New(p).Mappings()

		_, _, err := repo.CreateOrGet(ctx, "https://example.com/1")
		require.NoError(t, err)
		_, _, err = repo.CreateOrGet(ctx, "https://example.com/2")
		assert.Equal(t, errx.ShorteningFailed, errx.KindOf(err))
	})

	t.Run("concurrent callers share one mapping", func(t *testing.T) {
		repo := New(sequentialProvider()).Mappings()

		const callers = 16
		ids := make(chan int64, callers)
		var wg sync.WaitGroup
		for range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m, _, err := repo.CreateOrGet(ctx, "https://example.com/race")
				if err == nil {
					ids <- m.ID
				}
			}()
		}
		wg.Wait()
		close(ids)

		seen := map[int64]bool{}
		for id := range ids {
			seen[id] = true
		}
		assert.Len(t, seen, 1)
	})
}

func TestMappings_Reads(t *testing.T) {
	ctx := context.Background()
	repo := New(sequentialProvider()).Mappings()

	created, _, err := repo.CreateOrGet(ctx, "https://example.com/a")
	require.NoError(t, err)

	byShort, err := repo.GetByShortURL(ctx, created.ShortURL)
	require.NoError(t, err)
	assert.Equal(t, created, byShort)

	byID, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, byID)

	_, err = repo.GetByID(ctx, 99)
	assert.Equal(t, errx.NotFound, errx.KindOf(err))
	_, err = repo.GetByID(ctx, 0)
	assert.Equal(t, errx.NotFound, errx.KindOf(err))
	_, err = repo.GetByShortURL(ctx, "http://sho.rt/nope")
	assert.Equal(t, errx.NotFound, errx.KindOf(err))
}

func TestMappings_SoftDelete(t *testing.T) {
	ctx := context.Background()
	repo := New(sequentialProvider()).Mappings()

	m, _, err := repo.CreateOrGet(ctx, "https://example.com/a")
	require.NoError(t, err)

	deleted, err := repo.SoftDelete(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, deleted.Active())
	assert.Equal(t, m.CreatedAt, deleted.CreatedAt)

	read, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, shortener.StateDeleted, read.State)

	_, err = repo.SoftDelete(ctx, m.ID)
	assert.Equal(t, errx.AlreadyDeleted, errx.KindOf(err))
	assert.ErrorIs(t, err, shortener.ErrAlreadyDeleted)

	_, err = repo.SoftDelete(ctx, 42)
	assert.Equal(t, errx.NotFound, errx.KindOf(err))
}

func TestUsages_Status(t *testing.T) {
	ctx := context.Background()
	store := New(sequentialProvider(), WithClock(tickingClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))
	usages := store.Usages()

	for range 5 {
		_, err := usages.RecordUsage(ctx, 1, "10.0.0.5", 443)
		require.NoError(t, err)
	}
	_, err := usages.RecordUsage(ctx, 2, "10.0.0.6", 80)
	require.NoError(t, err)

	t.Run("count ignores pagination", func(t *testing.T) {
		st, err := usages.Status(ctx, 1, false, shortener.Pagination{MaxResult: 1, Offset: 4})
		require.NoError(t, err)
		assert.False(t, st.FullInfo)
		assert.Equal(t, int64(5), st.Count)
	})

	tests := []struct {
		name string
		page shortener.Pagination
		want int
	}{
		{"first page", shortener.Pagination{MaxResult: 2, Offset: 0}, 2},
		{"last partial page", shortener.Pagination{MaxResult: 2, Offset: 4}, 1},
		{"past the end", shortener.Pagination{MaxResult: 2, Offset: 5}, 0},
		{"default page", shortener.DefaultPagination(), 5},
		{"max int page", shortener.Pagination{MaxResult: math.MaxInt, Offset: 1}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := usages.Status(ctx, 1, true, tt.page)
			require.NoError(t, err)
			assert.True(t, st.FullInfo)
			require.NotNil(t, st.Events)
			assert.Len(t, st.Events, tt.want)
		})
	}

	t.Run("events are chronological", func(t *testing.T) {
		st, err := usages.Status(ctx, 1, true, shortener.DefaultPagination())
		require.NoError(t, err)
		for i := 1; i < len(st.Events); i++ {
			assert.True(t, st.Events[i-1].UsageDatetime.Before(st.Events[i].UsageDatetime))
		}
		assert.Equal(t, "10.0.0.5", st.Events[0].ClientHost)
		assert.Equal(t, 443, st.Events[0].ClientPort)
		assert.Equal(t, int64(1), st.Events[0].URLID)
	})

	t.Run("unknown url has zero usage", func(t *testing.T) {
		st, err := usages.Status(ctx, 77, false, shortener.Pagination{})
		require.NoError(t, err)
		assert.Zero(t, st.Count)
	})
}

func TestStore_Ping(t *testing.T) {
	assert.NoError(t, New(sequentialProvider()).Ping(context.Background()))
}
