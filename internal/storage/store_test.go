package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicecard/internal/domain"
	"voicecard/internal/logging"
)

func newJSONStore(t *testing.T) (*Store, *JSONFile) {
	t.Helper()
	backend, err := NewJSONFile(t.TempDir(), logging.Discard())
	require.NoError(t, err)
	return NewStore(backend), backend
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	store, _ := newJSONStore(t)

	pages, err := store.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestUpsertAndFind(t *testing.T) {
	store, _ := newJSONStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, domain.AudioPage{ID: "1", Code: "AAAA2222", Title: "first"}))
	require.NoError(t, store.Upsert(ctx, domain.AudioPage{ID: "2", Code: "BBBB3333"}))
	require.NoError(t, store.Upsert(ctx, domain.AudioPage{ID: "1", Code: "AAAA2222", Title: "second"}))

	pages, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "AAAA2222", pages[0].Code, "order is preserved")

	page, ok, err := store.FindByCode(ctx, "AAAA2222")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", page.Title)

	_, ok, err = store.FindByCode(ctx, "ZZZZ9999")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemove(t *testing.T) {
	store, _ := newJSONStore(t)
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, domain.AudioPage{Code: "AAAA2222"}))

	removed, err := store.Remove(ctx, "AAAA2222")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.Remove(ctx, "AAAA2222")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestUpdateErrorLeavesStorageUntouched(t *testing.T) {
	store, _ := newJSONStore(t)
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, domain.AudioPage{Code: "AAAA2222", PlayCount: 1}))

	boom := errors.New("boom")
	err := store.Update(ctx, func(pages []domain.AudioPage) ([]domain.AudioPage, error) {
		pages[0].PlayCount = 99
		return pages, boom
	})
	require.ErrorIs(t, err, boom)

	page, _, err := store.FindByCode(ctx, "AAAA2222")
	require.NoError(t, err)
	assert.Equal(t, 1, page.PlayCount)
}

func TestConcurrentUpdatesAreNotLost(t *testing.T) {
	store, _ := newJSONStore(t)
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, domain.AudioPage{Code: "AAAA2222"}))
	require.NoError(t, store.Upsert(ctx, domain.AudioPage{Code: "BBBB3333"}))

	const rounds = 25
	var wg sync.WaitGroup
	for _, code := range []string{"AAAA2222", "BBBB3333"} {
		for i := 0; i < rounds; i++ {
			wg.Add(1)
			go func(code string) {
				defer wg.Done()
				err := store.Update(ctx, func(pages []domain.AudioPage) ([]domain.AudioPage, error) {
					pages[IndexOf(pages, code)].PlayCount++
					return pages, nil
				})
				assert.NoError(t, err)
			}(code)
		}
	}
	wg.Wait()

	for _, code := range []string{"AAAA2222", "BBBB3333"} {
		page, _, err := store.FindByCode(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, rounds, page.PlayCount, code)
	}
}

func TestTwoStoresOnSameFileShareTheFileLock(t *testing.T) {
	dir := t.TempDir()
	a, err := NewJSONFile(dir, logging.Discard())
	require.NoError(t, err)
	b, err := NewJSONFile(dir, logging.Discard())
	require.NoError(t, err)
	storeA, storeB := NewStore(a), NewStore(b)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, storeA.Upsert(ctx, domain.AudioPage{Code: fmt.Sprintf("A%07d", i)}))
		}(i)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, storeB.Upsert(ctx, domain.AudioPage{Code: fmt.Sprintf("B%07d", i)}))
		}(i)
	}
	wg.Wait()

	pages, err := storeA.All(ctx)
	require.NoError(t, err)
	assert.Len(t, pages, 40)
}

func TestMalformedFileIsMovedAside(t *testing.T) {
	store, backend := newJSONStore(t)
	require.NoError(t, os.WriteFile(backend.Path(), []byte("{not json"), 0o644))

	require.NoError(t, store.Upsert(context.Background(), domain.AudioPage{Code: "AAAA2222"}))

	matches, err := filepath.Glob(backend.Path() + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	pages, err := store.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, pages, 1)
}

func TestUnlockedReadLeavesMalformedFileInPlace(t *testing.T) {
	store, backend := newJSONStore(t)
	require.NoError(t, os.WriteFile(backend.Path(), []byte("{not json"), 0o644))

	pages, err := store.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pages)

	_, found, err := store.FindByCode(context.Background(), "AAAA2222")
	require.NoError(t, err)
	assert.False(t, found)

	matches, err := filepath.Glob(backend.Path() + ".corrupt-*")
	require.NoError(t, err)
	assert.Empty(t, matches)

	data, err := os.ReadFile(backend.Path())
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data))
}

func TestFailedSaveKeepsPreviousContent(t *testing.T) {
	store, backend := newJSONStore(t)
	require.NoError(t, store.Upsert(context.Background(), domain.AudioPage{Code: "AAAA2222"}))
	before, err := os.ReadFile(backend.Path())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = backend.Save(ctx, nil)
	require.Error(t, err)

	after, err := os.ReadFile(backend.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	store, backend := newJSONStore(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Upsert(context.Background(), domain.AudioPage{Code: fmt.Sprintf("C%07d", i)}))
	}

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(backend.Path()), "pages-*.json"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

var _ Locker = (*JSONFile)(nil)

func TestJSONFileLockRoundTrip(t *testing.T) {
	_, backend := newJSONStore(t)

	unlock, err := backend.Lock(context.Background())
	require.NoError(t, err)
	unlock()

	unlock, err = backend.Lock(context.Background())
	require.NoError(t, err)
	unlock()
}
