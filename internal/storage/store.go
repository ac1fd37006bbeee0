package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"voicecard/internal/domain"
)

// Backend persists the whole page collection at once.
type Backend interface {
	Load(ctx context.Context) ([]domain.AudioPage, error)
	Save(ctx context.Context, pages []domain.AudioPage) error
}

// Locker is implemented by backends that can exclude other processes for the
// duration of a read-modify-write cycle.
type Locker interface {
	Lock(ctx context.Context) (func(), error)
}

// ErrNoChange may be returned by an Update callback to skip the write.
var ErrNoChange = errors.New("no change")

// Store serializes every mutation of the collection. Reads go straight to
// the backend.
type Store struct {
	mu      sync.Mutex
	backend Backend
}

func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

func (s *Store) All(ctx context.Context) ([]domain.AudioPage, error) {
	return s.backend.Load(ctx)
}

// FindByCode returns the first page stored under code.
func (s *Store) FindByCode(ctx context.Context, code string) (domain.AudioPage, bool, error) {
	pages, err := s.backend.Load(ctx)
	if err != nil {
		return domain.AudioPage{}, false, err
	}
	if idx := indexOf(pages, code); idx >= 0 {
		return pages[idx], true, nil
	}
	return domain.AudioPage{}, false, nil
}

// Update runs fn on a fresh snapshot and persists what it returns, all while
// holding the store lock. Returning an error from fn leaves storage untouched.
func (s *Store) Update(ctx context.Context, fn func(pages []domain.AudioPage) ([]domain.AudioPage, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if locker, ok := s.backend.(Locker); ok {
		unlock, err := locker.Lock(ctx)
		if err != nil {
			return err
		}
		defer unlock()
	}

	ctx = withWriteLock(ctx)
	pages, err := s.backend.Load(ctx)
	if err != nil {
		return err
	}

	updated, err := fn(pages)
	if errors.Is(err, ErrNoChange) {
		return nil
	}
	if err != nil {
		return err
	}

	return s.backend.Save(ctx, updated)
}

// Upsert replaces the page with the same code or appends it.
func (s *Store) Upsert(ctx context.Context, page domain.AudioPage) error {
	return s.Update(ctx, func(pages []domain.AudioPage) ([]domain.AudioPage, error) {
		if idx := indexOf(pages, page.Code); idx >= 0 {
			pages[idx] = page
			return pages, nil
		}
		return append(pages, page), nil
	})
}

// Remove deletes every page stored under code and reports whether any existed.
func (s *Store) Remove(ctx context.Context, code string) (bool, error) {
	removed := false
	err := s.Update(ctx, func(pages []domain.AudioPage) ([]domain.AudioPage, error) {
		var n int
		pages, n = RemoveCode(pages, code)
		if n == 0 {
			return nil, ErrNoChange
		}
		removed = true
		return pages, nil
	})
	return removed, err
}

// Close releases backend resources when the backend holds any.
func (s *Store) Close() error {
	if closer, ok := s.backend.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("close store backend: %w", err)
		}
	}
	return nil
}

type writeLockKey struct{}

// withWriteLock marks ctx as running inside Update, where backends may repair
// what they read.
func withWriteLock(ctx context.Context) context.Context {
	return context.WithValue(ctx, writeLockKey{}, true)
}

func holdsWriteLock(ctx context.Context) bool {
	held, _ := ctx.Value(writeLockKey{}).(bool)
	return held
}

// IndexOf returns the position of code in pages or -1.
func IndexOf(pages []domain.AudioPage, code string) int {
	return indexOf(pages, code)
}

// RemoveCode filters out every page under code, returning the count removed.
func RemoveCode(pages []domain.AudioPage, code string) ([]domain.AudioPage, int) {
	kept := pages[:0]
	removed := 0
	for _, p := range pages {
		if p.Code == code {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	return kept, removed
}

func indexOf(pages []domain.AudioPage, code string) int {
	for i, p := range pages {
		if p.Code == code {
			return i
		}
	}
	return -1
}
