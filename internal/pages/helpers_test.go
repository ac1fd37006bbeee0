package pages

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"voicecard/internal/domain"
	"voicecard/internal/logging"
	"voicecard/internal/storage"
)

var testNow = time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)

type fakeAssets struct {
	mu        sync.Mutex
	removed   []string
	copies    int
	failCopy  bool
	failRemov bool
}

func (f *fakeAssets) Remove(_ context.Context, kind storage.AssetKind, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, string(kind)+"/"+filename)
	if f.failRemov {
		return errors.New("disk on fire")
	}
	return nil
}

func (f *fakeAssets) Copy(_ context.Context, kind storage.AssetKind, filename string) (domain.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCopy {
		return domain.Asset{}, errors.New("copy failed")
	}
	f.copies++
	name := filename + "-copy" + string(rune('a'+f.copies-1))
	return domain.Asset{Filename: name, URL: "http://cards.test/uploads/" + string(kind) + "/" + name}, nil
}

func (f *fakeAssets) Removed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

type recordedEvent struct {
	topic   string
	payload any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakePublisher) Publish(_ context.Context, topic string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{topic: topic, payload: payload})
	return nil
}

func (f *fakePublisher) Topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.topic)
	}
	return out
}

type fixture struct {
	store     *storage.Store
	manager   *Manager
	assets    *fakeAssets
	publisher *fakePublisher
	clock     *time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	backend, err := storage.NewJSONFile(t.TempDir(), logging.Discard())
	require.NoError(t, err)

	f := &fixture{
		store:     storage.NewStore(backend),
		assets:    &fakeAssets{},
		publisher: &fakePublisher{},
	}
	now := testNow
	f.clock = &now

	base := []Option{
		WithClock(func() time.Time { return *f.clock }),
		WithAssets(f.assets),
		WithPublisher(f.publisher),
		WithLogger(logging.Discard()),
	}
	f.manager = NewManager(f.store, Settings{
		BaseURL:          "http://cards.test/",
		MaxPlays:         5,
		ExpirationDate:   time.Date(2027, time.December, 31, 23, 59, 59, 0, time.UTC),
		MaxAudioDuration: 60 * time.Second,
		ReservedCodes:    []string{"demo"},
		PinCost:          bcrypt.MinCost,
	}, append(base, opts...)...)
	return f
}

func audio(name string, seconds float64) *domain.AudioAsset {
	return &domain.AudioAsset{
		Asset:           domain.Asset{Filename: name, URL: "http://cards.test/uploads/audio/" + name},
		DurationSeconds: seconds,
	}
}
