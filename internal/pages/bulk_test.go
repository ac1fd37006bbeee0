package pages

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicecard/internal/domain"
	"voicecard/internal/events"
	"voicecard/internal/logging"
)

func TestProvisionCreatesBlankPages(t *testing.T) {
	f := newFixture(t)
	bulk := NewBulk(f.manager, f.assets, BulkSettings{Quantities: []int{1, 5, 10}})
	ctx := context.Background()

	created, err := bulk.Provision(ctx, 5)
	require.NoError(t, err)
	require.Len(t, created, 5)

	codes := map[string]bool{}
	for _, p := range created {
		assert.Regexp(t, codePattern, p.Code)
		assert.Equal(t, domain.SourceBulk, p.Source)
		assert.False(t, p.IsPersonalized)
		assert.Empty(t, p.AudioURL)
		codes[p.Code] = true
	}
	assert.Len(t, codes, 5)

	stored, err := f.manager.List(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 5)
}

func TestProvisionRejectsUnlistedQuantity(t *testing.T) {
	f := newFixture(t)
	bulk := NewBulk(f.manager, f.assets, BulkSettings{Quantities: []int{1, 5, 10}})

	_, err := bulk.Provision(context.Background(), 7)
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, []int{1, 5, 10}, bulk.Quantities())
}

func TestGenerateSiblingsCopiesContent(t *testing.T) {
	f := newFixture(t)
	bulk := NewBulk(f.manager, f.assets, BulkSettings{})
	ctx := context.Background()

	source, err := f.manager.Create(ctx, CreateInput{
		Audio:      audio("voice.mp3", 10),
		Image:      &domain.Asset{Filename: "pic.jpg", URL: "u"},
		SenderName: "Ana",
		Pin:        "4321",
	})
	require.NoError(t, err)

	siblings := bulk.GenerateSiblings(ctx, source, 2)
	require.Len(t, siblings, 2)
	for _, s := range siblings {
		assert.NotEqual(t, source.Code, s.Code)
		assert.NotEqual(t, source.AudioFilename, s.AudioFilename)
		assert.NotEmpty(t, s.ImageFilename)
		assert.Equal(t, "Ana", s.SenderName)
		assert.Equal(t, domain.SourceSibling, s.Source)
		assert.Equal(t, source.PinHash, s.PinHash)
		assert.True(t, s.HasPin)
	}
}

func TestGenerateSiblingsSkipsFailedCopies(t *testing.T) {
	f := newFixture(t)
	f.assets.failCopy = true
	bulk := NewBulk(f.manager, f.assets, BulkSettings{})

	source := domain.AudioPage{Code: "ABCD2345", AudioFilename: "voice.mp3"}
	assert.Empty(t, bulk.GenerateSiblings(context.Background(), source, 3))
}

func TestSiblingsAreCreatedThroughTheBus(t *testing.T) {
	f := newFixture(t)
	bus := events.NewBus(logging.Discard(), 16)
	t.Cleanup(func() { _ = bus.Close() })
	f.manager.events = bus

	bulk := NewBulk(f.manager, f.assets, BulkSettings{Siblings: 2})
	require.NoError(t, bus.Subscribe(events.TopicPageCreated, bulk.HandlePageCreated))
	ctx := context.Background()

	_, err := f.manager.Create(ctx, CreateInput{Audio: audio("voice.mp3", 10)})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		pages, err := f.manager.List(ctx)
		return err == nil && len(pages) == 3
	}, 2*time.Second, 10*time.Millisecond)

	// siblings publish page.created too, but only uploads fan out
	time.Sleep(50 * time.Millisecond)
	pages, err := f.manager.List(ctx)
	require.NoError(t, err)
	assert.Len(t, pages, 3)
}

func TestBulkPagesDoNotFanOut(t *testing.T) {
	f := newFixture(t)
	bulk := NewBulk(f.manager, f.assets, BulkSettings{Siblings: 2})

	payload := []byte(`{"code":"ABCD2345","source":"bulk"}`)
	require.NoError(t, bulk.HandlePageCreated(context.Background(), payload))

	pages, err := f.manager.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pages)
}
