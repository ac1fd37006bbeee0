package pages

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicecard/internal/domain"
	"voicecard/internal/events"
)

func newTestDemo(f *fixture) *Demo {
	return NewDemo(f.manager, DemoSettings{Code: "demo", AudioURL: "/static/demo.mp3"})
}

func TestDemoIsRecreatedOnEveryVisit(t *testing.T) {
	f := newFixture(t)
	demo := newTestDemo(f)
	ctx := context.Background()

	first, err := demo.GetOrCreate(ctx)
	require.NoError(t, err)
	second, err := demo.GetOrCreate(ctx)
	require.NoError(t, err)

	assert.Equal(t, "demo", first.Code)
	assert.Equal(t, first.Code, second.Code)
	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, second.IsDemo)
	assert.Equal(t, domain.SourceDemo, second.Source)
	assert.Equal(t, "/static/demo.mp3", second.AudioURL)
	assert.Empty(t, second.AudioFilename)

	pages, err := f.manager.List(ctx)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, second.ID, pages[0].ID)
}

func TestDemoResetsPlaysAndPersonalization(t *testing.T) {
	f := newFixture(t)
	demo := newTestDemo(f)
	ctx := context.Background()

	_, err := demo.Ensure(ctx)
	require.NoError(t, err)
	_, err = f.manager.Personalize(ctx, demo.Code(), PersonalizeInput{Audio: audio("v.mp3", 5), SenderName: "Ana"})
	require.NoError(t, err)
	_, err = f.manager.RecordPlay(ctx, demo.Code())
	require.NoError(t, err)

	page, err := demo.GetOrCreate(ctx)
	require.NoError(t, err)
	assert.False(t, page.IsPersonalized)
	assert.Zero(t, page.PlayCount)
	assert.Equal(t, "The Voicecard team", page.SenderName)
}

func TestDemoEnsureKeepsExistingPage(t *testing.T) {
	f := newFixture(t)
	demo := newTestDemo(f)
	ctx := context.Background()

	first, err := demo.Ensure(ctx)
	require.NoError(t, err)
	second, err := demo.Ensure(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestDemoCodeMatchesCaseInsensitively(t *testing.T) {
	f := newFixture(t)
	demo := newTestDemo(f)

	assert.True(t, demo.IsDemo("DEMO"))
	assert.True(t, demo.IsDemo(" demo "))
	assert.False(t, demo.IsDemo("DEMO2345"))
}

func TestGeneratedCodesNeverCollideWithDemo(t *testing.T) {
	f := newFixture(t, WithGenerator(NewGenerator("DEMO", 4)))

	for i := 0; i < 20; i++ {
		page, err := f.manager.Create(context.Background(), CreateInput{})
		require.NoError(t, err)
		assert.NotEqual(t, "DEMO", page.Code)
	}
}

func TestDemoResetReleasesVisitorUploads(t *testing.T) {
	f := newFixture(t)
	demo := newTestDemo(f)
	ctx := context.Background()

	_, err := demo.Ensure(ctx)
	require.NoError(t, err)
	_, err = f.manager.Personalize(ctx, demo.Code(), PersonalizeInput{
		Audio: audio("visitor.mp3", 5),
		Image: &domain.Asset{Filename: "visitor.jpg", URL: "/uploads/images/visitor.jpg"},
	})
	require.NoError(t, err)

	_, err = demo.GetOrCreate(ctx)
	require.NoError(t, err)

	destroyed := destroyedEvents(f.publisher)
	require.Len(t, destroyed, 1)
	assert.Equal(t, events.ReasonDemoReset, destroyed[0].Reason)
	assert.Equal(t, "visitor.mp3", destroyed[0].AudioFilename)
	assert.Equal(t, "visitor.jpg", destroyed[0].ImageFilename)

	payload, err := json.Marshal(destroyed[0])
	require.NoError(t, err)
	require.NoError(t, f.manager.HandlePageDestroyed(ctx, payload))
	assert.ElementsMatch(t, []string{"audio/visitor.mp3", "images/visitor.jpg"}, f.assets.Removed())
}

func TestDemoResetWithoutUploadsPublishesNothing(t *testing.T) {
	f := newFixture(t)
	demo := newTestDemo(f)
	ctx := context.Background()

	_, err := demo.GetOrCreate(ctx)
	require.NoError(t, err)
	_, err = demo.GetOrCreate(ctx)
	require.NoError(t, err)

	assert.NotContains(t, f.publisher.Topics(), events.TopicPageDestroyed)
}

func destroyedEvents(p *fakePublisher) []events.PageDestroyed {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.PageDestroyed
	for _, e := range p.events {
		if evt, ok := e.payload.(events.PageDestroyed); ok {
			out = append(out, evt)
		}
	}
	return out
}
