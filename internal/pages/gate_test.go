package pages

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateDecide(t *testing.T) {
	f := newFixture(t)
	gate := NewGate(f.manager, newTestDemo(f))
	ctx := context.Background()

	live, err := f.manager.Create(ctx, CreateInput{Audio: audio("a.mp3", 5)})
	require.NoError(t, err)

	t.Run("live page", func(t *testing.T) {
		d, err := gate.Decide(ctx, live.Code)
		require.NoError(t, err)
		assert.Equal(t, StateLive, d.State)
		assert.Equal(t, live.ID, d.Page.ID)
	})

	t.Run("lowercase code resolves", func(t *testing.T) {
		d, err := gate.Decide(ctx, " "+strings.ToLower(live.Code)+" ")
		require.NoError(t, err)
		assert.Equal(t, StateLive, d.State)
	})

	t.Run("unknown code is deleted", func(t *testing.T) {
		d, err := gate.Decide(ctx, "ZZZZ2222")
		require.NoError(t, err)
		assert.Equal(t, StateDeleted, d.State)
		assert.Equal(t, "deleted", d.State.String())
	})

	t.Run("demo is always live", func(t *testing.T) {
		d, err := gate.Decide(ctx, "Demo")
		require.NoError(t, err)
		assert.Equal(t, StateLive, d.State)
		assert.True(t, d.Page.IsDemo)
	})

	t.Run("expired page is destroyed", func(t *testing.T) {
		*f.clock = f.manager.Settings().ExpirationDate.Add(time.Second)
		defer func() { *f.clock = testNow }()

		d, err := gate.Decide(ctx, live.Code)
		require.NoError(t, err)
		assert.Equal(t, StateDestroyed, d.State)
	})

	t.Run("protected page at its limit is destroyed", func(t *testing.T) {
		_, err := f.manager.SetTest(ctx, live.Code, true)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			_, err := f.manager.RecordPlay(ctx, live.Code)
			require.NoError(t, err)
		}

		d, err := gate.Decide(ctx, live.Code)
		require.NoError(t, err)
		assert.Equal(t, StateDestroyed, d.State)
	})
}

func TestGateWithoutDemo(t *testing.T) {
	f := newFixture(t)
	gate := NewGate(f.manager, nil)

	d, err := gate.Decide(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, StateDeleted, d.State)
}
