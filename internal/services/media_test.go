package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicecard/internal/domain"
	"voicecard/internal/logging"
	"voicecard/internal/storage"
)

type fakeRunner struct {
	mu        sync.Mutex
	calls     [][]string
	failFirst int
	duration  string
	probeErr  error
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))

	if name == "ffprobe" {
		if f.probeErr != nil {
			return nil, f.probeErr
		}
		return []byte(f.duration + "\n"), nil
	}
	if f.failFirst > 0 {
		f.failFirst--
		return nil, errors.New("encoder exploded")
	}
	out := args[len(args)-1]
	return nil, os.WriteFile(out, []byte("encoded"), 0o644)
}

func newTestMedia(t *testing.T, runner *fakeRunner) (*Media, *storage.FileManager, *storage.LocalAssets) {
	t.Helper()
	dir := t.TempDir()
	files, err := storage.NewFileManager(dir, 0)
	require.NoError(t, err)
	assets, err := storage.NewLocalAssets(dir, "http://cards.test")
	require.NoError(t, err)
	media := NewMedia(files, assets, MediaOptions{Runner: runner.run, Logger: logging.Discard()})
	return media, files, assets
}

func writeRaw(t *testing.T, files *storage.FileManager, ext string) string {
	t.Helper()
	path := files.ScratchPath(ext)
	require.NoError(t, os.WriteFile(path, []byte("raw"), 0o644))
	return path
}

func TestProcessAudio(t *testing.T) {
	runner := &fakeRunner{duration: "12.48"}
	media, files, assets := newTestMedia(t, runner)

	raw := writeRaw(t, files, ".webm")
	audio, err := media.ProcessAudio(context.Background(), raw)
	require.NoError(t, err)

	assert.InDelta(t, 12.48, audio.DurationSeconds, 0.001)
	assert.Equal(t, ".mp3", filepath.Ext(audio.Filename))
	assert.FileExists(t, assets.Path(storage.KindAudio, audio.Filename))
	assert.NoFileExists(t, raw)
	assert.Len(t, runner.calls, 2)
	assert.Contains(t, runner.calls[0], "libmp3lame")
}

func TestProcessAudioFallsBackToNextProfile(t *testing.T) {
	runner := &fakeRunner{duration: "3", failFirst: 1}
	media, files, _ := newTestMedia(t, runner)

	_, err := media.ProcessAudio(context.Background(), writeRaw(t, files, ".m4a"))
	require.NoError(t, err)
	assert.Contains(t, runner.calls[1], "64k")
}

func TestProcessAudioReportsCollaboratorFailure(t *testing.T) {
	runner := &fakeRunner{failFirst: len(audioProfiles)}
	media, files, _ := newTestMedia(t, runner)

	raw := writeRaw(t, files, ".wav")
	_, err := media.ProcessAudio(context.Background(), raw)
	require.ErrorIs(t, err, domain.ErrCollaborator)
	assert.NoFileExists(t, raw)
}

func TestProcessAudioRejectsUnreadableDuration(t *testing.T) {
	runner := &fakeRunner{duration: "N/A"}
	media, files, _ := newTestMedia(t, runner)

	_, err := media.ProcessAudio(context.Background(), writeRaw(t, files, ".wav"))
	require.ErrorIs(t, err, domain.ErrCollaborator)

	entries, err := os.ReadDir(filepath.Dir(files.ScratchPath("")))
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch files are cleaned up")
}

func TestProcessImage(t *testing.T) {
	runner := &fakeRunner{}
	media, files, assets := newTestMedia(t, runner)

	image, err := media.ProcessImage(context.Background(), writeRaw(t, files, ".png"))
	require.NoError(t, err)
	assert.Equal(t, ".jpg", filepath.Ext(image.Filename))
	assert.Equal(t, "http://cards.test/uploads/images/"+image.Filename, image.URL)
	assert.FileExists(t, assets.Path(storage.KindImage, image.Filename))
}
