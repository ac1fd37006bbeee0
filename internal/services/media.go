package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"voicecard/internal/domain"
	"voicecard/internal/storage"
)

const (
	defaultMediaTimeout = 2 * time.Minute
	maxImageWidth       = 1600
)

type audioProfile struct {
	bitrate    string
	sampleRate string
}

// Later profiles are tried when the encoder rejects an earlier one.
var audioProfiles = []audioProfile{
	{bitrate: "96k", sampleRate: "44100"},
	{bitrate: "64k", sampleRate: "22050"},
	{bitrate: "48k", sampleRate: ""},
}

// Runner executes an external binary and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

type MediaOptions struct {
	FFmpegPath  string
	FFprobePath string
	Timeout     time.Duration
	Runner      Runner
	Logger      *slog.Logger
}

// Media turns raw uploads into stored, web-playable assets using ffmpeg.
type Media struct {
	ffmpeg  string
	ffprobe string
	timeout time.Duration
	run     Runner
	files   *storage.FileManager
	assets  storage.AssetStore
	logger  *slog.Logger
}

func NewMedia(files *storage.FileManager, assets storage.AssetStore, opts MediaOptions) *Media {
	m := &Media{
		ffmpeg:  opts.FFmpegPath,
		ffprobe: opts.FFprobePath,
		timeout: opts.Timeout,
		run:     opts.Runner,
		files:   files,
		assets:  assets,
		logger:  opts.Logger,
	}
	if m.ffmpeg == "" {
		m.ffmpeg = "ffmpeg"
	}
	if m.ffprobe == "" {
		m.ffprobe = "ffprobe"
	}
	if m.timeout <= 0 {
		m.timeout = defaultMediaTimeout
	}
	if m.run == nil {
		m.run = execRunner
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Available reports whether the configured binaries can be found.
func (m *Media) Available() error {
	for _, bin := range []string{m.ffmpeg, m.ffprobe} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s not found in PATH: %w", bin, err)
		}
	}
	return nil
}

// ProcessAudio transcodes the raw upload at rawPath to mono MP3, measures it
// and stores it. rawPath is always removed.
func (m *Media) ProcessAudio(ctx context.Context, rawPath string) (*domain.AudioAsset, error) {
	defer m.files.Discard(rawPath)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	output := m.files.ScratchPath(".mp3")
	if err := m.transcode(ctx, rawPath, output); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCollaborator, err)
	}

	duration, err := m.probeDuration(ctx, output)
	if err != nil {
		m.files.Discard(output)
		return nil, fmt.Errorf("%w: %v", domain.ErrCollaborator, err)
	}

	asset, err := m.assets.Put(ctx, storage.KindAudio, output)
	if err != nil {
		m.files.Discard(output)
		return nil, fmt.Errorf("%w: store audio: %v", domain.ErrCollaborator, err)
	}

	m.logger.Debug("audio processed", "filename", asset.Filename, "duration_seconds", duration)
	return &domain.AudioAsset{Asset: asset, DurationSeconds: duration}, nil
}

// ProcessImage scales the raw upload down to a web-sized JPEG and stores it.
// rawPath is always removed.
func (m *Media) ProcessImage(ctx context.Context, rawPath string) (*domain.Asset, error) {
	defer m.files.Discard(rawPath)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	output := m.files.ScratchPath(".jpg")
	args := []string{
		"-y",
		"-i", rawPath,
		"-vf", fmt.Sprintf("scale='min(%d,iw)':-2", maxImageWidth),
		"-frames:v", "1",
		"-q:v", "4",
		output,
	}
	if _, err := m.run(ctx, m.ffmpeg, args...); err != nil {
		m.files.Discard(output)
		return nil, fmt.Errorf("%w: optimize image: %v", domain.ErrCollaborator, err)
	}

	asset, err := m.assets.Put(ctx, storage.KindImage, output)
	if err != nil {
		m.files.Discard(output)
		return nil, fmt.Errorf("%w: store image: %v", domain.ErrCollaborator, err)
	}
	return &asset, nil
}

func (m *Media) transcode(ctx context.Context, input, output string) error {
	var lastErr error
	for idx, profile := range audioProfiles {
		if idx > 0 {
			_ = os.Remove(output)
		}

		args := []string{
			"-y",
			"-i", input,
			"-vn",
			"-ac", "1",
			"-acodec", "libmp3lame",
			"-b:a", profile.bitrate,
		}
		if profile.sampleRate != "" {
			args = append(args, "-ar", profile.sampleRate)
		}
		args = append(args, output)

		if _, err := m.run(ctx, m.ffmpeg, args...); err != nil {
			lastErr = fmt.Errorf("transcode audio: %w", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return nil
	}

	_ = os.Remove(output)
	return lastErr
}

func (m *Media) probeDuration(ctx context.Context, path string) (float64, error) {
	out, err := m.run(ctx, m.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("probe duration: %w", err)
	}

	raw := strings.TrimSpace(string(out))
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	return seconds, nil
}
