// Package pages implements the lifecycle of shareable audio cards: creation,
// one-time personalization, play accounting, expiry and deletion.
package pages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"voicecard/internal/domain"
	"voicecard/internal/events"
	"voicecard/internal/storage"
)

const maxCodeAttempts = 64

// Publisher receives lifecycle events. events.Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// AssetRemover deletes stored files that a page no longer references.
type AssetRemover interface {
	Remove(ctx context.Context, kind storage.AssetKind, filename string) error
}

type Settings struct {
	BaseURL            string
	MaxPlays           int
	ExpirationDate     time.Time
	MaxAudioDuration   time.Duration
	DefaultTitle       string
	DefaultDescription string
	ReservedCodes      []string
	PinCost            int
}

type CreateInput struct {
	Audio               *domain.AudioAsset
	Image               *domain.Asset
	Title               string
	Description         string
	SenderName          string
	RecipientName       string
	WrittenMessage      string
	Pin                 string
	UseImageAsWallpaper bool
	Source              string

	pinHash string
}

type PersonalizeInput struct {
	Audio               *domain.AudioAsset
	Image               *domain.Asset
	Title               string
	Description         string
	SenderName          string
	RecipientName       string
	WrittenMessage      string
	Pin                 string
	UseImageAsWallpaper *bool
}

type Manager struct {
	store    *storage.Store
	codes    *Generator
	settings Settings
	reserved map[string]struct{}
	assets   AssetRemover
	events   Publisher
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithGenerator(g *Generator) Option {
	return func(m *Manager) { m.codes = g }
}

func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.events = p }
}

func WithAssets(a AssetRemover) Option {
	return func(m *Manager) { m.assets = a }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func NewManager(store *storage.Store, settings Settings, opts ...Option) *Manager {
	if settings.MaxPlays <= 0 {
		settings.MaxPlays = 5
	}
	if settings.MaxAudioDuration <= 0 {
		settings.MaxAudioDuration = 60 * time.Second
	}
	if settings.DefaultTitle == "" {
		settings.DefaultTitle = "A voice message for you"
	}
	if settings.DefaultDescription == "" {
		settings.DefaultDescription = "Someone recorded an audio greeting for you. It can only be played a few times."
	}
	if settings.PinCost == 0 {
		settings.PinCost = bcrypt.DefaultCost
	}
	settings.BaseURL = strings.TrimRight(settings.BaseURL, "/")

	m := &Manager{
		store:    store,
		codes:    NewGenerator(CodeAlphabet, CodeLength),
		settings: settings,
		reserved: map[string]struct{}{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, code := range settings.ReservedCodes {
		m.reserved[NormalizeCode(code)] = struct{}{}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Settings() Settings {
	return m.settings
}

// PageURL is the public link for code.
func (m *Manager) PageURL(code string) string {
	return fmt.Sprintf("%s/page/%s", m.settings.BaseURL, code)
}

// Create stores a new, not yet personalized page under a fresh code.
func (m *Manager) Create(ctx context.Context, in CreateInput) (domain.AudioPage, error) {
	created, err := m.createMany(ctx, []CreateInput{in})
	if err != nil {
		return domain.AudioPage{}, err
	}
	return created[0], nil
}

// createMany stores every input in a single write. Codes are drawn against
// the snapshot being modified, so they are unique at the moment of commit.
func (m *Manager) createMany(ctx context.Context, inputs []CreateInput) ([]domain.AudioPage, error) {
	for i := range inputs {
		if inputs[i].Audio != nil {
			if err := m.validateAudio(inputs[i].Audio); err != nil {
				m.discardAll(ctx, inputs)
				return nil, err
			}
		}
		if inputs[i].Pin == "" {
			continue
		}
		hash, err := hashPin(inputs[i].Pin, m.settings.PinCost)
		if err != nil {
			m.discardAll(ctx, inputs)
			return nil, err
		}
		inputs[i].pinHash = hash
	}

	var created []domain.AudioPage
	err := m.store.Update(ctx, func(pages []domain.AudioPage) ([]domain.AudioPage, error) {
		taken := make(map[string]struct{}, len(pages)+len(inputs))
		for _, p := range pages {
			taken[p.Code] = struct{}{}
		}

		created = created[:0]
		for _, in := range inputs {
			code, err := m.uniqueCode(taken)
			if err != nil {
				return nil, err
			}
			taken[code] = struct{}{}
			page := m.newPage(code, in)
			created = append(created, page)
			pages = append(pages, page)
		}
		return pages, nil
	})
	if err != nil {
		m.discardAll(ctx, inputs)
		return nil, err
	}

	for _, page := range created {
		m.publish(ctx, events.TopicPageCreated, events.PageCreated{Code: page.Code, Source: page.Source})
	}
	return created, nil
}

func (m *Manager) uniqueCode(taken map[string]struct{}) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := m.codes.Next()
		if _, ok := taken[code]; ok {
			continue
		}
		if _, ok := m.reserved[code]; ok {
			continue
		}
		return code, nil
	}
	return "", fmt.Errorf("%w after %d attempts", domain.ErrCodeSpaceExhausted, maxCodeAttempts)
}

func (m *Manager) newPage(code string, in CreateInput) domain.AudioPage {
	source := in.Source
	if source == "" {
		source = domain.SourceUpload
	}

	page := domain.AudioPage{
		ID:                  uuid.NewString(),
		Code:                code,
		Title:               firstNonEmpty(in.Title, m.settings.DefaultTitle),
		Description:         firstNonEmpty(in.Description, m.settings.DefaultDescription),
		CreatedAt:           m.now().UTC(),
		PageURL:             m.PageURL(code),
		MaxPlays:            m.settings.MaxPlays,
		ExpirationDate:      m.settings.ExpirationDate,
		SenderName:          strings.TrimSpace(in.SenderName),
		RecipientName:       strings.TrimSpace(in.RecipientName),
		WrittenMessage:      strings.TrimSpace(in.WrittenMessage),
		UseImageAsWallpaper: in.UseImageAsWallpaper,
		PinHash:             in.pinHash,
		HasPin:              in.pinHash != "",
		Source:              source,
	}
	if in.Audio != nil {
		page.AudioURL = in.Audio.URL
		page.AudioFilename = in.Audio.Filename
	}
	if in.Image != nil {
		page.ImageURL = in.Image.URL
		page.ImageFilename = in.Image.Filename
	}
	return page
}

// Personalize attaches the sender's content to a page. It succeeds at most
// once per page. Assets passed in are removed again if the call fails.
func (m *Manager) Personalize(ctx context.Context, code string, in PersonalizeInput) (domain.AudioPage, error) {
	if in.Audio == nil || strings.TrimSpace(in.Audio.URL) == "" {
		m.discard(ctx, nil, in.Image)
		return domain.AudioPage{}, fmt.Errorf("%w: an audio message is required", domain.ErrValidation)
	}
	if err := m.validateAudio(in.Audio); err != nil {
		m.discard(ctx, in.Audio, in.Image)
		return domain.AudioPage{}, err
	}
	pinHash, err := hashPin(in.Pin, m.settings.PinCost)
	if err != nil {
		m.discard(ctx, in.Audio, in.Image)
		return domain.AudioPage{}, err
	}

	var page, previous domain.AudioPage
	err = m.store.Update(ctx, func(pages []domain.AudioPage) ([]domain.AudioPage, error) {
		idx := storage.IndexOf(pages, code)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, code)
		}
		p := pages[idx]
		if p.IsPersonalized {
			return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyPersonalized, code)
		}
		previous = p

		p.AudioURL = in.Audio.URL
		p.AudioFilename = in.Audio.Filename
		if in.Image != nil {
			p.ImageURL = in.Image.URL
			p.ImageFilename = in.Image.Filename
		}
		p.Title = firstNonEmpty(in.Title, p.Title, m.settings.DefaultTitle)
		p.Description = firstNonEmpty(in.Description, p.Description, m.settings.DefaultDescription)
		p.SenderName = firstNonEmpty(in.SenderName, p.SenderName)
		p.RecipientName = firstNonEmpty(in.RecipientName, p.RecipientName)
		p.WrittenMessage = firstNonEmpty(in.WrittenMessage, p.WrittenMessage)
		if in.UseImageAsWallpaper != nil {
			p.UseImageAsWallpaper = *in.UseImageAsWallpaper
		}
		if pinHash != "" {
			p.PinHash = pinHash
			p.HasPin = true
		}

		now := m.now().UTC()
		p.IsPersonalized = true
		p.PersonalizedAt = &now

		pages[idx] = p
		page = p
		return pages, nil
	})
	if err != nil {
		m.discard(ctx, in.Audio, in.Image)
		return domain.AudioPage{}, err
	}

	if previous.AudioFilename != "" && previous.AudioFilename != page.AudioFilename {
		m.removeAsset(ctx, storage.KindAudio, previous.AudioFilename)
	}
	if previous.ImageFilename != "" && previous.ImageFilename != page.ImageFilename {
		m.removeAsset(ctx, storage.KindImage, previous.ImageFilename)
	}

	m.logger.Info("page personalized", "code", code)
	return page, nil
}

// RecordPlay counts one play. Reaching the play limit deletes the page in
// the same write, unless the page is protected as a test page. An expired
// page is reported destroyed and its count is left alone; expiry alone never
// deletes.
func (m *Manager) RecordPlay(ctx context.Context, code string) (domain.PlayResult, error) {
	var (
		result  domain.PlayResult
		removed *domain.AudioPage
	)
	err := m.store.Update(ctx, func(pages []domain.AudioPage) ([]domain.AudioPage, error) {
		removed = nil
		idx := storage.IndexOf(pages, code)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, code)
		}

		p := pages[idx]
		if p.Expired(m.now()) {
			result = domain.PlayResult{
				PlayCount: p.PlayCount,
				MaxPlays:  p.MaxPlays,
				Destroyed: true,
			}
			return nil, storage.ErrNoChange
		}
		p.PlayCount++
		pages[idx] = p

		result = domain.PlayResult{
			PlayCount: p.PlayCount,
			MaxPlays:  p.MaxPlays,
			CanPlay:   true,
		}
		if !p.PlaysExhausted() {
			return pages, nil
		}

		result.CanPlay = false
		result.Destroyed = true
		if p.IsTest {
			return pages, nil
		}
		pages, _ = storage.RemoveCode(pages, code)
		removed = &p
		return pages, nil
	})
	if err != nil {
		return domain.PlayResult{}, err
	}

	if removed != nil {
		m.logger.Info("page self-destructed", "code", code, "plays", result.PlayCount)
		m.publishDestroyed(ctx, *removed, events.ReasonPlayLimit)
	}
	return result, nil
}

// Delete removes the page under code. It reports false without error when no
// such page exists and refuses pages marked as test pages.
func (m *Manager) Delete(ctx context.Context, code string) (bool, error) {
	var removed domain.AudioPage
	found := false
	err := m.store.Update(ctx, func(pages []domain.AudioPage) ([]domain.AudioPage, error) {
		found = false
		idx := storage.IndexOf(pages, code)
		if idx < 0 {
			return nil, storage.ErrNoChange
		}
		if pages[idx].IsTest {
			return nil, fmt.Errorf("%w: %s is a test page", domain.ErrProtected, code)
		}
		removed = pages[idx]
		found = true
		pages, _ = storage.RemoveCode(pages, code)
		return pages, nil
	})
	if err != nil {
		return false, err
	}
	if found {
		m.logger.Info("page deleted", "code", code)
		m.publishDestroyed(ctx, removed, events.ReasonDeleted)
	}
	return found, nil
}

// Get looks up a page without side effects.
func (m *Manager) Get(ctx context.Context, code string) (domain.AudioPage, error) {
	page, ok, err := m.store.FindByCode(ctx, code)
	if err != nil {
		return domain.AudioPage{}, err
	}
	if !ok {
		return domain.AudioPage{}, fmt.Errorf("%w: %s", domain.ErrNotFound, code)
	}
	return page, nil
}

func (m *Manager) List(ctx context.Context) ([]domain.AudioPage, error) {
	return m.store.All(ctx)
}

// SetTest marks or unmarks a page as protected from deletion.
func (m *Manager) SetTest(ctx context.Context, code string, protected bool) (domain.AudioPage, error) {
	var page domain.AudioPage
	err := m.store.Update(ctx, func(pages []domain.AudioPage) ([]domain.AudioPage, error) {
		idx := storage.IndexOf(pages, code)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, code)
		}
		pages[idx].IsTest = protected
		page = pages[idx]
		return pages, nil
	})
	return page, err
}

// VerifyPin checks pin against the page's stored hash. Pages without a PIN
// accept any input.
func (m *Manager) VerifyPin(ctx context.Context, code, pin string) (domain.AudioPage, error) {
	page, err := m.Get(ctx, code)
	if err != nil {
		return domain.AudioPage{}, err
	}
	if !page.HasPin {
		return page, nil
	}
	if err := checkPin(page.PinHash, pin); err != nil {
		return domain.AudioPage{}, err
	}
	return page, nil
}

func (m *Manager) validateAudio(audio *domain.AudioAsset) error {
	limit := m.settings.MaxAudioDuration.Seconds()
	if audio.DurationSeconds > limit {
		return fmt.Errorf("%w: audio is %.1f seconds long, the limit is %.0f seconds",
			domain.ErrValidation, audio.DurationSeconds, limit)
	}
	return nil
}

func (m *Manager) publish(ctx context.Context, topic string, payload any) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(ctx, topic, payload); err != nil {
		m.logger.Warn("publish event", "topic", topic, "error", err)
	}
}

func (m *Manager) publishDestroyed(ctx context.Context, page domain.AudioPage, reason string) {
	m.publish(ctx, events.TopicPageDestroyed, events.PageDestroyed{
		Code:          page.Code,
		Reason:        reason,
		AudioFilename: page.AudioFilename,
		ImageFilename: page.ImageFilename,
	})
}

func (m *Manager) discardAll(ctx context.Context, inputs []CreateInput) {
	for _, in := range inputs {
		m.discard(ctx, in.Audio, in.Image)
	}
}

func (m *Manager) discard(ctx context.Context, audio *domain.AudioAsset, image *domain.Asset) {
	if audio != nil {
		m.removeAsset(ctx, storage.KindAudio, audio.Filename)
	}
	if image != nil {
		m.removeAsset(ctx, storage.KindImage, image.Filename)
	}
}

// removeAsset is best effort; a leftover file never fails an operation.
func (m *Manager) removeAsset(ctx context.Context, kind storage.AssetKind, filename string) {
	if m.assets == nil || filename == "" {
		return
	}
	if err := m.assets.Remove(ctx, kind, filename); err != nil {
		m.logger.Warn("remove asset", "kind", kind, "filename", filename, "error", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
