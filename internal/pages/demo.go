package pages

import (
	"context"
	"strings"

	"voicecard/internal/domain"
	"voicecard/internal/events"
	"voicecard/internal/storage"
)

type DemoSettings struct {
	Code        string
	Title       string
	Description string
	AudioURL    string
	SenderName  string
	Message     string
}

// Demo serves the onboarding card at a fixed code. Every visit starts from a
// brand-new record.
type Demo struct {
	m        *Manager
	settings DemoSettings
}

func NewDemo(m *Manager, settings DemoSettings) *Demo {
	if settings.Title == "" {
		settings.Title = "Try it out"
	}
	if settings.Description == "" {
		settings.Description = "This is what your recipient will see. Press play to hear the demo."
	}
	if settings.SenderName == "" {
		settings.SenderName = "The Voicecard team"
	}
	return &Demo{m: m, settings: settings}
}

func (d *Demo) Code() string {
	return d.settings.Code
}

func (d *Demo) IsDemo(code string) bool {
	return strings.EqualFold(strings.TrimSpace(code), d.settings.Code)
}

// GetOrCreate drops whatever is stored at the demo code, test flag or not,
// and stores a fresh demo page in its place. Files a visitor uploaded to the
// previous demo page are released through page.destroyed.
func (d *Demo) GetOrCreate(ctx context.Context) (domain.AudioPage, error) {
	page := d.fresh()
	var replaced []domain.AudioPage
	err := d.m.store.Update(ctx, func(pages []domain.AudioPage) ([]domain.AudioPage, error) {
		replaced = replaced[:0]
		for _, p := range pages {
			if p.Code == d.settings.Code && (p.AudioFilename != "" || p.ImageFilename != "") {
				replaced = append(replaced, p)
			}
		}
		pages, _ = storage.RemoveCode(pages, d.settings.Code)
		return append(pages, page), nil
	})
	if err != nil {
		return domain.AudioPage{}, err
	}
	for _, old := range replaced {
		d.m.publishDestroyed(ctx, old, events.ReasonDemoReset)
	}
	return page, nil
}

// Ensure creates the demo page only if none is stored. Personalizing the demo
// goes through here so the personalize call has a page to act on.
func (d *Demo) Ensure(ctx context.Context) (domain.AudioPage, error) {
	var page domain.AudioPage
	err := d.m.store.Update(ctx, func(pages []domain.AudioPage) ([]domain.AudioPage, error) {
		if idx := storage.IndexOf(pages, d.settings.Code); idx >= 0 {
			page = pages[idx]
			return nil, storage.ErrNoChange
		}
		page = d.fresh()
		return append(pages, page), nil
	})
	if err != nil {
		return domain.AudioPage{}, err
	}
	return page, nil
}

func (d *Demo) fresh() domain.AudioPage {
	page := d.m.newPage(d.settings.Code, CreateInput{
		Audio:          &domain.AudioAsset{Asset: domain.Asset{URL: d.settings.AudioURL}},
		Title:          d.settings.Title,
		Description:    d.settings.Description,
		SenderName:     d.settings.SenderName,
		WrittenMessage: d.settings.Message,
		Source:         domain.SourceDemo,
	})
	page.IsDemo = true
	return page
}
