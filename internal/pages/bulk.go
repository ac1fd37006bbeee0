package pages

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"voicecard/internal/domain"
	"voicecard/internal/events"
	"voicecard/internal/storage"
)

// AssetCopier duplicates stored files so every page owns its own copy.
type AssetCopier interface {
	Copy(ctx context.Context, kind storage.AssetKind, filename string) (domain.Asset, error)
}

type BulkSettings struct {
	Quantities []int
	Siblings   int
}

// Bulk creates pages without one upload per page: blank cards for
// provisioning and audio-bearing siblings of a freshly uploaded card.
type Bulk struct {
	m        *Manager
	assets   AssetCopier
	settings BulkSettings
	logger   *slog.Logger
}

func NewBulk(m *Manager, assets AssetCopier, settings BulkSettings) *Bulk {
	return &Bulk{m: m, assets: assets, settings: settings, logger: m.logger}
}

func (b *Bulk) Quantities() []int {
	return slices.Clone(b.settings.Quantities)
}

// Provision creates quantity blank pages, to be personalized later.
func (b *Bulk) Provision(ctx context.Context, quantity int) ([]domain.AudioPage, error) {
	if !slices.Contains(b.settings.Quantities, quantity) {
		return nil, fmt.Errorf("%w: quantity must be one of %v", domain.ErrValidation, b.settings.Quantities)
	}

	inputs := make([]CreateInput, quantity)
	for i := range inputs {
		inputs[i] = CreateInput{Source: domain.SourceBulk}
	}
	created, err := b.m.createMany(ctx, inputs)
	if err != nil {
		return nil, err
	}
	b.logger.Info("provisioned blank pages", "quantity", quantity)
	return created, nil
}

// GenerateSiblings creates up to n copies of source with their own codes and
// asset files. Individual failures are logged and skipped.
func (b *Bulk) GenerateSiblings(ctx context.Context, source domain.AudioPage, n int) []domain.AudioPage {
	if n <= 0 || source.AudioFilename == "" {
		return nil
	}

	inputs := make([]CreateInput, 0, n)
	for i := 0; i < n; i++ {
		audio, err := b.assets.Copy(ctx, storage.KindAudio, source.AudioFilename)
		if err != nil {
			b.logger.Warn("copy sibling audio", "source", source.Code, "error", err)
			continue
		}
		in := CreateInput{
			Audio:               &domain.AudioAsset{Asset: audio},
			Title:               source.Title,
			Description:         source.Description,
			SenderName:          source.SenderName,
			RecipientName:       source.RecipientName,
			WrittenMessage:      source.WrittenMessage,
			UseImageAsWallpaper: source.UseImageAsWallpaper,
			Source:              domain.SourceSibling,
			pinHash:             source.PinHash,
		}
		if source.ImageFilename != "" {
			image, err := b.assets.Copy(ctx, storage.KindImage, source.ImageFilename)
			if err != nil {
				b.logger.Warn("copy sibling image", "source", source.Code, "error", err)
			} else {
				in.Image = &image
			}
		}
		inputs = append(inputs, in)
	}
	if len(inputs) == 0 {
		return nil
	}

	created, err := b.m.createMany(ctx, inputs)
	if err != nil {
		b.logger.Warn("create sibling pages", "source", source.Code, "error", err)
		return nil
	}
	b.logger.Info("generated sibling pages", "source", source.Code, "count", len(created))
	return created
}

// HandlePageCreated is the page.created subscriber that fans out siblings for
// real uploads.
func (b *Bulk) HandlePageCreated(ctx context.Context, payload []byte) error {
	evt, err := events.Decode[events.PageCreated](payload)
	if err != nil {
		return err
	}
	if evt.Source != domain.SourceUpload || b.settings.Siblings <= 0 {
		return nil
	}

	source, err := b.m.Get(ctx, evt.Code)
	if err != nil {
		return fmt.Errorf("load sibling source %s: %w", evt.Code, err)
	}
	b.GenerateSiblings(ctx, source, b.settings.Siblings)
	return nil
}

// HandlePageDestroyed removes the files of a page that left the store.
func (m *Manager) HandlePageDestroyed(ctx context.Context, payload []byte) error {
	evt, err := events.Decode[events.PageDestroyed](payload)
	if err != nil {
		return err
	}
	m.removeAsset(ctx, storage.KindAudio, evt.AudioFilename)
	m.removeAsset(ctx, storage.KindImage, evt.ImageFilename)
	return nil
}
