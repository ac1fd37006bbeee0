package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"voicecard/internal/domain"
)

type AssetKind string

const (
	KindAudio AssetKind = "audio"
	KindImage AssetKind = "images"
)

// AssetStore holds processed audio and image files and knows their public URLs.
type AssetStore interface {
	// Put takes ownership of the file at srcPath.
	Put(ctx context.Context, kind AssetKind, srcPath string) (domain.Asset, error)
	// Copy duplicates a stored file under a new name.
	Copy(ctx context.Context, kind AssetKind, filename string) (domain.Asset, error)
	Remove(ctx context.Context, kind AssetKind, filename string) error
}

// LocalAssets keeps files under <dataDir>/uploads/<kind>, served at
// <baseURL>/uploads/<kind>/<filename>.
type LocalAssets struct {
	root    string
	baseURL string
}

func NewLocalAssets(dataDir, baseURL string) (*LocalAssets, error) {
	la := &LocalAssets{
		root:    filepath.Join(dataDir, "uploads"),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	for _, kind := range []AssetKind{KindAudio, KindImage} {
		dir := filepath.Join(la.root, string(kind))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	return la, nil
}

// Root is the directory served under /uploads.
func (la *LocalAssets) Root() string {
	return la.root
}

func (la *LocalAssets) Path(kind AssetKind, filename string) string {
	return filepath.Join(la.root, string(kind), filepath.Base(filename))
}

func (la *LocalAssets) Put(ctx context.Context, kind AssetKind, srcPath string) (domain.Asset, error) {
	if err := ctx.Err(); err != nil {
		return domain.Asset{}, err
	}
	name := newAssetName(srcPath)
	dst := la.Path(kind, name)

	if err := os.Rename(srcPath, dst); err != nil {
		if err := copyFile(srcPath, dst); err != nil {
			return domain.Asset{}, fmt.Errorf("store %s asset: %w", kind, err)
		}
		_ = os.Remove(srcPath)
	}
	return la.asset(kind, name), nil
}

func (la *LocalAssets) Copy(ctx context.Context, kind AssetKind, filename string) (domain.Asset, error) {
	if err := ctx.Err(); err != nil {
		return domain.Asset{}, err
	}
	name := newAssetName(filename)
	if err := copyFile(la.Path(kind, filename), la.Path(kind, name)); err != nil {
		return domain.Asset{}, fmt.Errorf("copy %s asset: %w", kind, err)
	}
	return la.asset(kind, name), nil
}

func (la *LocalAssets) Remove(ctx context.Context, kind AssetKind, filename string) error {
	if filename == "" {
		return nil
	}
	err := os.Remove(la.Path(kind, filename))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s asset: %w", kind, err)
	}
	return nil
}

func (la *LocalAssets) asset(kind AssetKind, name string) domain.Asset {
	return domain.Asset{
		Filename: name,
		URL:      fmt.Sprintf("%s/uploads/%s/%s", la.baseURL, kind, name),
	}
}

func newAssetName(from string) string {
	return uuid.NewString() + strings.ToLower(filepath.Ext(from))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}
