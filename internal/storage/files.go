package storage

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"voicecard/internal/domain"
)

// FileManager receives raw uploads into a scratch directory before they are
// processed and handed to an AssetStore.
type FileManager struct {
	incomingDir    string
	maxUploadBytes int64
}

var mimeExtensionFallback = map[string]string{
	"audio/mpeg":      ".mp3",
	"audio/mp3":       ".mp3",
	"audio/mp4":       ".m4a",
	"audio/x-m4a":     ".m4a",
	"audio/wav":       ".wav",
	"audio/x-wav":     ".wav",
	"audio/webm":      ".webm",
	"audio/ogg":       ".webm",
	"video/mp4":       ".m4a",
	"video/webm":      ".webm",
	"video/quicktime": ".m4a",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"image/heic":      ".heic",
}

func NewFileManager(baseDir string, maxUploadBytes int64) (*FileManager, error) {
	fm := &FileManager{
		incomingDir:    filepath.Join(baseDir, "incoming"),
		maxUploadBytes: maxUploadBytes,
	}

	if err := os.MkdirAll(fm.incomingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create dir %s: %w", fm.incomingDir, err)
	}

	return fm, nil
}

// ScratchPath returns a fresh path in the incoming directory with ext.
func (fm *FileManager) ScratchPath(ext string) string {
	return filepath.Join(fm.incomingDir, uuid.NewString()+ext)
}

// SaveUpload writes r to the incoming directory. prefix is the accepted
// media class ("audio" or "image"); unknown types are logged and kept.
func (fm *FileManager) SaveUpload(r io.Reader, filename, prefix string) (string, error) {
	sample := make([]byte, 512)
	n, err := io.ReadFull(r, sample)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("read %s sample: %w", prefix, err)
	}
	sample = sample[:n]
	if n == 0 {
		return "", fmt.Errorf("%w: empty %s upload", domain.ErrValidation, prefix)
	}

	ext := normalizeExtension(filename)
	contentType := strings.ToLower(http.DetectContentType(sample))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if ext == "" {
		ext = fallbackExtension(contentType)
	}

	if ext == "" {
		ext = ".bin"
	}

	if contentType != "application/octet-stream" && !strings.HasPrefix(contentType, prefix+"/") && !strings.HasPrefix(contentType, "video/") {
		slog.Warn("unrecognized upload mime type", "kind", prefix, "mime", contentType, "ext", ext)
	}

	path := fm.ScratchPath(ext)
	if err := fm.writeWithLimit(path, sample, r); err != nil {
		return "", err
	}

	return path, nil
}

// Discard removes a scratch file, ignoring files that are already gone.
func (fm *FileManager) Discard(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("remove scratch file", "path", path, "error", err)
	}
}

func (fm *FileManager) writeWithLimit(path string, sample []byte, r io.Reader) error {
	if fm.maxUploadBytes > 0 && int64(len(sample)) > fm.maxUploadBytes {
		return fmt.Errorf("%w: file exceeds %d bytes", domain.ErrValidation, fm.maxUploadBytes)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}

	total := int64(0)

	cleanup := func(err error) error {
		out.Close()
		os.Remove(path)
		return err
	}

	if len(sample) > 0 {
		if _, err := out.Write(sample); err != nil {
			return cleanup(fmt.Errorf("write upload sample: %w", err))
		}
		total += int64(len(sample))
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			total += int64(n)
			if fm.maxUploadBytes > 0 && total > fm.maxUploadBytes {
				return cleanup(fmt.Errorf("%w: file exceeds %d bytes", domain.ErrValidation, fm.maxUploadBytes))
			}
			if _, werr := out.Write(buf[:n]); werr != nil {
				return cleanup(fmt.Errorf("write upload file: %w", werr))
			}
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return cleanup(fmt.Errorf("read upload content: %w", err))
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close upload file: %w", err)
	}

	return nil
}

func normalizeExtension(filename string) string {
	ext := strings.ToLower(strings.TrimSpace(filepath.Ext(filename)))
	if ext == "" || ext == "." {
		return ""
	}
	return ext
}

func fallbackExtension(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	if ext, ok := mimeExtensionFallback[contentType]; ok {
		return ext
	}
	exts, err := mime.ExtensionsByType(contentType)
	if err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
