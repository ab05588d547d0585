package storage

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// FilePrefix and timestampLayout form newyear2025_<YYYYMMDD_HHMMSS>.jpg
const (
	FilePrefix      = "newyear2025_"
	timestampLayout = "20060102_150405"
	DefaultQuality  = 95
)

// LocalStore writes generated images into a single output directory.
// There is no index: the directory listing is the catalog.
type LocalStore struct {
	dir     string
	quality int
	create  func(path string) (imageFile, error)
}

type imageFile interface {
	io.Writer
	Sync() error
	Close() error
}

func createFile(path string) (imageFile, error) {
	return os.Create(path)
}

// NewLocalStore creates dir if needed and returns a store encoding JPEGs at quality.
func NewLocalStore(dir string, quality int) (*LocalStore, error) {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	log.Info().
		Str("dir", abs).
		Int("quality", quality).
		Msg("Local image store initialized")

	return &LocalStore{dir: abs, quality: quality, create: createFile}, nil
}

// Dir returns the absolute output directory.
func (s *LocalStore) Dir() string {
	return s.dir
}

// FileName returns the file name used for an image created at t.
func FileName(t time.Time) string {
	return FilePrefix + t.Format(timestampLayout) + ".jpg"
}

// SaveJPEG encodes img as JPEG into the output directory and returns the absolute path and the
// encoded bytes. A file with the same name is overwritten. If encoding fails after the file was
// created, the partial file stays on disk.
func (s *LocalStore) SaveJPEG(img image.Image, createdAt time.Time) (path string, data []byte, err error) {
	path = filepath.Join(s.dir, FileName(createdAt))

	f, err := s.create(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create image file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			path, data, err = "", nil, fmt.Errorf("failed to close image file: %w", closeErr)
		}
	}()

	var buf bytes.Buffer
	if err := jpeg.Encode(io.MultiWriter(f, &buf), img, &jpeg.Options{Quality: s.quality}); err != nil {
		return "", nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", nil, fmt.Errorf("failed to flush image file: %w", err)
	}

	log.Info().
		Str("path", path).
		Int("size_bytes", buf.Len()).
		Msg("Image saved")

	return path, buf.Bytes(), nil
}

// Open opens a previously saved image for reading. Paths outside the output directory are rejected.
func (s *LocalStore) Open(path string) (*os.File, error) {
	rel, err := filepath.Rel(s.dir, filepath.Clean(path))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("path %q is outside the output directory", path)
	}
	return os.Open(path)
}
