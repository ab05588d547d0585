// Package imagegen calls a remote text-to-image model and persists the result as a JPEG.
package imagegen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/wishes/internal/models"
	_ "golang.org/x/image/webp"
)

// ErrGeneration is matched by every GenerationError.
var ErrGeneration = errors.New("image generation failed")

// Stages at which generation can fail
const (
	StageRemote  = "remote"
	StageDecode  = "decode"
	StagePersist = "persist"
)

const promptPreviewRunes = 50

// GenerationError wraps a failure of the remote call, the image decode or the file write.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("image generation failed (%s): %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

// RawImage is an encoded image returned by a provider
type RawImage struct {
	Data     []byte
	MimeType string
	Model    string
}

// Provider generates one image for a prompt.
type Provider interface {
	GenerateImage(ctx context.Context, prompt string) (*RawImage, error)
}

// ImageStore persists decoded images as JPEG files.
type ImageStore interface {
	SaveJPEG(img image.Image, createdAt time.Time) (path string, data []byte, err error)
}

// Mirror copies saved images to remote storage. May be nil on the Client.
type Mirror interface {
	MirrorImage(ctx context.Context, fileName string, data io.Reader, size int64) (string, error)
}

// Client turns prompts into saved greeting images.
type Client struct {
	provider Provider
	store    ImageStore
	mirror   Mirror
	timeout  time.Duration
	now      func() time.Time
}

// NewClient creates a new image generation client. mirror may be nil; timeout <= 0 disables the per-call deadline.
func NewClient(provider Provider, store ImageStore, mirror Mirror, timeout time.Duration) *Client {
	return &Client{
		provider: provider,
		store:    store,
		mirror:   mirror,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Generate calls the provider, decodes the payload, converts it to opaque RGB and saves it as
// newyear2025_<timestamp>.jpg. Every failure is returned as a *GenerationError.
func (c *Client) Generate(ctx context.Context, prompt string) (*models.GeneratedImage, error) {
	log.Debug().
		Str("prompt", Preview(prompt, promptPreviewRunes)).
		Msg("Generating image")

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	raw, err := c.provider.GenerateImage(ctx, prompt)
	if err != nil {
		return nil, c.fail(StageRemote, err)
	}
	if raw == nil || len(raw.Data) == 0 {
		return nil, c.fail(StageRemote, errors.New("provider returned no image data"))
	}

	decoded, format, err := image.Decode(bytes.NewReader(raw.Data))
	if err != nil {
		return nil, c.fail(StageDecode, err)
	}

	createdAt := c.now()
	path, data, err := c.store.SaveJPEG(ToRGB(decoded), createdAt)
	if err != nil {
		return nil, c.fail(StagePersist, err)
	}

	img := &models.GeneratedImage{
		ID:        uuid.New(),
		Data:      data,
		Path:      path,
		FileName:  filepath.Base(path),
		Prompt:    prompt,
		Model:     raw.Model,
		SizeBytes: int64(len(data)),
		CreatedAt: createdAt,
	}

	if c.mirror != nil {
		url, err := c.mirror.MirrorImage(ctx, img.FileName, bytes.NewReader(data), img.SizeBytes)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to mirror image, keeping local copy only")
		} else {
			img.MirrorURL = url
		}
	}

	log.Info().
		Str("image_id", img.ID.String()).
		Str("path", path).
		Str("source_format", format).
		Str("model", raw.Model).
		Int64("size_bytes", img.SizeBytes).
		Msg("Image generated")

	return img, nil
}

// Preview returns the first n runes of s, followed by "..." when anything was cut.
func Preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

func (c *Client) fail(stage string, err error) error {
	log.Error().Err(err).Str("stage", stage).Msg("Image generation failed")
	return &GenerationError{Stage: stage, Err: err}
}

// ToRGB returns img with the alpha channel dropped. Color channels keep their unpremultiplied values.
func ToRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return out
}
