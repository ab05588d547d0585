package imagegen

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// DefaultGeminiModel is the Imagen model used when none is configured.
const DefaultGeminiModel = "imagen-4.0-generate-001"

// imagesGenerator is the subset of genai.Models used by GeminiProvider.
type imagesGenerator interface {
	GenerateImages(ctx context.Context, model string, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// GeminiProvider generates images with an Imagen model through the Gemini API.
type GeminiProvider struct {
	models imagesGenerator
	model  string
}

// NewGeminiProvider creates a genai client. apiEndpoint optionally overrides the API base URL.
func NewGeminiProvider(ctx context.Context, apiKey, apiEndpoint, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	cfg := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if apiEndpoint != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: apiEndpoint}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	log.Info().
		Str("model", model).
		Str("api_endpoint", apiEndpoint).
		Msg("Gemini image provider initialized")

	return &GeminiProvider{models: client.Models, model: model}, nil
}

// GenerateImage requests one JPEG image and returns its bytes.
func (p *GeminiProvider) GenerateImage(ctx context.Context, prompt string) (*RawImage, error) {
	resp, err := p.models.GenerateImages(ctx, p.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: "image/jpeg",
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generate images: %w", err)
	}
	if resp == nil || len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0] == nil {
		return nil, errors.New("no image in gemini response")
	}

	first := resp.GeneratedImages[0]
	if first.RAIFilteredReason != "" {
		return nil, fmt.Errorf("gemini filtered the image: %s", first.RAIFilteredReason)
	}
	if first.Image == nil || len(first.Image.ImageBytes) == 0 {
		return nil, errors.New("no image bytes in gemini response")
	}

	mimeType := first.Image.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	log.Info().
		Str("caller", "GenerateImage").
		Str("model", p.model).
		Str("mime_type", mimeType).
		Int("image_size_bytes", len(first.Image.ImageBytes)).
		Msg("Gemini response (image)")

	return &RawImage{Data: first.Image.ImageBytes, MimeType: mimeType, Model: p.model}, nil
}
