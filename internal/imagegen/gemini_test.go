package imagegen

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestGeminiProvider_GenerateImage(t *testing.T) {
	images := &fakeImages{resp: &genai.GenerateImagesResponse{
		GeneratedImages: []*genai.GeneratedImage{
			{Image: &genai.Image{ImageBytes: []byte{0xff, 0xd8, 0xff}, MIMEType: "image/jpeg"}},
		},
	}}
	p := &GeminiProvider{models: images, model: DefaultGeminiModel}

	raw, err := p.GenerateImage(context.Background(), "stars for Asha")
	require.NoError(t, err)

	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, raw.Data)
	assert.Equal(t, "image/jpeg", raw.MimeType)
	assert.Equal(t, DefaultGeminiModel, raw.Model)

	assert.Equal(t, DefaultGeminiModel, images.model)
	assert.Equal(t, "stars for Asha", images.prompt)
	require.NotNil(t, images.config)
	assert.Equal(t, int32(1), images.config.NumberOfImages)
}

func TestGeminiProvider_Errors(t *testing.T) {
	tests := []struct {
		name    string
		images  *fakeImages
		wantErr string
	}{
		{"api error", &fakeImages{err: errors.New("quota exceeded")}, "quota exceeded"},
		{"nil response", &fakeImages{}, "no image in gemini response"},
		{"empty response", &fakeImages{resp: &genai.GenerateImagesResponse{}}, "no image in gemini response"},
		{
			"filtered",
			&fakeImages{resp: &genai.GenerateImagesResponse{
				GeneratedImages: []*genai.GeneratedImage{{RAIFilteredReason: "unsafe"}},
			}},
			"filtered the image: unsafe",
		},
		{
			"no bytes",
			&fakeImages{resp: &genai.GenerateImagesResponse{
				GeneratedImages: []*genai.GeneratedImage{{Image: &genai.Image{}}},
			}},
			"no image bytes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &GeminiProvider{models: tt.images, model: "m"}
			raw, err := p.GenerateImage(context.Background(), "p")
			require.Error(t, err)
			assert.Nil(t, raw)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewGeminiProvider_RequiresKey(t *testing.T) {
	_, err := NewGeminiProvider(context.Background(), "", "", "")
	assert.Error(t, err)
}
