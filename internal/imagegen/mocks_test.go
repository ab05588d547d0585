package imagegen

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"google.golang.org/genai"
)

// pngBytes returns a w x h PNG with a half transparent red pixel at the origin.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 10, G: 120, B: 200, A: 255})
		}
	}
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 128})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type fakeProvider struct {
	raw     *RawImage
	err     error
	prompts []string
	ctxErr  error
}

func (f *fakeProvider) GenerateImage(ctx context.Context, prompt string) (*RawImage, error) {
	f.prompts = append(f.prompts, prompt)
	if _, ok := ctx.Deadline(); !ok {
		f.ctxErr = context.DeadlineExceeded
	}
	return f.raw, f.err
}

type fakeMirror struct {
	fileName string
	data     []byte
	url      string
	err      error
}

func (f *fakeMirror) MirrorImage(ctx context.Context, fileName string, data io.Reader, size int64) (string, error) {
	f.fileName = fileName
	f.data, _ = io.ReadAll(data)
	return f.url, f.err
}

type fakeInvoker struct {
	input *bedrockruntime.InvokeModelInput
	out   *bedrockruntime.InvokeModelOutput
	err   error
}

func (f *fakeInvoker) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = params
	return f.out, f.err
}

type fakeImages struct {
	model  string
	prompt string
	config *genai.GenerateImagesConfig
	resp   *genai.GenerateImagesResponse
	err    error
}

func (f *fakeImages) GenerateImages(ctx context.Context, model string, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error) {
	f.model = model
	f.prompt = prompt
	f.config = config
	return f.resp, f.err
}
