package workflow

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/snappy-loop/wishes/internal/delivery"
	"github.com/snappy-loop/wishes/internal/imagegen"
	"github.com/snappy-loop/wishes/internal/models"
	"github.com/snappy-loop/wishes/internal/phone"
	"github.com/snappy-loop/wishes/internal/prompt"
	"github.com/snappy-loop/wishes/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerator returns img or err; when block is set it waits for it to close first.
type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	img     *models.GeneratedImage
	err     error
	block   chan struct{}
}

func (f *fakeGenerator) Generate(ctx context.Context, p string) (*models.GeneratedImage, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, p)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return f.img, f.err
}

type fakeSender struct {
	mu      sync.Mutex
	phones  []string
	paths   []string
	copied  []string
	sendErr error
	copyErr error
	block   chan struct{}
}

func (f *fakeSender) Send(ctx context.Context, rawPhone, imagePath string) (*models.DeliveryTarget, error) {
	f.mu.Lock()
	f.phones = append(f.phones, rawPhone)
	f.paths = append(f.paths, imagePath)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	normalized, err := phone.Normalize(rawPhone, "")
	if err != nil {
		return nil, err
	}
	return &models.DeliveryTarget{RawPhone: rawPhone, NormalizedPhone: normalized}, nil
}

func (f *fakeSender) CopyToClipboard(ctx context.Context, imagePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copied = append(f.copied, imagePath)
	return f.copyErr
}

type recordingSink struct {
	mu     sync.Mutex
	events []*models.WishEvent
}

func (r *recordingSink) PublishEvent(ctx context.Context, ev *models.WishEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []string
	for _, ev := range r.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func validRequest() models.GenerationRequest {
	return models.GenerationRequest{Name: "Asha", Phone: "9876543210", ThemeID: prompt.ThemeSnowGiftsTrees}
}

func testImage() *models.GeneratedImage {
	return &models.GeneratedImage{ID: uuid.New(), Path: "/out/newyear2025_20241231_235959.jpg", FileName: "newyear2025_20241231_235959.jpg"}
}

func previewing(t *testing.T, c *Controller) {
	t.Helper()
	_, err := c.Generate(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, StatePreviewing, c.State())
}

func TestEndToEnd_AshaPresetOne(t *testing.T) {
	var buf bytes.Buffer
	src := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	src.SetNRGBA(1, 1, color.NRGBA{R: 200, G: 30, B: 30, A: 90})
	require.NoError(t, png.Encode(&buf, src))

	store, err := storage.NewLocalStore(t.TempDir(), storage.DefaultQuality)
	require.NoError(t, err)

	var gotPrompt string
	provider := providerFunc(func(ctx context.Context, p string) (*imagegen.RawImage, error) {
		gotPrompt = p
		return &imagegen.RawImage{Data: buf.Bytes(), MimeType: "image/png", Model: "test"}, nil
	})
	messenger := &recordingMessenger{}
	dispatcher := delivery.NewDispatcher(messenger, nil, "", "")
	sink := &recordingSink{}
	c := NewController(imagegen.NewClient(provider, store, nil, time.Minute), dispatcher, sink)

	updates, unsubscribe := c.Subscribe()
	defer unsubscribe()

	assert.Equal(t, StateIdle, c.State())
	img, err := c.Generate(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(gotPrompt, "Happy New Year 2025 Asha"))
	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, img.FileName, entries[0].Name())

	assert.Equal(t, StateGenerating, State((<-updates).State))
	assert.Equal(t, StatePreviewing, State((<-updates).State))

	require.NoError(t, c.RequestSend())
	snap := c.Snapshot()
	assert.True(t, snap.Confirming)
	assert.Equal(t, DeliveryWarning, snap.Message)

	target, err := c.ConfirmSend(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "+919876543210", target.NormalizedPhone)
	assert.Equal(t, "+919876543210", messenger.phone)
	assert.Equal(t, img.Path, messenger.path)
	assert.Equal(t, delivery.DefaultCaption, messenger.caption)

	snap = c.Snapshot()
	assert.Equal(t, string(StatePreviewing), snap.State)
	assert.False(t, snap.Confirming)
	assert.Equal(t, SentMessage, snap.Message)
	require.NotNil(t, snap.LastDelivery)
	assert.Equal(t, "+919876543210", snap.LastDelivery.NormalizedPhone)

	assert.Equal(t, []string{models.EventImageGenerated, models.EventDeliverySent}, sink.kinds())
}

type providerFunc func(ctx context.Context, p string) (*imagegen.RawImage, error)

func (f providerFunc) GenerateImage(ctx context.Context, p string) (*imagegen.RawImage, error) {
	return f(ctx, p)
}

type recordingMessenger struct {
	phone, path, caption string
}

func (m *recordingMessenger) SendImage(ctx context.Context, phone, imagePath, caption string) error {
	m.phone, m.path, m.caption = phone, imagePath, caption
	return nil
}

func TestGenerate_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  models.GenerationRequest
	}{
		{"empty name", models.GenerationRequest{Name: "  ", Phone: "9876543210", ThemeID: prompt.ThemeSnowGiftsTrees}},
		{"empty phone", models.GenerationRequest{Name: "Asha", ThemeID: prompt.ThemeSnowGiftsTrees}},
		{"unknown theme", models.GenerationRequest{Name: "Asha", Phone: "9876543210", ThemeID: "beach"}},
		{"custom without text", models.GenerationRequest{Name: "Asha", Phone: "9876543210", ThemeID: prompt.ThemeCustom}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{img: testImage()}
			c := NewController(gen, &fakeSender{})

			_, err := c.Generate(context.Background(), tt.req)
			assert.True(t, errors.Is(err, models.ErrInvalidInput))
			assert.Empty(t, gen.prompts, "no remote call on invalid input")
			assert.Equal(t, StateIdle, c.State())
		})
	}
}

func TestGenerate_CustomPromptVerbatim(t *testing.T) {
	gen := &fakeGenerator{img: testImage()}
	c := NewController(gen, &fakeSender{})

	req := models.GenerationRequest{Name: "Asha", Phone: "9876543210", ThemeID: prompt.ThemeCustom, CustomPrompt: "fireworks over a lake"}
	_, err := c.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"fireworks over a lake"}, gen.prompts)
}

func TestGenerate_CustomPromptKeepsWhitespace(t *testing.T) {
	gen := &fakeGenerator{img: testImage()}
	c := NewController(gen, &fakeSender{})

	text := "  Fireworks over a lake,\n  lanterns drifting  "
	req := models.GenerationRequest{Name: " Asha ", Phone: "9876543210", ThemeID: prompt.ThemeCustom, CustomPrompt: text}
	_, err := c.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{text}, gen.prompts)
	assert.Equal(t, "Asha", c.Snapshot().Request.Name)
	assert.Equal(t, text, c.Snapshot().Request.CustomPrompt)
}

func TestConfirmSend_DoesNotTouchClipboard(t *testing.T) {
	sender := &fakeSender{}
	c := NewController(&fakeGenerator{img: testImage()}, sender)
	previewing(t, c)

	require.NoError(t, c.RequestSend())
	assert.NotContains(t, strings.ToLower(c.Snapshot().Message), "clipboard")

	_, err := c.ConfirmSend(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, sender.copied)
	assert.Len(t, sender.phones, 1)
}

func TestGenerate_FailureReturnsToIdle(t *testing.T) {
	gen := &fakeGenerator{img: testImage()}
	sink := &recordingSink{}
	c := NewController(gen, &fakeSender{}, sink)
	previewing(t, c)

	gen.img = nil
	gen.err = &imagegen.GenerationError{Stage: imagegen.StageRemote, Err: errors.New("throttled")}

	_, err := c.Generate(context.Background(), validRequest())
	assert.True(t, errors.Is(err, imagegen.ErrGeneration))

	snap := c.Snapshot()
	assert.Equal(t, string(StateIdle), snap.State)
	assert.Nil(t, snap.Image)
	assert.Contains(t, snap.Error, "throttled")
	assert.Nil(t, c.Image())

	assert.Equal(t, []string{models.EventImageGenerated, models.EventGenerationFailed}, sink.kinds())
}

func TestBusy(t *testing.T) {
	gen := &fakeGenerator{img: testImage(), block: make(chan struct{})}
	c := NewController(gen, &fakeSender{})

	done := make(chan error, 1)
	go func() {
		_, err := c.Generate(context.Background(), validRequest())
		done <- err
	}()
	require.Eventually(t, func() bool { return c.State() == StateGenerating }, time.Second, time.Millisecond)

	_, err := c.Generate(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, c.RequestSend(), ErrBusy)
	assert.ErrorIs(t, c.Reset(), ErrBusy)
	assert.ErrorIs(t, c.CopyToClipboard(context.Background()), ErrBusy)

	close(gen.block)
	require.NoError(t, <-done)
	assert.Equal(t, StatePreviewing, c.State())
}

func TestBusyWhileDelivering(t *testing.T) {
	sender := &fakeSender{block: make(chan struct{})}
	c := NewController(&fakeGenerator{img: testImage()}, sender)
	previewing(t, c)
	require.NoError(t, c.RequestSend())

	done := make(chan error, 1)
	go func() {
		_, err := c.ConfirmSend(context.Background(), "")
		done <- err
	}()
	require.Eventually(t, func() bool { return c.State() == StateDelivering }, time.Second, time.Millisecond)

	_, err := c.Generate(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, c.CancelSend(), ErrBusy)

	close(sender.block)
	require.NoError(t, <-done)
	assert.Equal(t, StatePreviewing, c.State())
}

func TestInvalidTransitions(t *testing.T) {
	c := NewController(&fakeGenerator{img: testImage()}, &fakeSender{})

	assert.ErrorIs(t, c.RequestSend(), ErrInvalidTransition)
	assert.ErrorIs(t, c.CancelSend(), ErrInvalidTransition)
	_, err := c.ConfirmSend(context.Background(), "9876543210")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, c.CopyToClipboard(context.Background()), ErrInvalidTransition)

	previewing(t, c)
	_, err = c.ConfirmSend(context.Background(), "9876543210")
	assert.ErrorIs(t, err, ErrInvalidTransition, "send needs confirmation first")

	require.NoError(t, c.RequestSend())
	_, err = c.Generate(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, c.CancelSend())
	assert.Equal(t, StatePreviewing, c.State())
	assert.False(t, c.Snapshot().Confirming)
}

func TestConfirmSend_PhoneOverride(t *testing.T) {
	sender := &fakeSender{}
	c := NewController(&fakeGenerator{img: testImage()}, sender)
	previewing(t, c)
	require.NoError(t, c.RequestSend())

	target, err := c.ConfirmSend(context.Background(), " 15551234567 ")
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", target.NormalizedPhone)
	assert.Equal(t, []string{"15551234567"}, sender.phones)
	assert.Equal(t, []string{testImage().Path}, sender.paths)
}

func TestConfirmSend_Failures(t *testing.T) {
	t.Run("invalid phone", func(t *testing.T) {
		sink := &recordingSink{}
		c := NewController(&fakeGenerator{img: testImage()}, &fakeSender{}, sink)
		previewing(t, c)
		require.NoError(t, c.RequestSend())

		_, err := c.ConfirmSend(context.Background(), "12345")
		assert.ErrorIs(t, err, phone.ErrInvalidFormat)

		snap := c.Snapshot()
		assert.Equal(t, string(StatePreviewing), snap.State)
		assert.Contains(t, snap.Error, "invalid phone number format")
		assert.NotNil(t, snap.Image, "image survives a failed send")
		assert.Equal(t, []string{models.EventImageGenerated, models.EventDeliveryFailed}, sink.kinds())
	})

	t.Run("delivery error", func(t *testing.T) {
		sendErr := &delivery.DeliveryError{Op: delivery.OpSend, Err: errors.New("timeout")}
		sender := &fakeSender{sendErr: sendErr}
		c := NewController(&fakeGenerator{img: testImage()}, sender)
		previewing(t, c)
		require.NoError(t, c.RequestSend())

		_, err := c.ConfirmSend(context.Background(), "")
		assert.ErrorIs(t, err, delivery.ErrDelivery)
		assert.Equal(t, StatePreviewing, c.State())
		assert.Len(t, sender.phones, 1, "no automatic retry")

		require.NoError(t, c.RequestSend(), "user may retry manually")
	})
}

func TestCopyToClipboard(t *testing.T) {
	sender := &fakeSender{}
	sink := &recordingSink{}
	c := NewController(&fakeGenerator{img: testImage()}, sender, sink)
	previewing(t, c)

	require.NoError(t, c.CopyToClipboard(context.Background()))
	require.NoError(t, c.RequestSend())
	require.NoError(t, c.CopyToClipboard(context.Background()), "allowed while confirming")
	assert.Equal(t, StateConfirmingDelivery, c.State())
	assert.Len(t, sender.copied, 2)

	sender.copyErr = errors.New("no display")
	assert.Error(t, c.CopyToClipboard(context.Background()))
	assert.Equal(t, StateConfirmingDelivery, c.State())

	assert.Equal(t, []string{
		models.EventImageGenerated,
		models.EventClipboardCopied,
		models.EventClipboardCopied,
		models.EventClipboardFailed,
	}, sink.kinds())
}

func TestReset(t *testing.T) {
	c := NewController(&fakeGenerator{img: testImage()}, &fakeSender{})
	previewing(t, c)
	require.NoError(t, c.RequestSend())

	require.NoError(t, c.Reset())
	snap := c.Snapshot()
	assert.Equal(t, string(StateIdle), snap.State)
	assert.Nil(t, snap.Image)
	assert.Nil(t, snap.Request)
	assert.False(t, snap.Confirming)
}

func TestSnapshotIsCopy(t *testing.T) {
	c := NewController(&fakeGenerator{img: testImage()}, &fakeSender{})
	previewing(t, c)

	snap := c.Snapshot()
	snap.Image.Path = "/elsewhere.jpg"
	snap.Request.Name = "Someone"

	again := c.Snapshot()
	assert.Equal(t, testImage().Path, again.Image.Path)
	assert.Equal(t, "Asha", again.Request.Name)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	c := NewController(&fakeGenerator{img: testImage()}, &fakeSender{})
	updates, unsubscribe := c.Subscribe()

	unsubscribe()
	unsubscribe()
	_, open := <-updates
	assert.False(t, open)

	previewing(t, c)
}

func TestSubscribe_SlowSubscriberSeesLatest(t *testing.T) {
	c := NewController(&fakeGenerator{img: testImage()}, &fakeSender{})
	updates, unsubscribe := c.Subscribe()
	defer unsubscribe()

	previewing(t, c)
	for i := 0; i < 10; i++ {
		require.NoError(t, c.RequestSend())
		require.NoError(t, c.CancelSend())
	}
	require.NoError(t, c.RequestSend())

	var last string
	for len(updates) > 0 {
		last = (<-updates).State
	}
	assert.Equal(t, string(StateConfirmingDelivery), last)
}

func TestSinkFunc(t *testing.T) {
	var got []string
	sink := SinkFunc(func(ctx context.Context, ev *models.WishEvent) error {
		got = append(got, ev.Kind)
		return errors.New("broker down")
	})
	c := NewController(&fakeGenerator{img: testImage()}, &fakeSender{}, sink, nil)

	previewing(t, c)
	assert.Equal(t, []string{models.EventImageGenerated}, got, "sink errors do not fail the operation")
}
