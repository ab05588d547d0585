package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/wishes/internal/phone"
)

// DefaultWhatsAppWebURL is the WhatsApp Web origin.
const DefaultWhatsAppWebURL = "https://web.whatsapp.com"

// Selectors locate the WhatsApp Web elements used during a send.
type Selectors struct {
	Composer   string // message box of an open chat
	FileInput  string // hidden image/video input behind the attach menu
	AttachMenu string
	Caption    string // caption box of the media preview
	SendButton string
}

// DefaultSelectors matches the current WhatsApp Web markup.
var DefaultSelectors = Selectors{
	Composer:   `footer div[contenteditable="true"]`,
	AttachMenu: `footer [data-icon="plus"], footer [data-icon="plus-rounded"], footer [data-icon="clip"]`,
	FileInput:  `input[type="file"][accept*="image"]`,
	Caption:    `div[contenteditable="true"][role="textbox"]`,
	SendButton: `[data-icon="send"], [data-icon="wds-ic-send-filled"]`,
}

// WhatsAppOptions configures NewWhatsAppWeb.
type WhatsAppOptions struct {
	BaseURL      string
	UserDataDir  string // persistent profile so the WhatsApp login survives restarts
	Headless     bool
	NoSandbox    bool // needed when Chrome runs as root, e.g. in containers
	ReadyTimeout time.Duration
	SendTimeout  time.Duration
	Selectors    *Selectors
}

// WhatsAppWeb sends images through WhatsApp Web in a Chrome instance driven over CDP.
// The browser starts on the first send and stays open until Close.
type WhatsAppWeb struct {
	opts      WhatsAppOptions
	selectors Selectors

	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// NewWhatsAppWeb creates a messenger. The browser is not started until the first send.
func NewWhatsAppWeb(opts WhatsAppOptions) *WhatsAppWeb {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultWhatsAppWebURL
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 60 * time.Second
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	selectors := DefaultSelectors
	if opts.Selectors != nil {
		selectors = *opts.Selectors
	}
	return &WhatsAppWeb{opts: opts, selectors: selectors}
}

// ChatURL returns the WhatsApp Web link that opens a chat with phoneNumber.
func ChatURL(baseURL, phoneNumber string) string {
	q := url.Values{}
	q.Set("phone", phone.Digits(phoneNumber))
	return strings.TrimRight(baseURL, "/") + "/send?" + q.Encode()
}

// SendImage opens the chat in a new tab, waits for the composer, attaches the image,
// types the caption and sends. The tab is closed afterwards.
func (w *WhatsAppWeb) SendImage(ctx context.Context, phoneNumber, imagePath, caption string) error {
	browserCtx, err := w.browser()
	if err != nil {
		return err
	}

	tabCtx, closeTab := chromedp.NewContext(browserCtx)
	defer closeTab()
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()

	// The first Run allocates the tab and must not carry a deadline.
	if err := chromedp.Run(tabCtx); err != nil {
		return fmt.Errorf("failed to open tab: %w", err)
	}

	chatURL := ChatURL(w.opts.BaseURL, phoneNumber)
	log.Debug().Str("url", chatURL).Msg("Opening WhatsApp chat")

	readyCtx, cancelReady := context.WithTimeout(tabCtx, w.opts.ReadyTimeout)
	defer cancelReady()
	if err := chromedp.Run(readyCtx,
		chromedp.Navigate(chatURL),
		chromedp.WaitVisible(w.selectors.Composer, chromedp.ByQuery),
	); err != nil {
		return w.stepError(ctx, "chat did not become ready", err)
	}

	sendCtx, cancelSend := context.WithTimeout(tabCtx, w.opts.SendTimeout)
	defer cancelSend()
	if err := chromedp.Run(sendCtx,
		chromedp.Click(w.selectors.AttachMenu, chromedp.ByQuery),
		chromedp.SetUploadFiles(w.selectors.FileInput, []string{imagePath}, chromedp.ByQuery),
		chromedp.WaitVisible(w.selectors.SendButton, chromedp.ByQuery),
		chromedp.Click(w.selectors.Caption, chromedp.ByQuery),
		chromedp.SendKeys(w.selectors.Caption, caption, chromedp.ByQuery),
		chromedp.Click(w.selectors.SendButton, chromedp.ByQuery),
		chromedp.WaitNotPresent(w.selectors.SendButton, chromedp.ByQuery),
	); err != nil {
		return w.stepError(ctx, "image was not sent", err)
	}

	return nil
}

// Close shuts down the browser if it was started.
func (w *WhatsAppWeb) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.browserCancel != nil {
		w.browserCancel()
		w.allocCancel()
		w.browserCtx, w.browserCancel, w.allocCancel = nil, nil, nil
		log.Info().Msg("WhatsApp browser closed")
	}
}

func (w *WhatsAppWeb) browser() (context.Context, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.browserCtx != nil && w.browserCtx.Err() == nil {
		return w.browserCtx, nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", w.opts.Headless),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
	)
	if w.opts.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(w.opts.UserDataDir))
	}
	if w.opts.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}

	// The browser outlives individual requests.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	log.Info().
		Str("user_data_dir", w.opts.UserDataDir).
		Bool("headless", w.opts.Headless).
		Msg("WhatsApp browser started")

	w.browserCtx, w.browserCancel, w.allocCancel = browserCtx, browserCancel, allocCancel
	return browserCtx, nil
}

func (w *WhatsAppWeb) stepError(ctx context.Context, step string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", step, ctxErr)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: timed out: %w", step, err)
	}
	return fmt.Errorf("%s: %w", step, err)
}
