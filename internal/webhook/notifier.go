package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/wishes/internal/models"
)

const (
	HeaderTimestamp = "X-Wishes-Timestamp"
	HeaderSignature = "X-Wishes-Signature"
	HeaderEvent     = "X-Wishes-Event"

	defaultQueueSize = 64
)

// ErrQueueFull is returned by PublishEvent when the delivery queue has no room.
var ErrQueueFull = errors.New("webhook queue full")

// Options configures a Notifier
type Options struct {
	URL        string
	Secret     string // empty disables signing
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	QueueSize  int
}

// Notifier posts wish events to an HTTP endpoint. Events are queued by
// PublishEvent and delivered with retries by the worker started with Start.
type Notifier struct {
	url        string
	secret     string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	queue      chan *models.WishEvent
	now        func() time.Time
}

// NewNotifier creates a webhook notifier
func NewNotifier(opts Options) *Notifier {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = time.Minute
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	return &Notifier{
		url:        opts.URL,
		secret:     opts.Secret,
		httpClient: &http.Client{Timeout: opts.Timeout},
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		maxDelay:   opts.MaxDelay,
		queue:      make(chan *models.WishEvent, opts.QueueSize),
		now:        time.Now,
	}
}

// DeliveryError wraps a non-2xx webhook response
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("webhook returned status %d", e.StatusCode)
}

// IsRetryable reports whether the request may succeed later.
func (e *DeliveryError) IsRetryable() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return e.StatusCode >= 500
}

// PublishEvent queues the event without blocking.
func (n *Notifier) PublishEvent(ctx context.Context, event *models.WishEvent) error {
	select {
	case n.queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start delivers queued events until ctx is cancelled.
func (n *Notifier) Start(ctx context.Context) {
	go func() {
		log.Info().Str("url", n.url).Msg("Webhook notifier started")
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("Webhook notifier stopped")
				return
			case event := <-n.queue:
				n.deliver(ctx, event)
			}
		}
	}()
}

// deliver attempts the event up to maxRetries times. Permanent failures are logged and dropped.
func (n *Notifier) deliver(ctx context.Context, event *models.WishEvent) {
	for attempt := 0; attempt < n.maxRetries; attempt++ {
		err := n.send(ctx, event)
		if err == nil {
			log.Info().
				Str("event_id", event.ID.String()).
				Str("kind", event.Kind).
				Int("attempts", attempt+1).
				Msg("Webhook delivered")
			return
		}

		var deliveryErr *DeliveryError
		if errors.As(err, &deliveryErr) && !deliveryErr.IsRetryable() {
			log.Error().
				Err(err).
				Str("event_id", event.ID.String()).
				Int("status_code", deliveryErr.StatusCode).
				Msg("Webhook delivery failed with permanent error - not retrying")
			return
		}

		log.Warn().
			Err(err).
			Str("event_id", event.ID.String()).
			Int("attempt", attempt+1).
			Int("max_retries", n.maxRetries).
			Msg("Webhook delivery failed")

		if attempt == n.maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(n.backoff(attempt)):
		}
	}
	log.Error().
		Str("event_id", event.ID.String()).
		Msg("Webhook delivery failed permanently after max retries")
}

func (n *Notifier) backoff(attempt int) time.Duration {
	delay := n.baseDelay * time.Duration(1<<uint(min(attempt, 10)))
	return min(delay, n.maxDelay)
}

func (n *Notifier) send(ctx context.Context, event *models.WishEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	timestamp := strconv.FormatInt(n.now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Wishes-Webhook/1.0")
	req.Header.Set(HeaderEvent, event.Kind)
	req.Header.Set(HeaderTimestamp, timestamp)
	if n.secret != "" {
		req.Header.Set(HeaderSignature, Sign(n.secret, timestamp, body))
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of "timestamp.body" under secret.
func Sign(secret, timestamp string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(timestamp))
	h.Write([]byte("."))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
