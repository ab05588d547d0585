// Package workflow drives one greeting session from the form to a delivered image.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/wishes/internal/models"
	"github.com/snappy-loop/wishes/internal/prompt"
)

// State of the session
type State string

const (
	StateIdle               State = "idle"
	StateGenerating         State = "generating"
	StatePreviewing         State = "previewing"
	StateConfirmingDelivery State = "confirming_delivery"
	StateDelivering         State = "delivering"
)

// Messages shown to the user
const (
	GeneratedMessage = "Your New Year greeting is ready!"
	DeliveryWarning  = "WhatsApp Web will open in a new browser tab. The process takes about 40 seconds; " +
		"please don't switch tabs."
	SentMessage = "Message sent successfully! 🎉"
)

const eventTimeout = 5 * time.Second

var (
	// ErrBusy is returned while a generation or delivery is in flight.
	ErrBusy = errors.New("another operation is in progress")
	// ErrInvalidTransition is returned when the operation is not allowed in the current state.
	ErrInvalidTransition = errors.New("operation not allowed in current state")
	// ErrNoImage is returned when an operation needs an image and none has been generated.
	ErrNoImage = errors.New("no image generated")

	errEmptyPhone = fmt.Errorf("%w: phone is required", models.ErrInvalidInput)
)

// Generator turns a prompt into a saved image.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*models.GeneratedImage, error)
}

// Sender delivers saved images.
type Sender interface {
	Send(ctx context.Context, rawPhone, imagePath string) (*models.DeliveryTarget, error)
	CopyToClipboard(ctx context.Context, imagePath string) error
}

// EventSink receives workflow outcomes. Failures are logged and never affect the session.
type EventSink interface {
	PublishEvent(ctx context.Context, event *models.WishEvent) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, event *models.WishEvent) error

// PublishEvent calls f.
func (f SinkFunc) PublishEvent(ctx context.Context, event *models.WishEvent) error {
	return f(ctx, event)
}

type session struct {
	id           uuid.UUID
	state        State
	request      *models.GenerationRequest
	image        *models.GeneratedImage
	lastDelivery *models.DeliveryTarget
	message      string
	err          string
	updatedAt    time.Time
}

// Controller owns the session. Operations are serialized: the mutex guards the session and the
// Generating and Delivering states reject concurrent operations with ErrBusy. Remote calls run
// outside the lock.
type Controller struct {
	generator Generator
	sender    Sender
	sinks     []EventSink
	now       func() time.Time

	mu          sync.Mutex
	s           session
	subscribers map[int]chan models.SessionSnapshot
	nextSubID   int
}

// NewController creates a controller in the Idle state. Nil sinks are ignored.
func NewController(generator Generator, sender Sender, sinks ...EventSink) *Controller {
	c := &Controller{
		generator:   generator,
		sender:      sender,
		now:         time.Now,
		subscribers: make(map[int]chan models.SessionSnapshot),
	}
	for _, sink := range sinks {
		if sink != nil {
			c.sinks = append(c.sinks, sink)
		}
	}
	c.s = session{id: uuid.New(), state: StateIdle, updatedAt: c.now()}
	return c
}

// Generate validates req, composes the prompt and generates the image.
// On success the session moves to Previewing; on failure it returns to Idle with no image.
func (c *Controller) Generate(ctx context.Context, req models.GenerationRequest) (*models.GeneratedImage, error) {
	req = req.Normalize()
	if req.Name == "" {
		return nil, prompt.ErrEmptyName
	}
	if req.Phone == "" {
		return nil, errEmptyPhone
	}
	text, err := prompt.ComposeFor(req.Name, req.ThemeID, req.CustomPrompt)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if err := c.checkLocked(StateIdle, StatePreviewing); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.s.request = &req
	c.s.image = nil
	c.s.lastDelivery = nil
	c.transitionLocked(StateGenerating, "", "")
	sessionID := c.s.id
	c.mu.Unlock()

	log.Info().
		Str("session_id", sessionID.String()).
		Str("theme", req.ThemeID).
		Msg("Generating greeting")

	img, genErr := c.generator.Generate(ctx, text)

	c.mu.Lock()
	if genErr != nil {
		c.s.image = nil
		c.transitionLocked(StateIdle, "", genErr.Error())
	} else {
		c.s.image = img
		c.transitionLocked(StatePreviewing, GeneratedMessage, "")
	}
	c.mu.Unlock()

	if genErr != nil {
		log.Error().Err(genErr).Str("session_id", sessionID.String()).Msg("Greeting generation failed")
		c.publish(ctx, c.event(models.EventGenerationFailed, sessionID, nil, "", genErr))
		return nil, genErr
	}
	c.publish(ctx, c.event(models.EventImageGenerated, sessionID, img, "", nil))
	return img, nil
}

// RequestSend asks for delivery confirmation.
func (c *Controller) RequestSend() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkLocked(StatePreviewing); err != nil {
		return err
	}
	c.transitionLocked(StateConfirmingDelivery, DeliveryWarning, "")
	return nil
}

// CancelSend withdraws a pending confirmation.
func (c *Controller) CancelSend() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkLocked(StateConfirmingDelivery); err != nil {
		return err
	}
	c.transitionLocked(StatePreviewing, "", "")
	return nil
}

// ConfirmSend delivers the previewed image once. rawPhone overrides the phone of the
// generation request when non-empty. The session returns to Previewing either way.
func (c *Controller) ConfirmSend(ctx context.Context, rawPhone string) (*models.DeliveryTarget, error) {
	c.mu.Lock()
	if err := c.checkLocked(StateConfirmingDelivery); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	img := c.s.image
	if img == nil {
		c.mu.Unlock()
		return nil, ErrNoImage
	}
	rawPhone = strings.TrimSpace(rawPhone)
	if rawPhone == "" && c.s.request != nil {
		rawPhone = c.s.request.Phone
	}
	if rawPhone == "" {
		c.mu.Unlock()
		return nil, errEmptyPhone
	}
	c.transitionLocked(StateDelivering, "", "")
	sessionID := c.s.id
	c.mu.Unlock()

	target, sendErr := c.sender.Send(ctx, rawPhone, img.Path)

	c.mu.Lock()
	if sendErr != nil {
		c.transitionLocked(StatePreviewing, "", sendErr.Error())
	} else {
		c.s.lastDelivery = target
		c.transitionLocked(StatePreviewing, SentMessage, "")
	}
	c.mu.Unlock()

	if sendErr != nil {
		c.publish(ctx, c.event(models.EventDeliveryFailed, sessionID, img, rawPhone, sendErr))
		return nil, sendErr
	}
	c.publish(ctx, c.event(models.EventDeliverySent, sessionID, img, target.NormalizedPhone, nil))
	return target, nil
}

// CopyToClipboard copies the current image to the system clipboard without changing state.
func (c *Controller) CopyToClipboard(ctx context.Context) error {
	c.mu.Lock()
	if err := c.checkLocked(StatePreviewing, StateConfirmingDelivery); err != nil {
		c.mu.Unlock()
		return err
	}
	img := c.s.image
	sessionID := c.s.id
	c.mu.Unlock()

	if img == nil {
		return ErrNoImage
	}
	if err := c.sender.CopyToClipboard(ctx, img.Path); err != nil {
		c.publish(ctx, c.event(models.EventClipboardFailed, sessionID, img, "", err))
		return err
	}
	c.publish(ctx, c.event(models.EventClipboardCopied, sessionID, img, "", nil))
	return nil
}

// Reset clears the session. Saved files are kept.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busyLocked() {
		return ErrBusy
	}
	c.s.request = nil
	c.s.image = nil
	c.s.lastDelivery = nil
	c.transitionLocked(StateIdle, "", "")
	return nil
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s.state
}

// Image returns the current image, or nil.
func (c *Controller) Image() *models.GeneratedImage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s.image
}

// Snapshot returns a copy of the session.
func (c *Controller) Snapshot() models.SessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe streams a snapshot after every transition. Slow subscribers only see the latest
// snapshots. The returned func unsubscribes and closes the channel.
func (c *Controller) Subscribe() (<-chan models.SessionSnapshot, func()) {
	ch := make(chan models.SessionSnapshot, 8)

	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}

func (c *Controller) busyLocked() bool {
	return c.s.state == StateGenerating || c.s.state == StateDelivering
}

func (c *Controller) checkLocked(allowed ...State) error {
	for _, st := range allowed {
		if c.s.state == st {
			return nil
		}
	}
	if c.busyLocked() {
		return ErrBusy
	}
	return fmt.Errorf("%w: %s", ErrInvalidTransition, c.s.state)
}

func (c *Controller) transitionLocked(to State, message, errMsg string) {
	from := c.s.state
	c.s.state = to
	c.s.message = message
	c.s.err = errMsg
	c.s.updatedAt = c.now()

	log.Debug().
		Str("session_id", c.s.id.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Session transition")

	snap := c.snapshotLocked()
	for _, ch := range c.subscribers {
		select {
		case ch <- snap:
		default:
			// Drop the oldest so the newest always gets through.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (c *Controller) snapshotLocked() models.SessionSnapshot {
	snap := models.SessionSnapshot{
		SessionID:  c.s.id,
		State:      string(c.s.state),
		Confirming: c.s.state == StateConfirmingDelivery,
		Message:    c.s.message,
		Error:      c.s.err,
		UpdatedAt:  c.s.updatedAt,
	}
	if c.s.image != nil {
		img := *c.s.image
		snap.Image = &img
	}
	if c.s.request != nil {
		req := *c.s.request
		snap.Request = &req
	}
	if c.s.lastDelivery != nil {
		target := *c.s.lastDelivery
		snap.LastDelivery = &target
	}
	return snap
}

func (c *Controller) event(kind string, sessionID uuid.UUID, img *models.GeneratedImage, phone string, err error) *models.WishEvent {
	ev := &models.WishEvent{
		ID:        uuid.New(),
		Kind:      kind,
		SessionID: sessionID,
		Phone:     phone,
		CreatedAt: c.now(),
	}
	if img != nil {
		id := img.ID
		ev.ImageID = &id
		ev.ImagePath = img.Path
	}
	if err != nil {
		msg := err.Error()
		ev.Error = &msg
	}
	return ev
}

func (c *Controller) publish(ctx context.Context, ev *models.WishEvent) {
	if len(c.sinks) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
	defer cancel()

	for _, sink := range c.sinks {
		if err := sink.PublishEvent(ctx, ev); err != nil {
			log.Warn().Err(err).Str("kind", ev.Kind).Msg("Failed to publish wish event")
		}
	}
}
