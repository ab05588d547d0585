// Package delivery sends generated greetings to a WhatsApp contact and copies them to the OS clipboard.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/wishes/internal/models"
	"github.com/snappy-loop/wishes/internal/phone"
)

// DefaultCaption is attached to every delivered image unless configured otherwise.
const DefaultCaption = "Happy New Year 2025! 🎊"

// Operations reported in DeliveryError.Op
const (
	OpSend      = "send"
	OpClipboard = "clipboard"
)

var (
	// ErrDelivery is matched by every DeliveryError.
	ErrDelivery = errors.New("delivery failed")
	// ErrUnsupported is returned when the platform has no clipboard bridge.
	ErrUnsupported = errors.New("not supported on this platform")
)

// DeliveryError wraps a failed send or clipboard copy.
type DeliveryError struct {
	Op    string
	Phone string
	Err   error
}

func (e *DeliveryError) Error() string {
	if e.Phone != "" {
		return fmt.Sprintf("%s to %s failed: %v", e.Op, e.Phone, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool { return target == ErrDelivery }

// Messenger sends an image with a caption to an E.164 phone number.
type Messenger interface {
	SendImage(ctx context.Context, phone, imagePath, caption string) error
}

// Clipboard places an image file on the system clipboard.
type Clipboard interface {
	CopyImage(ctx context.Context, imagePath string) error
}

// Dispatcher normalizes recipients and hands images to the messenger or the clipboard.
type Dispatcher struct {
	messenger   Messenger
	clipboard   Clipboard
	caption     string
	countryCode string
}

// NewDispatcher creates a dispatcher. clipboard may be nil.
func NewDispatcher(messenger Messenger, clipboard Clipboard, caption, countryCode string) *Dispatcher {
	if caption == "" {
		caption = DefaultCaption
	}
	if countryCode == "" {
		countryCode = phone.DefaultCountryCode
	}
	return &Dispatcher{
		messenger:   messenger,
		clipboard:   clipboard,
		caption:     caption,
		countryCode: countryCode,
	}
}

// Caption returns the caption attached to sent images.
func (d *Dispatcher) Caption() string {
	return d.caption
}

// Send normalizes rawPhone and sends the image once. Phone errors are returned unwrapped;
// anything else is a *DeliveryError.
func (d *Dispatcher) Send(ctx context.Context, rawPhone, imagePath string) (*models.DeliveryTarget, error) {
	normalized, err := phone.Normalize(rawPhone, d.countryCode)
	if err != nil {
		log.Warn().Str("phone", rawPhone).Msg("Rejected phone number")
		return nil, err
	}
	target := &models.DeliveryTarget{RawPhone: rawPhone, NormalizedPhone: normalized}

	absPath, err := resolveImage(imagePath)
	if err != nil {
		return nil, d.fail(OpSend, normalized, err)
	}

	log.Info().
		Str("phone", normalized).
		Str("path", absPath).
		Msg("Sending greeting")

	if err := d.messenger.SendImage(ctx, normalized, absPath, d.caption); err != nil {
		return nil, d.fail(OpSend, normalized, err)
	}

	log.Info().Str("phone", normalized).Msg("Greeting sent")
	return target, nil
}

// CopyToClipboard copies the image to the system clipboard. No retry.
func (d *Dispatcher) CopyToClipboard(ctx context.Context, imagePath string) error {
	if d.clipboard == nil {
		return d.fail(OpClipboard, "", ErrUnsupported)
	}
	absPath, err := resolveImage(imagePath)
	if err != nil {
		return d.fail(OpClipboard, "", err)
	}
	if err := d.clipboard.CopyImage(ctx, absPath); err != nil {
		return d.fail(OpClipboard, "", err)
	}
	log.Info().Str("path", absPath).Msg("Image copied to clipboard")
	return nil
}

func (d *Dispatcher) fail(op, phone string, err error) error {
	log.Error().Err(err).Str("op", op).Str("phone", phone).Msg("Delivery failed")
	return &DeliveryError{Op: op, Phone: phone, Err: err}
}

func resolveImage(path string) (string, error) {
	if path == "" {
		return "", errors.New("no image path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve image path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("image not readable: %w", err)
	}
	return abs, nil
}
