package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidInput marks a request the user has to correct and resubmit.
var ErrInvalidInput = errors.New("invalid input")

// GenerationRequest is the form submitted to generate a greeting image
type GenerationRequest struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	ThemeID      string `json:"theme"`
	CustomPrompt string `json:"custom_prompt,omitempty"`
}

// Normalize trims surrounding whitespace from the name, phone and theme.
// CustomPrompt is kept as typed; it is sent to the model verbatim.
func (r GenerationRequest) Normalize() GenerationRequest {
	return GenerationRequest{
		Name:         strings.TrimSpace(r.Name),
		Phone:        strings.TrimSpace(r.Phone),
		ThemeID:      strings.TrimSpace(r.ThemeID),
		CustomPrompt: r.CustomPrompt,
	}
}

// GeneratedImage is a greeting image persisted under the output directory
type GeneratedImage struct {
	ID        uuid.UUID `json:"id"`
	Data      []byte    `json:"-"`
	Path      string    `json:"path"`
	FileName  string    `json:"file_name"`
	Prompt    string    `json:"prompt"`
	Model     string    `json:"model"`
	SizeBytes int64     `json:"size_bytes"`
	MirrorURL string    `json:"mirror_url,omitempty"` // public URL of the S3 copy, if mirrored
	CreatedAt time.Time `json:"created_at"`
}

// DeliveryTarget is the phone a delivery was attempted for. NormalizedPhone is derived on
// every attempt and never stored on its own.
type DeliveryTarget struct {
	RawPhone        string `json:"raw_phone"`
	NormalizedPhone string `json:"normalized_phone"`
}

// Theme is a selectable prompt template
type Theme struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Template string `json:"template,omitempty"`
	Custom   bool   `json:"custom"`
}

// SessionSnapshot is a read-only view of the workflow session
type SessionSnapshot struct {
	SessionID    uuid.UUID          `json:"session_id"`
	State        string             `json:"state"`
	Image        *GeneratedImage    `json:"image,omitempty"`
	Request      *GenerationRequest `json:"request,omitempty"`
	Confirming   bool               `json:"confirming"`
	LastDelivery *DeliveryTarget    `json:"last_delivery,omitempty"`
	Message      string             `json:"message,omitempty"`
	Error        string             `json:"error,omitempty"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// Event kinds emitted by the workflow
const (
	EventImageGenerated   = "image.generated"
	EventGenerationFailed = "image.generation_failed"
	EventDeliverySent     = "delivery.sent"
	EventDeliveryFailed   = "delivery.failed"
	EventClipboardCopied  = "clipboard.copied"
	EventClipboardFailed  = "clipboard.failed"
)

// WishEvent records one outcome of a workflow operation
type WishEvent struct {
	ID        uuid.UUID  `json:"id"`
	Kind      string     `json:"kind"`
	SessionID uuid.UUID  `json:"session_id"`
	ImageID   *uuid.UUID `json:"image_id,omitempty"`
	ImagePath string     `json:"image_path,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Error     *string    `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
