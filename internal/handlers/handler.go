package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/wishes/internal/delivery"
	"github.com/snappy-loop/wishes/internal/imagegen"
	"github.com/snappy-loop/wishes/internal/models"
	"github.com/snappy-loop/wishes/internal/phone"
	"github.com/snappy-loop/wishes/internal/workflow"
)

// sessionController is the workflow surface used by the handlers.
type sessionController interface {
	Generate(ctx context.Context, req models.GenerationRequest) (*models.GeneratedImage, error)
	RequestSend() error
	CancelSend() error
	ConfirmSend(ctx context.Context, rawPhone string) (*models.DeliveryTarget, error)
	CopyToClipboard(ctx context.Context) error
	Reset() error
	Snapshot() models.SessionSnapshot
	Image() *models.GeneratedImage
	Subscribe() (<-chan models.SessionSnapshot, func())
}

// imageOpener opens saved images for streaming.
type imageOpener interface {
	Open(path string) (*os.File, error)
}

// HistoryLister lists recorded wish events.
type HistoryLister interface {
	ListRecent(ctx context.Context, limit int) ([]*models.WishEvent, error)
}

// Handler contains all HTTP handlers
type Handler struct {
	session sessionController
	images  imageOpener
	history HistoryLister
	caption string
}

// NewHandler creates a new handler. history may be nil when no database is configured.
func NewHandler(session sessionController, images imageOpener, history HistoryLister, caption string) *Handler {
	return &Handler{
		session: session,
		images:  images,
		history: history,
		caption: caption,
	}
}

// statusFor maps workflow errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, phone.ErrInvalidFormat):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrBusy), errors.Is(err, workflow.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrNoImage):
		return http.StatusNotFound
	case errors.Is(err, imagegen.ErrGeneration), errors.Is(err, delivery.ErrDelivery):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	writeJSONError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// decodeJSON decodes an application/json body into v and writes the error response itself.
// With optional set, an empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) bool {
	if optional && r.ContentLength == 0 {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content type must be application/json")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !(optional && errors.Is(err, io.EOF)) {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
