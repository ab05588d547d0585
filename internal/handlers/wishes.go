package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/wishes/internal/models"
	"github.com/snappy-loop/wishes/internal/prompt"
	"github.com/snappy-loop/wishes/internal/workflow"
)

// DownloadName is the file name offered when downloading the current image.
const DownloadName = "newyear2025.jpg"

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type confirmSendRequest struct {
	Phone string `json:"phone"`
}

// Themes handles GET /v1/themes
func (h *Handler) Themes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"themes":          prompt.Themes(),
		"example_prompts": prompt.ExamplePrompts(),
	})
}

// Session handles GET /v1/session
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// Generate handles POST /v1/generate
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req models.GenerationRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	if _, err := h.session.Generate(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// Image handles GET /v1/image (inline preview)
func (h *Handler) Image(w http.ResponseWriter, r *http.Request) {
	h.serveImage(w, r, false)
}

// DownloadImage handles GET /v1/image/download
func (h *Handler) DownloadImage(w http.ResponseWriter, r *http.Request) {
	h.serveImage(w, r, true)
}

func (h *Handler) serveImage(w http.ResponseWriter, r *http.Request, attachment bool) {
	img := h.session.Image()
	if img == nil {
		writeError(w, workflow.ErrNoImage)
		return
	}

	f, err := h.images.Open(img.Path)
	if err != nil {
		log.Error().Err(err).Str("path", img.Path).Msg("Failed to open image")
		writeJSONError(w, http.StatusNotFound, "image not found")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	if attachment {
		w.Header().Set("Content-Disposition", `attachment; filename="`+DownloadName+`"`)
	}
	http.ServeContent(w, r, img.FileName, img.CreatedAt, f)
}

// Clipboard handles POST /v1/clipboard
func (h *Handler) Clipboard(w http.ResponseWriter, r *http.Request) {
	if err := h.session.CopyToClipboard(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// RequestSend handles POST /v1/send
func (h *Handler) RequestSend(w http.ResponseWriter, r *http.Request) {
	if err := h.session.RequestSend(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// ConfirmSend handles POST /v1/send/confirm. The body is optional.
func (h *Handler) ConfirmSend(w http.ResponseWriter, r *http.Request) {
	var req confirmSendRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	if _, err := h.session.ConfirmSend(r.Context(), req.Phone); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// CancelSend handles POST /v1/send/cancel
func (h *Handler) CancelSend(w http.ResponseWriter, r *http.Request) {
	if err := h.session.CancelSend(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// Reset handles POST /v1/reset
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Reset(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// History handles GET /v1/history
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "history not configured")
		return
	}

	limit := defaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = min(parsed, maxHistoryLimit)
		}
	}

	events, err := h.history.ListRecent(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list history")
		writeJSONError(w, http.StatusInternalServerError, "failed to list history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
	})
}
