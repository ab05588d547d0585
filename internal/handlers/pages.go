package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/wishes/internal/models"
	"github.com/snappy-loop/wishes/internal/prompt"
	"github.com/snappy-loop/wishes/internal/workflow"
)

type indexPage struct {
	Themes          []models.Theme
	ExamplePrompts  []string
	DefaultTheme    string
	Caption         string
	DeliveryWarning string
}

// Index handles GET / and renders the greeting form.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	page, err := executeTemplateToBytes("index", indexPage{
		Themes:          prompt.Themes(),
		ExamplePrompts:  prompt.ExamplePrompts(),
		DefaultTheme:    prompt.ThemeSnowGiftsTrees,
		Caption:         h.caption,
		DeliveryWarning: workflow.DeliveryWarning,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to render index")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}
