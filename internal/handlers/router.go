package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter registers all routes. authMiddleware guards /ws and /v1 and may be nil.
// Cross-origin POSTs are rejected on every route.
func NewRouter(h *Handler, authMiddleware mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()
	r.Use(sameOrigin)
	r.HandleFunc("/", h.Index).Methods("GET")

	var ws http.Handler = http.HandlerFunc(h.SessionWS)
	if authMiddleware != nil {
		ws = authMiddleware(ws)
	}
	r.Handle("/ws", ws).Methods("GET")

	api := r.PathPrefix("/v1").Subrouter()
	if authMiddleware != nil {
		api.Use(authMiddleware)
	}
	api.HandleFunc("/themes", h.Themes).Methods("GET")
	api.HandleFunc("/session", h.Session).Methods("GET")
	api.HandleFunc("/generate", h.Generate).Methods("POST")
	api.HandleFunc("/image", h.Image).Methods("GET")
	api.HandleFunc("/image/download", h.DownloadImage).Methods("GET")
	api.HandleFunc("/clipboard", h.Clipboard).Methods("POST")
	api.HandleFunc("/send", h.RequestSend).Methods("POST")
	api.HandleFunc("/send/confirm", h.ConfirmSend).Methods("POST")
	api.HandleFunc("/send/cancel", h.CancelSend).Methods("POST")
	api.HandleFunc("/reset", h.Reset).Methods("POST")
	if h.history != nil {
		api.HandleFunc("/history", h.History).Methods("GET")
	}

	return r
}
