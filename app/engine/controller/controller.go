package controller

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/clickarena/engine/app/engine"
)

type Controller struct {
	App *engine.App
}

// NewController returns a new controller.
func NewController(app *engine.App) *Controller {
	return &Controller{App: app}
}

// NewRouter returns a new router with all the engine routes.
func (c *Controller) NewRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", c.HandleHealth).Methods("GET")
	r.HandleFunc("/readyz", c.HandleReady).Methods("GET")

	r.Handle("/v1/games/{id}/click", c.RequireAccount(http.HandlerFunc(c.HandleClick))).Methods("POST")
	r.HandleFunc("/v1/games/{id}", c.HandleGameSnapshot).Methods("GET")
	r.HandleFunc("/v1/games", c.HandleListGames).Methods("GET")
	r.HandleFunc("/v1/games/{id}/clicks", c.HandleRecentClicks).Methods("GET")

	r.Handle("/v1/admin/rotation", c.RequireAdmin(http.HandlerFunc(c.HandleRotation))).Methods("POST")
	r.Handle("/v1/admin/bot-click", c.RequireAdmin(http.HandlerFunc(c.HandleBotClick))).Methods("POST")

	r.HandleFunc("/v1/feed", c.HandleFeed).Methods("GET")

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
