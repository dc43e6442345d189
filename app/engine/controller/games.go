package controller

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/clickarena/engine/pkg/auction"
	"github.com/clickarena/engine/pkg/model"
)

// HandleGameSnapshot returns the current read-only state of one game.
func (c *Controller) HandleGameSnapshot(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]

	view, err := c.App.Engine.GetGameSnapshot(r.Context(), gameID)
	if err != nil {
		if errors.Is(err, auction.ErrGameNotFound) {
			writeError(w, http.StatusNotFound, "game not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleListGames returns games filtered by ?status=, comma separated.
// Without a filter it returns every live game.
func (c *Controller) HandleListGames(w http.ResponseWriter, r *http.Request) {
	statuses := []model.GameStatus{
		model.StatusWaiting, model.StatusActive, model.StatusFinalPhase,
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		statuses = statuses[:0]
		for _, part := range strings.Split(raw, ",") {
			statuses = append(statuses, model.GameStatus(strings.TrimSpace(part)))
		}
	}

	views, err := c.App.Engine.ListLiveGames(r.Context(), statuses...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// HandleRecentClicks returns the latest committed clicks of one game for
// the live feed's polling fallback.
func (c *Controller) HandleRecentClicks(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	clicks, err := c.App.Store.RecentClicks(r.Context(), gameID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, clicks)
}
