package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/clickarena/engine/pkg/auction"
)

// HandleClick runs the click pipeline for the authenticated account.
func (c *Controller) HandleClick(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]
	accountID := accountFrom(r.Context())

	res, err := c.App.Engine.ProcessClick(r.Context(), accountID, gameID)
	if err != nil {
		writeClickError(w, c, res, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleBotClick applies an automated click. Admin surface, used by the
// traffic bots that keep battles alive.
func (c *Controller) HandleBotClick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GameID   string `json:"game_id"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GameID == "" {
		writeError(w, http.StatusBadRequest, "game_id is required")
		return
	}
	if req.Username == "" {
		req.Username = "system"
	}

	res, err := c.App.Engine.ProcessBotClick(r.Context(), req.GameID, req.Username)
	if err != nil {
		writeClickError(w, c, res, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeClickError(w http.ResponseWriter, c *Controller, res auction.Result, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, auction.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, auction.ErrInsufficientCredits):
		status = http.StatusPaymentRequired
	case errors.Is(err, auction.ErrFraudBlocked):
		status = http.StatusForbidden
	case errors.Is(err, auction.ErrGameNotFound):
		status = http.StatusNotFound
	case errors.Is(err, auction.ErrGameNotAcceptingClicks):
		status = http.StatusConflict
	case errors.Is(err, auction.ErrContended):
		status = http.StatusTooManyRequests
	default:
		c.App.Logger.Error("click failed", zap.Error(err))
	}
	writeJSON(w, status, res)
}
