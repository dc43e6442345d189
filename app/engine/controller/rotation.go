package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clickarena/engine/pkg/rotation"
)

// HandleRotation triggers a rotation run. mode "immediate" starts the new
// batch right away; "scheduled" (the default) aligns it to the next
// configured rotation hour. Partial failures still report their counts.
func (c *Controller) HandleRotation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	immediate := req.Mode == "immediate"

	report, err := c.App.Rotation.Run(r.Context(), immediate)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, rotation.ErrNoEligibleItems) {
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]any{
			"error":  err.Error(),
			"report": report,
		})
		return
	}
	writeJSON(w, http.StatusOK, report)
}
