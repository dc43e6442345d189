package controller

import "net/http"

func (c *Controller) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (c *Controller) HandleReady(w http.ResponseWriter, r *http.Request) {
	if !c.App.Ready() {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	if c.App.Redis != nil {
		if err := c.App.Redis.Health(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "redis unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
