package http

import (
	"net/http"

	"github.com/opencouncil/cityreport/internal/identity/store"
	"github.com/opencouncil/cityreport/pkg/httpx"
)

// SystemHandler serves liveness and readiness probes.
type SystemHandler struct {
	Store store.Store
}

func (h *SystemHandler) Livez(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{Success: true, Message: "ok"})
}

func (h *SystemHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		httpx.WriteFailure(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{Success: true, Message: "ready"})
}
