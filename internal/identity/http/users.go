package http

import (
	"net/http"

	"github.com/opencouncil/cityreport/internal/identity/domain"
	"github.com/opencouncil/cityreport/internal/identity/service"
	"github.com/opencouncil/cityreport/pkg/httpx"
)

// UsersHandler serves administrative account operations.
type UsersHandler struct {
	Auth *service.AuthService
}

// AssignRole replaces a user's role. Admin only; enforced by the router.
func (h *UsersHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("id")
	if accountID == "" {
		httpx.WriteFailure(w, http.StatusBadRequest, "User id is required.")
		return
	}

	var req assignRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	role, err := domain.ParseRole(req.Role)
	if err != nil {
		httpx.WriteFailure(w, http.StatusBadRequest, "Unknown role.")
		return
	}

	if err := h.Auth.AssignRole(r.Context(), accountID, role); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{
		Success: true,
		Message: "Role updated successfully.",
	})
}
