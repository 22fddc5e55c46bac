// File: internal/handlers/identity_handler.go
package handlers

import (
	"net/http"

	"github.com/evanmb/go-converse/internal/domain"
	"github.com/evanmb/go-converse/internal/middleware"
	"github.com/evanmb/go-converse/internal/services"
	"github.com/evanmb/go-converse/internal/services/identity"
)

type IdentityHandler struct {
	identity *identity.Service
	logger   services.Logger
}

func NewIdentityHandler(service *identity.Service, logger services.Logger) *IdentityHandler {
	return &IdentityHandler{identity: service, logger: logger}
}

// Me returns the current identity. First-time visitors get an anonymous
// guest session minted on the spot so message attribution always has a name
// to show.
func (h *IdentityHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		user = domain.Guest()
	}
	if _, hasSession := h.identity.Current(r); !hasSession {
		if err := h.identity.Issue(w, user); err != nil {
			h.logger.Error("failed to issue guest session", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, user)
}

// Logout clears the session cookie.
func (h *IdentityHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.identity.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}
