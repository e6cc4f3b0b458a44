package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/http/response"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/service"
)

type SessionHandler struct {
	sessions service.SessionServiceInterface
}

func NewSessionHandler(sessions service.SessionServiceInterface) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, uid, ok := mustClaims(w, r)
	if !ok {
		return
	}
	views, err := h.sessions.ListActiveSessions(r.Context(), uid, claims.SessionID)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"sessions": views})
}

func (h *SessionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := mustClaims(w, r)
	if !ok {
		return
	}
	status, err := h.sessions.RevokeSession(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"status": status})
}
