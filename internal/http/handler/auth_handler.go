package handler

import (
	"net/http"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/http/middleware"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/http/response"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/observability"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/service"
)

type AuthHandler struct {
	auth     service.AuthServiceInterface
	validate *Validator
}

func NewAuthHandler(auth service.AuthServiceInterface, validate *Validator) *AuthHandler {
	return &AuthHandler{auth: auth, validate: validate}
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32,username"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.validate.Decode(w, r, &req) {
		return
	}
	user, err := h.auth.Register(r.Context(), service.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.register", "user_id", user.ID)
	response.JSON(w, r, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.validate.Decode(w, r, &req) {
		return
	}
	res, err := h.auth.Login(r.Context(), service.LoginInput{
		Username:          req.Username,
		Password:          req.Password,
		DeviceFingerprint: middleware.DeviceFingerprint(r),
		IP:                middleware.ClientIP(r),
		UserAgent:         r.UserAgent(),
	})
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.validate.Decode(w, r, &req) {
		return
	}
	res, err := h.auth.Refresh(r.Context(), service.RefreshInput{
		RefreshToken:      req.RefreshToken,
		DeviceFingerprint: middleware.DeviceFingerprint(r),
		IP:                middleware.ClientIP(r),
		UserAgent:         r.UserAgent(),
	})
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, uid, ok := mustClaims(w, r)
	if !ok {
		return
	}
	if err := h.auth.LogoutUser(r.Context(), uid, claims.SessionID, middleware.ClientIP(r), r.UserAgent()); err != nil {
		response.ServiceError(w, r, err)
		return
	}
	if err := h.auth.RevokeAccessToken(r.Context(), claims.ID, middleware.TokenExpiry(claims)); err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "logged out"})
}

// Verify re-checks device-bound tokens against the cached session metadata.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	claims, uid, ok := mustClaims(w, r)
	if !ok {
		return
	}
	if claims.DeviceBound {
		v, err := h.auth.ValidateSession(r.Context(), claims.SessionID, middleware.DeviceFingerprint(r), middleware.ClientIP(r))
		if err != nil {
			response.ServiceError(w, r, err)
			return
		}
		if !v.Valid {
			response.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_FAILED", "session is no longer valid", map[string]any{"reason": v.Reason, "riskScore": v.RiskScore})
			return
		}
	}
	user, err := h.auth.GetUser(r.Context(), uid)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"valid":       true,
		"user":        user,
		"deviceBound": claims.DeviceBound,
	})
}
