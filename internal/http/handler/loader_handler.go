package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/http/middleware"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/http/response"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/service"
)

type LoaderHandler struct {
	loader   service.LoaderServiceInterface
	validate *Validator
}

func NewLoaderHandler(loader service.LoaderServiceInterface, validate *Validator) *LoaderHandler {
	return &LoaderHandler{loader: loader, validate: validate}
}

type handshakeRequest struct {
	ClientVersion     string `json:"clientVersion" validate:"max=64"`
	DeviceFingerprint string `json:"deviceFingerprint" validate:"required,max=256"`
}

type loaderLoginRequest struct {
	Username          string `json:"username" validate:"required,max=64"`
	Password          string `json:"password" validate:"required,max=128"`
	DeviceFingerprint string `json:"deviceFingerprint" validate:"required,max=256"`
	SignedChallenge   string `json:"signedChallenge" validate:"required"`
	Nonce             string `json:"nonce" validate:"required,max=128"`
}

type heartbeatRequest struct {
	SessionToken string `json:"sessionToken" validate:"required"`
	Nonce        string `json:"nonce" validate:"required,max=128"`
	Timestamp    int64  `json:"timestamp" validate:"required"`
	Signature    string `json:"signature" validate:"required"`
}

func (h *LoaderHandler) Handshake(w http.ResponseWriter, r *http.Request) {
	var req handshakeRequest
	if !h.validate.Decode(w, r, &req) {
		return
	}
	res, err := h.loader.Handshake(r.Context(), service.HandshakeInput{
		ClientVersion:     req.ClientVersion,
		DeviceFingerprint: req.DeviceFingerprint,
		IP:                middleware.ClientIP(r),
	})
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}

func (h *LoaderHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loaderLoginRequest
	if !h.validate.Decode(w, r, &req) {
		return
	}
	res, err := h.loader.LoaderLogin(r.Context(), service.LoaderLoginInput{
		Username:          req.Username,
		Password:          req.Password,
		DeviceFingerprint: req.DeviceFingerprint,
		SignedChallenge:   req.SignedChallenge,
		Nonce:             req.Nonce,
		IP:                middleware.ClientIP(r),
		UserAgent:         r.UserAgent(),
	})
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}

func (h *LoaderHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if !h.validate.Decode(w, r, &req) {
		return
	}
	res, err := h.loader.Heartbeat(r.Context(), service.HeartbeatInput{
		SessionToken: req.SessionToken,
		Nonce:        req.Nonce,
		Timestamp:    req.Timestamp,
		Signature:    req.Signature,
		IP:           middleware.ClientIP(r),
	})
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}

func (h *LoaderHandler) BanStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUintParam(w, r, "userId", chi.URLParam(r, "userId"))
	if !ok {
		return
	}
	res, err := h.loader.GetBanStatus(r.Context(), userID)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}
