package handler

import (
	"net/http"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/http/middleware"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/http/response"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/service"
)

type LicenseHandler struct {
	licenses service.LicenseServiceInterface
	validate *Validator
}

func NewLicenseHandler(licenses service.LicenseServiceInterface, validate *Validator) *LicenseHandler {
	return &LicenseHandler{licenses: licenses, validate: validate}
}

type activateRequest struct {
	Key               string `json:"key" validate:"required,max=32"`
	DeviceFingerprint string `json:"deviceFingerprint" validate:"max=256"`
}

func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := mustClaims(w, r)
	if !ok {
		return
	}
	var req activateRequest
	if !h.validate.Decode(w, r, &req) {
		return
	}
	fp := middleware.DeviceFingerprint(r)
	if fp == "" {
		fp = req.DeviceFingerprint
	}
	res, err := h.licenses.ActivateLicense(r.Context(), service.ActivateInput{
		Key:               req.Key,
		UserID:            uid,
		DeviceFingerprint: fp,
		IP:                middleware.ClientIP(r),
		UserAgent:         r.UserAgent(),
	})
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}

func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := mustClaims(w, r)
	if !ok {
		return
	}
	res, err := h.licenses.ValidateLicense(r.Context(), uid)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}
