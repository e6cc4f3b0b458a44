package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/http/response"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/observability"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/repository"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/service"
)

type AdminHandler struct {
	auth     service.AuthServiceInterface
	licenses service.LicenseServiceInterface
	validate *Validator
}

func NewAdminHandler(auth service.AuthServiceInterface, licenses service.LicenseServiceInterface, validate *Validator) *AdminHandler {
	return &AdminHandler{auth: auth, licenses: licenses, validate: validate}
}

type createLicenseRequest struct {
	Type         string `json:"type" validate:"required,oneof=TRIAL SUBSCRIPTION LIFETIME"`
	MaxDevices   int    `json:"maxDevices" validate:"required,min=1,max=1000"`
	DurationDays *int   `json:"durationDays" validate:"omitempty,min=0,max=36500"`
	UserID       *uint  `json:"userId" validate:"omitempty,min=1"`
}

type banRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *AdminHandler) CreateLicense(w http.ResponseWriter, r *http.Request) {
	_, actorID, ok := mustClaims(w, r)
	if !ok {
		return
	}
	var req createLicenseRequest
	if !h.validate.Decode(w, r, &req) {
		return
	}
	lic, err := h.licenses.GenerateKey(r.Context(), service.GenerateKeyInput{
		Type:         domain.LicenseType(req.Type),
		MaxDevices:   req.MaxDevices,
		DurationDays: req.DurationDays,
		OwnerID:      req.UserID,
		ActorID:      &actorID,
	})
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "admin.license.create", "actor_id", actorID, "license_id", lic.ID)
	response.JSON(w, r, http.StatusCreated, lic)
}

func (h *AdminHandler) ListLicenses(w http.ResponseWriter, r *http.Request) {
	query := repository.LicenseListQuery{
		PageRequest: repository.PageRequest{Page: queryInt(r, "page"), PageSize: queryInt(r, "page_size")},
		Status:      r.URL.Query().Get("status"),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("user_id")); raw != "" {
		uid, ok := parseUintParam(w, r, "user_id", raw)
		if !ok {
			return
		}
		query.UserID = &uid
	}
	page, err := h.licenses.ListLicenses(r.Context(), query)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, page)
}

func (h *AdminHandler) RevokeLicense(w http.ResponseWriter, r *http.Request) {
	_, actorID, ok := mustClaims(w, r)
	if !ok {
		return
	}
	lic, err := h.licenses.RevokeLicense(r.Context(), &actorID, chi.URLParam(r, "key"))
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "admin.license.revoke", "actor_id", actorID, "license_id", lic.ID)
	response.JSON(w, r, http.StatusOK, lic)
}

func (h *AdminHandler) DeactivateDevice(w http.ResponseWriter, r *http.Request) {
	if err := h.licenses.DeactivateDevice(r.Context(), chi.URLParam(r, "key"), chi.URLParam(r, "fingerprint")); err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "device deactivated"})
}

func (h *AdminHandler) BanUser(w http.ResponseWriter, r *http.Request) {
	_, actorID, ok := mustClaims(w, r)
	if !ok {
		return
	}
	userID, ok := parseUintParam(w, r, "id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req banRequest
	if !h.validate.Decode(w, r, &req) {
		return
	}
	status, err := h.auth.BanUser(r.Context(), actorID, userID, req.Reason)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, status)
}

func (h *AdminHandler) UnbanUser(w http.ResponseWriter, r *http.Request) {
	_, actorID, ok := mustClaims(w, r)
	if !ok {
		return
	}
	userID, ok := parseUintParam(w, r, "id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	status, err := h.auth.UnbanUser(r.Context(), actorID, userID)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, status)
}
