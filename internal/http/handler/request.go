package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/http/middleware"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/http/response"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/security"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validator decodes JSON bodies and validates them against struct tags,
// reporting fields by their json names.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	return &Validator{v: v}
}

// Decode writes the error response itself and reports false on failure.
func (val *Validator) Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body", nil)
		return false
	}
	if err := val.v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request", nil)
			return false
		}
		details := make([]fieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, fieldError{Field: fe.Field(), Message: describe(fe)})
		}
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "request validation failed", details)
		return false
	}
	return true
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "username":
		return "may contain only letters, digits, '_' and '-'"
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

func mustClaims(w http.ResponseWriter, r *http.Request) (*security.Claims, uint, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_FAILED", "missing auth context", nil)
		return nil, 0, false
	}
	uid, err := claims.UserID()
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_FAILED", "invalid access token", nil)
		return nil, 0, false
	}
	return claims, uid, true
}

func parseUintParam(w http.ResponseWriter, r *http.Request, name, raw string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid "+name, nil)
		return 0, false
	}
	return uint(id), true
}

func queryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}
