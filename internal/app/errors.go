package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"blogwriter/api/internal/auth"
	"blogwriter/api/internal/authpw"
	"blogwriter/api/internal/blogwriter"
	"blogwriter/api/internal/dataforseo"
	"blogwriter/api/internal/export"
	"blogwriter/api/internal/gitrepo"
	"blogwriter/api/internal/interlink"
	"blogwriter/api/internal/keywords"
	"blogwriter/api/internal/media"
	"blogwriter/api/internal/publish"
	"blogwriter/api/internal/session"
	"blogwriter/api/internal/store"
	"blogwriter/api/internal/workflow"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

var (
	errForbidden = domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	errNotFound  = domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
)

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var (
		kwValidation   *keywords.ValidationError
		flowValidation *workflow.ValidationError
		linkValidation *interlink.ValidationError
		authValidation *authpw.ValidationError
		configErr      *publish.ConfigError
		providerErr    *dataforseo.APIError
		writerErr      *blogwriter.UpstreamError
		platformErr    *publish.PlatformError
		mediaErr       *media.ProviderError
	)
	switch {
	case errors.As(err, &kwValidation):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", kwValidation.Message, nil
	case errors.As(err, &flowValidation):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", flowValidation.Message, nil
	case errors.As(err, &linkValidation):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", linkValidation.Message, nil
	case errors.As(err, &authValidation):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", authValidation.Message, nil
	case errors.As(err, &configErr):
		return http.StatusUnprocessableEntity, "INVALID_CONFIG", configErr.Message, nil
	case errors.As(err, &providerErr):
		return http.StatusBadGateway, "UPSTREAM_ERROR", "Keyword provider request failed",
			map[string]any{"service": "dataforseo", "status": providerErr.StatusCode, "message": providerErr.Message}
	case errors.As(err, &writerErr):
		return http.StatusBadGateway, "UPSTREAM_ERROR", "Content backend request failed",
			map[string]any{"service": "blogwriter", "status": writerErr.Status, "body": writerErr.Body}
	case errors.As(err, &platformErr):
		return http.StatusBadGateway, "UPSTREAM_ERROR", "Publishing platform request failed",
			map[string]any{"service": platformErr.Platform, "status": platformErr.Status, "body": platformErr.Body}
	case errors.As(err, &mediaErr):
		return http.StatusBadGateway, "UPSTREAM_ERROR", "Media provider request failed",
			map[string]any{"service": mediaErr.Provider, "status": mediaErr.Status, "message": mediaErr.Message}
	}

	switch {
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, gitrepo.ErrRevisionNotFound), errors.Is(err, workflow.ErrUnknownPhase):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken), errors.Is(err, session.ErrSessionNotFound):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, authpw.ErrInvalidCredentials), errors.Is(err, authpw.ErrInvalidVerification), errors.Is(err, authpw.ErrInvalidReset):
		return http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), nil
	case errors.Is(err, authpw.ErrEmailNotVerified):
		return http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Email address has not been verified", nil
	case errors.Is(err, authpw.ErrAccountDeactivated):
		return http.StatusForbidden, "ACCOUNT_DEACTIVATED", "Account has been deactivated", nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "SLUG_TAKEN", "Slug is already in use", nil
	case errors.Is(err, workflow.ErrPhaseOutOfOrder):
		return http.StatusConflict, "PHASE_OUT_OF_ORDER", err.Error(), nil
	case errors.Is(err, keywords.ErrProviderDisabled):
		return http.StatusServiceUnavailable, "KEYWORDS_UNAVAILABLE", "Keyword provider is not configured", nil
	case errors.Is(err, media.ErrProviderDisabled):
		return http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Media provider is not configured", nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be html or pdf", nil
	case errors.Is(err, media.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error(), nil
	case errors.Is(err, media.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", err.Error(), nil
	case errors.Is(err, media.ErrEmptyFile):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, publish.ErrNoIntegration):
		return http.StatusUnprocessableEntity, "NO_INTEGRATION", "No publishing integration configured", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
