package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"blogwriter/api/internal/auth"
	"blogwriter/api/internal/authpw"
	"blogwriter/api/internal/metrics"
	"blogwriter/api/internal/rbac"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type HTTPServer struct {
	service      *Service
	logger       *zap.Logger
	corsOrigin   string
	cookieName   string
	secureCookie bool
	limiter      *rateLimiter
}

func NewHTTPServer(service *Service, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := service.cfg
	return &HTTPServer{
		service:      service,
		logger:       logger,
		corsOrigin:   cfg.CORSOrigin,
		cookieName:   cfg.SessionCookie,
		secureCookie: cfg.IsProduction(),
		limiter:      newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withMiddleware)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Head("/health", s.handleHealth)
		r.Get("/ready", s.handleReady)
		r.Head("/ready", s.handleReady)

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Handler)
			r.Post("/auth/signup", s.handleAuthSignUp)
			r.Post("/auth/signin", s.handleAuthSignIn)
			r.Post("/auth/verify-email", s.handleAuthVerifyEmail)
			r.Post("/auth/refresh", s.handleAuthRefresh)
			r.Post("/auth/signout", s.handleAuthSignOut)
			r.Post("/auth/reset-password/request", s.handleAuthRequestReset)
			r.Post("/auth/reset-password", s.handleAuthResetPassword)
			r.Get("/auth/session", s.handleAuthSession)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Use(s.limiter.Handler)
			s.mountAccount(r)
			s.mountPosts(r)
			s.mountGeneration(r)
			s.mountKeywords(r)
			s.mountContent(r)
		})
	})
	return r
}

func (s *HTTPServer) mountAccount(r chi.Router) {
	r.Get("/me", s.handleMe)

	r.With(s.require(rbac.ActionRead)).Get("/organizations", s.handleListOrganizations)
	r.With(s.require(rbac.ActionSystem)).Post("/organizations", s.handleCreateOrganization)
	r.With(s.require(rbac.ActionRead)).Get("/organizations/{orgID}", s.handleGetOrganization)
	r.With(s.require(rbac.ActionManage)).Put("/organizations/{orgID}", s.handleUpdateOrganization)
	r.With(s.require(rbac.ActionSystem)).Delete("/organizations/{orgID}", s.handleDeleteOrganization)

	r.Route("/users", func(r chi.Router) {
		r.Use(s.require(rbac.ActionManage))
		r.Get("/", s.handleListUsers)
		r.Post("/", s.handleInviteUser)
		r.Put("/{userID}/role", s.handleUpdateUserRole)
		r.Delete("/{userID}", s.handleDeactivateUser)
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

type sessionKey struct{}

func sessionFrom(ctx context.Context) (Session, bool) {
	session, ok := ctx.Value(sessionKey{}).(Session)
	return session, ok
}

// authenticate resolves the bearer token or session cookie and stores the
// session on the request context.
func (s *HTTPServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.TokenFromRequest(r, s.cookieName)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
				return
			}
			s.logger.Error("session lookup failed", zap.String("request_id", requestID(r)), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
	})
}

func (s *HTTPServer) require(action rbac.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := sessionFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
				return
			}
			if !s.service.Can(session.Role, action) {
				s.forbid(w, r, session, action)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// forbid writes a 403 Forbidden response and logs the denial
func (s *HTTPServer) forbid(w http.ResponseWriter, r *http.Request, session Session, action rbac.Action) {
	s.logger.Info("access denied",
		zap.String("request_id", requestID(r)),
		zap.String("user_id", session.UserID),
		zap.String("role", session.Role),
		zap.String("action", string(action)),
		zap.String("path", r.URL.Path),
	)
	writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

// mustSession is only called behind authenticate.
func mustSession(r *http.Request) Session {
	session, _ := sessionFrom(r.Context())
	return session
}

// org resolves the organization for a request. System admins may pass
// ?org_id= to act on another tenant.
func (s *HTTPServer) org(w http.ResponseWriter, r *http.Request) (Session, string, bool) {
	session := mustSession(r)
	orgID, err := s.service.scope(session, r.URL.Query().Get("org_id"))
	if err != nil {
		s.respondError(w, r, err)
		return Session{}, "", false
	}
	return session, orgID, true
}

func (s *HTTPServer) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError && code == "SERVER_ERROR" {
		s.logger.Error("request failed",
			zap.String("request_id", requestID(r)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = randomRequestID()
		}
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", id)

		defer func() {
			if recovered := recover(); recovered != nil {
				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}
				s.logger.Error("panic serving request",
					zap.String("request_id", id),
					zap.Any("panic", recovered),
					zap.Stack("stack"),
				)
				if !writer.wroteHeader {
					writeError(writer, http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
				}
			}

			elapsed := time.Since(started)
			metrics.ObserveHTTP(r.Method, writer.status, elapsed)
			s.logger.Info("request",
				zap.String("request_id", id),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", writer.status),
				zap.Int64("duration_ms", elapsed.Milliseconds()),
			)
		}()

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(writer, r)
	})
}

type requestIDKey struct{}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.status = status
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

// Flush lets SSE handlers stream through the recorder.
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	if corsOrigin != "*" {
		header.Set("Access-Control-Allow-Credentials", "true")
	}
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeBody(r, target); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return false
	}
	return true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"accessToken":    session.Token,
		"refreshToken":   session.RefreshToken,
		"userId":         session.UserID,
		"userName":       session.UserName,
		"email":          session.Email,
		"role":           session.Role,
		"organizationId": session.OrganizationID,
		"expiresAt":      session.ExpiresAt.Unix(),
	}
}

func (s *HTTPServer) setSessionCookie(w http.ResponseWriter, session Session) {
	if s.cookieName == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *HTTPServer) clearSessionCookie(w http.ResponseWriter) {
	if s.cookieName == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// Auth handlers for email/password authentication

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email            string `json:"email"`
		Password         string `json:"password"`
		DisplayName      string `json:"displayName"`
		OrganizationName string `json:"organizationName"`
	}
	if !s.decode(w, r, &body) {
		return
	}

	result, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Email:            body.Email,
		Password:         body.Password,
		DisplayName:      body.DisplayName,
		OrganizationName: body.OrganizationName,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !s.decode(w, r, &body) {
		return
	}

	session, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.setSessionCookie(w, session)
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleAuthVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !s.decode(w, r, &body) {
		return
	}

	session, err := s.service.VerifyEmail(r.Context(), body.Token, body.Password)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.setSessionCookie(w, session)
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !s.decode(w, r, &body) {
		return
	}

	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.setSessionCookie(w, session)
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleAuthSignOut(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !s.decode(w, r, &body) {
		return
	}

	var session Session
	if token := auth.TokenFromRequest(r, s.cookieName); token != "" {
		if current, err := s.service.SessionFromToken(r.Context(), token); err == nil {
			session = current
		}
	}
	if err := s.service.SignOut(r.Context(), session, body.RefreshToken); err != nil {
		s.logger.Warn("sign out", zap.String("request_id", requestID(r)), zap.Error(err))
	}
	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleAuthRequestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !s.decode(w, r, &body) {
		return
	}

	token, err := s.service.RequestPasswordReset(r.Context(), body.Email)
	if err != nil {
		s.logger.Warn("password reset request", zap.String("request_id", requestID(r)), zap.Error(err))
	}

	response := map[string]any{
		"message": "If an account exists, a reset email has been sent",
	}
	if token != "" {
		response["devResetToken"] = token
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleAuthResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if !s.decode(w, r, &body) {
		return
	}

	if err := s.service.ResetPassword(r.Context(), body.Token, body.NewPassword); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Password reset successfully",
	})
}

func (s *HTTPServer) handleAuthSession(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromRequest(r, s.cookieName)
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
		return
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated":  true,
		"userName":       session.UserName,
		"userId":         session.UserID,
		"role":           session.Role,
		"organizationId": session.OrganizationID,
	})
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	me, err := s.service.Me(r.Context(), mustSession(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, me)
}

func (s *HTTPServer) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := s.service.ListOrganizations(r.Context(), mustSession(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"organizations": orgs})
}

func (s *HTTPServer) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	var input OrganizationInput
	if !s.decode(w, r, &input) {
		return
	}
	org, err := s.service.CreateOrganization(r.Context(), input)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, org)
}

func (s *HTTPServer) handleGetOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := s.service.GetOrganization(r.Context(), mustSession(r), chi.URLParam(r, "orgID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (s *HTTPServer) handleUpdateOrganization(w http.ResponseWriter, r *http.Request) {
	var input OrganizationInput
	if !s.decode(w, r, &input) {
		return
	}
	org, err := s.service.UpdateOrganization(r.Context(), mustSession(r), chi.URLParam(r, "orgID"), input)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (s *HTTPServer) handleDeleteOrganization(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteOrganization(r.Context(), mustSession(r), chi.URLParam(r, "orgID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleListUsers(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	users, err := s.service.ListUsers(r.Context(), orgID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *HTTPServer) handleInviteUser(w http.ResponseWriter, r *http.Request) {
	session, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	var input InviteInput
	if !s.decode(w, r, &input) {
		return
	}
	result, err := s.service.InviteUser(r.Context(), session, orgID, input)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *HTTPServer) handleUpdateUserRole(w http.ResponseWriter, r *http.Request) {
	session, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	var body struct {
		Role string `json:"role"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	user, err := s.service.UpdateUserRole(r.Context(), session, orgID, chi.URLParam(r, "userID"), body.Role)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	session, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	if err := s.service.DeactivateUser(r.Context(), session, orgID, chi.URLParam(r, "userID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
