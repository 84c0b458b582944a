// Package authpw provides email/password authentication with verification.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"blogwriter/api/internal/rbac"
	"blogwriter/api/internal/store"
	"blogwriter/api/internal/util"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 8
	VerificationTTL   = 24 * time.Hour
	ResetTTL          = time.Hour
)

var (
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrEmailNotVerified    = errors.New("email address has not been verified")
	ErrAccountDeactivated  = errors.New("account has been deactivated")
	ErrInvalidVerification = errors.New("invalid or expired verification token")
	ErrInvalidReset        = errors.New("invalid or expired reset token")
)

// ValidationError reports a rejected sign-up or reset input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	GetUserByVerificationToken(ctx context.Context, token string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	CreateOrganizationWithOwner(ctx context.Context, org store.Organization, user store.User) error
	VerifyUserEmail(ctx context.Context, token string) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error
	GetPasswordReset(ctx context.Context, token string) (string, error)
	MarkPasswordResetUsed(ctx context.Context, token string) error
}

// Service provides email/password authentication
type Service struct {
	store UserStore
	cost  int
	now   func() time.Time
}

func NewService(userStore UserStore) *Service {
	return &Service{store: userStore, cost: bcrypt.DefaultCost, now: time.Now}
}

// WithCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

type SignUpRequest struct {
	Email            string
	Password         string
	DisplayName      string
	OrganizationName string
}

type SignUpResponse struct {
	User              store.User
	Organization      store.Organization
	VerificationToken string
}

// SignUp creates a new organization with the caller as its admin.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error) {
	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.DisplayName)
	if email == "" || req.Password == "" || name == "" {
		return nil, &ValidationError{Message: "email, password, and display name are required"}
	}
	if !strings.Contains(email, "@") {
		return nil, &ValidationError{Message: "email address is invalid"}
	}
	if len(req.Password) < MinPasswordLength {
		return nil, &ValidationError{Message: fmt.Sprintf("password must be at least %d characters", MinPasswordLength)}
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	}

	hash, err := s.hash(req.Password)
	if err != nil {
		return nil, err
	}

	orgName := strings.TrimSpace(req.OrganizationName)
	if orgName == "" {
		orgName = name + "'s Workspace"
	}
	orgID := util.NewID()
	org := store.Organization{
		ID:   orgID,
		Name: orgName,
		Slug: util.Slugify(orgName) + "-" + orgID[:6],
		Plan: "free",
	}

	token := util.NewToken()
	expires := s.now().Add(VerificationTTL)
	user := store.User{
		ID:                    util.NewID(),
		OrganizationID:        org.ID,
		Email:                 email,
		DisplayName:           name,
		Role:                  string(rbac.RoleAdmin),
		PasswordHash:          hash,
		VerificationToken:     token,
		VerificationExpiresAt: &expires,
	}

	if err := s.store.CreateOrganizationWithOwner(ctx, org, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	return &SignUpResponse{User: user, Organization: org, VerificationToken: token}, nil
}

type InviteRequest struct {
	OrganizationID string
	Email          string
	DisplayName    string
	Role           string
}

// Invite creates an unverified member of an existing organization. The
// invitee chooses a password when redeeming the verification token.
func (s *Service) Invite(ctx context.Context, req InviteRequest) (store.User, string, error) {
	email := normalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return store.User{}, "", &ValidationError{Message: "a valid email is required"}
	}
	if !rbac.Valid(req.Role) {
		return store.User{}, "", &ValidationError{Message: "unknown role"}
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	token := util.NewToken()
	expires := s.now().Add(VerificationTTL)
	user := store.User{
		ID:                    util.NewID(),
		OrganizationID:        req.OrganizationID,
		Email:                 email,
		DisplayName:           name,
		Role:                  req.Role,
		VerificationToken:     token,
		VerificationExpiresAt: &expires,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.User{}, "", ErrEmailTaken
		}
		return store.User{}, "", fmt.Errorf("create invited user: %w", err)
	}
	return user, token, nil
}

type SignInRequest struct {
	Email    string
	Password string
}

// SignIn authenticates a verified, active user.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.User, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return store.User{}, &ValidationError{Message: "email and password are required"}
	}

	user, err := s.store.GetUserByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if user.PasswordHash == "" {
		return store.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if user.DeactivatedAt != nil {
		return store.User{}, ErrAccountDeactivated
	}
	if !user.IsEmailVerified {
		return store.User{}, ErrEmailNotVerified
	}
	return user, nil
}

// VerifyEmail redeems a verification token. Invited users must also supply
// the password they want to use.
func (s *Service) VerifyEmail(ctx context.Context, token, password string) (store.User, error) {
	if token == "" {
		return store.User{}, &ValidationError{Message: "verification token required"}
	}

	user, err := s.store.GetUserByVerificationToken(ctx, token)
	if err != nil {
		return store.User{}, ErrInvalidVerification
	}

	if user.PasswordHash == "" || password != "" {
		if len(password) < MinPasswordLength {
			return store.User{}, &ValidationError{Message: fmt.Sprintf("password must be at least %d characters", MinPasswordLength)}
		}
		hash, err := s.hash(password)
		if err != nil {
			return store.User{}, err
		}
		if err := s.store.UpdateUserPassword(ctx, user.ID, hash); err != nil {
			return store.User{}, fmt.Errorf("set password: %w", err)
		}
		user.PasswordHash = hash
	}

	if err := s.store.VerifyUserEmail(ctx, token); err != nil {
		return store.User{}, ErrInvalidVerification
	}
	user.IsEmailVerified = true
	user.VerificationToken = ""
	user.VerificationExpiresAt = nil
	return user, nil
}

// RequestPasswordReset creates a reset token. Unknown emails yield an empty
// token and no error so callers cannot probe for accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, store.User, error) {
	user, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil || user.DeactivatedAt != nil {
		return "", store.User{}, nil
	}

	token := util.NewToken()
	if err := s.store.CreatePasswordReset(ctx, user.ID, token, s.now().Add(ResetTTL)); err != nil {
		return "", store.User{}, fmt.Errorf("create password reset: %w", err)
	}
	return token, user, nil
}

type ResetPasswordRequest struct {
	Token       string
	NewPassword string
}

func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if req.Token == "" || req.NewPassword == "" {
		return &ValidationError{Message: "token and new password are required"}
	}
	if len(req.NewPassword) < MinPasswordLength {
		return &ValidationError{Message: fmt.Sprintf("password must be at least %d characters", MinPasswordLength)}
	}

	userID, err := s.store.GetPasswordReset(ctx, req.Token)
	if err != nil {
		return ErrInvalidReset
	}

	hash, err := s.hash(req.NewPassword)
	if err != nil {
		return err
	}
	if err := s.store.UpdateUserPassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.store.MarkPasswordResetUsed(ctx, req.Token); err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	return nil
}

func (s *Service) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
