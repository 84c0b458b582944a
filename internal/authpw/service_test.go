package authpw

import (
	"context"
	"errors"
	"testing"
	"time"

	"blogwriter/api/internal/store"
	"golang.org/x/crypto/bcrypt"
)

type resetRecord struct {
	userID    string
	expiresAt time.Time
	used      bool
}

// mockUserStore is an in-memory UserStore for testing
type mockUserStore struct {
	users      map[string]store.User
	emailIndex map[string]string
	orgs       map[string]store.Organization
	resets     map[string]resetRecord
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      map[string]store.User{},
		emailIndex: map[string]string{},
		orgs:       map[string]store.Organization{},
		resets:     map[string]resetRecord{},
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if userID, ok := m.emailIndex[email]; ok {
		return m.users[userID], nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) GetUserByVerificationToken(ctx context.Context, token string) (store.User, error) {
	for _, user := range m.users {
		if user.VerificationToken == token && user.VerificationExpiresAt != nil && time.Now().Before(*user.VerificationExpiresAt) {
			return user, nil
		}
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) error {
	if _, exists := m.emailIndex[user.Email]; exists {
		return store.ErrConflict
	}
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	return nil
}

func (m *mockUserStore) CreateOrganizationWithOwner(ctx context.Context, org store.Organization, user store.User) error {
	m.orgs[org.ID] = org
	return m.CreateUser(ctx, user)
}

func (m *mockUserStore) VerifyUserEmail(ctx context.Context, token string) error {
	for id, user := range m.users {
		if user.VerificationToken == token {
			user.IsEmailVerified = true
			user.VerificationToken = ""
			m.users[id] = user
			return nil
		}
	}
	return errors.New("invalid token")
}

func (m *mockUserStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	if user, ok := m.users[userID]; ok {
		user.PasswordHash = passwordHash
		m.users[userID] = user
		return nil
	}
	return errors.New("user not found")
}

func (m *mockUserStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	m.resets[token] = resetRecord{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *mockUserStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	if reset, ok := m.resets[token]; ok && !reset.used && time.Now().Before(reset.expiresAt) {
		return reset.userID, nil
	}
	return "", errors.New("invalid or expired token")
}

func (m *mockUserStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	if reset, ok := m.resets[token]; ok {
		reset.used = true
		m.resets[token] = reset
	}
	return nil
}

func newTestService() (*Service, *mockUserStore) {
	mockStore := newMockUserStore()
	return NewService(mockStore).WithCost(bcrypt.MinCost), mockStore
}

func signUpVerified(t *testing.T, svc *Service, email, password string) store.User {
	t.Helper()
	resp, err := svc.SignUp(context.Background(), SignUpRequest{Email: email, Password: password, DisplayName: "Test User"})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	user, err := svc.VerifyEmail(context.Background(), resp.VerificationToken, "")
	if err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	return user
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	svc, mockStore := newTestService()

	t.Run("creates organization with admin owner", func(t *testing.T) {
		resp, err := svc.SignUp(ctx, SignUpRequest{
			Email:            "Test@Example.com",
			Password:         "password123",
			DisplayName:      "Test User",
			OrganizationName: "Acme Blog",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.User.Role != "admin" {
			t.Errorf("expected admin role, got %s", resp.User.Role)
		}
		if resp.User.Email != "test@example.com" {
			t.Errorf("expected normalized email, got %s", resp.User.Email)
		}
		if resp.User.OrganizationID != resp.Organization.ID {
			t.Error("expected user to belong to the new organization")
		}
		if _, ok := mockStore.orgs[resp.Organization.ID]; !ok {
			t.Error("expected organization to be stored")
		}
		if resp.VerificationToken == "" || resp.User.VerificationExpiresAt == nil {
			t.Error("expected verification token with expiry")
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{Email: "test@example.com", Password: "password123", DisplayName: "Again"})
		if !errors.Is(err, ErrEmailTaken) {
			t.Errorf("expected ErrEmailTaken, got %v", err)
		}
	})

	t.Run("short password", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{Email: "test2@example.com", Password: "short", DisplayName: "Test User"})
		var validation *ValidationError
		if !errors.As(err, &validation) {
			t.Errorf("expected ValidationError, got %v", err)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		if _, err := svc.SignUp(ctx, SignUpRequest{}); err == nil {
			t.Error("expected error for missing fields")
		}
	})
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	svc, mockStore := newTestService()
	verified := signUpVerified(t, svc, "test@example.com", "password123")

	t.Run("successful sign in", func(t *testing.T) {
		user, err := svc.SignIn(ctx, SignInRequest{Email: "test@example.com", Password: "password123"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.ID != verified.ID {
			t.Errorf("expected user %s, got %s", verified.ID, user.ID)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{Email: "test@example.com", Password: "wrongpassword"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("non-existent user", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{Email: "nobody@example.com", Password: "password123"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("unverified email", func(t *testing.T) {
		if _, err := svc.SignUp(ctx, SignUpRequest{Email: "unverified@example.com", Password: "password123", DisplayName: "U"}); err != nil {
			t.Fatalf("SignUp: %v", err)
		}
		_, err := svc.SignIn(ctx, SignInRequest{Email: "unverified@example.com", Password: "password123"})
		if !errors.Is(err, ErrEmailNotVerified) {
			t.Errorf("expected ErrEmailNotVerified, got %v", err)
		}
	})

	t.Run("deactivated user", func(t *testing.T) {
		user := mockStore.users[verified.ID]
		now := time.Now()
		user.DeactivatedAt = &now
		mockStore.users[verified.ID] = user

		_, err := svc.SignIn(ctx, SignInRequest{Email: "test@example.com", Password: "password123"})
		if !errors.Is(err, ErrAccountDeactivated) {
			t.Errorf("expected ErrAccountDeactivated, got %v", err)
		}
	})
}

func TestInviteThenAccept(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	user, token, err := svc.Invite(ctx, InviteRequest{OrganizationID: "org-1", Email: "writer@example.com", Role: "writer"})
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if user.DisplayName != "writer" || user.Role != "writer" {
		t.Fatalf("unexpected invited user %+v", user)
	}

	if _, err := svc.VerifyEmail(ctx, token, ""); err == nil {
		t.Fatal("expected invite redemption without password to fail")
	}

	accepted, err := svc.VerifyEmail(ctx, token, "password123")
	if err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	if !accepted.IsEmailVerified {
		t.Fatal("expected invited user to be verified")
	}

	if _, err := svc.SignIn(ctx, SignInRequest{Email: "writer@example.com", Password: "password123"}); err != nil {
		t.Fatalf("expected invited user to sign in: %v", err)
	}
}

func TestInviteRejectsUnknownRole(t *testing.T) {
	svc, _ := newTestService()
	_, _, err := svc.Invite(context.Background(), InviteRequest{OrganizationID: "org-1", Email: "a@b.c", Role: "owner"})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestVerifyEmail(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	t.Run("invalid token", func(t *testing.T) {
		if _, err := svc.VerifyEmail(ctx, "invalid-token", ""); !errors.Is(err, ErrInvalidVerification) {
			t.Errorf("expected ErrInvalidVerification, got %v", err)
		}
	})

	t.Run("empty token", func(t *testing.T) {
		if _, err := svc.VerifyEmail(ctx, "", ""); err == nil {
			t.Error("expected error for empty token")
		}
	})
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	signUpVerified(t, svc, "test@example.com", "password123")

	t.Run("unknown email yields no token and no error", func(t *testing.T) {
		token, _, err := svc.RequestPasswordReset(ctx, "nobody@example.com")
		if err != nil || token != "" {
			t.Errorf("expected empty token and nil error, got %q %v", token, err)
		}
	})

	t.Run("reset password with valid token", func(t *testing.T) {
		token, user, err := svc.RequestPasswordReset(ctx, "test@example.com")
		if err != nil || token == "" || user.Email != "test@example.com" {
			t.Fatalf("unexpected reset request result %q %+v %v", token, user, err)
		}

		if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "newpassword123"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := svc.SignIn(ctx, SignInRequest{Email: "test@example.com", Password: "password123"}); err == nil {
			t.Error("expected old password to not work")
		}
		if _, err := svc.SignIn(ctx, SignInRequest{Email: "test@example.com", Password: "newpassword123"}); err != nil {
			t.Errorf("expected new password to work: %v", err)
		}

		if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "another123"}); !errors.Is(err, ErrInvalidReset) {
			t.Errorf("expected reset token to be single use, got %v", err)
		}
	})

	t.Run("reset with short password", func(t *testing.T) {
		if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: "some-token", NewPassword: "short"}); err == nil {
			t.Error("expected error for short password")
		}
	})
}
