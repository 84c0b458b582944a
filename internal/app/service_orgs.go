package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"blogwriter/api/internal/authpw"
	"blogwriter/api/internal/rbac"
	"blogwriter/api/internal/store"
	"blogwriter/api/internal/util"
	"go.uber.org/zap"
)

var orgPlans = map[string]bool{"free": true, "starter": true, "pro": true, "enterprise": true}

type OrganizationInput struct {
	Name     *string         `json:"name"`
	Plan     *string         `json:"plan"`
	Settings json.RawMessage `json:"settings"`
}

func (s *Service) ListOrganizations(ctx context.Context, session Session) ([]store.Organization, error) {
	if rbac.Normalize(session.Role) == rbac.RoleSystemAdmin {
		return s.store.ListOrganizations(ctx)
	}
	org, err := s.store.GetOrganization(ctx, session.OrganizationID)
	if err != nil {
		return nil, err
	}
	return []store.Organization{org}, nil
}

func (s *Service) CreateOrganization(ctx context.Context, input OrganizationInput) (store.Organization, error) {
	if input.Name == nil || strings.TrimSpace(*input.Name) == "" {
		return store.Organization{}, validationError("name is required")
	}
	name := strings.TrimSpace(*input.Name)
	slug := util.Slugify(name)
	if slug == "" {
		return store.Organization{}, validationError("name must contain letters or digits")
	}
	plan := "free"
	if input.Plan != nil {
		plan = strings.ToLower(strings.TrimSpace(*input.Plan))
		if !orgPlans[plan] {
			return store.Organization{}, validationError("unknown plan")
		}
	}
	settings := input.Settings
	if len(settings) == 0 {
		settings = json.RawMessage(`{}`)
	}
	org := store.Organization{
		ID:        util.NewID(),
		Name:      name,
		Slug:      slug,
		Plan:      plan,
		Settings:  settings,
		CreatedAt: s.now().UTC(),
		UpdatedAt: s.now().UTC(),
	}
	if err := s.store.InsertOrganization(ctx, org); err != nil {
		return store.Organization{}, err
	}
	return org, nil
}

func (s *Service) GetOrganization(ctx context.Context, session Session, orgID string) (store.Organization, error) {
	scoped, err := s.scope(session, orgID)
	if err != nil {
		return store.Organization{}, err
	}
	return s.store.GetOrganization(ctx, scoped)
}

func (s *Service) UpdateOrganization(ctx context.Context, session Session, orgID string, input OrganizationInput) (store.Organization, error) {
	scoped, err := s.scope(session, orgID)
	if err != nil {
		return store.Organization{}, err
	}
	org, err := s.store.GetOrganization(ctx, scoped)
	if err != nil {
		return store.Organization{}, err
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return store.Organization{}, validationError("name cannot be empty")
		}
		org.Name = name
	}
	if input.Plan != nil {
		plan := strings.ToLower(strings.TrimSpace(*input.Plan))
		if !orgPlans[plan] {
			return store.Organization{}, validationError("unknown plan")
		}
		org.Plan = plan
	}
	if len(input.Settings) > 0 {
		if !json.Valid(input.Settings) || !strings.HasPrefix(strings.TrimSpace(string(input.Settings)), "{") {
			return store.Organization{}, validationError("settings must be a JSON object")
		}
		org.Settings = input.Settings
	}
	if err := s.store.UpdateOrganization(ctx, org); err != nil {
		return store.Organization{}, err
	}
	org.UpdatedAt = s.now().UTC()
	return org, nil
}

func (s *Service) DeleteOrganization(ctx context.Context, session Session, orgID string) error {
	if orgID == session.OrganizationID {
		return validationError("cannot delete your own organization")
	}
	return s.store.DeleteOrganization(ctx, orgID)
}

type InviteInput struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

type InviteResult struct {
	User       store.User `json:"user"`
	InviteSent bool       `json:"inviteSent"`
	DevInvite  string     `json:"devInviteToken,omitempty"`
}

func (s *Service) ListUsers(ctx context.Context, orgID string) ([]store.User, error) {
	return s.store.ListUsers(ctx, orgID)
}

// InviteUser creates an unverified member. The invitee sets a password when
// redeeming the verification token.
func (s *Service) InviteUser(ctx context.Context, session Session, orgID string, input InviteInput) (InviteResult, error) {
	role := strings.TrimSpace(input.Role)
	if role == "" {
		role = string(rbac.RoleWriter)
	}
	if !rbac.Valid(role) {
		return InviteResult{}, validationError("unknown role")
	}
	if !rbac.CanGrant(rbac.Normalize(session.Role), rbac.Role(role)) {
		return InviteResult{}, domainError(http.StatusForbidden, "FORBIDDEN", "You cannot grant this role", nil)
	}
	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return InviteResult{}, err
	}

	user, token, err := s.passwords.Invite(ctx, authpw.InviteRequest{
		OrganizationID: orgID,
		Email:          input.Email,
		DisplayName:    input.DisplayName,
		Role:           role,
	})
	if err != nil {
		return InviteResult{}, err
	}

	result := InviteResult{User: user}
	if !s.SMTPConfigured() {
		result.DevInvite = token
		return result, nil
	}
	link := s.appURL("/accept-invite", url.Values{"token": {token}})
	if err := s.mailer.SendInviteEmail(user.Email, session.UserName, org.Name, link); err != nil {
		s.logger.Warn("send invite email", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		result.InviteSent = true
	}
	return result, nil
}

// UpdateUserRole changes a member's role. Nobody may change a member who
// outranks them or grant a role above their own.
func (s *Service) UpdateUserRole(ctx context.Context, session Session, orgID, userID, role string) (store.User, error) {
	role = strings.TrimSpace(role)
	if !rbac.Valid(role) {
		return store.User{}, validationError("unknown role")
	}
	actor := rbac.Normalize(session.Role)
	if !rbac.CanGrant(actor, rbac.Role(role)) {
		return store.User{}, domainError(http.StatusForbidden, "FORBIDDEN", "You cannot grant this role", nil)
	}
	user, err := s.store.GetOrgUser(ctx, orgID, userID)
	if err != nil {
		return store.User{}, err
	}
	if rbac.Rank(rbac.Normalize(user.Role)) > rbac.Rank(actor) {
		return store.User{}, errForbidden
	}
	if err := s.store.UpdateUserRole(ctx, orgID, userID, role); err != nil {
		return store.User{}, err
	}
	user.Role = role
	return user, nil
}

func (s *Service) DeactivateUser(ctx context.Context, session Session, orgID, userID string) error {
	if userID == session.UserID {
		return validationError("you cannot deactivate yourself")
	}
	user, err := s.store.GetOrgUser(ctx, orgID, userID)
	if err != nil {
		return err
	}
	if rbac.Rank(rbac.Normalize(user.Role)) > rbac.Rank(rbac.Normalize(session.Role)) {
		return errForbidden
	}
	return s.store.DeactivateUser(ctx, orgID, userID)
}
