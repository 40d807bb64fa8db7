package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"

	"github.com/minhbui/trovia/internal/session"
	"go.uber.org/zap"
)

// allowedRoles are the account roles permitted to use the app.
var allowedRoles = []string{"Administrators", "Landlords", "Users"}

// loginResponse tolerates both camelCase and snake_case token keys, matching
// backend versions in the wild.
type loginResponse struct {
	AccessToken    string               `json:"accessToken"`
	AccessTokenLC  string               `json:"access_token"`
	RefreshToken   string               `json:"refreshToken"`
	RefreshTokenLC string               `json:"refresh_token"`
	ID             string               `json:"id"`
	Username       string               `json:"username"`
	IsActive       int                  `json:"isActive"`
	Roles          []string             `json:"roles"`
	UserProfile    *session.UserProfile `json:"userProfile"`
}

func (r *loginResponse) accessToken() string {
	if r.AccessToken != "" {
		return r.AccessToken
	}
	return r.AccessTokenLC
}

func (r *loginResponse) refreshToken() string {
	if r.RefreshToken != "" {
		return r.RefreshToken
	}
	return r.RefreshTokenLC
}

// Login authenticates against the backend and persists the session. Accounts
// without any permitted role are rejected and the session is not kept.
func (c *Client) Login(ctx context.Context, username, password string) (*session.User, error) {
	body, err := c.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   "/auth/login",
		Body:   map[string]string{"username": username, "password": password},
	})
	if err != nil {
		return nil, err
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	if resp.accessToken() == "" {
		return nil, fmt.Errorf("login response missing access token")
	}

	if !slices.ContainsFunc(resp.Roles, func(r string) bool {
		return slices.Contains(allowedRoles, r)
	}) {
		_ = c.store.Clear()
		return nil, ErrNoPermission
	}

	user := &session.User{
		ID:       resp.ID,
		Username: resp.Username,
		IsActive: resp.IsActive,
		Roles:    resp.Roles,
	}
	if user.Username == "" {
		user.Username = username
	}
	if resp.UserProfile != nil {
		user.Profile = *resp.UserProfile
	}

	st := session.State{
		AccessToken:  resp.accessToken(),
		RefreshToken: resp.refreshToken(),
		User:         user,
	}
	if err := c.store.Save(st); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	c.logger.Info("logged in", zap.String("username", user.Username))
	return user, nil
}

// Logout clears the persisted session.
func (c *Client) Logout() error {
	c.logger.Info("logging out")
	return c.store.Clear()
}

// CurrentUser returns the logged-in user, or nil when logged out.
func (c *Client) CurrentUser() (*session.User, error) {
	st, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	return st.User, nil
}

// ChangePassword updates the account password.
func (c *Client) ChangePassword(ctx context.Context, userID, password, newPassword string) error {
	_, err := c.Do(ctx, &Request{
		Method: http.MethodPatch,
		Path:   "/auth/change-password",
		Body: map[string]string{
			"userId":      userID,
			"password":    password,
			"newPassword": newPassword,
		},
	})
	return err
}
