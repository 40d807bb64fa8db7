package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
)

// Profile is a full user profile as served by the backend.
type Profile struct {
	ID          string   `json:"id"`
	FullName    string   `json:"fullName"`
	Avatar      string   `json:"avatar"`
	Email       string   `json:"email"`
	PhoneNumber string   `json:"phoneNumber"`
	Address     *Address `json:"address"`
}

// Address is a nested street/ward/district/province location.
type Address struct {
	ID     string `json:"id"`
	Street string `json:"street"`
	Ward   struct {
		ID       int    `json:"id"`
		Name     string `json:"name"`
		District struct {
			ID       int    `json:"id"`
			Name     string `json:"name"`
			Province struct {
				ID   int    `json:"id"`
				Name string `json:"name"`
			} `json:"province"`
		} `json:"district"`
	} `json:"ward"`
}

// DisplayName is the lightweight partner-info projection used by chat.
type DisplayName struct {
	FullName string `json:"fullName"`
	Avatar   string `json:"avatar"`
}

// AvatarUpload is an optional avatar file attached to a profile update.
type AvatarUpload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// GetProfile fetches the full profile for a user.
func (c *Client) GetProfile(ctx context.Context, profileID string) (*Profile, error) {
	body, err := c.Do(ctx, &Request{Method: http.MethodGet, Path: "/profile/" + profileID})
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

// GetDisplayName fetches the display name and avatar for a user id.
func (c *Client) GetDisplayName(ctx context.Context, userID string) (*DisplayName, error) {
	body, err := c.Do(ctx, &Request{Method: http.MethodGet, Path: "/profile/getname/" + userID})
	if err != nil {
		return nil, err
	}
	var d DisplayName
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("decode display name: %w", err)
	}
	return &d, nil
}

// UpdateProfile patches the profile as multipart form data: a "profile" JSON
// field plus an optional "avatar" file part.
func (c *Client) UpdateProfile(ctx context.Context, profile *Profile, avatar *AvatarUpload) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := w.WriteField("profile", string(profileJSON)); err != nil {
		return err
	}
	if avatar != nil {
		part, err := w.CreateFormFile("avatar", avatar.FileName)
		if err != nil {
			return err
		}
		if _, err := part.Write(avatar.Data); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	_, err = c.Do(ctx, &Request{
		Method:      http.MethodPatch,
		Path:        "/profile/update",
		RawBody:     buf.Bytes(),
		ContentType: w.FormDataContentType(),
	})
	return err
}

// ResolveImageURL turns a backend-relative image path into an absolute URL.
// Absolute URLs pass through untouched.
func (c *Client) ResolveImageURL(imageBase, path string) string {
	if path == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimSuffix(imageBase, "/") + "/" + strings.TrimPrefix(path, "/")
}
