package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Room is a rental listing as it appears in favorites.
type Room struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Price  float64  `json:"price"`
	Images []string `json:"images"`
}

// RoomPage is one page of listings.
type RoomPage struct {
	Content    []Room `json:"content"`
	Page       int    `json:"page"`
	TotalPages int    `json:"totalPages"`
}

// ListFavorites fetches one page of the user's favorited rooms.
func (c *Client) ListFavorites(ctx context.Context, page, size int) (*RoomPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	body, err := c.Do(ctx, &Request{Method: http.MethodGet, Path: "/favorites", Query: q})
	if err != nil {
		return nil, err
	}
	var p RoomPage
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode favorites page: %w", err)
	}
	return &p, nil
}

// FavoriteRoomIDs walks every page and returns the full set of favorited
// room ids, for the local favorite toggle state.
func (c *Client) FavoriteRoomIDs(ctx context.Context) ([]string, error) {
	const pageSize = 100

	first, err := c.ListFavorites(ctx, 0, pageSize)
	if err != nil {
		return nil, err
	}
	var ids []string
	collect := func(p *RoomPage) {
		for _, r := range p.Content {
			if r.ID != "" {
				ids = append(ids, r.ID)
			}
		}
	}
	collect(first)

	for page := 1; page < first.TotalPages; page++ {
		p, err := c.ListFavorites(ctx, page, pageSize)
		if err != nil {
			return nil, err
		}
		collect(p)
	}
	return ids, nil
}

// AddFavorite marks a room as favorited.
func (c *Client) AddFavorite(ctx context.Context, roomID string) error {
	_, err := c.Do(ctx, &Request{Method: http.MethodPost, Path: "/favorites/rooms/" + roomID})
	return err
}

// RemoveFavorite unmarks a favorited room.
func (c *Client) RemoveFavorite(ctx context.Context, roomID string) error {
	_, err := c.Do(ctx, &Request{Method: http.MethodDelete, Path: "/favorites/rooms/" + roomID})
	return err
}
