package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// Province is a top-level administrative division.
type Province struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// District belongs to a province.
type District struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	ProvinceID int    `json:"provinceId"`
}

// Ward belongs to a district.
type Ward struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	DistrictID int    `json:"districtId"`
}

// Provinces lists all provinces.
func (c *Client) Provinces(ctx context.Context) ([]Province, error) {
	body, err := c.Do(ctx, &Request{Method: http.MethodGet, Path: "/provinces"})
	if err != nil {
		return nil, err
	}
	var out []Province
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode provinces: %w", err)
	}
	return out, nil
}

// Districts lists the districts of a province.
func (c *Client) Districts(ctx context.Context, provinceID int) ([]District, error) {
	body, err := c.Do(ctx, &Request{Method: http.MethodGet, Path: "/districts/" + strconv.Itoa(provinceID)})
	if err != nil {
		return nil, err
	}
	var out []District
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode districts: %w", err)
	}
	return out, nil
}

// Wards lists the wards of a district.
func (c *Client) Wards(ctx context.Context, districtID int) ([]Ward, error) {
	body, err := c.Do(ctx, &Request{Method: http.MethodGet, Path: "/wards/" + strconv.Itoa(districtID)})
	if err != nil {
		return nil, err
	}
	var out []Ward
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode wards: %w", err)
	}
	return out, nil
}
