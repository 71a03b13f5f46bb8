// Package esi provides access to the game's public API: corporation assets,
// station and structure names, and item type reference data.
package esi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rewired-gh/buybackd/internal/models"
)

// PageSize is the number of entries on a full inventory page.
const PageSize = 1000

var (
	// ErrNotFound is returned when the API has no entity for the requested id.
	ErrNotFound = errors.New("esi: not found")
	// ErrNoPage is returned when an inventory page past the last one is requested.
	ErrNoPage = errors.New("esi: no such page")
)

// StatusError is a non-success API response.
type StatusError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s failed: status %q", e.URL, e.Status)
}

// ClientConfig holds transport settings shared by the API and login clients.
type ClientConfig struct {
	Timeout    time.Duration
	MaxRetries int
	RetryWait  time.Duration
	UserAgent  string
}

// Client provides access to the game API.
type Client struct {
	http          *resty.Client
	corporationID int64

	typesMu sync.Mutex
	types   map[int64]models.TypeInfo
}

type assetEntry struct {
	ItemID       int64  `json:"item_id"`
	TypeID       int64  `json:"type_id"`
	Quantity     int64  `json:"quantity"`
	LocationID   int64  `json:"location_id"`
	LocationFlag string `json:"location_flag"`
	LocationType string `json:"location_type"`
	IsSingleton  bool   `json:"is_singleton"`
}

type namedEntity struct {
	Name string `json:"name"`
}

type typeEntry struct {
	Name           string  `json:"name"`
	Volume         float64 `json:"volume"`
	PackagedVolume float64 `json:"packaged_volume"`
}

// newRestyClient builds a resty client that retries transport errors, 429 and 5xx.
func newRestyClient(cfg ClientConfig) *resty.Client {
	c := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryWait * 8).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/json")
	if cfg.UserAgent != "" {
		c.SetHeader("User-Agent", cfg.UserAgent)
	}
	return c
}

// NewClient creates a new API client for one corporation.
func NewClient(baseURL string, corporationID int64, cfg ClientConfig) *Client {
	return &Client{
		http:          newRestyClient(cfg).SetBaseURL(baseURL),
		corporationID: corporationID,
		types:         make(map[int64]models.TypeInfo),
	}
}

// ListAssets fetches one page (1-based) of the corporation inventory.
// ErrNoPage is returned when the page does not exist.
func (c *Client) ListAssets(ctx context.Context, accessToken string, page int) ([]models.Asset, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetPathParam("corporation_id", strconv.FormatInt(c.corporationID, 10)).
		SetQueryParam("page", strconv.Itoa(page)).
		Get("/corporations/{corporation_id}/assets/")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assets page %d: %w", page, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrNoPage
	}
	if resp.IsError() {
		return nil, statusError(resp)
	}

	var entries []assetEntry
	if err := json.Unmarshal(resp.Body(), &entries); err != nil {
		return nil, fmt.Errorf("failed to decode assets page %d: %w", page, err)
	}

	assets := make([]models.Asset, 0, len(entries))
	for _, e := range entries {
		assets = append(assets, models.Asset{
			ItemID:       e.ItemID,
			TypeID:       e.TypeID,
			Quantity:     e.Quantity,
			LocationID:   e.LocationID,
			LocationFlag: e.LocationFlag,
		})
	}
	return assets, nil
}

// StationName returns the name of an NPC station. No credentials are needed.
func (c *Client) StationName(ctx context.Context, stationID int64) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("station_id", strconv.FormatInt(stationID, 10)).
		Get("/universe/stations/{station_id}/")
	return decodeName(resp, err)
}

// StructureName returns the name of a player-owned structure the token's
// character has docking access to.
func (c *Client) StructureName(ctx context.Context, structureID int64, accessToken string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetPathParam("structure_id", strconv.FormatInt(structureID, 10)).
		Get("/universe/structures/{structure_id}/")
	return decodeName(resp, err)
}

// TypeInfo returns the name and unit volume of an item type. Results are kept
// for the lifetime of the client since type data does not change.
func (c *Client) TypeInfo(ctx context.Context, typeID int64) (models.TypeInfo, error) {
	c.typesMu.Lock()
	info, ok := c.types[typeID]
	c.typesMu.Unlock()
	if ok {
		return info, nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("type_id", strconv.FormatInt(typeID, 10)).
		Get("/universe/types/{type_id}/")
	if err != nil {
		return models.TypeInfo{}, fmt.Errorf("failed to fetch type %d: %w", typeID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return models.TypeInfo{}, ErrNotFound
	}
	if resp.IsError() {
		return models.TypeInfo{}, statusError(resp)
	}

	var t typeEntry
	if err := json.Unmarshal(resp.Body(), &t); err != nil {
		return models.TypeInfo{}, fmt.Errorf("failed to decode type %d: %w", typeID, err)
	}
	info = models.TypeInfo{TypeID: typeID, Name: t.Name, Volume: t.Volume}
	if t.PackagedVolume > 0 {
		info.Volume = t.PackagedVolume
	}

	c.typesMu.Lock()
	c.types[typeID] = info
	c.typesMu.Unlock()
	return info, nil
}

// TypeName returns the display name of an item type.
func (c *Client) TypeName(ctx context.Context, typeID int64) (string, error) {
	info, err := c.TypeInfo(ctx, typeID)
	if err != nil {
		return "", err
	}
	return info.Name, nil
}

func decodeName(resp *resty.Response, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.IsError() {
		return "", statusError(resp)
	}
	var e namedEntity
	if err := json.Unmarshal(resp.Body(), &e); err != nil {
		return "", fmt.Errorf("failed to decode name: %w", err)
	}
	return e.Name, nil
}

func statusError(resp *resty.Response) error {
	return &StatusError{
		StatusCode: resp.StatusCode(),
		Status:     resp.Status(),
		URL:        resp.Request.URL,
	}
}
