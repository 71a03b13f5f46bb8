// Package appraisal prices item types through the appraisal service.
package appraisal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rewired-gh/buybackd/internal/logger"
	"github.com/rewired-gh/buybackd/internal/metrics"
	"github.com/rewired-gh/buybackd/internal/models"
)

// Kind classifies an appraisal failure.
type Kind int

const (
	KindUnknown   Kind = iota
	KindNotFound       // the appraisal reference does not exist
	KindTransient      // rate limiting, server or transport failure
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error is a failed appraisal request.
type Error struct {
	Kind       Kind
	StatusCode int
	Status     string
	URL        string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("appraisal request to %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("appraisal request to %s failed: status %q", e.URL, e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

// IsNotFound reports whether err means the appraisal reference is permanently invalid.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindNotFound
}

// RateSource provides stored buyback rates by type id.
type RateSource interface {
	RatesByTypeIDs(ctx context.Context, typeIDs []int64) (map[int64]float64, error)
}

// Config holds appraisal client settings.
type Config struct {
	BaseURL     string
	Market      string
	Timeout     time.Duration
	MaxRetries  int
	RetryWait   time.Duration
	DefaultRate float64
}

// Client talks to the appraisal service.
type Client struct {
	http        *resty.Client
	market      string
	defaultRate float64
	rates       RateSource
	metrics     *metrics.Registry
}

type appraisalEnvelope struct {
	Appraisal *appraisalBody `json:"appraisal"`
}

type appraisalBody struct {
	ID    string          `json:"id"`
	Items []appraisalItem `json:"items"`
}

type appraisalItem struct {
	TypeID   int64  `json:"typeID"`
	TypeName string `json:"typeName"`
	Quantity int64  `json:"quantity"`
	Prices   struct {
		Buy struct {
			Max float64 `json:"max"`
		} `json:"buy"`
	} `json:"prices"`
}

// NewClient creates an appraisal client. rates may be nil, in which case every
// item carries the default rate.
func NewClient(cfg Config, rates RateSource, m *metrics.Registry) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
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

	return &Client{
		http:        c,
		market:      cfg.Market,
		defaultRate: cfg.DefaultRate,
		rates:       rates,
		metrics:     m,
	}
}

// PriceByTypeNames appraises one unit of each named type.
func (c *Client) PriceByTypeNames(ctx context.Context, names []string) (*models.Appraisal, error) {
	if len(names) == 0 {
		return &models.Appraisal{}, nil
	}
	logger.Debug("Appraising %d type names on %s", len(names), c.market)

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"market": c.market, "persist": "no"}).
		SetFormData(map[string]string{"raw_textarea": strings.Join(names, "\n")}).
		Post("/appraisal.json")
	return c.decode(ctx, resp, err)
}

// PriceByReference re-reads an existing appraisal from its link.
func (c *Client) PriceByReference(ctx context.Context, link string) (*models.Appraisal, error) {
	url := strings.TrimRight(link, "/")
	if !strings.HasSuffix(url, ".json") {
		url += ".json"
	}
	logger.Debug("Fetching appraisal %s", url)

	resp, err := c.http.R().
		SetContext(ctx).
		Get(url)
	return c.decode(ctx, resp, err)
}

func (c *Client) decode(ctx context.Context, resp *resty.Response, err error) (*models.Appraisal, error) {
	if err != nil {
		c.metrics.AppraisalRequest(KindTransient.String())
		url := ""
		if resp != nil && resp.Request != nil {
			url = resp.Request.URL
		}
		return nil, &Error{Kind: KindTransient, URL: url, Err: err}
	}
	if resp.IsError() {
		e := &Error{
			Kind:       classify(resp.StatusCode()),
			StatusCode: resp.StatusCode(),
			Status:     resp.Status(),
			URL:        resp.Request.URL,
		}
		c.metrics.AppraisalRequest(e.Kind.String())
		return nil, e
	}

	body, err := parseBody(resp.Body())
	if err != nil {
		c.metrics.AppraisalRequest(KindUnknown.String())
		return nil, &Error{Kind: KindUnknown, StatusCode: resp.StatusCode(), Status: resp.Status(), URL: resp.Request.URL, Err: err}
	}
	c.metrics.AppraisalRequest("success")

	out := &models.Appraisal{ID: body.ID, Items: make([]models.AppraisalItem, 0, len(body.Items))}
	ids := make([]int64, 0, len(body.Items))
	for _, it := range body.Items {
		out.Items = append(out.Items, models.AppraisalItem{
			TypeID:       it.TypeID,
			TypeName:     it.TypeName,
			Quantity:     it.Quantity,
			JitaBuyPrice: it.Prices.Buy.Max,
			Rate:         c.defaultRate,
		})
		ids = append(ids, it.TypeID)
	}
	c.applyRates(ctx, out, ids)
	return out, nil
}

// applyRates sets the stored rate of each item. Failing to read rates keeps defaults.
func (c *Client) applyRates(ctx context.Context, a *models.Appraisal, ids []int64) {
	if c.rates == nil || len(ids) == 0 {
		return
	}
	rates, err := c.rates.RatesByTypeIDs(ctx, ids)
	if err != nil {
		logger.Warn("Failed to load buyback rates, using default %.2f: %v", c.defaultRate, err)
		return
	}
	for i := range a.Items {
		if r, ok := rates[a.Items[i].TypeID]; ok {
			a.Items[i].Rate = r
		}
	}
}

// parseBody accepts both the wrapped response of a new appraisal and the bare
// body returned for an existing one.
func parseBody(data []byte) (*appraisalBody, error) {
	var env appraisalEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode appraisal: %w", err)
	}
	if env.Appraisal != nil {
		return env.Appraisal, nil
	}
	var body appraisalBody
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("failed to decode appraisal: %w", err)
	}
	return &body, nil
}

func classify(status int) Kind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests || status >= 500:
		return KindTransient
	default:
		return KindUnknown
	}
}
