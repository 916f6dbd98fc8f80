// Package mpesa is a client for the Safaricom Daraja API: OAuth, STK push,
// STK push query and B2C payment requests.
package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/baharkarakas/welfare-backend/internal/config"
	"github.com/baharkarakas/welfare-backend/internal/metrics"
	"go.uber.org/zap"
)

const (
	SandboxURL    = "https://sandbox.safaricom.co.ke"
	ProductionURL = "https://api.safaricom.co.ke"

	// tokens are valid for an hour; refresh early
	tokenLifetime = 50 * time.Minute
)

// Daraja timestamps are East Africa Time.
var eat = time.FixedZone("EAT", 3*60*60)

type Client struct {
	cfg     config.MpesaConfig
	baseURL string
	http    *http.Client
	log     *zap.Logger
	now     func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg config.MpesaConfig, log *zap.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = SandboxURL
		if cfg.Environment == "production" {
			base = ProductionURL
		}
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
		now:     time.Now,
	}
}

// APIError is a non-2xx Daraja response.
type APIError struct {
	Status  int
	Code    string `json:"errorCode"`
	Message string `json:"errorMessage"`
}

func (e *APIError) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("daraja: http %d", e.Status)
	}
	return fmt.Sprintf("daraja: http %d: %s %s", e.Status, e.Code, e.Message)
}

// ResponseError is a 2xx response whose ResponseCode is not "0".
type ResponseError struct {
	Code        string
	Description string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("daraja: response code %s: %s", e.Code, e.Description)
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	var res struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := c.do(req, &res); err != nil {
		return "", fmt.Errorf("get access token: %w", err)
	}
	if res.AccessToken == "" {
		return "", fmt.Errorf("get access token: empty token")
	}
	c.token = res.AccessToken
	c.tokenExpiry = c.now().Add(tokenLifetime)
	return c.token, nil
}

func (c *Client) post(ctx context.Context, api, path string, body, out any) error {
	err := c.postOnce(ctx, path, body, out)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.GatewayRequests.WithLabelValues(api, outcome).Inc()
	return err
}

func (c *Client) postOnce(ctx context.Context, path string, body, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		c.log.Warn("daraja request failed",
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
			zap.String("error_code", apiErr.Code),
		)
		return apiErr
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode daraja response: %w", err)
	}
	return nil
}

func (c *Client) timestamp() string {
	return c.now().In(eat).Format("20060102150405")
}
