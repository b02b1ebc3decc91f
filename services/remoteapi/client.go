package remoteapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/yourdeals/deals-web/config"
	"github.com/yourdeals/deals-web/services"
	"go.uber.org/zap"
)

const (
	loginPath          = "/users/login"
	personalDataPath   = "/users/personal-data"
	registerPath       = "/users/register"
	tableDataPath      = "/deal/table-data"
	dealDetailsPath    = "/deal/details"
	randomTopDealsPath = "/deal/random-top-deals"
	createDealPath     = "/deal/create"
	updateDealPath     = "/deal/update"
	deleteDealPath     = "/deal/delete"

	maxResponseBytes = 8 << 20
)

// Client talks to the remote deals API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client for cfg.BaseURL. Certificate verification is
// always on; cfg.CAFile, when set, is added to the system roots.
func NewClient(cfg config.RemoteAPIConfig, logger *zap.Logger) (*Client, error) {
	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}
	return NewClientWithHTTP(cfg.BaseURL, httpClient, logger), nil
}

// NewClientWithHTTP wraps an existing http.Client, e.g. one produced by httptest.
func NewClientWithHTTP(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	return &Client{baseURL: baseURL, httpClient: httpClient, logger: logger}
}

func newTransport(cfg config.RemoteAPIConfig) (*http.Transport, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.CAFile != "" {
		pemData, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read API CA file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, fmt.Errorf("API CA file %s contains no PEM certificates", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     tlsConfig,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}, nil
}

// Login exchanges credentials for a bearer token and identity. Any failure
// means no session: non-2xx client statuses map to ErrInvalidCredentials,
// everything else to ErrRemoteUnavailable or ErrUnexpectedShape.
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	resp, err := c.postJSON(ctx, loginPath, "", creds)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, services.ErrInvalidCredentials.Wrap(nil).WithDetail("status", resp.StatusCode)
		}
		return nil, services.ErrRemoteUnavailable.Wrap(fmt.Errorf("login returned status %d", resp.StatusCode)).
			WithDetail("status", resp.StatusCode)
	}

	return decodeLogin(resp.Body)
}

// PersonalData fetches the current profile for a bearer token.
func (c *Client) PersonalData(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, services.ErrSessionRequired
	}

	resp, err := c.do(ctx, http.MethodGet, personalDataPath, token, "", nil)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return decodePersonalData(resp.Body)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, services.ErrSessionInvalid.Wrap(nil).WithDetail("status", resp.StatusCode)
	default:
		return nil, services.ErrRemoteUnavailable.Wrap(fmt.Errorf("personal-data returned status %d", resp.StatusCode)).
			WithDetail("status", resp.StatusCode)
	}
}

// Register creates an account. The upstream reply is returned whatever its status.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*Response, error) {
	return c.postJSON(ctx, registerPath, "", req)
}

// TableData lists deals page by page.
func (c *Client) TableData(ctx context.Context, req TableDataRequest) (*Response, error) {
	return c.postJSON(ctx, tableDataPath, "", req)
}

// DealDetails fetches a single deal.
func (c *Client) DealDetails(ctx context.Context, req DealDetailsRequest) (*Response, error) {
	return c.postJSON(ctx, dealDetailsPath, "", req)
}

// RandomTopDeals fetches related deals for a set of categories.
func (c *Client) RandomTopDeals(ctx context.Context, req TopDealsRequest) (*Response, error) {
	return c.postJSON(ctx, randomTopDealsPath, "", req)
}

// CreateDeal forwards a multipart deal body with the caller's bearer token.
func (c *Client) CreateDeal(ctx context.Context, token, contentType string, body io.Reader) (*Response, error) {
	return c.do(ctx, http.MethodPost, createDealPath, token, contentType, body)
}

// UpdateDeal forwards a multipart deal body with the caller's bearer token.
func (c *Client) UpdateDeal(ctx context.Context, token, contentType string, body io.Reader) (*Response, error) {
	return c.do(ctx, http.MethodPost, updateDealPath, token, contentType, body)
}

// DeleteDeal removes a deal on behalf of the bearer token's owner.
func (c *Client) DeleteDeal(ctx context.Context, token string, req DeleteDealRequest) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, services.WrapInternal("encode delete request", err)
	}
	return c.do(ctx, http.MethodDelete, deleteDealPath, token, "application/json", bytes.NewReader(payload))
}

// Ping checks that the remote API answers at all. Any HTTP status counts
// as reachable; only transport failures are reported.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return services.WrapInternal("create ping request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.ErrRemoteUnavailable.Wrap(err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return nil
}

func (c *Client) postJSON(ctx context.Context, path, token string, body interface{}) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, services.WrapInternal("encode request", err)
	}
	return c.do(ctx, http.MethodPost, path, token, "application/json", bytes.NewReader(payload))
}

// do performs one request. Transport failures, including deadline expiry,
// come back as ErrRemoteUnavailable; any HTTP status is returned to the caller.
func (c *Client) do(ctx context.Context, method, path, token, contentType string, body io.Reader) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, services.WrapInternal("create remote request", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("remote API request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("elapsed", time.Since(start)),
			zap.Bool("deadline", errors.Is(err, context.DeadlineExceeded)),
			zap.Error(err))
		return nil, services.ErrRemoteUnavailable.Wrap(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, services.ErrRemoteUnavailable.Wrap(fmt.Errorf("read response: %w", err))
	}

	c.logger.Debug("remote API request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}
