// Package microsoft provides the OneDrive and SharePoint Online connectors.
//
// Both authenticate with the client-credentials grant against the Microsoft
// identity platform and walk drive contents through the Graph delta API,
// keeping the last delta link per drive so later passes only see changes.
package microsoft

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ajitpratap0/tenantsync/internal/connector"
	"github.com/ajitpratap0/tenantsync/pkg/config"
	"github.com/ajitpratap0/tenantsync/pkg/errors"
	jsonpool "github.com/ajitpratap0/tenantsync/pkg/json"
)

// GraphScope requests every application permission granted to the app.
const GraphScope = "https://graph.microsoft.com/.default"

// maxErrorBody bounds how much of a failed response is kept for the error.
const maxErrorBody = 4 << 10

// Options configures the Graph connectors.
type Options struct {
	BaseURL      string
	AuthorityURL string
	// PollInterval between incremental passes; 0 stops after the full sync.
	PollInterval   time.Duration
	Concurrency    int
	RequestTimeout time.Duration
	EnableHTTP2    bool
	// HTTPClient replaces the default transport, e.g. in tests.
	HTTPClient *http.Client
}

// OptionsFromConfig maps the graph config section onto Options.
func OptionsFromConfig(cfg config.GraphConfig) Options {
	return Options{
		BaseURL:        cfg.BaseURL,
		AuthorityURL:   cfg.AuthorityURL,
		PollInterval:   cfg.PollInterval,
		Concurrency:    cfg.Concurrency,
		RequestTimeout: cfg.RequestTimeout,
		EnableHTTP2:    cfg.EnableHTTP2,
	}
}

// TokenURL returns the v2 token endpoint of tenantID.
func TokenURL(authority, tenantID string) string {
	return strings.TrimRight(authority, "/") + "/" + url.PathEscape(tenantID) + "/oauth2/v2.0/token"
}

// GraphClient issues authenticated Graph requests for one tenant.
type GraphClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// page is the envelope of every Graph collection response.
type page struct {
	Value     []map[string]interface{} `json:"value"`
	NextLink  string                   `json:"@odata.nextLink"`
	DeltaLink string                   `json:"@odata.deltaLink"`
}

// NewGraphClient returns a client whose token source fetches and caches
// app-only tokens for creds. Token requests are bound to ctx.
func NewGraphClient(ctx context.Context, creds connector.Credentials, opts Options, logger *zap.Logger) *GraphClient {
	cc := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     TokenURL(opts.AuthorityURL, creds.TenantID),
		Scopes:       []string{GraphScope},
	}

	base := opts.HTTPClient
	if base == nil {
		base = newHTTPClient(opts, logger)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	return &GraphClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    cc.Client(ctx),
		logger:  logger,
	}
}

func newHTTPClient(opts Options, logger *zap.Logger) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if opts.EnableHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			logger.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}
	return &http.Client{
		Transport: transport,
		Timeout:   opts.RequestTimeout,
	}
}

// Pages fetches path and every page linked from it through @odata.nextLink,
// handing each page's items to fn. path is either relative to the base URL
// or an absolute link returned by Graph. The delta link of the last page is
// returned when Graph sends one.
func (c *GraphClient) Pages(ctx context.Context, path string, fn func(items []map[string]interface{}) error) (string, error) {
	next := c.resolve(path)
	for next != "" {
		p, err := c.get(ctx, next)
		if err != nil {
			return "", err
		}
		if err := fn(p.Value); err != nil {
			return "", err
		}
		if p.DeltaLink != "" {
			return p.DeltaLink, nil
		}
		next = p.NextLink
	}
	return "", nil
}

func (c *GraphClient) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

func (c *GraphClient) get(ctx context.Context, target string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to build graph request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCollaborator, "graph request failed").
			WithDetail("url", target)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, errors.Newf(errors.ErrorTypeCollaborator, "graph returned %d", resp.StatusCode).
			WithDetail("url", target).
			WithDetail("status", resp.StatusCode).
			WithDetail("body", string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to read graph response")
	}
	var p page
	if err := jsonpool.Unmarshal(body, &p); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCollaborator, "malformed graph response").
			WithDetail("url", target)
	}
	return &p, nil
}
