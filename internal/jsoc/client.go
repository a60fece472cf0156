package jsoc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/YoungMasterGandalf/thesis-work/internal/metrics"
	"go.uber.org/zap"
)

// DefaultBaseURL is the public JSOC server.
const DefaultBaseURL = "http://jsoc.stanford.edu"

const fetchPath = "/cgi-bin/ajax/jsoc_fetch"

// ClientConfig holds configuration for the archive client.
type ClientConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	MaxConns       int
}

// DefaultClientConfig returns a default client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:        DefaultBaseURL,
		RequestTimeout: 60 * time.Second,
		MaxConns:       2,
	}
}

// Client talks to the jsoc_fetch export API.
type Client struct {
	logger   *zap.Logger
	metrics  *metrics.PipelineMetrics
	httpCli  *http.Client
	baseURL  *url.URL
	fetchURL string
}

// NewClient creates a new archive client.
func NewClient(cfg ClientConfig, logger *zap.Logger, m *metrics.PipelineMetrics) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid archive url %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("archive url %q must be http or https", cfg.BaseURL)
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 2
	}

	return &Client{
		logger:   logger,
		metrics:  m,
		httpCli:  NewHTTPClient(cfg.RequestTimeout, cfg.MaxConns),
		baseURL:  base,
		fetchURL: base.String() + fetchPath,
	}, nil
}

// NewHTTPClient returns an http.Client tuned for long-running bulk transfers
// against a single archive host.
func NewHTTPClient(timeout time.Duration, maxConns int) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        maxConns,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConnsPerHost: maxConns,
			MaxConnsPerHost:     maxConns,
		},
	}
}

// HTTPClient exposes the underlying client so file transfers share its transport.
func (c *Client) HTTPClient() *http.Client {
	return c.httpCli
}

type fetchResponse struct {
	Status    int     `json:"status"`
	RequestID string  `json:"requestid"`
	Wait      float64 `json:"wait"`
	Dir       string  `json:"dir"`
	Error     string  `json:"error"`
	Data      []struct {
		Record   string `json:"record"`
		Filename string `json:"filename"`
	} `json:"data"`
}

// SubmitExport issues op=exp_request.
func (c *Client) SubmitExport(ctx context.Context, opts ExportOptions) (ExportStatus, error) {
	q := url.Values{}
	q.Set("op", "exp_request")
	q.Set("ds", opts.Request)
	q.Set("method", opts.Method)
	q.Set("protocol", opts.Protocol)
	q.Set("format", "json")
	q.Set("requestor", "none")
	if opts.Notify != "" {
		q.Set("notify", opts.Notify)
	}
	return c.call(ctx, "exp_request", q)
}

// ExportStatus issues op=exp_status.
func (c *Client) ExportStatus(ctx context.Context, requestID string) (ExportStatus, error) {
	q := url.Values{}
	q.Set("op", "exp_status")
	q.Set("requestid", requestID)
	q.Set("format", "json")
	return c.call(ctx, "exp_status", q)
}

// Ping checks that the archive answers at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL.String(), nil)
	if err != nil {
		return err
	}
	res, err := c.httpCli.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach archive: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("archive answered %s", res.Status)
	}
	return nil
}

func (c *Client) call(ctx context.Context, endpoint string, q url.Values) (ExportStatus, error) {
	timer := metrics.NewTimer()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.fetchURL+"?"+q.Encode(), nil)
	if err != nil {
		return ExportStatus{}, err
	}

	res, err := c.httpCli.Do(req)
	if err != nil {
		c.metrics.RecordAPICall(endpoint, "error", timer.Duration())
		return ExportStatus{}, fmt.Errorf("%s: %w", endpoint, err)
	}
	defer res.Body.Close()
	c.metrics.RecordAPICall(endpoint, strconv.Itoa(res.StatusCode), timer.Duration())

	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, res.Body)
		return ExportStatus{}, fmt.Errorf("%s: unexpected status %s", endpoint, res.Status)
	}

	var body fetchResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return ExportStatus{}, fmt.Errorf("%s: failed to decode response: %w", endpoint, err)
	}

	return c.toStatus(body), nil
}

func (c *Client) toStatus(body fetchResponse) ExportStatus {
	st := ExportStatus{
		RequestID: body.RequestID,
		Status:    body.Status,
		Wait:      time.Duration(body.Wait * float64(time.Second)),
		Message:   body.Error,
	}
	if body.Status != StatusComplete {
		return st
	}

	dir := "/" + strings.Trim(body.Dir, "/")
	for _, d := range body.Data {
		st.Manifest = append(st.Manifest, ManifestEntry{
			RecordName:        d.Record,
			RemoteURL:         c.baseURL.String() + dir + "/" + d.Filename,
			SuggestedFilename: d.Filename,
		})
	}
	return st
}
