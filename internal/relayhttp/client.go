// Package relayhttp is the outbound HTTP client to the coordination
// service (spec.md §6): bearer auth, origin/version headers, a fixed
// retry schedule on 5xx, and the broker's {ok,data,error,cursor}
// response envelope.
package relayhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/AgentWorkforce/relay-broker/internal/relayerr"
)

const (
	// DefaultBaseURL is the coordination service's production origin.
	DefaultBaseURL = "https://api.relaycast.dev"

	defaultOriginSurface = "sdk"
	sdkVersion           = "1.0.0"

	requestTimeout = 30 * time.Second
)

// retryBackoffs is the fixed 5xx retry schedule: up to three extra
// attempts at 200ms, 400ms, 800ms.
var retryBackoffs = [3]time.Duration{200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string

	// OriginSurface/OriginClient/OriginVersion populate the
	// X-Relaycast-Origin-* headers the coordination service uses to
	// attribute traffic. OriginSurface defaults to "sdk".
	OriginSurface string
	OriginClient  string
	OriginVersion string

	// RateLimit bounds outbound requests per second, ahead of and
	// independent from the service's own 429 enforcement. Zero means
	// unlimited.
	RateLimit float64
	Burst     int

	HTTPClient *http.Client
}

// Client is the outbound HTTP client to the coordination service.
type Client struct {
	baseURL       string
	apiKey        string
	originSurface string
	originClient  string
	originVersion string

	http    *http.Client
	limiter *rate.Limiter
}

// New builds a Client from opts, filling in defaults for unset fields.
func New(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	originSurface := opts.OriginSurface
	if originSurface == "" {
		originSurface = defaultOriginSurface
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Client{
		baseURL:       baseURL,
		apiKey:        opts.APIKey,
		originSurface: originSurface,
		originClient:  opts.OriginClient,
		originVersion: opts.OriginVersion,
		http:          httpClient,
		limiter:       limiter,
	}
}

// envelope mirrors the coordination service's response shape
// (spec.md §6): {ok, data?, error?{code,message}, cursor?{next,has_more}}.
type envelope struct {
	OK     bool            `json:"ok"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  *apiError       `json:"error,omitempty"`
	Cursor *Cursor         `json:"cursor,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Cursor carries pagination state the coordination service returns
// alongside list responses.
type Cursor struct {
	Next    string `json:"next,omitempty"`
	HasMore bool   `json:"has_more"`
}

// Response is the unwrapped result of a successful request: the raw
// data payload plus any cursor the service attached.
type Response struct {
	Data   json.RawMessage
	Cursor *Cursor
}

// RequestOptions customizes a single call.
type RequestOptions struct {
	// Idempotency, when set, is sent as the Idempotency-Key header so
	// the coordination service can de-duplicate retried writes.
	Idempotency string
}

func (c *Client) Get(ctx context.Context, path string) (Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, RequestOptions{})
}

func (c *Client) Post(ctx context.Context, path string, body any, opts RequestOptions) (Response, error) {
	return c.do(ctx, http.MethodPost, path, body, opts)
}

func (c *Client) Patch(ctx context.Context, path string, body any, opts RequestOptions) (Response, error) {
	return c.do(ctx, http.MethodPatch, path, body, opts)
}

func (c *Client) Put(ctx context.Context, path string, body any, opts RequestOptions) (Response, error) {
	return c.do(ctx, http.MethodPut, path, body, opts)
}

func (c *Client) Delete(ctx context.Context, path string, opts RequestOptions) (Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil, opts)
}

// do performs one logical request, retrying on 5xx per retryBackoffs
// before giving up. Non-5xx errors (including 429) are classified via
// relayerr and returned immediately without a local retry: a 429
// already means the service wants us to back off longer than our
// local schedule, and the caller's own retry/backoff layer (or the
// adaptive throttle, for worker-directed failures) decides what to do
// next.
func (c *Client) do(ctx context.Context, method, path string, body any, opts RequestOptions) (Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return Response{}, fmt.Errorf("relayhttp: encode request body: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return Response{}, err
			}
		}

		resp, err := c.send(ctx, method, path, payload, opts)
		if err == nil {
			return resp, nil
		}

		kind, classified := relayerr.ClassifyHTTPStatus(statusOf(err))
		if !classified || kind != relayerr.KindTransientIO || attempt >= len(retryBackoffs) {
			return Response{}, err
		}

		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(retryBackoffs[attempt]):
		}
	}
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, opts RequestOptions) (Response, error) {
	url := c.baseURL + path
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return Response{}, fmt.Errorf("relayhttp: build request: %w", err)
	}
	c.setHeaders(req, payload != nil, opts)

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, relayerr.New(relayerr.KindTransientIO, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return Response{}, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, relayerr.New(relayerr.KindTransientIO, fmt.Errorf("read response body: %w", err))
	}

	if resp.StatusCode >= 400 {
		return Response{}, newStatusError(resp.StatusCode, raw)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Response{}, relayerr.New(relayerr.KindProtocolViolation, fmt.Errorf("decode envelope: %w", err))
	}
	if !env.OK {
		code, message := "unknown", "request failed"
		if env.Error != nil {
			code, message = env.Error.Code, env.Error.Message
		}
		return Response{}, newAPIError(resp.StatusCode, code, message)
	}

	return Response{Data: env.Data, Cursor: env.Cursor}, nil
}

func (c *Client) setHeaders(req *http.Request, hasBody bool, opts RequestOptions) {
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("X-SDK-Version", sdkVersion)
	req.Header.Set("X-Relaycast-Origin-Surface", c.originSurface)
	if c.originClient != "" {
		req.Header.Set("X-Relaycast-Origin-Client", c.originClient)
	}
	if c.originVersion != "" {
		req.Header.Set("X-Relaycast-Origin-Version", c.originVersion)
	}
	if opts.Idempotency != "" {
		req.Header.Set("Idempotency-Key", opts.Idempotency)
	}
}
