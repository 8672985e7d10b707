package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultTimeout = 10 * time.Second

// Options configures a Gateway.
type Options struct {
	BaseURL    string
	Token      string // bearer token; empty means anonymous
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *zerolog.Logger
}

// Gateway builds and executes requests against the genmoji service. It is a
// pure transport: it attaches auth and headers, serializes JSON both ways
// and normalizes failures into *Error. Retry policy belongs to callers.
type Gateway struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     zerolog.Logger
}

// New constructs a Gateway. BaseURL is required by callers but an empty
// value only fails at request time, mirroring lazily-configured clients.
func New(opts Options) *Gateway {
	base := strings.TrimRight(opts.BaseURL, "/")
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Gateway{
		httpClient: client,
		baseURL:    base,
		token:      strings.TrimSpace(opts.Token),
		logger:     logger,
	}
}

// Get executes a GET request against endpoint with the given query and
// decodes the JSON response into out.
func (g *Gateway) Get(ctx context.Context, endpoint string, query url.Values, out any) error {
	return g.do(ctx, http.MethodGet, endpoint, query, nil, out)
}

// Post executes a POST request with body serialized as JSON.
func (g *Gateway) Post(ctx context.Context, endpoint string, body, out any) error {
	return g.do(ctx, http.MethodPost, endpoint, nil, body, out)
}

// remoteError is the service's error envelope, decoded best-effort so the
// message can be surfaced.
type remoteError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (g *Gateway) do(ctx context.Context, method, endpoint string, query url.Values, body, out any) error {
	target := g.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			// Caller handed us an unencodable body; this never reached the
			// wire, so it gets no remote-failure kind.
			return fmt.Errorf("gateway: encode request body for %s: %w", endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &Error{Kind: KindNetworkUnreachable, Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return g.classifyTransport(endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var remote remoteError
		_ = json.NewDecoder(resp.Body).Decode(&remote)
		msg := remote.Message
		if msg == "" {
			msg = remote.Error
		}
		g.logger.Debug().Str("endpoint", endpoint).Int("status", resp.StatusCode).Msg("gateway: http error")
		return &Error{Kind: KindHTTP, Status: resp.StatusCode, Endpoint: endpoint, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindMalformedResponse, Endpoint: endpoint, Err: err}
	}
	return nil
}

func (g *Gateway) classifyTransport(endpoint string, err error) *Error {
	kind := KindNetworkUnreachable
	var ue *url.Error
	switch {
	case errors.As(err, &ue) && ue.Timeout():
		kind = KindTimeout
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	}
	g.logger.Debug().Str("endpoint", endpoint).Err(err).Stringer("kind", kind).Msg("gateway: transport failure")
	return &Error{Kind: kind, Endpoint: endpoint, Err: err}
}
