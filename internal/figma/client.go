package figma

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ogura/figex/internal/backoff"
)

const defaultAPIBase = "https://api.figma.com/v1"

// imagesResponse is the body of GET /v1/images/{fileKey}. A 200 status can
// still carry an API-level error in the err field.
type imagesResponse struct {
	Err    json.RawMessage   `json:"err"`
	Images map[string]string `json:"images"`
}

// Client resolves file/node references to signed, time-limited image URLs.
type Client struct {
	token      string
	apiBase    string
	format     string
	scale      float64
	httpClient *http.Client
	policy     backoff.Policy
}

// Option configures a Client.
type Option func(*Client)

// WithAPIBase overrides the API endpoint, used by tests.
func WithAPIBase(base string) Option {
	return func(c *Client) { c.apiBase = base }
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithPolicy replaces the retry policy.
func WithPolicy(p backoff.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithExport sets the rendered image format and scale (defaults png at 1x).
func WithExport(format string, scale float64) Option {
	return func(c *Client) {
		if format != "" {
			c.format = format
		}
		if scale > 0 {
			c.scale = scale
		}
	}
}

// NewClient builds a client for the given personal access token. Keep-alive
// pooling is tuned for a handful of concurrent export calls.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:   token,
		apiBase: defaultAPIBase,
		format:  "png",
		scale:   1,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		policy: backoff.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveImage asks the images endpoint to render ref and returns the signed
// URL. Exactly one terminal outcome per call: a URL, or one of AuthError,
// NotFoundError, RateLimitError, ProtocolError, or a wrapped network error
// once the retry budget is spent.
func (c *Client) ResolveImage(ctx context.Context, ref Ref) (string, error) {
	endpoint := fmt.Sprintf("%s/images/%s", c.apiBase, ref.FileKey)
	q := url.Values{}
	if ref.NodeID != "" {
		q.Set("ids", ref.NodeID)
	}
	q.Set("format", c.format)
	q.Set("scale", strconv.FormatFloat(c.scale, 'g', -1, 64))
	endpoint += "?" + q.Encode()

	var imageURL string
	err := c.policy.Do(ctx, func(attempt int) (time.Duration, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return 0, backoff.Stop(err)
		}
		req.Header.Set("X-Figma-Token", c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return 0, fmt.Errorf("figma API request: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			u, err := parseImagesBody(resp.Body, ref)
			if err != nil {
				return 0, backoff.Stop(err)
			}
			imageURL = u
			return 0, nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return 0, backoff.Stop(&AuthError{Status: resp.StatusCode})
		case resp.StatusCode == http.StatusNotFound:
			return 0, backoff.Stop(&NotFoundError{FileKey: ref.FileKey, NodeID: ref.NodeID})
		case resp.StatusCode == http.StatusTooManyRequests:
			after := resp.Header.Get("Retry-After")
			var hint time.Duration
			if secs, err := strconv.Atoi(after); err == nil && secs > 0 {
				hint = time.Duration(secs) * time.Second
			}
			return hint, &RateLimitError{RetryAfter: after}
		case resp.StatusCode >= 500:
			return 0, fmt.Errorf("figma API server error: status %d", resp.StatusCode)
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return 0, backoff.Stop(&ProtocolError{Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, body)})
		}
	})
	if err != nil {
		return "", err
	}
	return imageURL, nil
}

func parseImagesBody(r io.Reader, ref Ref) (string, error) {
	var body imagesResponse
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return "", &ProtocolError{Detail: "malformed JSON body"}
	}
	if len(body.Err) > 0 && string(body.Err) != "null" {
		return "", &ProtocolError{Detail: "API error: " + string(body.Err)}
	}
	if len(body.Images) == 0 {
		return "", &NotFoundError{FileKey: ref.FileKey, NodeID: ref.NodeID}
	}
	if ref.NodeID == "" {
		// Whole-file export: the server decides which node it rendered,
		// take the single entry it returned.
		for _, u := range body.Images {
			if u != "" {
				return u, nil
			}
		}
		return "", &NotFoundError{FileKey: ref.FileKey}
	}
	// The response may key by either the colon or the hyphen form.
	for _, key := range []string{ref.NodeID, strings.ReplaceAll(ref.NodeID, ":", "-")} {
		if u, ok := body.Images[key]; ok && u != "" {
			return u, nil
		}
	}
	return "", &NotFoundError{FileKey: ref.FileKey, NodeID: ref.NodeID}
}
