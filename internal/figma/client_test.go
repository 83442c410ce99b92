package figma

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ogura/figex/internal/backoff"
)

func fastPolicy() backoff.Policy {
	return backoff.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-token", WithAPIBase(srv.URL), WithPolicy(fastPolicy()))
}

func TestResolveImageSuccess(t *testing.T) {
	t.Parallel()

	var gotPath, gotToken, gotIDs string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-Figma-Token")
		gotIDs = r.URL.Query().Get("ids")
		fmt.Fprint(w, `{"err": null, "images": {"11933:305884": "https://cdn.example.com/img.png"}}`)
	})

	url, err := c.ResolveImage(context.Background(), Ref{FileKey: "ABC123", NodeID: "11933:305884"})
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/img.png", url)
	require.Equal(t, "/images/ABC123", gotPath)
	require.Equal(t, "test-token", gotToken)
	require.Equal(t, "11933:305884", gotIDs)
}

func TestResolveImageHyphenKeyedResponse(t *testing.T) {
	t.Parallel()

	// some responses key the images map by the hyphen form of the id
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"err": null, "images": {"11933-305884": "https://cdn.example.com/img.png"}}`)
	})

	url, err := c.ResolveImage(context.Background(), Ref{FileKey: "ABC123", NodeID: "11933:305884"})
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/img.png", url)
}

func TestResolveImageWholeFile(t *testing.T) {
	t.Parallel()

	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("ids")
		fmt.Fprint(w, `{"err": null, "images": {"0:1": "https://cdn.example.com/whole.png"}}`)
	})

	url, err := c.ResolveImage(context.Background(), Ref{FileKey: "ABC123"})
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/whole.png", url)
	require.Empty(t, gotQuery)
}

func TestResolveImageAuthErrorNoRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := c.ResolveImage(context.Background(), Ref{FileKey: "ABC123"})
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, http.StatusForbidden, authErr.Status)
	require.Equal(t, int32(1), calls.Load())
}

func TestResolveImageNotFoundNoRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.ResolveImage(context.Background(), Ref{FileKey: "NOPE", NodeID: "1:2"})
	var nfErr *NotFoundError
	require.ErrorAs(t, err, &nfErr)
	require.Equal(t, "NOPE", nfErr.FileKey)
	require.Equal(t, int32(1), calls.Load())
}

func TestResolveImageRateLimitRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"err": null, "images": {"1:2": "https://cdn.example.com/img.png"}}`)
	})

	url, err := c.ResolveImage(context.Background(), Ref{FileKey: "ABC123", NodeID: "1:2"})
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/img.png", url)
	require.Equal(t, int32(2), calls.Load())
}

func TestResolveImageRateLimitExhaustsBudget(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.ResolveImage(context.Background(), Ref{FileKey: "ABC123", NodeID: "1:2"})
	var rlErr *RateLimitError
	require.ErrorAs(t, err, &rlErr)
	require.Equal(t, int32(3), calls.Load())
}

func TestResolveImageServerErrorRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"err": null, "images": {"1:2": "https://cdn.example.com/img.png"}}`)
	})

	url, err := c.ResolveImage(context.Background(), Ref{FileKey: "ABC123", NodeID: "1:2"})
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/img.png", url)
	require.Equal(t, int32(3), calls.Load())
}

func TestResolveImageMalformedBody(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	})

	_, err := c.ResolveImage(context.Background(), Ref{FileKey: "ABC123", NodeID: "1:2"})
	var pErr *ProtocolError
	require.ErrorAs(t, err, &pErr)
}

func TestResolveImageAPILevelError(t *testing.T) {
	t.Parallel()

	// 200 responses can still carry an error in the body
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"err": "Invalid node id", "images": {}}`)
	})

	_, err := c.ResolveImage(context.Background(), Ref{FileKey: "ABC123", NodeID: "1:2"})
	var pErr *ProtocolError
	require.ErrorAs(t, err, &pErr)
}

func TestResolveImageEmptyImagesMap(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"err": null, "images": {}}`)
	})

	_, err := c.ResolveImage(context.Background(), Ref{FileKey: "ABC123", NodeID: "1:2"})
	var nfErr *NotFoundError
	require.ErrorAs(t, err, &nfErr)
}

func TestResolveImageNullURLForNode(t *testing.T) {
	t.Parallel()

	// the API reports unrenderable nodes with an empty URL value
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"err": null, "images": {"1:2": ""}}`)
	})

	_, err := c.ResolveImage(context.Background(), Ref{FileKey: "ABC123", NodeID: "1:2"})
	var nfErr *NotFoundError
	require.ErrorAs(t, err, &nfErr)
}

func TestResolveImageContextCancelled(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ResolveImage(ctx, Ref{FileKey: "ABC123", NodeID: "1:2"})
	require.ErrorIs(t, err, context.Canceled)
}
