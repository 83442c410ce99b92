package tui

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/ogura/figex/internal/backoff"
	"github.com/ogura/figex/internal/catalog"
	"github.com/ogura/figex/internal/figma"
)

func writeURLs(t *testing.T, a *App, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(a.cfg.URLsFile, []byte(content), 0o644))
}

func fetchClient(t *testing.T, handler http.HandlerFunc) *figma.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return figma.NewClient("test-token", figma.WithAPIBase(srv.URL),
		figma.WithPolicy(backoff.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}))
}

// drainFetch runs the pipeline to completion and returns everything it said.
func drainFetch(t *testing.T, a *App, client *figma.Client) ([]fetchItemMsg, fetchDoneMsg) {
	t.Helper()
	ch := make(chan tea.Msg)
	go runFetch(context.Background(), a.cfg, client, ch)

	var items []fetchItemMsg
	for msg := range ch {
		switch m := msg.(type) {
		case fetchStartedMsg:
		case fetchItemMsg:
			items = append(items, m)
		case fetchDoneMsg:
			return items, m
		default:
			t.Fatalf("unexpected message %T", msg)
		}
	}
	t.Fatal("channel closed without a done message")
	return nil, fetchDoneMsg{}
}

func TestFetchMixedResults(t *testing.T) {
	t.Parallel()

	a := testApp(t)
	writeURLs(t, a, `[
  {"name": "Login", "url": "https://www.figma.com/file/GOOD1/Login?node-id=1-2"},
  {"name": "Missing", "url": "https://www.figma.com/file/GONE/Missing?node-id=3-4"},
  {"name": "Logo", "url": "https://www.figma.com/design/GOOD2/Logo?node-id=5-6"}
]`)

	client := fetchClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/images/GONE" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		id := r.URL.Query().Get("ids")
		fmt.Fprintf(w, `{"err": null, "images": {"%s": "https://cdn.example.com%s.png"}}`, id, r.URL.Path)
	})

	items, done := drainFetch(t, a, client)
	require.Len(t, items, 3)
	require.NoError(t, done.fatal)
	require.Equal(t, 2, done.succeeded)
	require.Equal(t, 1, done.failed)

	report, err := catalog.LoadReport(a.cfg.OutputFile)
	require.NoError(t, err)
	require.Len(t, report, 3)
	require.Equal(t, catalog.StatusResolved, report[0].Status)
	require.Equal(t, "1:2", report[0].NodeID)
	require.Equal(t, catalog.StatusFailed, report[1].Status)
	require.Contains(t, report[1].Error, "not found")
	require.Equal(t, catalog.StatusResolved, report[2].Status)
	require.NotEmpty(t, report[2].ImageURL)
}

func TestFetchAuthErrorAbortsBatch(t *testing.T) {
	t.Parallel()

	a := testApp(t)
	writeURLs(t, a, `[
  {"name": "First", "url": "https://www.figma.com/file/AAA/First"},
  {"name": "Second", "url": "https://www.figma.com/file/BBB/Second"},
  {"name": "Third", "url": "https://www.figma.com/file/CCC/Third"}
]`)

	var calls atomic.Int32
	client := fetchClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	})

	items, done := drainFetch(t, a, client)
	require.Empty(t, items)
	require.Error(t, done.fatal)
	require.Contains(t, done.fatal.Error(), "rejected token")
	// the batch stops after the first entry; the token is not retried
	require.Equal(t, int32(1), calls.Load())

	report, err := catalog.LoadReport(a.cfg.OutputFile)
	require.NoError(t, err)
	require.Len(t, report, 1)
	require.Equal(t, catalog.StatusFailed, report[0].Status)
}

func TestFetchInvalidReferenceRecordedNotFatal(t *testing.T) {
	t.Parallel()

	a := testApp(t)
	writeURLs(t, a, `[
  {"name": "Bogus", "url": "https://example.com/not-figma"},
  {"name": "Good", "url": "https://www.figma.com/file/GOOD1/Thing?node-id=1-2"}
]`)

	client := fetchClient(t, func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("ids")
		fmt.Fprintf(w, `{"err": null, "images": {"%s": "https://cdn.example.com/x.png"}}`, id)
	})

	items, done := drainFetch(t, a, client)
	require.Len(t, items, 2)
	require.True(t, items[0].failed)
	require.NoError(t, done.fatal)
	require.Equal(t, 1, done.succeeded)
	require.Equal(t, 1, done.failed)
}

func TestFetchMissingCatalogueIsFatal(t *testing.T) {
	t.Parallel()

	a := testApp(t)
	client := fetchClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	items, done := drainFetch(t, a, client)
	require.Empty(t, items)
	require.Error(t, done.fatal)
}
