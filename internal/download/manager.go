// Package download fetches resolved image URLs into the local asset store
// with a bounded worker pool. One item's failure never blocks or cancels the
// others; files reach their final path only through an atomic rename.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ogura/figex/internal/backoff"
	"github.com/ogura/figex/internal/catalog"
)

// Status of a single transfer.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusOK          Status = "ok"
	StatusFailed      Status = "failed"
)

// Result is the terminal outcome for one submitted item. Never mutated
// after creation.
type Result struct {
	Name      string
	LocalPath string
	Status    Status
	Err       string
}

// Summary aggregates a finished batch.
type Summary struct {
	Results   []Result
	Succeeded int
	Failed    int
}

// Event is one progress update. Events arrive in completion order, not
// submission order. The final event of a batch carries Done and the channel
// is closed after it.
type Event struct {
	Index     int
	Name      string
	Status    Status
	LocalPath string
	Err       string
	Done      *Summary
}

// FileSystemError reports a local write failure. Never retried.
type FileSystemError struct {
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error { return e.Err }

// DefaultWorkers bounds concurrent transfers.
const DefaultWorkers = 4

// Manager downloads batches of resolved images into AssetsDir.
type Manager struct {
	AssetsDir  string
	Workers    int
	Policy     backoff.Policy
	HTTPClient *http.Client
}

// NewManager builds a manager with the default pool size and retry policy.
func NewManager(assetsDir string) *Manager {
	return &Manager{
		AssetsDir:  assetsDir,
		Workers:    DefaultWorkers,
		Policy:     backoff.Default(),
		HTTPClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// Run downloads every item and streams Events on the returned channel.
// Every submitted item reports exactly one terminal status even when ctx is
// cancelled mid-batch: items not yet started fail with the context error,
// in-flight transfers run to their natural end.
func (m *Manager) Run(ctx context.Context, items []catalog.ResolvedImage) <-chan Event {
	events := make(chan Event, len(items)*2+1)

	go func() {
		defer close(events)

		if err := os.MkdirAll(m.AssetsDir, 0o755); err != nil {
			results := make([]Result, len(items))
			for i, it := range items {
				results[i] = Result{Name: it.Name, Status: StatusFailed, Err: err.Error()}
				events <- Event{Index: i, Name: it.Name, Status: StatusFailed, Err: err.Error()}
			}
			events <- Event{Done: &Summary{Results: results, Failed: len(items)}}
			return
		}

		workers := m.Workers
		if workers < 1 {
			workers = DefaultWorkers
		}
		if workers > len(items) {
			workers = len(items)
		}

		for i, it := range items {
			events <- Event{Index: i, Name: it.Name, Status: StatusQueued}
		}

		names := newNameRegistry()
		results := make([]Result, len(items))
		jobs := make(chan int)
		var wg sync.WaitGroup

		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range jobs {
					item := items[i]
					// cancelled before start: terminal failure, no transfer
					if err := ctx.Err(); err != nil {
						results[i] = Result{Name: item.Name, Status: StatusFailed, Err: "cancelled"}
						events <- Event{Index: i, Name: item.Name, Status: StatusFailed, Err: "cancelled"}
						continue
					}
					events <- Event{Index: i, Name: item.Name, Status: StatusDownloading}
					path, err := m.fetchOne(ctx, item, names)
					if err != nil {
						results[i] = Result{Name: item.Name, Status: StatusFailed, Err: err.Error()}
						events <- Event{Index: i, Name: item.Name, Status: StatusFailed, Err: err.Error()}
						continue
					}
					results[i] = Result{Name: item.Name, LocalPath: path, Status: StatusOK}
					events <- Event{Index: i, Name: item.Name, Status: StatusOK, LocalPath: path}
				}
			}()
		}

		for i := range items {
			jobs <- i
		}
		close(jobs)
		wg.Wait()

		sum := &Summary{Results: results}
		for _, r := range results {
			if r.Status == StatusOK {
				sum.Succeeded++
			} else {
				sum.Failed++
			}
		}
		events <- Event{Done: sum}
	}()

	return events
}

// fetchOne downloads a single image with retries. The body lands in a temp
// file in the assets directory and is renamed into place, so an interrupted
// transfer never leaves a truncated file at the final path.
func (m *Manager) fetchOne(ctx context.Context, item catalog.ResolvedImage, names *nameRegistry) (string, error) {
	// cancellation stops retries between attempts, but an attempt already on
	// the wire runs to its natural end
	reqCtx := context.WithoutCancel(ctx)
	var finalPath string
	err := m.Policy.Do(ctx, func(attempt int) (time.Duration, error) {
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, item.ImageURL, nil)
		if err != nil {
			return 0, backoff.Stop(err)
		}
		resp, err := m.HTTPClient.Do(req)
		if err != nil {
			return 0, fmt.Errorf("fetch %s: %w", item.Name, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			// fall through to the write below
		case resp.StatusCode == http.StatusTooManyRequests:
			return 0, fmt.Errorf("fetch %s: rate limited", item.Name)
		case resp.StatusCode >= 500:
			return 0, fmt.Errorf("fetch %s: status %d", item.Name, resp.StatusCode)
		default:
			return 0, backoff.Stop(fmt.Errorf("fetch %s: status %d", item.Name, resp.StatusCode))
		}

		ext := extensionFor(resp.Header.Get("Content-Type"))
		fileName := names.claim(sanitizeName(item.Name) + ext)
		dest := filepath.Join(m.AssetsDir, fileName)

		if err := m.writeAtomic(dest, resp.Body); err != nil {
			return 0, backoff.Stop(err)
		}
		finalPath = dest
		return 0, nil
	})
	if err != nil {
		return "", err
	}
	return finalPath, nil
}

func (m *Manager) writeAtomic(dest string, body io.Reader) error {
	tmp := filepath.Join(m.AssetsDir, ".tmp-"+uuid.NewString())
	f, err := os.Create(tmp)
	if err != nil {
		return &FileSystemError{Path: tmp, Err: err}
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(tmp)
		return &FileSystemError{Path: tmp, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return &FileSystemError{Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return &FileSystemError{Path: dest, Err: err}
	}
	return nil
}
