// Package catalog reads the operator-maintained links catalogue and persists
// the resolved-image report the selection screen is built from.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Status of a resolved image within a session.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusFailed   Status = "failed"
)

// LinkEntry is one operator-supplied design-file reference. Names need not
// be unique; a later entry with the same name overwrites the earlier one in
// the report.
type LinkEntry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ResolvedImage is a LinkEntry after reference parsing and export
// resolution. Immutable once written to the report.
type ResolvedImage struct {
	Name     string `json:"name"`
	FileKey  string `json:"file_key,omitempty"`
	NodeID   string `json:"node_id,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Status   Status `json:"status"`
	Error    string `json:"error,omitempty"`
}

// LoadLinks reads the ordered catalogue document. Unknown fields are
// rejected rather than silently dropped.
func LoadLinks(path string) ([]LinkEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalogue %s: %w", path, err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	var entries []LinkEntry
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode catalogue %s: %w", path, err)
	}
	for i, e := range entries {
		if e.URL == "" {
			return nil, fmt.Errorf("decode catalogue %s: entry %d has no url", path, i)
		}
	}
	return entries, nil
}

// SaveReport rewrites the report document in full. The write goes to a temp
// file in the same directory and is renamed into place so readers never see
// a partial document.
func SaveReport(path string, images []ResolvedImage) error {
	data, err := json.MarshalIndent(images, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".report-*.json")
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace report %s: %w", path, err)
	}
	return nil
}

// LoadReport reads back a previously persisted report.
func LoadReport(path string) ([]ResolvedImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report %s: %w", path, err)
	}
	defer f.Close()

	var images []ResolvedImage
	if err := json.NewDecoder(f).Decode(&images); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", path, err)
	}
	return images, nil
}

// Resolved filters a report down to entries that carry a usable URL.
func Resolved(images []ResolvedImage) []ResolvedImage {
	out := make([]ResolvedImage, 0, len(images))
	for _, img := range images {
		if img.Status == StatusResolved && img.ImageURL != "" {
			out = append(out, img)
		}
	}
	return out
}
