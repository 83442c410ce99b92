package download

import (
	"fmt"
	"mime"
	"strings"
	"sync"
)

// sanitizeName keeps a display name filesystem-safe: anything outside
// [A-Za-z0-9._-] becomes an underscore.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "asset"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// extensionFor maps a response Content-Type to a file extension, defaulting
// to .png since that is the export format requested from the API.
func extensionFor(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".png"
	}
	switch mt {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/svg+xml":
		return ".svg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "application/pdf":
		return ".pdf"
	default:
		return ".png"
	}
}

// nameRegistry disambiguates file-name collisions within one batch with a
// numeric suffix (name.png, name-2.png, ...). Concurrent workers claim
// names under a single lock.
type nameRegistry struct {
	mu   sync.Mutex
	used map[string]int
}

func newNameRegistry() *nameRegistry {
	return &nameRegistry{used: make(map[string]int)}
}

func (r *nameRegistry) claim(fileName string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.used[fileName]; !taken {
		r.used[fileName] = 1
		return fileName
	}
	ext := ""
	base := fileName
	if i := strings.LastIndex(fileName, "."); i > 0 {
		base, ext = fileName[:i], fileName[i:]
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d%s", base, n, ext)
		if _, taken := r.used[candidate]; !taken {
			r.used[candidate] = 1
			return candidate
		}
	}
}
