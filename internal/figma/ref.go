package figma

import (
	"net/url"
	"regexp"
	"strings"
)

// Ref addresses an exportable region of a Figma document. An empty NodeID
// means the whole file.
type Ref struct {
	FileKey string
	NodeID  string
}

// Matches share links like:
// https://www.figma.com/file/ABC123/Design-Name?node-id=1-23
// https://www.figma.com/design/ABC123/Design-Name
// Anchored so partial matches inside a longer string are rejected.
var refPattern = regexp.MustCompile(`^https?://(?:www\.)?figma\.com/(?:file|design)/([A-Za-z0-9]+)(?:/|\?|$)`)

// ParseReference extracts the file key and optional node id from a Figma
// share URL. Node ids arrive URL-encoded with hyphens and are normalized to
// the colon form the API expects. No network access; pure string work.
func ParseReference(rawURL string) (Ref, error) {
	m := refPattern.FindStringSubmatch(rawURL)
	if len(m) < 2 || m[1] == "" {
		return Ref{}, &ValidationError{URL: rawURL, Reason: "must be a figma.com /file/ or /design/ link"}
	}
	ref := Ref{FileKey: m[1]}

	u, err := url.Parse(rawURL)
	if err != nil {
		return Ref{}, &ValidationError{URL: rawURL, Reason: "unparseable URL"}
	}
	if id := u.Query().Get("node-id"); id != "" {
		ref.NodeID = NormalizeNodeID(id)
	}
	return ref, nil
}

// NormalizeNodeID converts the hyphenated node id used in share links
// (11933-305884) to the colon form the images endpoint expects.
func NormalizeNodeID(id string) string {
	return strings.ReplaceAll(strings.TrimSpace(id), "-", ":")
}
