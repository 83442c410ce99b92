package figma

import "fmt"

// ValidationError reports a reference that does not match the canonical
// Figma URL form. It is scoped to a single catalogue entry.
type ValidationError struct {
	URL    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid figma reference %q: %s", e.URL, e.Reason)
}

// AuthError reports a rejected token (HTTP 401/403). The token is assumed
// invalid for every subsequent call, so callers abort the whole batch.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("figma API rejected token (status %d)", e.Status)
}

// NotFoundError reports a file or node the API could not render. It is
// terminal for the affected entry only.
type NotFoundError struct {
	FileKey string
	NodeID  string
}

func (e *NotFoundError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("figma node %s not found in file %s", e.NodeID, e.FileKey)
	}
	return fmt.Sprintf("figma file %s not found", e.FileKey)
}

// RateLimitError reports an HTTP 429. Retried automatically; surfaced only
// once the attempt ceiling is exhausted.
type RateLimitError struct {
	RetryAfter string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter != "" {
		return "figma API rate limited (retry after " + e.RetryAfter + "s)"
	}
	return "figma API rate limited"
}

// ProtocolError reports a response whose shape or content the client does
// not understand. Terminal for the affected entry.
type ProtocolError struct {
	Detail string
}

func (e *ProtocolError) Error() string {
	return "unexpected figma API response: " + e.Detail
}
