// Package identity resolves the authenticated user of a request.
// Session issuance happens upstream; this service only reads the result.
package identity

import (
	"context"
	"net/http"
	"strings"
)

// DefaultHeader is the header a trusted gateway sets to the user id.
const DefaultHeader = "X-User-ID"

// Resolver returns the current user of a request.
type Resolver interface {
	// CurrentUser returns the user id, or false for an anonymous request.
	CurrentUser(r *http.Request) (string, bool)
}

// HeaderResolver reads the user id from a header set by the gateway.
type HeaderResolver struct {
	header string
}

// NewHeaderResolver creates a HeaderResolver. An empty header uses DefaultHeader.
func NewHeaderResolver(header string) *HeaderResolver {
	if header == "" {
		header = DefaultHeader
	}
	return &HeaderResolver{header: header}
}

// Header returns the header name read.
func (h *HeaderResolver) Header() string {
	return h.header
}

// CurrentUser returns the trimmed header value.
func (h *HeaderResolver) CurrentUser(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(h.header))
	if id == "" {
		return "", false
	}
	return id, true
}

var _ Resolver = (*HeaderResolver)(nil)

type contextKey struct{}

// WithUser returns a context carrying userID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// UserFromContext returns the user stored by WithUser.
func UserFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}
