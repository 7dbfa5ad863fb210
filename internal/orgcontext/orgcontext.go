package orgcontext

import (
	"context"
	"strings"
)

// Identity is the caller resolved upstream. It is trusted as-is.
type Identity struct {
	OrgID  string
	UserID string
	Role   string
}

type identityKey struct{}

// WithIdentity stores the resolved caller identity in the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	id.OrgID = strings.TrimSpace(id.OrgID)
	id.UserID = strings.TrimSpace(id.UserID)
	id.Role = strings.ToLower(strings.TrimSpace(id.Role))
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller identity, if set.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// OrgIDFromContext returns the active organization ID, if set.
func OrgIDFromContext(ctx context.Context) (string, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok || id.OrgID == "" {
		return "", false
	}
	return id.OrgID, true
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok || id.UserID == "" {
		return "", false
	}
	return id.UserID, true
}
