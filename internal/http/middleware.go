package http

import (
	"context"
	"net/http"
	"strings"
)

const (
	HeaderCustomerID   = "X-Customer-ID"
	HeaderCustomerRole = "X-Customer-Role"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

func (r Role) IsStaff() bool {
	return r == RoleManager || r == RoleAdmin
}

// Identity is the caller as established by the upstream auth proxy.
type Identity struct {
	CustomerID string
	Role       Role
}

type identityKey struct{}

// IdentityMiddleware reads the caller from the headers set by the auth proxy.
// Requests without a customer id are rejected with 401.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		customerID := strings.TrimSpace(r.Header.Get(HeaderCustomerID))
		if customerID == "" {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing customer identity")
			return
		}

		role := Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderCustomerRole))))
		if role == "" {
			role = RoleCustomer
		}

		ctx := WithIdentity(r.Context(), Identity{CustomerID: customerID, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func identityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.CustomerID != ""
}
