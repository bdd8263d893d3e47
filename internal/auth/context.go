package auth

import "context"

type identityKey struct{}

// Identity is the authenticated caller of a request. Automation callers carry an empty
// CompanyID and pick the company per call.
type Identity struct {
	CompanyID string
	Role      Role
	Subject   string
}

// WithIdentity stores the caller identity in ctx.
func WithIdentity(ctx context.Context, companyID string, role Role, subject string) context.Context {
	return context.WithValue(ctx, identityKey{}, Identity{CompanyID: companyID, Role: role, Subject: subject})
}

// IdentityFromContext returns the caller identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}

// CompanyIDFromContext extracts the company scope from context.
func CompanyIDFromContext(ctx context.Context) string {
	identity, _ := IdentityFromContext(ctx)
	return identity.CompanyID
}

// RoleFromContext extracts role from context.
func RoleFromContext(ctx context.Context) Role {
	identity, _ := IdentityFromContext(ctx)
	return identity.Role
}

// SubjectFromContext extracts subject from context.
func SubjectFromContext(ctx context.Context) string {
	identity, _ := IdentityFromContext(ctx)
	return identity.Subject
}
