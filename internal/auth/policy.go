package auth

import (
	"net/http"
	"strings"
)

// routeRule maps a path pattern to the role it needs. read applies to safe methods,
// write to everything else.
type routeRule struct {
	match func(path string) bool
	read  Role
	write Role
}

func exact(target string) func(string) bool {
	return func(path string) bool { return path == target }
}

func prefix(p string) func(string) bool {
	return func(path string) bool { return strings.HasPrefix(path, p) }
}

func prefixSuffix(p, s string) func(string) bool {
	return func(path string) bool { return strings.HasPrefix(path, p) && strings.HasSuffix(path, s) }
}

// first match wins
var receivableRules = []routeRule{
	{match: exact("/api/v1/receivables/reconcile"), read: RoleAdmin, write: RoleAdmin},
	{match: exact("/api/v1/receivables/audit"), read: RoleAdmin, write: RoleAdmin},
	{match: exact("/api/v1/receivables/aging/export.xlsx"), read: RoleAdmin, write: RoleAdmin},
	{match: prefixSuffix("/api/v1/receivables/customers/", ".pdf"), read: RoleAdmin, write: RoleAdmin},
	{match: prefixSuffix("/api/v1/receivables/entries/", "/settle"), read: RoleOperator, write: RoleOperator},
	{match: prefix("/api/v1/receivables/settings/"), read: RoleViewer, write: RoleAdmin},
	{match: prefix("/api/v1/receivables/"), read: RoleViewer, write: RoleOperator},
	{match: prefix("/api/"), read: RoleViewer, write: RoleOperator},
}

// Policy determines required roles by request.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
	rules          []routeRule
}

// NewDefaultPolicy builds the receivables policy with the given exemptions.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes, rules: receivableRules}
}

// IsExempt reports whether a request skips auth entirely.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, exempt := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, exempt) {
			return true
		}
	}
	return false
}

// RequiredRole resolves the minimum role for the request. ok is false for paths
// no rule covers.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	rules := p.rules
	if rules == nil {
		rules = receivableRules
	}
	for _, rule := range rules {
		if !rule.match(r.URL.Path) {
			continue
		}
		if isReadMethod(r.Method) {
			return rule.read, true
		}
		return rule.write, true
	}
	return "", false
}

func isReadMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
