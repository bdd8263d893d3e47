package audit

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"bizledger/internal/auth"
)

// FromRequest builds an entry for an action taken by the authenticated caller of r.
// companyID overrides the caller's scope when the action targets another company,
// which only automation callers do.
func FromRequest(r *http.Request, companyID, action, resourceType, resourceID string, meta any) Entry {
	entry := Entry{
		CompanyID:    companyID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
	if r == nil {
		return entry
	}
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		if entry.CompanyID == "" {
			entry.CompanyID = identity.CompanyID
		}
		entry.Actor = identity.Subject
		entry.Role = string(identity.Role)
	}
	entry.IP = ClientIP(r)
	entry.UserAgent = r.UserAgent()
	if meta != nil {
		if payload, err := json.Marshal(meta); err == nil {
			entry.Metadata = payload
		}
	}
	return entry
}

// ClientIP returns the first parseable address from X-Forwarded-For, then X-Real-IP,
// then RemoteAddr.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	for _, hop := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if ip := net.ParseIP(strings.TrimSpace(hop)); ip != nil {
			return ip.String()
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
