package server

import (
	"net"
	"net/http"
	"strings"

	"github.com/Aman-CERP/codechat/internal/chat"
)

// HeaderUserID carries the authenticated user id set by a fronting proxy.
const HeaderUserID = "X-User-Id"

// Identity returns the rate limit key for r: the user id header, else the
// client IP, else chat.AnonymousIdentity. The first X-Forwarded-For hop is
// used only when trustProxy is set.
func Identity(r *http.Request, trustProxy bool) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderUserID)); id != "" {
		return "user:" + id
	}
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return "ip:" + ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return chat.AnonymousIdentity
	}
	return "ip:" + host
}
