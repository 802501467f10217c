package middleware

import (
	"net"
	"net/http"
	"strings"

	goRecover "github.com/MrEthical07/goRecover"
)

// ClientIP stores the caller's address in the request context with
// [goRecover.WithClientIP]. Forwarding headers are honored only when
// trustProxy is set; otherwise RemoteAddr is used as-is.
func ClientIP(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := remoteIP(r)
			if trustProxy {
				if fwd := forwardedIP(r); fwd != "" {
					ip = fwd
				}
			}
			ctx := goRecover.WithClientIP(r.Context(), ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func forwardedIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return strings.TrimSpace(r.Header.Get("X-Real-Ip"))
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
