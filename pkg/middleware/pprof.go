package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"

	"github.com/go-chi/chi/v5"

	"github.com/snapprint/snapprint/pkg/httputil"
)

// RegisterPprof mounts the pprof debug endpoints (/debug/pprof/*) behind a
// CIDR allowlist. Requests from outside the listed ranges get 403.
func RegisterPprof(r chi.Router, allowedCIDRs []string, logger *slog.Logger) {
	r.Group(func(r chi.Router) {
		r.Use(IPAllowlist(allowedCIDRs, logger))
		r.HandleFunc("/debug/pprof/*", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
	})
}

// IPAllowlist restricts access to requests originating from the given CIDR
// ranges. Malformed CIDRs are logged and skipped.
func IPAllowlist(cidrs []string, logger *slog.Logger) func(http.Handler) http.Handler {
	var nets []*net.IPNet
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			logger.Warn("skipping invalid allowlist CIDR",
				slog.String("cidr", cidr),
				slog.String("error", err.Error()),
			)
			continue
		}
		nets = append(nets, ipNet)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := net.ParseIP(clientIP(r))

			allowed := false
			if ip != nil {
				for _, n := range nets {
					if n.Contains(ip) {
						allowed = true
						break
					}
				}
			}

			if !allowed {
				logger.Warn("request blocked by IP allowlist",
					slog.String("ip", r.RemoteAddr),
					slog.String("path", r.URL.Path),
				)
				httputil.WriteJSON(w, http.StatusForbidden, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:    "FORBIDDEN",
						Message: "access restricted by IP allowlist",
					},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
