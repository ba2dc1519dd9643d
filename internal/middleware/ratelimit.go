package middleware

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stylegen/internal/domain"
	"stylegen/internal/infra/quota"
	"stylegen/pkg/metrics"

	"github.com/rs/zerolog"
)

type QuotaOptions struct {
	Store  quota.Store
	Limit  int
	Window time.Duration
	// Route scopes the counters so each generation endpoint has its own window.
	Route string
	// TrustedHops is the number of reverse proxies whose X-Forwarded-For
	// entries are believed.
	TrustedHops int
	Logger      zerolog.Logger
}

// Quota rejects requests past the per-route, per-client window with 429
// before the wrapped handler runs. Store failures let the request through.
func Quota(opts QuotaOptions) func(http.Handler) http.Handler {
	rejection := domain.NewQuota(QuotaMessage(opts.Limit, opts.Window))
	limit := strconv.Itoa(opts.Limit)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r, opts.TrustedHops)
			d, err := opts.Store.Allow(r.Context(), opts.Route+":"+ip)
			if err != nil {
				opts.Logger.Warn().Err(err).Str("route", opts.Route).Str("ip", ip).Msg("quota store unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
			if !d.Allowed {
				metrics.QuotaRejectionsTotal.WithLabelValues(opts.Route).Inc()
				h.Set("Retry-After", strconv.Itoa(int(d.RetryAfter(time.Now())/time.Second)))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(rejection.HTTPStatus())
				_ = json.NewEncoder(w).Encode(map[string]string{"error": rejection.Message})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// QuotaMessage renders the rejection text, e.g. "Limit: 20/hour.".
func QuotaMessage(limit int, window time.Duration) string {
	return fmt.Sprintf("Too many image generation requests. Limit: %d/%s.", limit, WindowLabel(window))
}

// WindowLabel names common windows in words and falls back to the duration.
func WindowLabel(window time.Duration) string {
	switch window {
	case time.Hour:
		return "hour"
	case time.Minute:
		return "minute"
	case 24 * time.Hour:
		return "day"
	default:
		return window.String()
	}
}

// ClientIP resolves the address the nearest trusted proxy saw. Each proxy
// appends its peer to X-Forwarded-For, so with hops trusted proxies the
// client is the hops-th entry from the right. Entries further left are
// client controlled and ignored. Zero hops uses the peer address.
func ClientIP(r *http.Request, hops int) string {
	if hops > 0 {
		return clientIPForRateLimit(r, hops)
	}
	return remoteHost(r)
}

func clientIPForRateLimit(r *http.Request, hops int) string {
	var parts []string
	for _, part := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if ip := strings.TrimSpace(part); ip != "" {
			parts = append(parts, ip)
		}
	}
	if len(parts) == 0 {
		return remoteHost(r)
	}
	idx := max(len(parts)-hops, 0)
	if net.ParseIP(parts[idx]) != nil {
		return parts[idx]
	}
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
