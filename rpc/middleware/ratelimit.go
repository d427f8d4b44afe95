package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dlanstake/observability"
)

const visitorIdleTTL = 5 * time.Minute

// RateLimit is a token bucket per client address. A non-positive rate
// disables limiting. Forwarding headers are honored only for requests whose
// remote address matches TrustedProxies (IPs or CIDRs).
type RateLimit struct {
	RatePerSecond  float64
	Burst          int
	TrustedProxies []string
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per client address.
type RateLimiter struct {
	logger   *slog.Logger
	limit    RateLimit
	mu       sync.Mutex
	visitors map[string]*rateEntry
	trusted  []*net.IPNet
	clockNow func() time.Time
}

func NewRateLimiter(limit RateLimit, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		logger:   logger,
		limit:    limit,
		visitors: make(map[string]*rateEntry),
		trusted:  parseTrustedProxies(limit.TrustedProxies, logger),
		clockNow: time.Now,
	}
}

func parseTrustedProxies(entries []string, logger *slog.Logger) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				logger.Warn("ignoring invalid trusted proxy", slog.String("entry", entry))
				continue
			}
			bits := 8 * net.IPv4len
			if ip.To4() == nil {
				bits = 8 * net.IPv6len
			} else {
				ip = ip.To4()
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			logger.Warn("ignoring invalid trusted proxy", slog.String("entry", entry))
			continue
		}
		nets = append(nets, network)
	}
	return nets
}

// Allow reports whether the client identified by id may proceed.
func (r *RateLimiter) Allow(id string) bool {
	if r == nil || r.limit.RatePerSecond <= 0 {
		return true
	}
	return r.obtainLimiter(id).AllowN(r.clockNow(), 1)
}

func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := r.ClientID(req)
		if !r.Allow(id) {
			observability.ModuleMetrics().RecordThrottle("rpc", "rate")
			r.logger.Debug("request throttled", slog.String("client", id))
			WriteError(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *RateLimiter) obtainLimiter(id string) *rate.Limiter {
	now := r.clockNow()
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, entry := range r.visitors {
		if now.Sub(entry.lastSeen) > visitorIdleTTL {
			delete(r.visitors, key)
		}
	}
	if entry, ok := r.visitors[id]; ok {
		entry.lastSeen = now
		return entry.limiter
	}
	burst := r.limit.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(r.limit.RatePerSecond), burst)
	r.visitors[id] = &rateEntry{limiter: limiter, lastSeen: now}
	return limiter
}

// ClientID identifies the caller. X-Real-IP and X-Forwarded-For are read only
// when the connection comes from a trusted proxy.
func (r *RateLimiter) ClientID(req *http.Request) string {
	remote := remoteHost(req.RemoteAddr)
	if !r.trustedProxy(remote) {
		return remote
	}
	if ip := canonicalIP(req.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := canonicalIP(first); ip != "" {
			return ip
		}
	}
	return remote
}

func (r *RateLimiter) trustedProxy(host string) bool {
	if r == nil || len(r.trusted) == 0 {
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, network := range r.trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// canonicalIP accepts "ip" or "ip:port" and returns "" for anything else.
func canonicalIP(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(value); err == nil {
		value = host
	}
	ip := net.ParseIP(value)
	if ip == nil {
		return ""
	}
	return ip.String()
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
