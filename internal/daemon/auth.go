package daemon

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"encodefleet/internal/api"
	"encodefleet/internal/config"
)

const tokenBytes = 32

// sessions holds issued bearer tokens in memory. Restarting the daemon
// logs every client out.
type sessions struct {
	password string
	ttl      time.Duration
	now      func() time.Time

	mu     sync.Mutex
	tokens map[string]time.Time
}

func newSessions(cfg config.API) *sessions {
	return &sessions{
		password: cfg.Password,
		ttl:      config.Seconds(cfg.SessionTTL),
		now:      time.Now,
		tokens:   make(map[string]time.Time),
	}
}

// login checks password and issues a token.
func (s *sessions) login(password string) (string, time.Time, error) {
	if password == "" {
		return "", time.Time{}, api.NewError(api.CodePasswordRequired, "password is required")
	}
	if s.password == "" || subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) != 1 {
		return "", time.Time{}, api.NewError(api.CodePasswordInvalid, "password is invalid")
	}

	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, err
	}
	token := hex.EncodeToString(buf)
	now := s.now()
	expires := now.Add(s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(now)
	s.tokens[token] = expires
	return token, expires, nil
}

func (s *sessions) valid(token string) bool {
	if token == "" {
		return false
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	expires, ok := s.tokens[token]
	if !ok {
		return false
	}
	if !now.Before(expires) {
		delete(s.tokens, token)
		return false
	}
	return true
}

// prune drops expired tokens. Caller holds mu.
func (s *sessions) prune(now time.Time) {
	for token, expires := range s.tokens {
		if !now.Before(expires) {
			delete(s.tokens, token)
		}
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// requireSession rejects requests without a live bearer token.
func (s *apiServer) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.sessions.valid(bearerToken(r)) {
			s.fail(w, r, api.NewError(api.CodeUnauthorized, "a valid session token is required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

const limiterIdle = 10 * time.Minute

type limiterEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// ipLimiter applies a token bucket per client address.
type ipLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	entries   map[string]*limiterEntry
	lastSweep time.Time
}

func newIPLimiter(perMinute, burst int) *ipLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	if burst < 1 {
		burst = 1
	}
	return &ipLimiter{
		limit:   limit,
		burst:   burst,
		now:     time.Now,
		entries: make(map[string]*limiterEntry),
	}
}

func (l *ipLimiter) allow(ip string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > limiterIdle {
		for key, entry := range l.entries {
			if now.Sub(entry.seen) > limiterIdle {
				delete(l.entries, key)
			}
		}
		l.lastSweep = now
	}

	entry, ok := l.entries[ip]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = entry
	}
	entry.seen = now
	return entry.limiter.AllowN(now, 1)
}

// clientIP is the peer address of the connection. Forwarding headers are
// not trusted for rate limiting.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
