package lim

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"sealbin/svc/util"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	adaptiveWindow = 60 * time.Second
	redisDeadline  = 100 * time.Millisecond
)

// Counter is a shared fixed-window counter, normally *db.Redis.
type Counter interface {
	RateLimit(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}

type Config struct {
	RPM               int
	Burst             int
	ConservativeLimit int
	TableSize         int
	TrustedProxies    []string
	// Hasher, when set, replaces client IPs in shared counter keys.
	Hasher *util.IPHasher
}

// Limiter applies per-client budgets. With a shared Counter every instance
// draws from one budget per client; without one, or when the counter fails,
// each instance keeps its own token buckets in a bounded LRU table.
type Limiter struct {
	shared            Counter
	hasher            *util.IPHasher
	local             *lru.Cache[string, *rate.Limiter]
	trustedProxies    []string
	detector          *AnomalyDetector
	adaptiveModeUntil atomic.Int64
	rpm               int
	burst             int
	conservativeLimit int
	now               func() time.Time
}
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

func New(c Config, shared Counter) (*Limiter, error) {
	if c.RPM <= 0 || c.Burst <= 0 {
		return nil, errors.New("rate limit rpm and burst must be positive")
	}
	if c.ConservativeLimit <= 0 {
		c.ConservativeLimit = c.RPM
	}
	if c.TableSize <= 0 {
		c.TableSize = 10000
	}
	for _, proxy := range c.TrustedProxies {
		if strings.Contains(proxy, "/") {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return nil, errors.Wrapf(err, "invalid CIDR in trusted proxies: %s", proxy)
			}
		} else if net.ParseIP(proxy) == nil {
			return nil, errors.Errorf("invalid IP in trusted proxies: %s", proxy)
		}
	}
	table, err := lru.New[string, *rate.Limiter](c.TableSize)
	if err != nil {
		return nil, errors.Wrap(err, "limiter table")
	}
	l := &Limiter{
		shared:            shared,
		hasher:            c.Hasher,
		local:             table,
		trustedProxies:    c.TrustedProxies,
		rpm:               c.RPM,
		burst:             c.Burst,
		conservativeLimit: c.ConservativeLimit,
		now:               time.Now,
	}
	l.detector = NewAnomalyDetector(DefaultAnomalyConfig(), l.TriggerAdaptiveMode)
	return l, nil
}

// Start runs the error rate detector until Stop is called.
func (l *Limiter) Start() {
	l.detector.Start()
}
func (l *Limiter) Stop() {
	l.detector.Stop()
}
func (l *Limiter) TriggerAdaptiveMode() {
	l.adaptiveModeUntil.Store(l.now().Add(adaptiveWindow).Unix())
}
func (l *Limiter) isAdaptiveMode() bool {
	return l.now().Unix() < l.adaptiveModeUntil.Load()
}
func (l *Limiter) RecordRequest() {
	l.detector.RecordRequest()
}
func (l *Limiter) RecordError() {
	l.detector.RecordError()
}
func (l *Limiter) CheckLimit(r *http.Request, endpoint string) *RateLimitResult {
	ip := GetRealIP(r, l.trustedProxies)
	now := l.now()
	limit := l.rpm
	if l.isAdaptiveMode() {
		limit = halve(limit)
	}
	if l.shared != nil {
		ctx, cancel := context.WithTimeout(r.Context(), redisDeadline)
		defer cancel()
		client := ip
		if l.hasher != nil {
			client = l.hasher.HashIP(ip)
		}
		usage, err := l.shared.RateLimit(ctx, endpoint+":"+client, limit, time.Minute)
		if err == nil {
			remaining := limit - usage
			if remaining < 0 {
				remaining = 0
			}
			return &RateLimitResult{
				Allowed:   usage <= limit,
				Limit:     limit,
				Remaining: remaining,
				Reset:     now.Add(time.Minute),
			}
		}
		util.Component("limiter").Warn().Err(err).Msg("shared rate limit unavailable, using conservative local limit")
		return l.checkLocal(ip, endpoint, halveIf(l.conservativeLimit, l.isAdaptiveMode()), now)
	}
	return l.checkLocal(ip, endpoint, limit, now)
}
func (l *Limiter) checkLocal(ip, endpoint string, limit int, now time.Time) *RateLimitResult {
	burst := l.burst
	if burst > limit {
		burst = limit
	}
	perSecond := rate.Limit(float64(limit) / 60.0)
	key := endpoint + ":" + ip
	lim, ok := l.local.Get(key)
	if !ok {
		fresh := rate.NewLimiter(perSecond, burst)
		if prev, found, _ := l.local.PeekOrAdd(key, fresh); found {
			lim = prev
		} else {
			lim = fresh
		}
	}
	// Adaptive mode changes the budget of buckets that already exist.
	if lim.Limit() != perSecond {
		lim.SetLimitAt(now, perSecond)
	}
	if lim.Burst() != burst {
		lim.SetBurstAt(now, burst)
	}
	if !lim.AllowN(now, 1) {
		return &RateLimitResult{
			Allowed:   false,
			Limit:     limit,
			Remaining: 0,
			Reset:     now.Add(time.Duration(float64(time.Minute) / float64(limit))),
		}
	}
	remaining := int(lim.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return &RateLimitResult{
		Allowed:   true,
		Limit:     limit,
		Remaining: remaining,
		Reset:     now.Add(time.Minute),
	}
}

// Clients reports how many per-client buckets are held locally.
func (l *Limiter) Clients() int {
	return l.local.Len()
}
func halve(n int) int {
	if n/2 < 1 {
		return 1
	}
	return n / 2
}
func halveIf(n int, cond bool) int {
	if cond {
		return halve(n)
	}
	return n
}

func GetRealIP(r *http.Request, trustedProxies []string) string {
	remoteIP := stripPort(r.RemoteAddr)
	if len(trustedProxies) == 0 {
		return remoteIP
	}
	if !isTrustedProxy(remoteIP, trustedProxies) {
		return remoteIP
	}
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return remoteIP
	}
	const maxIPsToParse = 100
	parsed := 0
	remaining := xff
	// Walk right to left; the first untrusted hop is the client.
	for len(remaining) > 0 && parsed < maxIPsToParse {
		var ipStr string
		if i := strings.LastIndexByte(remaining, ','); i == -1 {
			ipStr = strings.TrimSpace(remaining)
			remaining = ""
		} else {
			ipStr = strings.TrimSpace(remaining[i+1:])
			remaining = remaining[:i]
		}
		if ipStr == "" {
			continue
		}
		parsed++
		if net.ParseIP(ipStr) == nil {
			util.Debug().Str("ip", util.RedactIP(ipStr)).Msg("invalid IP in X-Forwarded-For, skipping")
			continue
		}
		if !isTrustedProxy(ipStr, trustedProxies) {
			return ipStr
		}
	}
	if parsed >= maxIPsToParse {
		util.Warn().Int("parsed", parsed).Str("remote", util.RedactIP(remoteIP)).Msg("XFF header excessive, truncated parsing")
	}
	return remoteIP
}
func isTrustedProxy(ip string, trustedProxies []string) bool {
	parsedIP := net.ParseIP(ip)
	for _, proxy := range trustedProxies {
		if ip == proxy {
			return true
		}
		if parsedIP != nil && strings.Contains(proxy, "/") {
			if _, subnet, err := net.ParseCIDR(proxy); err == nil && subnet.Contains(parsedIP) {
				return true
			}
		}
	}
	return false
}
func stripPort(ip string) string {
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return ip
}
