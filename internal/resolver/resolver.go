// Package resolver answers the DNS questions of the email pipeline: does a
// domain resolve, and which mail exchangers does it publish. Answers are
// memoized for the lifetime of a Resolver, and every failure is reported as
// absence.
package resolver

import (
	"context"
	"errors"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Moxx-Company/validator-pro/internal/metrics"
)

const defaultTimeout = 800 * time.Millisecond

// Lookuper is the subset of *net.Resolver used here.
type Lookuper interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

// Config controls lookup behavior.
type Config struct {
	// Timeout bounds each individual query (default 800ms).
	Timeout time.Duration
	// Lookup overrides the DNS client; defaults to NewNetResolver(Timeout).
	Lookup Lookuper
	Logger *zap.Logger
}

// Resolver memoizes A and MX answers per domain. It is safe for concurrent use.
type Resolver struct {
	lookup  Lookuper
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	exists map[string]bool
	mx     map[string][]string
	group  singleflight.Group
}

// New constructs a Resolver with an empty memo.
func New(cfg Config) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Lookup == nil {
		cfg.Lookup = NewNetResolver(cfg.Timeout)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		lookup:  cfg.Lookup,
		timeout: cfg.Timeout,
		logger:  logger,
		exists:  make(map[string]bool),
		mx:      make(map[string][]string),
	}
}

// NewNetResolver returns a pure-Go resolver whose server dials are bounded by timeout.
func NewNetResolver(timeout time.Duration) *net.Resolver {
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			d := net.Dialer{Timeout: timeout}
			return d.DialContext(ctx, network, address)
		},
	}
}

// DomainExists reports whether domain has at least one A record.
func (r *Resolver) DomainExists(ctx context.Context, domain string) bool {
	domain = canonical(domain)
	if domain == "" {
		return false
	}
	r.mu.RLock()
	ok, cached := r.exists[domain]
	r.mu.RUnlock()
	if cached {
		return ok
	}
	v, done := r.do(ctx, "a:"+domain, func(lookupCtx context.Context) any {
		r.mu.RLock()
		ok, cached := r.exists[domain]
		r.mu.RUnlock()
		if cached {
			return ok
		}
		ips, err := r.lookup.LookupIP(lookupCtx, "ip4", domain)
		outcome := classify(err, len(ips))
		metrics.ObserveDNSLookup("a", outcome)
		if err != nil {
			r.logger.Debug("a lookup failed", zap.String("domain", domain), zap.String("outcome", outcome), zap.Error(err))
		}
		found := err == nil && len(ips) > 0
		r.mu.Lock()
		r.exists[domain] = found
		r.mu.Unlock()
		return found
	})
	if !done {
		return false
	}
	found, _ := v.(bool)
	return found
}

// MXRecords returns the domain's mail exchangers ordered by preference, with
// trailing dots removed. Any failure yields an empty list.
func (r *Resolver) MXRecords(ctx context.Context, domain string) []string {
	domain = canonical(domain)
	if domain == "" {
		return nil
	}
	r.mu.RLock()
	hosts, cached := r.mx[domain]
	r.mu.RUnlock()
	if cached {
		return cloneHosts(hosts)
	}
	v, done := r.do(ctx, "mx:"+domain, func(lookupCtx context.Context) any {
		r.mu.RLock()
		hosts, cached := r.mx[domain]
		r.mu.RUnlock()
		if cached {
			return hosts
		}
		records, err := r.lookup.LookupMX(lookupCtx, domain)
		outcome := classify(err, len(records))
		metrics.ObserveDNSLookup("mx", outcome)
		if err != nil {
			r.logger.Debug("mx lookup failed", zap.String("domain", domain), zap.String("outcome", outcome), zap.Error(err))
		}
		var out []string
		if err == nil {
			out = orderMX(records)
		}
		r.mu.Lock()
		r.mx[domain] = out
		r.mu.Unlock()
		return out
	})
	if !done {
		return nil
	}
	out, _ := v.([]string)
	return cloneHosts(out)
}

// do runs fn once per key across concurrent callers. The lookup itself is
// detached from the caller's context so that a caller giving up does not
// memoize a false negative; the caller simply stops waiting.
func (r *Resolver) do(ctx context.Context, key string, fn func(context.Context) any) (any, bool) {
	ch := r.group.DoChan(key, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return fn(lookupCtx), nil
	})
	select {
	case res := <-ch:
		return res.Val, true
	case <-ctx.Done():
		return nil, false
	}
}

func orderMX(records []*net.MX) []string {
	sorted := make([]*net.MX, 0, len(records))
	for _, rec := range records {
		if rec != nil && strings.TrimSuffix(rec.Host, ".") != "" {
			sorted = append(sorted, rec)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Pref < sorted[j].Pref })
	out := make([]string, 0, len(sorted))
	for _, rec := range sorted {
		out = append(out, strings.TrimSuffix(rec.Host, "."))
	}
	return out
}

func classify(err error, n int) string {
	if err == nil {
		if n == 0 {
			return "empty"
		}
		return "ok"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			return "not_found"
		case dnsErr.IsTimeout:
			return "timeout"
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}

func canonical(domain string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
}

func cloneHosts(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	return append([]string(nil), in...)
}
