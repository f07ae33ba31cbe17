package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-dispatch/core"
)

// ThrottledError reports a tenant exceeding its manual retry allowance.
type ThrottledError struct {
	TenantID   string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf(
		"ratelimit: tenant %q throttled for %s",
		strings.TrimSpace(e.TenantID),
		e.RetryAfter,
	)
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{
		"tenant_id": strings.TrimSpace(e.TenantID),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.DispatchErrorRateLimited).
		WithMetadata(metadata)
}

type WindowOptions struct {
	Window       time.Duration
	MaxPerWindow int
	MaxTenants   int
	Now          func() time.Time
}

// TenantWindowLimiter allows up to MaxPerWindow calls per tenant in a
// sliding window. State is in-process; each node enforces its own budget.
type TenantWindowLimiter struct {
	window       time.Duration
	maxPerWindow int
	maxTenants   int
	now          func() time.Time

	mu      sync.Mutex
	history map[string][]time.Time
}

func NewTenantWindowLimiter(opts WindowOptions) *TenantWindowLimiter {
	window := opts.Window
	if window <= 0 {
		window = time.Minute
	}
	maxPerWindow := opts.MaxPerWindow
	if maxPerWindow <= 0 {
		maxPerWindow = 5
	}
	maxTenants := opts.MaxTenants
	if maxTenants <= 0 {
		maxTenants = 4096
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &TenantWindowLimiter{
		window:       window,
		maxPerWindow: maxPerWindow,
		maxTenants:   maxTenants,
		now:          now,
		history:      map[string][]time.Time{},
	}
}

// Allow records one call for tenantID and returns a ThrottledError once the
// window budget is spent. Empty tenant ids pass through unthrottled.
func (l *TenantWindowLimiter) Allow(_ context.Context, tenantID string) error {
	if l == nil {
		return nil
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil
	}

	now := l.now().UTC()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := pruneBefore(l.history[tenantID], cutoff)
	if len(recent) >= l.maxPerWindow {
		retryAfter := recent[0].Add(l.window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		l.history[tenantID] = recent
		return ThrottledError{TenantID: tenantID, RetryAfter: retryAfter}.ToServiceError()
	}

	l.history[tenantID] = append(recent, now)
	l.cleanup(cutoff)
	return nil
}

func pruneBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	if len(stamps) == 0 {
		return nil
	}
	kept := stamps[:0]
	for _, stamp := range stamps {
		if stamp.After(cutoff) {
			kept = append(kept, stamp)
		}
	}
	return kept
}

// cleanup bounds the map so idle tenants do not accumulate forever. Caller
// holds the lock.
func (l *TenantWindowLimiter) cleanup(cutoff time.Time) {
	if len(l.history) <= l.maxTenants {
		return
	}
	for tenant, stamps := range l.history {
		if pruned := pruneBefore(stamps, cutoff); len(pruned) == 0 {
			delete(l.history, tenant)
		} else {
			l.history[tenant] = pruned
		}
	}
}

var _ core.RetryLimiter = (*TenantWindowLimiter)(nil)
