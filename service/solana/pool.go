package solana

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go/rpc"

	"github.com/solanare/reclaimer/service/metrics"
)

// Endpoint is one RPC endpoint in the failover rotation.
type Endpoint struct {
	Name   string // short identifier for logs and metrics (host name)
	Client RPCClient
}

// Pool is an ordered list of RPC endpoints with a rotation cursor. The
// cursor advances on failure so consecutive operations prefer the most
// recently working endpoint. Construct once at process start and share.
type Pool struct {
	mu        sync.Mutex
	endpoints []Endpoint
	cursor    int

	rateLimitCooldown time.Duration
	rotateDelay       time.Duration

	logger  *slog.Logger
	metrics *metrics.Metrics
}

const (
	defaultRateLimitCooldown = 2 * time.Second
	defaultRotateDelay       = 250 * time.Millisecond
)

// NewPool creates a pool over the given endpoints, in priority order.
// If m is nil, no metrics are recorded.
func NewPool(endpoints []Endpoint, m *metrics.Metrics, logger *slog.Logger) (*Pool, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("at least one RPC endpoint is required")
	}
	return &Pool{
		endpoints:         endpoints,
		rateLimitCooldown: defaultRateLimitCooldown,
		rotateDelay:       defaultRotateDelay,
		logger:            logger,
		metrics:           m,
	}, nil
}

// NewPoolFromURLs builds a pool of real RPC clients from endpoint URLs.
func NewPoolFromURLs(urls []string, m *metrics.Metrics, logger *slog.Logger) (*Pool, error) {
	endpoints := make([]Endpoint, 0, len(urls))
	for _, raw := range urls {
		endpoints = append(endpoints, Endpoint{
			Name:   endpointName(raw),
			Client: rpc.New(raw),
		})
	}
	return NewPool(endpoints, m, logger)
}

// Size returns the number of endpoints in the rotation.
func (p *Pool) Size() int { return len(p.endpoints) }

// current returns the endpoint at the cursor.
func (p *Pool) current() Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endpoints[p.cursor]
}

// advance moves the cursor to the next endpoint in the rotation.
func (p *Pool) advance() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor = (p.cursor + 1) % len(p.endpoints)
}

// WithFallback runs op against the pool's current endpoint, rotating on
// failure. Rate-limit errors wait a longer cooldown before rotating; other
// errors wait a short delay. Unauthorized errors are returned immediately
// since no endpoint rotation can fix them. At most 2x the endpoint count
// attempts are made before returning an aggregated failure naming the last
// endpoint tried.
func WithFallback[T any](ctx context.Context, p *Pool, method string, op func(ctx context.Context, rc RPCClient) (T, error)) (T, error) {
	var zero T
	maxAttempts := len(p.endpoints) * 2

	var lastErr error
	var lastEndpoint string
	for attempt := 0; attempt < maxAttempts; attempt++ {
		ep := p.current()
		lastEndpoint = ep.Name

		start := time.Now()
		out, err := op(ctx, ep.Client)
		duration := time.Since(start).Seconds()

		status := "success"
		if err != nil {
			status = "error"
		}
		if p.metrics != nil {
			p.metrics.RecordRPCCall(method, status, ep.Name, duration)
		}

		if err == nil {
			return out, nil
		}
		lastErr = err

		kind := KindOf(err)
		switch kind {
		case ErrKindUnauthorized:
			p.logger.ErrorContext(ctx, "RPC endpoint rejected credentials, not retrying",
				"method", method,
				"endpoint", ep.Name,
				"error", err,
			)
			return zero, &Error{Kind: ErrKindUnauthorized, Endpoint: ep.Name, Err: err}
		case ErrKindRateLimited:
			if p.metrics != nil {
				p.metrics.RecordRateLimitHit(ep.Name)
			}
			p.logger.WarnContext(ctx, "RPC endpoint rate limited, cooling down before rotating",
				"method", method,
				"endpoint", ep.Name,
				"attempt", attempt+1,
				"cooldown", p.rateLimitCooldown,
			)
			if err := sleep(ctx, p.rateLimitCooldown); err != nil {
				return zero, err
			}
		default:
			p.logger.WarnContext(ctx, "RPC call failed, rotating endpoint",
				"method", method,
				"endpoint", ep.Name,
				"attempt", attempt+1,
				"error", err,
			)
			if err := sleep(ctx, p.rotateDelay); err != nil {
				return zero, err
			}
		}

		if p.metrics != nil {
			p.metrics.RecordRPCRetry(method, kind.String())
		}
		p.advance()
	}

	return zero, &Error{
		Kind:     ErrKindEndpointUnavailable,
		Endpoint: lastEndpoint,
		Err:      fmt.Errorf("all %d attempts across %d endpoints failed, last endpoint %s: %w", maxAttempts, len(p.endpoints), lastEndpoint, lastErr),
	}
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// endpointName extracts a short metrics-safe label from an endpoint URL.
func endpointName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}
