package solana

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, mocks ...*mockRPC) *Pool {
	t.Helper()
	endpoints := make([]Endpoint, 0, len(mocks))
	for i, m := range mocks {
		endpoints = append(endpoints, Endpoint{Name: string(rune('a' + i)), Client: m})
	}
	pool, err := NewPool(endpoints, nil, testLogger())
	require.NoError(t, err)
	pool.rateLimitCooldown = 0
	pool.rotateDelay = 0
	return pool
}

func TestNewPoolRequiresEndpoints(t *testing.T) {
	_, err := NewPool(nil, nil, testLogger())
	require.Error(t, err)
}

func TestWithFallbackReturnsFirstSuccess(t *testing.T) {
	var calls atomic.Int64
	mock := &mockRPC{
		getBalanceFunc: func(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
			calls.Add(1)
			return &rpc.GetBalanceResult{Value: 42}, nil
		},
	}
	pool := newTestPool(t, mock)

	out, err := WithFallback(context.Background(), pool, "GetBalance", func(ctx context.Context, rc RPCClient) (*rpc.GetBalanceResult, error) {
		return rc.GetBalance(ctx, solana.PublicKey{}, rpc.CommitmentConfirmed)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), out.Value)
	assert.Equal(t, int64(1), calls.Load())
}

func TestWithFallbackRotatesToHealthyEndpoint(t *testing.T) {
	broken := &mockRPC{
		getBalanceFunc: func(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
	}
	healthy := &mockRPC{
		getBalanceFunc: func(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
			return &rpc.GetBalanceResult{Value: 7}, nil
		},
	}
	pool := newTestPool(t, broken, healthy)

	out, err := WithFallback(context.Background(), pool, "GetBalance", func(ctx context.Context, rc RPCClient) (*rpc.GetBalanceResult, error) {
		return rc.GetBalance(ctx, solana.PublicKey{}, rpc.CommitmentConfirmed)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), out.Value)
}

func TestWithFallbackExhaustsAttempts(t *testing.T) {
	var calls atomic.Int64
	failing := func(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
		calls.Add(1)
		return nil, errors.New("dial tcp: connection refused")
	}
	pool := newTestPool(t,
		&mockRPC{getBalanceFunc: failing},
		&mockRPC{getBalanceFunc: failing},
		&mockRPC{getBalanceFunc: failing},
	)

	_, err := WithFallback(context.Background(), pool, "GetBalance", func(ctx context.Context, rc RPCClient) (*rpc.GetBalanceResult, error) {
		return rc.GetBalance(ctx, solana.PublicKey{}, rpc.CommitmentConfirmed)
	})
	require.Error(t, err)
	assert.Equal(t, ErrKindEndpointUnavailable, KindOf(err))
	// Two full passes over the rotation, no more.
	assert.Equal(t, int64(6), calls.Load())
}

func TestWithFallbackNeverRetriesUnauthorized(t *testing.T) {
	var calls atomic.Int64
	bad := &mockRPC{
		getBalanceFunc: func(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
			calls.Add(1)
			return nil, errors.New("401 Unauthorized")
		},
	}
	never := &mockRPC{
		getBalanceFunc: func(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
			t.Fatal("second endpoint should not be tried after an auth failure")
			return nil, nil
		},
	}
	pool := newTestPool(t, bad, never)

	_, err := WithFallback(context.Background(), pool, "GetBalance", func(ctx context.Context, rc RPCClient) (*rpc.GetBalanceResult, error) {
		return rc.GetBalance(ctx, solana.PublicKey{}, rpc.CommitmentConfirmed)
	})
	require.Error(t, err)
	assert.Equal(t, ErrKindUnauthorized, KindOf(err))
	assert.Equal(t, int64(1), calls.Load())
}

func TestWithFallbackRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mock := &mockRPC{
		getBalanceFunc: func(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
			cancel()
			return nil, errors.New("429 Too Many Requests")
		},
	}
	pool := newTestPool(t, mock)
	pool.rateLimitCooldown = defaultRateLimitCooldown

	_, err := WithFallback(ctx, pool, "GetBalance", func(ctx context.Context, rc RPCClient) (*rpc.GetBalanceResult, error) {
		return rc.GetBalance(ctx, solana.PublicKey{}, rpc.CommitmentConfirmed)
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestEndpointName(t *testing.T) {
	assert.Equal(t, "api.mainnet-beta.solana.com", endpointName("https://api.mainnet-beta.solana.com"))
	assert.Equal(t, "not a url", endpointName("not a url"))
}
