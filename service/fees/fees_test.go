package fees

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetReclaim_StandardTier(t *testing.T) {
	// 0.00203928 SOL * 0.95 = 0.0019373 SOL (rounded to the lamport)
	net := NetReclaimLamports(TierStandard)
	assert.Equal(t, uint64(1_937_316), net)
	assert.InDelta(t, 0.0019373, SOL(net), 0.0000001)
}

func TestNetReclaim_HolderTier(t *testing.T) {
	net := NetReclaimLamports(TierHolder)
	fee := PlatformFeeLamports(TierHolder)
	assert.Equal(t, RentExemptionLamports, net+fee)
	assert.Greater(t, net, NetReclaimLamports(TierStandard))
}

func TestNewQuote_ThreeAccounts(t *testing.T) {
	q := NewQuote(TierStandard, 3, 0)
	require.Equal(t, 3, q.CloseableCount)
	assert.Equal(t, uint64(3*1_937_316), q.TotalNetLamports)
	// ~0.0058119 SOL for three standard-tier closes
	assert.InDelta(t, 0.0058119, SOL(q.TotalNetLamports), 0.000001)
	assert.True(t, q.Viable)
}

func TestNewQuote_BelowMinimumNotViable(t *testing.T) {
	q := NewQuote(TierStandard, 1, 5_000_000)
	assert.False(t, q.Viable)
}

func TestNewQuote_ZeroAccounts(t *testing.T) {
	q := NewQuote(TierHolder, 0, 0)
	assert.Zero(t, q.TotalNetLamports)
	assert.False(t, q.Viable)
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "standard", TierStandard.String())
	assert.Equal(t, "holder", TierHolder.String())
}
