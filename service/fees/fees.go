package fees

import "math"

// Rent and fee constants for token account closes. A closed token account
// refunds its rent-exemption deposit to the owner; the platform takes a
// percentage cut, reduced for verified token holders.
const (
	// RentExemptionLamports is the refundable deposit locked into a
	// standard token account (0.00203928 SOL).
	RentExemptionLamports uint64 = 2_039_280

	// PlatformFeeRate is the default platform fee on reclaimed rent.
	PlatformFeeRate = 0.05

	// HolderFeeRate is the reduced fee for qualifying token holders.
	HolderFeeRate = 0.03

	// DefaultMinViableReclaimLamports is the smallest per-run net reclaim
	// worth submitting a transaction for.
	DefaultMinViableReclaimLamports uint64 = 10_000

	// LamportsPerSOL converts lamports to SOL for display.
	LamportsPerSOL = 1_000_000_000
)

// Tier is the fee classification of a wallet.
type Tier int

const (
	// TierStandard pays the full platform fee.
	TierStandard Tier = iota
	// TierHolder holds enough of the platform token for the reduced fee.
	TierHolder
)

// String returns the tier name used in memos and log fields.
func (t Tier) String() string {
	if t == TierHolder {
		return "holder"
	}
	return "standard"
}

// Rate returns the platform fee rate for the tier.
func (t Tier) Rate() float64 {
	if t == TierHolder {
		return HolderFeeRate
	}
	return PlatformFeeRate
}

// Quote is the derived fee picture for a reclaim run. It is computed on
// demand from constants and the tier, never stored.
type Quote struct {
	RentExemptionLamports uint64
	FeeRate               float64
	NetReclaimLamports    uint64 // per account, after the platform cut
	CloseableCount        int
	TotalNetLamports      uint64
	Viable                bool
}

// NewQuote derives a fee quote for closing closeableCount accounts at the
// given tier. minViable of 0 falls back to the default threshold.
func NewQuote(tier Tier, closeableCount int, minViable uint64) Quote {
	if minViable == 0 {
		minViable = DefaultMinViableReclaimLamports
	}
	net := NetReclaimLamports(tier)
	total := net * uint64(closeableCount)
	return Quote{
		RentExemptionLamports: RentExemptionLamports,
		FeeRate:               tier.Rate(),
		NetReclaimLamports:    net,
		CloseableCount:        closeableCount,
		TotalNetLamports:      total,
		Viable:                total >= minViable,
	}
}

// NetReclaimLamports is the per-account deposit refund after the platform fee.
func NetReclaimLamports(tier Tier) uint64 {
	return RentExemptionLamports - PlatformFeeLamports(tier)
}

// PlatformFeeLamports is the per-account platform cut, rounded to the
// nearest lamport so net+fee always sums back to the full deposit.
func PlatformFeeLamports(tier Tier) uint64 {
	return uint64(math.Round(float64(RentExemptionLamports) * tier.Rate()))
}

// SOL converts lamports to SOL.
func SOL(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSOL
}
