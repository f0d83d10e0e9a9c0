package scanner

import (
	"context"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/solanare/reclaimer/service/fees"
)

// Not-closeable reasons surfaced to the caller.
const (
	ReasonRemainingBalance     = "has remaining balance"
	ReasonFrozen               = "frozen"
	ReasonInsufficientFee      = "insufficient fee balance"
	ReasonBelowMinimumViable   = "below minimum viable amount"
	WarningBalanceWillBeBurned = "remaining balance will be burned"
)

// ActivityProbe decides whether an asset with a remaining balance is
// provably worthless, making a burn-and-close acceptable. The lookup is
// deployment-specific, so it is pluggable; the default implementation
// checks pool liquidity and recent signature history.
type ActivityProbe interface {
	Worthless(ctx context.Context, mint solana.PublicKey) (bool, error)
}

// Classifier evaluates safety predicates over scanned accounts.
type Classifier struct {
	probe     ActivityProbe
	tier      fees.Tier
	minViable uint64
	logger    *slog.Logger
}

// NewClassifier creates a classifier. minViable of 0 selects the default
// minimum-viable-reclaim threshold.
func NewClassifier(probe ActivityProbe, tier fees.Tier, minViable uint64, logger *slog.Logger) *Classifier {
	if minViable == 0 {
		minViable = fees.DefaultMinViableReclaimLamports
	}
	return &Classifier{
		probe:     probe,
		tier:      tier,
		minViable: minViable,
		logger:    logger,
	}
}

// Classify evaluates one account against the safety predicates.
// walletLamports is the owning wallet's SOL balance, used to gate on the
// simulated close fee. Non-token kinds are always closeable.
//
// Predicate order matters: the remaining-balance check runs first because
// its worthlessness probe costs two network round trips, and it only pays
// that cost when the balance is nonzero. The remaining checks are local
// comparisons.
func (c *Classifier) Classify(ctx context.Context, account *Account, walletLamports uint64) Closeability {
	if account.Kind != KindToken || account.Token == nil {
		return Closeability{Verdict: VerdictCloseable}
	}
	tok := account.Token

	if tok.RawAmount > 0 {
		worthless, err := c.probe.Worthless(ctx, tok.Mint)
		if err != nil {
			// Without a probe answer we cannot justify burning a live
			// balance; block the close.
			c.logger.WarnContext(ctx, "worthlessness probe failed, keeping account blocked",
				"account", account.Address.String(),
				"mint", tok.Mint.String(),
				"error", err,
			)
			return Closeability{Verdict: VerdictNotCloseable, Reason: ReasonRemainingBalance}
		}
		if worthless {
			return Closeability{Verdict: VerdictCloseableWithWarning, Reason: WarningBalanceWillBeBurned}
		}
		return Closeability{Verdict: VerdictNotCloseable, Reason: ReasonRemainingBalance}
	}

	if tok.Frozen {
		return Closeability{Verdict: VerdictNotCloseable, Reason: ReasonFrozen}
	}

	if walletLamports < account.EstimatedCloseFeeLamports {
		return Closeability{Verdict: VerdictNotCloseable, Reason: ReasonInsufficientFee}
	}

	if fees.NetReclaimLamports(c.tier) < c.minViable {
		return Closeability{Verdict: VerdictNotCloseable, Reason: ReasonBelowMinimumViable}
	}

	return Closeability{Verdict: VerdictCloseable}
}

// liquidityLedger is the slice of the ledger client the default probe needs.
type liquidityLedger interface {
	ProgramAccounts(ctx context.Context, program solana.PublicKey, dataSize uint64, offset uint64, match []byte) ([]solana.PublicKey, error)
	RecentSignatures(ctx context.Context, address solana.PublicKey, limit int) ([]*rpc.TransactionSignature, error)
}

// Liquidity-pool account layout for the pool lookup: fixed size with the
// asset mint embedded at a known byte offset.
const (
	poolDataSize       uint64 = 752
	poolBaseMintOffset uint64 = 400

	recentSignatureLimit = 10
)

// LiquidityProbe is the default ActivityProbe: an asset is worthless only
// when no liquidity pool references its mint AND the mint has no recent
// signature history. Either signal alone keeps the burn blocked.
type LiquidityProbe struct {
	ledger liquidityLedger
	logger *slog.Logger
}

// NewLiquidityProbe creates the default worthlessness probe over the ledger
// client.
func NewLiquidityProbe(ledger liquidityLedger, logger *slog.Logger) *LiquidityProbe {
	return &LiquidityProbe{ledger: ledger, logger: logger}
}

func (p *LiquidityProbe) Worthless(ctx context.Context, mint solana.PublicKey) (bool, error) {
	pools, err := p.ledger.ProgramAccounts(ctx, raydiumV4Program, poolDataSize, poolBaseMintOffset, mint.Bytes())
	if err != nil {
		return false, err
	}
	if len(pools) > 0 {
		return false, nil
	}

	sigs, err := p.ledger.RecentSignatures(ctx, mint, recentSignatureLimit)
	if err != nil {
		return false, err
	}
	return len(sigs) == 0, nil
}
