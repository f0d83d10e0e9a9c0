package reclaim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/solanare/reclaimer/service/fees"
	"github.com/solanare/reclaimer/service/metrics"
	"github.com/solanare/reclaimer/service/scanner"
	"github.com/solanare/reclaimer/service/txbuilder"
)

// ErrNothingToClose means the scan found no account a close may be
// attempted on under the given options.
var ErrNothingToClose = errors.New("no closeable accounts")

// ErrNotViable means the closeable set's net reclaim is below the
// minimum-viable threshold and submitting transactions would waste fees.
var ErrNotViable = errors.New("reclaim below minimum viable amount")

// Ledger is the slice of the Solana client the orchestrator needs directly.
type Ledger interface {
	IsHolder(ctx context.Context, wallet, mint solana.PublicKey, minRawAmount uint64) (bool, error)
}

// WalletScanner produces a classified inventory for a wallet.
type WalletScanner interface {
	Scan(ctx context.Context, wallet solana.PublicKey) (*scanner.Result, error)
}

// ScannerFactory builds a WalletScanner for one run's fee tier. The tier
// feeds the classifier's minimum-viable check, so the scanner cannot be
// constructed before the tier is known.
type ScannerFactory func(tier fees.Tier) WalletScanner

// Closer drives batch closes for a prepared account list.
type Closer interface {
	CloseAll(ctx context.Context, owner solana.PublicKey, accounts []scanner.Account) *txbuilder.BatchResult
}

// CloserFactory builds a Closer for one run's fee tier and memo note.
type CloserFactory func(tier fees.Tier, message string) Closer

// Record is one reclaim history entry, written per confirmed transaction.
type Record struct {
	Wallet            string
	Signature         string
	AccountsClosed    int
	ReclaimedLamports uint64
	Tier              string
	Message           string
	Timestamp         time.Time
}

// RecordSink persists reclaim history. Failures are logged, never fatal to
// the run; the ledger remains the source of truth.
type RecordSink interface {
	Record(ctx context.Context, rec Record) error
}

// EventPublisher announces completed reclaims to downstream consumers.
type EventPublisher interface {
	PublishReclaim(ctx context.Context, rec Record) error
}

// Config holds the run-independent reclaim parameters.
type Config struct {
	Treasury          solana.PublicKey
	HolderMint        solana.PublicKey
	HolderMinRaw      uint64
	MinViableLamports uint64
}

// Options are per-run knobs.
type Options struct {
	// IncludeWarned opts in to closing accounts whose remaining balance
	// will be burned. Off by default; burning is irreversible.
	IncludeWarned bool
	// Message is an optional note stamped into the batch memo. Honored
	// only for holder-tier wallets.
	Message string
}

// Summary is the aggregate outcome of one reclaim run.
type Summary struct {
	Wallet                 solana.PublicKey
	Tier                   fees.Tier
	Quote                  fees.Quote
	ClosedCount            int
	FailedCount            int
	TotalReclaimedLamports uint64
	FailedAddresses        []solana.PublicKey
	Signatures             []solana.Signature

	// PostScan is a fresh inventory taken after the close pass, so the
	// caller sees current on-chain state rather than a stale projection.
	PostScan *scanner.Result
}

// Orchestrator chains tier lookup, scan, selection, batch close, history
// recording, and re-scan into one run.
type Orchestrator struct {
	cfg        Config
	ledger     Ledger
	newScanner ScannerFactory
	newCloser  CloserFactory
	records    RecordSink
	events     EventPublisher
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewOrchestrator creates an orchestrator. records, events, and m may be
// nil, disabling history persistence, event publishing, and metrics
// respectively.
func NewOrchestrator(cfg Config, ledger Ledger, newScanner ScannerFactory, newCloser CloserFactory, records RecordSink, events EventPublisher, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		ledger:     ledger,
		newScanner: newScanner,
		newCloser:  newCloser,
		records:    records,
		events:     events,
		logger:     logger,
		metrics:    m,
	}
}

// Tier resolves the wallet's fee tier from its platform-token holdings.
// With no holder mint configured, everyone pays the standard rate.
func (o *Orchestrator) Tier(ctx context.Context, wallet solana.PublicKey) (fees.Tier, error) {
	if o.cfg.HolderMint.IsZero() {
		return fees.TierStandard, nil
	}
	holder, err := o.ledger.IsHolder(ctx, wallet, o.cfg.HolderMint, o.cfg.HolderMinRaw)
	if err != nil {
		return fees.TierStandard, fmt.Errorf("failed to check holder status for %s: %w", wallet, err)
	}
	if holder {
		return fees.TierHolder, nil
	}
	return fees.TierStandard, nil
}

// Run executes one reclaim: tier → scan → select → viability gate → batch
// close → record → re-scan.
func (o *Orchestrator) Run(ctx context.Context, wallet solana.PublicKey, opts Options) (*Summary, error) {
	tier, err := o.Tier(ctx, wallet)
	if err != nil {
		return nil, err
	}

	walletScanner := o.newScanner(tier)
	scan, err := walletScanner.Scan(ctx, wallet)
	if err != nil {
		return nil, err
	}

	closeable := scan.Closeable(opts.IncludeWarned)
	if len(closeable) == 0 {
		return nil, ErrNothingToClose
	}

	quote := fees.NewQuote(tier, len(closeable), o.cfg.MinViableLamports)
	if !quote.Viable {
		return nil, fmt.Errorf("%w: %d accounts net %d lamports", ErrNotViable, len(closeable), quote.TotalNetLamports)
	}

	o.logger.InfoContext(ctx, "starting reclaim",
		"wallet", wallet.String(),
		"tier", tier.String(),
		"closeable", len(closeable),
		"estimated_net_lamports", quote.TotalNetLamports,
	)

	// The memo note is a holder perk; standard-tier runs get the plain memo.
	message := opts.Message
	if tier != fees.TierHolder {
		message = ""
	}

	result := o.newCloser(tier, message).CloseAll(ctx, wallet, closeable)

	summary := &Summary{
		Wallet:                 wallet,
		Tier:                   tier,
		Quote:                  quote,
		ClosedCount:            result.ClosedCount(),
		FailedCount:            len(result.Outcomes) - result.ClosedCount(),
		TotalReclaimedLamports: uint64(result.ClosedCount()) * quote.NetReclaimLamports,
		FailedAddresses:        result.FailedAddresses(),
		Signatures:             result.Signatures,
	}

	if o.metrics != nil {
		o.metrics.RecordReclaimedLamports(wallet.String(), summary.TotalReclaimedLamports)
	}

	o.recordOutcomes(ctx, wallet, tier, message, quote, result)

	// Re-scan so the caller sees the ledger as it is now. A failure here
	// does not invalidate the closes that already landed.
	post, err := walletScanner.Scan(ctx, wallet)
	if err != nil {
		o.logger.WarnContext(ctx, "post-reclaim scan failed",
			"wallet", wallet.String(),
			"error", err,
		)
	} else {
		summary.PostScan = post
	}

	o.logger.InfoContext(ctx, "reclaim complete",
		"wallet", wallet.String(),
		"closed", summary.ClosedCount,
		"failed", summary.FailedCount,
		"reclaimed_lamports", summary.TotalReclaimedLamports,
	)
	return summary, nil
}

// recordOutcomes writes one history record per confirmed transaction and
// publishes it. Persistence failures are logged and swallowed.
func (o *Orchestrator) recordOutcomes(ctx context.Context, wallet solana.PublicKey, tier fees.Tier, message string, quote fees.Quote, result *txbuilder.BatchResult) {
	perSig := map[solana.Signature]int{}
	for _, outcome := range result.Outcomes {
		if outcome.Closed() {
			perSig[outcome.Signature]++
		}
	}

	for _, sig := range result.Signatures {
		count := perSig[sig]
		rec := Record{
			Wallet:            wallet.String(),
			Signature:         sig.String(),
			AccountsClosed:    count,
			ReclaimedLamports: uint64(count) * quote.NetReclaimLamports,
			Tier:              tier.String(),
			Message:           message,
			Timestamp:         time.Now().UTC(),
		}
		if o.records != nil {
			if err := o.records.Record(ctx, rec); err != nil {
				o.logger.WarnContext(ctx, "failed to record reclaim",
					"wallet", rec.Wallet,
					"signature", rec.Signature,
					"error", err,
				)
			}
		}
		if o.events != nil {
			if err := o.events.PublishReclaim(ctx, rec); err != nil {
				o.logger.WarnContext(ctx, "failed to publish reclaim event",
					"wallet", rec.Wallet,
					"signature", rec.Signature,
					"error", err,
				)
			}
		}
	}
}
